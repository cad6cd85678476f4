package types

// ModelKind classifies what a diffusion model does.
type ModelKind string

const (
	KindTextToImage  ModelKind = "text-to-image"
	KindImageToImage ModelKind = "image-to-image"
	KindInpainting   ModelKind = "inpainting"
)

// Size is a width x height pair in pixels.
type Size struct {
	// example: 768
	Width int `json:"width" example:"768"`
	// example: 768
	Height int `json:"height" example:"768"`
}

// ModelConfig describes a model known to the registry. Configs are built
// once at startup and never mutated afterwards.
type ModelConfig struct {
	// Stable identifier for the model.
	// example: stabilityai/stable-diffusion-2-1
	ID string `json:"id" example:"stabilityai/stable-diffusion-2-1"`
	// Human-friendly name.
	// example: Stable Diffusion 2.1
	Name string `json:"name" example:"Stable Diffusion 2.1"`
	// Short description of the model.
	Description string `json:"description"`
	// What the model does (text-to-image, image-to-image, inpainting).
	Kind ModelKind `json:"kind"`
	// Resolution used when a request does not specify one.
	DefaultSize Size `json:"default_size"`
	// Resolutions the model can generate at.
	SupportedSizes []Size `json:"supported_sizes"`
	// Inference step bounds and default.
	MinSteps     int `json:"min_steps"`
	MaxSteps     int `json:"max_steps"`
	DefaultSteps int `json:"default_steps"`
	// Classifier-free guidance default.
	DefaultGuidance float64 `json:"default_guidance_scale"`
	// Default seed; -1 means pick randomly per request.
	DefaultSeed int64 `json:"default_seed"`
	// Disabled models stay in the catalog but reject loads.
	Enabled bool `json:"enabled"`
	// Optional alternate model id to load when this model fails its
	// structural check (e.g. an incompatible UNet variant).
	FallbackID string `json:"fallback_id,omitempty"`
}

// SmallestSize returns the smallest supported resolution by area, falling
// back to the default size when none are declared. Used for warm-up.
func (c ModelConfig) SmallestSize() Size {
	if len(c.SupportedSizes) == 0 {
		return c.DefaultSize
	}
	min := c.SupportedSizes[0]
	for _, s := range c.SupportedSizes[1:] {
		if s.Width*s.Height < min.Width*min.Height {
			min = s
		}
	}
	return min
}
