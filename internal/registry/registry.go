package registry

import (
	"fmt"

	"starweaved/pkg/types"
)

// Registry is the immutable model catalog. It is built once at startup and
// is safe for concurrent reads without locking.
type Registry struct {
	order []types.ModelConfig
	byID  map[string]types.ModelConfig
}

// New validates a catalog and builds a Registry from it. Validation
// failures here are configuration errors and fatal at startup.
func New(configs []types.ModelConfig) (*Registry, error) {
	r := &Registry{byID: make(map[string]types.ModelConfig, len(configs))}
	for _, c := range configs {
		if c.ID == "" {
			return nil, fmt.Errorf("registry: model with empty id")
		}
		if _, dup := r.byID[c.ID]; dup {
			return nil, fmt.Errorf("registry: duplicate model id %q", c.ID)
		}
		switch c.Kind {
		case types.KindTextToImage, types.KindImageToImage, types.KindInpainting:
		default:
			return nil, fmt.Errorf("registry: model %q has unknown kind %q", c.ID, c.Kind)
		}
		if c.MinSteps <= 0 || c.MaxSteps < c.MinSteps {
			return nil, fmt.Errorf("registry: model %q has invalid step bounds [%d,%d]", c.ID, c.MinSteps, c.MaxSteps)
		}
		if c.DefaultSteps < c.MinSteps || c.DefaultSteps > c.MaxSteps {
			return nil, fmt.Errorf("registry: model %q default steps %d outside [%d,%d]", c.ID, c.DefaultSteps, c.MinSteps, c.MaxSteps)
		}
		if c.DefaultSize.Width <= 0 || c.DefaultSize.Height <= 0 {
			return nil, fmt.Errorf("registry: model %q has invalid default size", c.ID)
		}
		r.order = append(r.order, c)
		r.byID[c.ID] = c
	}
	// Fallback ids must resolve within the catalog.
	for _, c := range r.order {
		if c.FallbackID == "" {
			continue
		}
		if c.FallbackID == c.ID {
			return nil, fmt.Errorf("registry: model %q falls back to itself", c.ID)
		}
		if _, ok := r.byID[c.FallbackID]; !ok {
			return nil, fmt.Errorf("registry: model %q falls back to unknown id %q", c.ID, c.FallbackID)
		}
	}
	return r, nil
}

// Describe returns the config for id, if known.
func (r *Registry) Describe(id string) (types.ModelConfig, bool) {
	c, ok := r.byID[id]
	return c, ok
}

// All returns the catalog in declaration order as a copy.
func (r *Registry) All() []types.ModelConfig {
	out := make([]types.ModelConfig, len(r.order))
	copy(out, r.order)
	return out
}

// Builtin returns the shipped model catalog.
func Builtin() []types.ModelConfig {
	return []types.ModelConfig{
		{
			ID:              "stabilityai/stable-diffusion-2-1",
			Name:            "Stable Diffusion 2.1",
			Description:     "Stable Diffusion 2.1 model with 768x768 resolution",
			Kind:            types.KindTextToImage,
			DefaultSize:     types.Size{Width: 768, Height: 768},
			SupportedSizes:  []types.Size{{Width: 512, Height: 512}, {Width: 768, Height: 768}},
			MinSteps:        10,
			MaxSteps:        100,
			DefaultSteps:    30,
			DefaultGuidance: 7.5,
			DefaultSeed:     -1,
			Enabled:         true,
			FallbackID:      "runwayml/stable-diffusion-v1-5",
		},
		{
			ID:              "runwayml/stable-diffusion-v1-5",
			Name:            "Stable Diffusion 1.5",
			Description:     "Stable Diffusion 1.5 model with 512x512 resolution",
			Kind:            types.KindTextToImage,
			DefaultSize:     types.Size{Width: 512, Height: 512},
			SupportedSizes:  []types.Size{{Width: 384, Height: 384}, {Width: 512, Height: 512}},
			MinSteps:        10,
			MaxSteps:        100,
			DefaultSteps:    25,
			DefaultGuidance: 7.5,
			DefaultSeed:     -1,
			Enabled:         true,
		},
		{
			ID:              "runwayml/stable-diffusion-inpainting",
			Name:            "Stable Diffusion Inpainting",
			Description:     "Stable Diffusion 1.5 inpainting variant",
			Kind:            types.KindInpainting,
			DefaultSize:     types.Size{Width: 512, Height: 512},
			SupportedSizes:  []types.Size{{Width: 512, Height: 512}},
			MinSteps:        10,
			MaxSteps:        100,
			DefaultSteps:    25,
			DefaultGuidance: 7.5,
			DefaultSeed:     -1,
			Enabled:         true,
		},
	}
}
