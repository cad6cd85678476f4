package types

// ModelStatus summarizes one registry entry plus its live runtime state
// for GET /models and GET /status.
type ModelStatus struct {
	// Model identifier.
	// example: stabilityai/stable-diffusion-2-1
	ID string `json:"id" example:"stabilityai/stable-diffusion-2-1"`
	// Human-friendly name.
	Name string `json:"name"`
	// Model kind.
	Kind ModelKind `json:"kind"`
	// Lifecycle phase: unloaded, loading or loaded.
	// example: loaded
	Status string `json:"status" example:"loaded"`
	// Last time the model served or was requested (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Number of successful loads since the counters were first seeded.
	LoadCount uint64 `json:"load_count"`
	// Number of load/generation errors attributed to this model.
	ErrorCount uint64 `json:"error_count"`
	// Estimated accelerator memory footprint in bytes (0 when unloaded).
	MemoryBytes int64 `json:"memory_bytes"`
	// Last load error, if any. Cleared on the next successful load.
	LastError string `json:"last_error,omitempty"`
}

// ModelsResponse wraps the list returned by GET /models.
type ModelsResponse struct {
	Models []ModelStatus `json:"models"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Per-model snapshots in registry order.
	Models []ModelStatus `json:"models"`
	// Number of models currently resident in accelerator memory.
	ResidentCount int `json:"resident_count"`
	// Configured maximum resident models.
	MaxResident int `json:"max_resident"`
	// Configured on-disk cache quota in bytes.
	DiskQuotaBytes int64 `json:"disk_quota_bytes"`
	// Total successful loads since process start.
	LoadsTotal uint64 `json:"loads_total"`
	// Total evictions since process start.
	EvictionsTotal uint64 `json:"evictions_total"`
	// Uptime of the server in seconds.
	UptimeSeconds int64 `json:"uptime_seconds"`
	// Server time in unix seconds.
	ServerTimeUnix int64 `json:"server_time_unix"`
}

// GenerateRequest is the payload for POST /generate.
type GenerateRequest struct {
	// Optional model identifier. If empty, the server default is used.
	Model string `json:"model,omitempty"`
	// Required prompt text.
	// example: a lighthouse at dusk, oil painting
	Prompt string `json:"prompt" example:"a lighthouse at dusk, oil painting"`
	// Negative prompt, if the model supports one.
	NegativePrompt string `json:"negative_prompt,omitempty"`
	// Output width in pixels; 0 uses the model default.
	Width int `json:"width,omitempty"`
	// Output height in pixels; 0 uses the model default.
	Height int `json:"height,omitempty"`
	// Inference steps; 0 uses the model default.
	Steps int `json:"steps,omitempty"`
	// Guidance scale; 0 uses the model default.
	GuidanceScale float64 `json:"guidance_scale,omitempty"`
	// Random seed; -1 or omitted picks one per request.
	Seed int64 `json:"seed,omitempty"`
}

// VariationsRequest is the payload for POST /generate/variations.
type VariationsRequest struct {
	// Base generation request the variations derive from.
	Base GenerateRequest `json:"base"`
	// How many variations to produce (1..4).
	NumVariations int `json:"num_variations,omitempty"`
	// Variation strength in [0,1].
	Strength float64 `json:"variation_strength,omitempty"`
}

// GenerateMetadata records how an image was produced.
type GenerateMetadata struct {
	Model         string  `json:"model"`
	Width         int     `json:"width"`
	Height        int     `json:"height"`
	Steps         int     `json:"steps"`
	GuidanceScale float64 `json:"guidance_scale"`
	Seed          int64   `json:"seed"`
	DurationMS    int64   `json:"generation_time_ms"`
}

// GenerateResponse carries one generated image. In the variations stream
// a response may carry Error instead of image data.
type GenerateResponse struct {
	RequestID string           `json:"request_id"`
	Image     []byte           `json:"image_data,omitempty"`
	Format    string           `json:"format,omitempty"`
	Metadata  GenerateMetadata `json:"metadata"`
	Error     string           `json:"error,omitempty"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: no-such-model
	Error string `json:"error" example:"model not found: no-such-model"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
