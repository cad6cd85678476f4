// Package engine defines the inference engine collaborator the lifecycle
// manager drives. The manager treats the engine as opaque: it constructs
// pipelines, releases their device memory, and runs generations, but never
// looks inside beyond the structural introspection needed for validation.
package engine

import (
	"context"

	"starweaved/pkg/types"
)

// Device identifies where a pipeline's tensors live.
type Device string

const (
	DeviceAccelerator Device = "cuda"
	DeviceCPU         Device = "cpu"
)

// Precision is a construction hint; engines may ignore it.
type Precision string

const (
	PrecisionHalf Precision = "fp16"
	PrecisionFull Precision = "fp32"
)

// Required pipeline sub-components checked during load validation.
const (
	ComponentUNet        = "unet"
	ComponentTextEncoder = "text_encoder"
	ComponentVAE         = "vae"
)

// Pipeline is an opaque handle to a constructed model. The manager holds
// exactly one per loaded model and drops it on eviction.
type Pipeline interface {
	// ModelID reports which model this pipeline was constructed for.
	ModelID() string
	// Kind reports the pipeline's actual kind, which may differ from the
	// registry's declared kind when the weights are a different variant.
	Kind() types.ModelKind
	// Components lists the sub-components present (unet, text_encoder, ...).
	Components() []string
	// Device reports where the pipeline currently resides.
	Device() Device
	// MemoryBytes estimates the device memory held by this pipeline.
	MemoryBytes() int64
}

// GenerateParams are the fully resolved knobs for one generation.
type GenerateParams struct {
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
	Steps          int
	GuidanceScale  float64
	Seed           int64
	// Strength is only meaningful for variations (0..1, 0 = ignore).
	Strength float64
}

// Result is one generated image.
type Result struct {
	Image  []byte
	Format string
	Seed   int64
}

// Engine constructs, releases and runs pipelines. Implementations must be
// safe for concurrent use; the manager calls Construct and Generate outside
// its registry lock.
type Engine interface {
	// Construct builds a pipeline for modelID with the given placement
	// hint, caching weights under cacheDir.
	Construct(ctx context.Context, modelID string, dev Device, prec Precision, cacheDir string) (Pipeline, error)
	// ReleaseDevice frees the device memory behind p. The handle must not
	// be used afterwards even when an error is returned.
	ReleaseDevice(p Pipeline) error
	// Generate runs one image generation on p.
	Generate(ctx context.Context, p Pipeline, params GenerateParams) (Result, error)
	// HasAccelerator reports whether a GPU-class device is present.
	HasAccelerator() bool
	// DeviceMemory reports current device memory usage. total == 0 means
	// no reading is available (e.g. CPU-only hosts); err != nil means the
	// probe itself failed and callers should fall back conservatively.
	DeviceMemory() (used, total int64, err error)
}
