package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"strings"
	"sync"
	"time"

	"starweaved/pkg/types"
)

var allComponents = []string{ComponentUNet, ComponentTextEncoder, ComponentVAE}

// StubEngine is an in-process Engine used when no real inference backend
// is wired in, and by tests. It renders deterministic PNG noise so the
// full request path stays exercisable end to end. All failure modes are
// injectable per model id.
type StubEngine struct {
	mu sync.Mutex

	hasAccel bool
	memTotal int64
	memUsed  int64
	memErr   error

	pipelineBytes  map[string]int64
	constructErr   map[string]error
	generateErr    map[string]error
	dropComponents map[string][]string
	kindOverride   map[string]types.ModelKind
	constructDelay time.Duration

	constructCalls map[string]int
	releaseCalls   int
}

// NewStubEngine returns a CPU-only stub with no injected failures.
func NewStubEngine() *StubEngine {
	return &StubEngine{
		pipelineBytes:  make(map[string]int64),
		constructErr:   make(map[string]error),
		generateErr:    make(map[string]error),
		dropComponents: make(map[string][]string),
		kindOverride:   make(map[string]types.ModelKind),
		constructCalls: make(map[string]int),
	}
}

// SetAccelerator simulates a device with the given memory capacity.
func (e *StubEngine) SetAccelerator(totalBytes int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hasAccel = true
	e.memTotal = totalBytes
}

// SetDeviceMemoryError makes DeviceMemory fail with err.
func (e *StubEngine) SetDeviceMemoryError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.memErr = err
}

// SetPipelineBytes fixes the reported footprint for modelID.
func (e *StubEngine) SetPipelineBytes(modelID string, n int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pipelineBytes[modelID] = n
}

// FailConstruct makes every Construct for modelID fail with err.
func (e *StubEngine) FailConstruct(modelID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constructErr[modelID] = err
}

// FailGenerate makes every Generate on modelID's pipeline fail with err.
func (e *StubEngine) FailGenerate(modelID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generateErr[modelID] = err
}

// DropComponents constructs modelID's pipeline without the named
// sub-components, so load validation rejects it.
func (e *StubEngine) DropComponents(modelID string, names ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.dropComponents[modelID] = names
}

// OverrideKind makes modelID's pipeline report kind instead of its own.
func (e *StubEngine) OverrideKind(modelID string, kind types.ModelKind) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.kindOverride[modelID] = kind
}

// SetConstructDelay adds an artificial construction latency.
func (e *StubEngine) SetConstructDelay(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.constructDelay = d
}

// ConstructCalls reports how many times Construct ran for modelID.
func (e *StubEngine) ConstructCalls(modelID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.constructCalls[modelID]
}

// ReleaseCalls reports how many pipelines have been released.
func (e *StubEngine) ReleaseCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.releaseCalls
}

// kindForModel infers the pipeline kind from the model id, the way real
// weights determine the pipeline class. OverrideKind still wins.
func kindForModel(modelID string) types.ModelKind {
	id := strings.ToLower(modelID)
	switch {
	case strings.Contains(id, "inpaint"):
		return types.KindInpainting
	case strings.Contains(id, "img2img"), strings.Contains(id, "image-to-image"):
		return types.KindImageToImage
	default:
		return types.KindTextToImage
	}
}

type stubPipeline struct {
	modelID    string
	kind       types.ModelKind
	components []string
	device     Device
	bytes      int64
	released   bool
}

func (p *stubPipeline) ModelID() string       { return p.modelID }
func (p *stubPipeline) Kind() types.ModelKind { return p.kind }
func (p *stubPipeline) Components() []string  { return p.components }
func (p *stubPipeline) Device() Device        { return p.device }
func (p *stubPipeline) MemoryBytes() int64    { return p.bytes }

func (e *StubEngine) Construct(ctx context.Context, modelID string, dev Device, prec Precision, cacheDir string) (Pipeline, error) {
	e.mu.Lock()
	e.constructCalls[modelID]++
	delay := e.constructDelay
	err := e.constructErr[modelID]
	size, ok := e.pipelineBytes[modelID]
	if !ok {
		size = 2 << 30 // default 2GiB footprint
	}
	kind, hasKind := e.kindOverride[modelID]
	dropped := e.dropComponents[modelID]
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	comps := make([]string, 0, len(allComponents))
	for _, c := range allComponents {
		omitted := false
		for _, d := range dropped {
			if c == d {
				omitted = true
				break
			}
		}
		if !omitted {
			comps = append(comps, c)
		}
	}
	if !hasKind {
		kind = kindForModel(modelID)
	}
	p := &stubPipeline{
		modelID:    modelID,
		kind:       kind,
		components: comps,
		device:     dev,
		bytes:      size,
	}
	if dev == DeviceAccelerator {
		e.mu.Lock()
		e.memUsed += size
		e.mu.Unlock()
	}
	return p, nil
}

func (e *StubEngine) ReleaseDevice(p Pipeline) error {
	sp, ok := p.(*stubPipeline)
	if !ok {
		return fmt.Errorf("stub engine: foreign pipeline handle")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.releaseCalls++
	if sp.released {
		return fmt.Errorf("stub engine: pipeline for %s already released", sp.modelID)
	}
	sp.released = true
	if sp.device == DeviceAccelerator {
		e.memUsed -= sp.bytes
		if e.memUsed < 0 {
			e.memUsed = 0
		}
	}
	return nil
}

func (e *StubEngine) Generate(ctx context.Context, p Pipeline, params GenerateParams) (Result, error) {
	sp, ok := p.(*stubPipeline)
	if !ok {
		return Result{}, fmt.Errorf("stub engine: foreign pipeline handle")
	}
	e.mu.Lock()
	err := e.generateErr[sp.modelID]
	released := sp.released
	e.mu.Unlock()
	if err != nil {
		return Result{}, err
	}
	if released {
		return Result{}, fmt.Errorf("stub engine: pipeline for %s is released", sp.modelID)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	img, err := renderNoise(params)
	if err != nil {
		return Result{}, err
	}
	return Result{Image: img, Format: "image/png", Seed: params.Seed}, nil
}

func (e *StubEngine) HasAccelerator() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hasAccel
}

func (e *StubEngine) DeviceMemory() (used, total int64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.memErr != nil {
		return 0, 0, e.memErr
	}
	return e.memUsed, e.memTotal, nil
}

// renderNoise produces a deterministic PNG for (seed, size). The picture is
// meaningless; it only has to be a valid image of the requested dimensions.
func renderNoise(params GenerateParams) ([]byte, error) {
	rng := rand.New(rand.NewSource(params.Seed))
	img := image.NewRGBA(image.Rect(0, 0, params.Width, params.Height))
	for y := 0; y < params.Height; y++ {
		for x := 0; x < params.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(rng.Intn(256)),
				G: uint8(rng.Intn(256)),
				B: uint8(rng.Intn(256)),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
