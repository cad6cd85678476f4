package manager

import (
	"context"
	"fmt"
	"os"
	"time"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

// RequestLoad triggers an asynchronous load of id. It returns true when
// the model is already loaded or a load task was dispatched, and false
// when the id is unknown, disabled, or a load is already in flight.
// Callers never block on this call.
func (m *Manager) RequestLoad(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.models[id]
	if !ok {
		m.log.Warn().Str("model", id).Msg("load requested for unknown model")
		return false
	}
	return m.requestLoadLocked(rt)
}

// requestLoadLocked flips the phase to loading and dispatches the load
// task. Caller holds m.mu. Only the phase transition happens here; all
// engine work runs in the task goroutine.
func (m *Manager) requestLoadLocked(rt *ModelRuntime) bool {
	switch rt.Phase {
	case PhaseLoaded:
		return true
	case PhaseLoading:
		return false
	}
	if !rt.Config.Enabled {
		return false
	}
	if m.closed {
		return false
	}
	rt.Phase = PhaseLoading
	rt.LastErr = ""
	m.loadWG.Add(1)
	go m.runLoad(rt.Config)
	m.publisher.Publish(Event{Name: "load_start", ModelID: rt.Config.ID})
	return true
}

// runLoad is the load task: construct, validate, warm up, commit. It has
// exactly one terminal transition; panics are converted into load errors
// so no model is ever stuck in the loading phase.
func (m *Manager) runLoad(cfg types.ModelConfig) {
	defer m.loadWG.Done()
	defer func() {
		if r := recover(); r != nil {
			m.finishLoadError(cfg.ID, fmt.Sprintf("load panicked: %v", r))
		}
	}()

	// Make room before taking more device memory.
	m.memorySweep()

	cacheDir := m.cacheDirFor(cfg.ID)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		m.finishLoadError(cfg.ID, fmt.Sprintf("create cache dir: %v", err))
		return
	}

	start := time.Now()
	pipe, err := m.constructTiered(cfg, cacheDir)
	if err != nil {
		m.finishLoadError(cfg.ID, fmt.Sprintf("engine construction failed: %v", err))
		return
	}

	if verr := validatePipeline(pipe, cfg); verr != nil {
		m.releasePipeline(cfg.ID, pipe)
		m.finishLoadError(cfg.ID, verr.Error())
		m.tryFallback(cfg)
		return
	}

	m.warmup(pipe, cfg)
	m.finishLoadSuccess(cfg.ID, pipe, time.Since(start))
}

// constructTiered attempts reduced precision on the accelerator first,
// then full precision, then a CPU-only pipeline. The last error wins.
func (m *Manager) constructTiered(cfg types.ModelConfig, cacheDir string) (engine.Pipeline, error) {
	ctx := context.Background()
	if m.eng.HasAccelerator() {
		pipe, err := m.eng.Construct(ctx, cfg.ID, engine.DeviceAccelerator, engine.PrecisionHalf, cacheDir)
		if err == nil {
			return pipe, nil
		}
		m.log.Warn().Err(err).Str("model", cfg.ID).Msg("fp16 load failed, retrying full precision")
		pipe, err = m.eng.Construct(ctx, cfg.ID, engine.DeviceAccelerator, engine.PrecisionFull, cacheDir)
		if err == nil {
			return pipe, nil
		}
		m.log.Warn().Err(err).Str("model", cfg.ID).Msg("accelerator load failed, falling back to cpu")
	}
	return m.eng.Construct(ctx, cfg.ID, engine.DeviceCPU, engine.PrecisionFull, cacheDir)
}

// validatePipeline runs the structural check on a freshly constructed
// pipeline: required sub-components present and the kind matching the
// registry's declaration.
func validatePipeline(pipe engine.Pipeline, cfg types.ModelConfig) error {
	required := []string{engine.ComponentUNet, engine.ComponentTextEncoder, engine.ComponentVAE}
	have := make(map[string]bool, len(pipe.Components()))
	for _, c := range pipe.Components() {
		have[c] = true
	}
	for _, c := range required {
		if !have[c] {
			return fmt.Errorf("model %s: pipeline missing required component %q", cfg.ID, c)
		}
	}
	if pipe.Kind() != cfg.Kind {
		return fmt.Errorf("model %s: expected %s pipeline, got %s", cfg.ID, cfg.Kind, pipe.Kind())
	}
	return nil
}

// warmup runs one minimal synthetic generation to surface deferred
// construction errors early. Failures are logged but never fail the load.
func (m *Manager) warmup(pipe engine.Pipeline, cfg types.ModelConfig) {
	size := cfg.SmallestSize()
	_, err := m.eng.Generate(context.Background(), pipe, engine.GenerateParams{
		Prompt:        "a small red square",
		Width:         size.Width,
		Height:        size.Height,
		Steps:         cfg.MinSteps,
		GuidanceScale: 1.0,
		Seed:          0,
	})
	if err != nil {
		m.log.Warn().Err(err).Str("model", cfg.ID).Msg("warmup failed, continuing anyway")
		m.publisher.Publish(Event{Name: "warmup_failed", ModelID: cfg.ID, Fields: map[string]any{"error": err.Error()}})
	}
}

// tryFallback dispatches a load of the declared alternate model after a
// structural validation failure. The original id keeps its error.
func (m *Manager) tryFallback(cfg types.ModelConfig) {
	if cfg.FallbackID == "" {
		return
	}
	m.log.Warn().
		Str("model", cfg.ID).
		Str("fallback", cfg.FallbackID).
		Msg("structural check failed, loading fallback model")
	m.publisher.Publish(Event{Name: "load_fallback", ModelID: cfg.ID, Fields: map[string]any{"fallback": cfg.FallbackID}})
	m.RequestLoad(cfg.FallbackID)
}

func (m *Manager) finishLoadSuccess(id string, pipe engine.Pipeline, took time.Duration) {
	m.mu.Lock()
	rt, ok := m.models[id]
	if !ok || m.closed {
		// Shutdown raced the load; do not resurrect a resident model.
		if ok {
			rt.Pipeline = nil
			rt.Phase = PhaseUnloaded
		}
		m.mu.Unlock()
		m.releasePipeline(id, pipe)
		return
	}
	rt.Pipeline = pipe
	rt.Phase = PhaseLoaded
	rt.LastErr = ""
	rt.LoadCount++
	rt.MemoryBytes = pipe.MemoryBytes()
	rt.LastUsed = time.Now()
	m.loadsTotal++
	m.mu.Unlock()

	metricLoads.Inc()
	metricLoadDuration.Observe(took.Seconds())
	metricResident.Inc()
	m.log.Info().
		Str("model", id).
		Dur("took", took).
		Int64("memory_bytes", pipe.MemoryBytes()).
		Msg("model loaded")
	m.publisher.Publish(Event{Name: "load_ready", ModelID: id, Fields: map[string]any{"took_ms": took.Milliseconds()}})
}

func (m *Manager) finishLoadError(id, msg string) {
	m.mu.Lock()
	if rt, ok := m.models[id]; ok {
		rt.Pipeline = nil
		rt.Phase = PhaseUnloaded
		rt.LastErr = msg
		rt.ErrorCount++
	}
	m.mu.Unlock()

	metricLoadFailures.Inc()
	m.log.Error().Str("model", id).Str("error", msg).Msg("model load failed")
	m.publisher.Publish(Event{Name: "load_error", ModelID: id, Fields: map[string]any{"error": msg}})
}

// releasePipeline frees device memory behind a pipeline that never became
// (or no longer is) resident. Errors are logged and counted only.
func (m *Manager) releasePipeline(id string, pipe engine.Pipeline) {
	if pipe == nil {
		return
	}
	if err := m.eng.ReleaseDevice(pipe); err != nil {
		m.log.Error().Err(err).Str("model", id).Msg("release device failed")
		m.mu.Lock()
		if rt, ok := m.models[id]; ok {
			rt.ErrorCount++
		}
		m.mu.Unlock()
	}
}
