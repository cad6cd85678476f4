package manager

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

// Request bounds enforced before any model-specific clamping.
const (
	maxPromptLength  = 1000
	minImageSize     = 128
	maxImageSize     = 1024
	maxGenerateSteps = 100
	maxVariations    = 4
)

// validateRequest applies the global request bounds. Zero values mean
// "use the model default" and pass validation.
func validateRequest(req types.GenerateRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return ErrInvalidRequest("prompt is required")
	}
	if len(req.Prompt) > maxPromptLength {
		return ErrInvalidRequest(fmt.Sprintf("prompt too long (max %d characters)", maxPromptLength))
	}
	if req.Width != 0 && (req.Width < minImageSize || req.Width > maxImageSize) {
		return ErrInvalidRequest(fmt.Sprintf("width must be between %d and %d", minImageSize, maxImageSize))
	}
	if req.Height != 0 && (req.Height < minImageSize || req.Height > maxImageSize) {
		return ErrInvalidRequest(fmt.Sprintf("height must be between %d and %d", minImageSize, maxImageSize))
	}
	if req.Steps != 0 && (req.Steps < 1 || req.Steps > maxGenerateSteps) {
		return ErrInvalidRequest(fmt.Sprintf("steps must be between 1 and %d", maxGenerateSteps))
	}
	if req.GuidanceScale != 0 && (req.GuidanceScale < 1.0 || req.GuidanceScale > 20.0) {
		return ErrInvalidRequest("guidance scale must be between 1.0 and 20.0")
	}
	return nil
}

// resolveParams merges request values with the model's defaults and clamps
// steps to the model's declared bounds.
func resolveParams(cfg types.ModelConfig, req types.GenerateRequest) engine.GenerateParams {
	p := engine.GenerateParams{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Width:          req.Width,
		Height:         req.Height,
		Steps:          req.Steps,
		GuidanceScale:  req.GuidanceScale,
		Seed:           req.Seed,
	}
	if p.Width == 0 {
		p.Width = cfg.DefaultSize.Width
	}
	if p.Height == 0 {
		p.Height = cfg.DefaultSize.Height
	}
	if p.Steps == 0 {
		p.Steps = cfg.DefaultSteps
	}
	if p.Steps < cfg.MinSteps {
		p.Steps = cfg.MinSteps
	}
	if p.Steps > cfg.MaxSteps {
		p.Steps = cfg.MaxSteps
	}
	if p.GuidanceScale == 0 {
		p.GuidanceScale = cfg.DefaultGuidance
	}
	if p.Seed == 0 {
		p.Seed = cfg.DefaultSeed
	}
	if p.Seed < 0 {
		p.Seed = rand.Int63n(1 << 32)
	}
	return p
}

// resident returns the config and pipeline for a model that must be
// resident now. When it is not, a load is triggered (if unloaded) and the
// caller gets a not-ready or unavailable error instead of blocking.
func (m *Manager) resident(id string) (types.ModelConfig, engine.Pipeline, error) {
	if id == "" {
		id = m.defaultModel
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.models[id]
	if !ok {
		return types.ModelConfig{}, nil, ErrModelNotFound(id)
	}
	rt.LastUsed = time.Now()
	if rt.Phase == PhaseLoaded {
		return rt.Config, rt.Pipeline, nil
	}
	if !rt.Config.Enabled {
		return types.ModelConfig{}, nil, ErrModelUnavailable(id)
	}
	// Check the threshold before dispatching: requestLoadLocked clears
	// LastErr, so a failing model would otherwise be retried forever.
	// An explicit RequestLoad still resets the cycle.
	if rt.LastErr != "" && rt.ErrorCount >= m.failureThreshold {
		return types.ModelConfig{}, nil, ErrModelUnavailable(id)
	}
	if rt.Phase == PhaseUnloaded {
		m.requestLoadLocked(rt)
	}
	return types.ModelConfig{}, nil, ErrModelNotReady(id)
}

// Generate produces one image for the request using an already resident
// pipeline. Engine errors are counted against the model and scrubbed
// before they reach the caller.
func (m *Manager) Generate(ctx context.Context, req types.GenerateRequest) (types.GenerateResponse, error) {
	if err := validateRequest(req); err != nil {
		return types.GenerateResponse{}, err
	}
	cfg, pipe, err := m.resident(req.Model)
	if err != nil {
		return types.GenerateResponse{}, err
	}
	params := resolveParams(cfg, req)

	start := time.Now()
	res, err := m.eng.Generate(ctx, pipe, params)
	if err != nil {
		m.mu.Lock()
		if rt, ok := m.models[cfg.ID]; ok {
			rt.ErrorCount++
		}
		m.mu.Unlock()
		m.log.Error().Err(err).Str("model", cfg.ID).Msg("image generation failed")
		if ctx.Err() != nil {
			return types.GenerateResponse{}, ctx.Err()
		}
		return types.GenerateResponse{}, fmt.Errorf("image generation failed for model %s", cfg.ID)
	}

	return types.GenerateResponse{
		RequestID: uuid.NewString(),
		Image:     res.Image,
		Format:    res.Format,
		Metadata: types.GenerateMetadata{
			Model:         cfg.ID,
			Width:         params.Width,
			Height:        params.Height,
			Steps:         params.Steps,
			GuidanceScale: params.GuidanceScale,
			Seed:          res.Seed,
			DurationMS:    time.Since(start).Milliseconds(),
		},
	}, nil
}

// GenerateVariations produces up to maxVariations derived images, calling
// emit once per result. Per-variation engine failures are reported inline
// through the emitted response rather than aborting the batch; an emit
// error (client gone) stops it.
func (m *Manager) GenerateVariations(ctx context.Context, req types.VariationsRequest, emit func(types.GenerateResponse) error) error {
	if err := validateRequest(req.Base); err != nil {
		return err
	}
	cfg, pipe, err := m.resident(req.Base.Model)
	if err != nil {
		return err
	}

	n := req.NumVariations
	if n < 1 {
		n = 1
	}
	if n > maxVariations {
		n = maxVariations
	}
	strength := req.Strength
	if strength <= 0 || strength > 1 {
		strength = 0.5
	}

	base := resolveParams(cfg, req.Base)
	batchID := uuid.NewString()
	for i := 0; i < n; i++ {
		params := base
		params.Prompt = fmt.Sprintf("%s (variation %d, strength: %.2f)", base.Prompt, i+1, strength)
		params.Strength = strength
		if req.Base.Seed > 0 {
			params.Seed = req.Base.Seed + int64(i)
		} else if i > 0 {
			params.Seed = rand.Int63n(1 << 32)
		}

		start := time.Now()
		res, err := m.eng.Generate(ctx, pipe, params)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.mu.Lock()
			if rt, ok := m.models[cfg.ID]; ok {
				rt.ErrorCount++
			}
			m.mu.Unlock()
			m.log.Error().Err(err).Str("model", cfg.ID).Int("variation", i).Msg("variation generation failed")
			if emitErr := emit(types.GenerateResponse{
				RequestID: fmt.Sprintf("%s-%d", batchID, i),
				Error:     fmt.Sprintf("failed to generate variation %d", i+1),
			}); emitErr != nil {
				return emitErr
			}
			continue
		}
		if emitErr := emit(types.GenerateResponse{
			RequestID: fmt.Sprintf("%s-%d", batchID, i),
			Image:     res.Image,
			Format:    res.Format,
			Metadata: types.GenerateMetadata{
				Model:         cfg.ID,
				Width:         params.Width,
				Height:        params.Height,
				Steps:         params.Steps,
				GuidanceScale: params.GuidanceScale,
				Seed:          res.Seed,
				DurationMS:    time.Since(start).Milliseconds(),
			},
		}); emitErr != nil {
			return emitErr
		}
	}
	return nil
}
