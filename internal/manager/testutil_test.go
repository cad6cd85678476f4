package manager

import (
	"testing"
	"time"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

// testModel builds a minimal enabled text-to-image config.
func testModel(id string) types.ModelConfig {
	return types.ModelConfig{
		ID:              id,
		Name:            id,
		Kind:            types.KindTextToImage,
		DefaultSize:     types.Size{Width: 256, Height: 256},
		SupportedSizes:  []types.Size{{Width: 128, Height: 128}, {Width: 256, Height: 256}},
		MinSteps:        2,
		MaxSteps:        50,
		DefaultSteps:    10,
		DefaultGuidance: 7.5,
		DefaultSeed:     -1,
		Enabled:         true,
	}
}

func newTestManager(t *testing.T, eng *engine.StubEngine, cfg ManagerConfig) *Manager {
	t.Helper()
	if cfg.Engine == nil {
		cfg.Engine = eng
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = t.TempDir()
	}
	if cfg.LoadGrace == 0 {
		cfg.LoadGrace = 2 * time.Second
	}
	m, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	t.Cleanup(func() { _ = m.Close() })
	return m
}

// waitPhase polls until id reaches phase or the deadline expires.
func waitPhase(t *testing.T, m *Manager, id string, phase Phase) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		rt, ok := m.models[id]
		var cur Phase
		if ok {
			cur = rt.Phase
		}
		m.mu.Unlock()
		if !ok {
			t.Fatalf("unknown model %s", id)
		}
		if cur == phase {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("model %s stuck in %s, want %s", id, cur, phase)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// loadAndWait dispatches a load and waits for it to become resident.
func loadAndWait(t *testing.T, m *Manager, id string) {
	t.Helper()
	if !m.RequestLoad(id) {
		t.Fatalf("RequestLoad(%s) rejected", id)
	}
	waitPhase(t, m, id, PhaseLoaded)
}

// checkPhaseInvariant asserts pipeline presence matches the loaded phase
// for every model.
func checkPhaseInvariant(t *testing.T, m *Manager) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rt := range m.models {
		switch rt.Phase {
		case PhaseLoaded:
			if rt.Pipeline == nil {
				t.Fatalf("model %s loaded without pipeline", id)
			}
		case PhaseLoading, PhaseUnloaded:
			if rt.Pipeline != nil {
				t.Fatalf("model %s has pipeline in phase %s", id, rt.Phase)
			}
		default:
			t.Fatalf("model %s has invalid phase %q", id, rt.Phase)
		}
	}
}

func phaseOf(m *Manager, id string) Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.models[id].Phase
}

func setLastUsed(m *Manager, id string, ts time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.models[id].LastUsed = ts
}
