package manager

import (
	"errors"
	"testing"
	"time"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

func TestMemorySweepEvictsLeastRecentlyUsed(t *testing.T) {
	eng := engine.NewStubEngine()
	// Pin the default to the newest model so the sweep order below is
	// purely least-recently-used.
	m := newTestManager(t, eng, ManagerConfig{
		Registry:     []types.ModelConfig{testModel("a"), testModel("b"), testModel("c")},
		DefaultModel: "c",
		MaxResident:  2,
	})

	loadAndWait(t, m, "a")
	loadAndWait(t, m, "b")
	loadAndWait(t, m, "c")

	base := time.Now().Add(-time.Hour)
	setLastUsed(m, "a", base)
	setLastUsed(m, "b", base.Add(time.Minute))
	setLastUsed(m, "c", base.Add(2*time.Minute))

	m.memorySweep()

	if phaseOf(m, "a") != PhaseUnloaded {
		t.Fatalf("oldest model should be evicted")
	}
	if phaseOf(m, "b") != PhaseLoaded || phaseOf(m, "c") != PhaseLoaded {
		t.Fatalf("newer models must stay resident")
	}
	checkPhaseInvariant(t, m)
}

func TestMemorySweepSparesDefaultModel(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:     []types.ModelConfig{testModel("a"), testModel("b"), testModel("c")},
		DefaultModel: "a",
		MaxResident:  2,
	})

	loadAndWait(t, m, "a")
	loadAndWait(t, m, "b")
	loadAndWait(t, m, "c")

	// The default model is the oldest, but the next-oldest goes instead.
	base := time.Now().Add(-time.Hour)
	setLastUsed(m, "a", base)
	setLastUsed(m, "b", base.Add(time.Minute))
	setLastUsed(m, "c", base.Add(2*time.Minute))

	m.memorySweep()

	if phaseOf(m, "a") != PhaseLoaded {
		t.Fatalf("default model must be spared while alternatives exist")
	}
	if phaseOf(m, "b") != PhaseUnloaded {
		t.Fatalf("next-oldest model should be evicted instead")
	}
	if phaseOf(m, "c") != PhaseLoaded {
		t.Fatalf("newest model must stay resident")
	}
}

func TestMemorySweepSkipsLoadingModels(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:    []types.ModelConfig{testModel("a"), testModel("b")},
		MaxResident: 1,
	})

	loadAndWait(t, m, "a")
	eng.SetConstructDelay(200 * time.Millisecond)
	m.RequestLoad("b")

	m.memorySweep()

	if phaseOf(m, "b") != PhaseLoading {
		t.Fatalf("loading model must never be touched by the sweep")
	}
	waitPhase(t, m, "b", PhaseLoaded)
}

func TestPressureSweepEvictsLargestFirst(t *testing.T) {
	eng := engine.NewStubEngine()
	eng.SetAccelerator(10 << 30)
	eng.SetPipelineBytes("small", 2<<30)
	eng.SetPipelineBytes("medium", 3<<30)
	eng.SetPipelineBytes("large", 5<<30)
	m := newTestManager(t, eng, ManagerConfig{
		Registry:    []types.ModelConfig{testModel("small"), testModel("medium"), testModel("large")},
		MaxResident: 3,
	})

	loadAndWait(t, m, "small")
	loadAndWait(t, m, "medium")
	loadAndWait(t, m, "large")

	// 10GiB of 10GiB used: over the 90% threshold; target is 7GiB.
	m.memorySweep()

	if phaseOf(m, "large") != PhaseUnloaded {
		t.Fatalf("largest model should go first under memory pressure")
	}
	if phaseOf(m, "small") != PhaseLoaded || phaseOf(m, "medium") != PhaseLoaded {
		t.Fatalf("eviction must stop once utilization drops below target")
	}

	used, total, err := eng.DeviceMemory()
	if err != nil {
		t.Fatalf("device memory: %v", err)
	}
	if used > total*7/10 {
		t.Fatalf("used %d still above 70%% of %d", used, total)
	}
}

func TestConservativeSweepOnProbeFailure(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:    []types.ModelConfig{testModel("a"), testModel("b"), testModel("c")},
		MaxResident: 4,
	})

	loadAndWait(t, m, "a")
	loadAndWait(t, m, "b")
	loadAndWait(t, m, "c")

	eng.SetDeviceMemoryError(errors.New("nvml unavailable"))
	m.memorySweep()

	// keep = max(1, 4/2) = 2, and the first loaded model (registry order)
	// always survives.
	if phaseOf(m, "a") != PhaseLoaded {
		t.Fatalf("first model in registry order must survive")
	}
	resident := 0
	for _, id := range []string{"a", "b", "c"} {
		if phaseOf(m, id) == PhaseLoaded {
			resident++
		}
	}
	if resident != 2 {
		t.Fatalf("resident = %d, want 2 after conservative sweep", resident)
	}
}

func TestEvictionCountersAndEvents(t *testing.T) {
	eng := engine.NewStubEngine()
	pub := NewMemoryPublisher()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:  []types.ModelConfig{testModel("a")},
		Publisher: pub,
	})

	loadAndWait(t, m, "a")
	if err := m.Evict("a"); err != nil {
		t.Fatalf("evict: %v", err)
	}

	m.mu.Lock()
	evictions := m.evictionsTotal
	m.mu.Unlock()
	if evictions != 1 {
		t.Fatalf("evictions total = %d, want 1", evictions)
	}
	if eng.ReleaseCalls() != 1 {
		t.Fatalf("release calls = %d, want 1", eng.ReleaseCalls())
	}
	evs := pub.Named("evict")
	if len(evs) != 1 || evs[0].Fields["reason"] != "manual" {
		t.Fatalf("unexpected evict events: %+v", evs)
	}
}
