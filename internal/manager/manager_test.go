package manager

import (
	"encoding/json"
	"os"
	"testing"
	"time"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

func TestNewWithConfigValidation(t *testing.T) {
	if _, err := NewWithConfig(ManagerConfig{ModelDir: t.TempDir()}); err == nil {
		t.Fatalf("missing engine must be rejected")
	}
	if _, err := NewWithConfig(ManagerConfig{Engine: engine.NewStubEngine()}); err == nil {
		t.Fatalf("missing model dir must be rejected")
	}
	_, err := NewWithConfig(ManagerConfig{
		Engine:   engine.NewStubEngine(),
		ModelDir: t.TempDir(),
		Registry: []types.ModelConfig{testModel("a"), testModel("a")},
	})
	if err == nil {
		t.Fatalf("duplicate registry ids must be rejected")
	}
}

func TestDefaultModelFallsBackToFirstEnabled(t *testing.T) {
	disabled := testModel("off")
	disabled.Enabled = false
	m := newTestManager(t, engine.NewStubEngine(), ManagerConfig{
		Registry: []types.ModelConfig{disabled, testModel("m1"), testModel("m2")},
	})
	if m.DefaultModel() != "m1" {
		t.Fatalf("default = %q, want first enabled entry", m.DefaultModel())
	}
}

func TestStartLoadsDefaultModel(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:      []types.ModelConfig{testModel("m1"), testModel("m2")},
		DefaultModel:  "m2",
		SweepInterval: time.Hour,
	})
	m.Start()
	waitPhase(t, m, "m2", PhaseLoaded)
	if phaseOf(m, "m1") != PhaseUnloaded {
		t.Fatalf("only the default model should load eagerly")
	}
}

func TestMaintenanceSweepEnforcesMaxResident(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:      []types.ModelConfig{testModel("a"), testModel("b"), testModel("c")},
		DefaultModel:  "a",
		MaxResident:   2,
		SweepInterval: 20 * time.Millisecond,
	})
	m.Start()
	waitPhase(t, m, "a", PhaseLoaded)
	loadAndWait(t, m, "b")
	loadAndWait(t, m, "c")

	deadline := time.Now().Add(2 * time.Second)
	for {
		m.mu.Lock()
		resident := len(m.loadedLocked())
		m.mu.Unlock()
		if resident <= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("sweep never brought residency down: %d models loaded", resident)
		}
		time.Sleep(10 * time.Millisecond)
	}
	checkPhaseInvariant(t, m)
}

func TestCloseUnloadsEverythingAndPersists(t *testing.T) {
	dir := t.TempDir()
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:    []types.ModelConfig{testModel("m1"), testModel("m2")},
		ModelDir:    dir,
		MaxResident: 2,
	})
	loadAndWait(t, m, "m1")
	loadAndWait(t, m, "m2")

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, id := range []string{"m1", "m2"} {
		if phaseOf(m, id) != PhaseUnloaded {
			t.Fatalf("model %s still resident after close", id)
		}
	}
	if eng.ReleaseCalls() != 2 {
		t.Fatalf("release calls = %d, want 2", eng.ReleaseCalls())
	}

	b, err := os.ReadFile(m.metaPath)
	if err != nil {
		t.Fatalf("read metadata: %v", err)
	}
	var data map[string]cacheRecord
	if err := json.Unmarshal(b, &data); err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if data["m1"].LoadCount != 1 || data["m2"].LoadCount != 1 {
		t.Fatalf("final counters not persisted: %+v", data)
	}
}

func TestCloseIdempotent(t *testing.T) {
	m := newTestManager(t, engine.NewStubEngine(), ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
	})
	m.Start()
	if err := m.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestCloseRejectsNewLoads(t *testing.T) {
	m := newTestManager(t, engine.NewStubEngine(), ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
	})
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if m.RequestLoad("m1") {
		t.Fatalf("loads after close must be rejected")
	}
}

func TestCloseDrainsInFlightLoad(t *testing.T) {
	eng := engine.NewStubEngine()
	eng.SetConstructDelay(50 * time.Millisecond)
	m := newTestManager(t, eng, ManagerConfig{
		Registry:  []types.ModelConfig{testModel("m1")},
		LoadGrace: 2 * time.Second,
	})
	m.RequestLoad("m1")
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	// The load finished during shutdown; its pipeline must have been
	// released rather than left resident.
	if phaseOf(m, "m1") != PhaseUnloaded {
		t.Fatalf("model resurrected after close")
	}
	if eng.ReleaseCalls() != 1 {
		t.Fatalf("release calls = %d, want 1", eng.ReleaseCalls())
	}
}

func TestListStatusesRegistryOrder(t *testing.T) {
	m := newTestManager(t, engine.NewStubEngine(), ManagerConfig{
		Registry: []types.ModelConfig{testModel("zebra"), testModel("aardvark"), testModel("mole")},
	})
	statuses := m.ListStatuses()
	want := []string{"zebra", "aardvark", "mole"}
	if len(statuses) != len(want) {
		t.Fatalf("statuses = %d, want %d", len(statuses), len(want))
	}
	for i, id := range want {
		if statuses[i].ID != id {
			t.Fatalf("statuses[%d] = %q, want %q (registry order)", i, statuses[i].ID, id)
		}
	}
}

func TestStatusAggregates(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry:       []types.ModelConfig{testModel("m1"), testModel("m2")},
		MaxResident:    2,
		DiskQuotaBytes: 1 << 30,
	})
	loadAndWait(t, m, "m1")

	st := m.Status()
	if st.ResidentCount != 1 {
		t.Fatalf("resident = %d, want 1", st.ResidentCount)
	}
	if st.MaxResident != 2 || st.DiskQuotaBytes != 1<<30 {
		t.Fatalf("limits not reported: %+v", st)
	}
	if st.LoadsTotal != 1 {
		t.Fatalf("loads total = %d, want 1", st.LoadsTotal)
	}
	if len(st.Models) != 2 {
		t.Fatalf("models = %d, want 2", len(st.Models))
	}
	if st.Models[0].Status != string(PhaseLoaded) || st.Models[1].Status != string(PhaseUnloaded) {
		t.Fatalf("per-model status wrong: %+v", st.Models)
	}
}

func TestReady(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
	})
	if m.Ready() {
		t.Fatalf("ready before any load")
	}
	loadAndWait(t, m, "m1")
	if !m.Ready() {
		t.Fatalf("not ready with a resident model")
	}
}
