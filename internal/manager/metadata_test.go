package manager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

func TestMetadataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1"), testModel("m2")},
		ModelDir: dir,
	})

	loadAndWait(t, m, "m1")
	used := time.Unix(time.Now().Unix(), 0)
	setLastUsed(m, "m1", used)
	m.saveMetadata()

	// A fresh manager over the same directory sees the persisted counters.
	m2 := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1"), testModel("m2")},
		ModelDir: dir,
	})
	m2.mu.Lock()
	defer m2.mu.Unlock()
	rt := m2.models["m1"]
	if rt.LoadCount != 1 {
		t.Fatalf("load count = %d, want 1", rt.LoadCount)
	}
	if !rt.LastUsed.Equal(used) {
		t.Fatalf("last used = %v, want %v", rt.LastUsed, used)
	}
	if m2.models["m2"].LoadCount != 0 {
		t.Fatalf("untouched model must keep zero counters")
	}
}

func TestMetadataMissingFile(t *testing.T) {
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.models["m1"].LoadCount != 0 || !m.models["m1"].LastUsed.IsZero() {
		t.Fatalf("first run must start from zero counters")
	}
}

func TestMetadataCorruptFileIgnored(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "cache_metadata.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
		ModelDir: dir,
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.models["m1"].LoadCount != 0 {
		t.Fatalf("corrupt metadata must be ignored")
	}
}

func TestMetadataUnknownIDsSkipped(t *testing.T) {
	dir := t.TempDir()
	blob, _ := json.Marshal(map[string]cacheRecord{
		"retired-model": {LastUsed: time.Now().Unix(), LoadCount: 7},
		"m1":            {LoadCount: 3, ErrorCount: 1},
	})
	if err := os.WriteFile(filepath.Join(dir, "cache_metadata.json"), blob, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
		ModelDir: dir,
	})
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := m.models["m1"]
	if rt.LoadCount != 3 || rt.ErrorCount != 1 {
		t.Fatalf("known id counters not restored: %+v", rt)
	}
}

func TestMetadataCrashMidWriteLeavesCommittedVersion(t *testing.T) {
	dir := t.TempDir()
	eng := engine.NewStubEngine()
	m := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
		ModelDir: dir,
	})
	loadAndWait(t, m, "m1")
	m.saveMetadata()

	// Simulate a crash between temp-file creation and rename: a stray temp
	// file sits next to the committed one.
	stray := filepath.Join(dir, "cache_metadata.json.tmp-crash")
	if err := os.WriteFile(stray, []byte(`{"m1": {"load_count": 99`), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	m2 := newTestManager(t, eng, ManagerConfig{
		Registry: []types.ModelConfig{testModel("m1")},
		ModelDir: dir,
	})
	m2.mu.Lock()
	defer m2.mu.Unlock()
	if m2.models["m1"].LoadCount != 1 {
		t.Fatalf("committed metadata must win over the stray temp file")
	}
}
