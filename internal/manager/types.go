package manager

import (
	"time"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

// Phase is the lifecycle phase of one model. Exactly one phase holds at
// any instant, and the pipeline handle is non-nil iff the phase is loaded.
type Phase string

const (
	PhaseUnloaded Phase = "unloaded"
	PhaseLoading  Phase = "loading"
	PhaseLoaded   Phase = "loaded"
)

// ModelRuntime is the mutable per-model state. All fields are guarded by
// the Manager mutex.
type ModelRuntime struct {
	Config   types.ModelConfig
	Pipeline engine.Pipeline
	Phase    Phase
	// LastErr holds the most recent load error; cleared when a new load
	// attempt starts.
	LastErr     string
	LastUsed    time.Time
	MemoryBytes int64
	LoadCount   uint64
	ErrorCount  uint64
}

// Snapshot is a read-only projection of one model's runtime state,
// returned by GetOrLoad without holding the lock.
type Snapshot struct {
	ID          string
	Phase       Phase
	LastErr     string
	LastUsed    time.Time
	MemoryBytes int64
	LoadCount   uint64
	ErrorCount  uint64
}
