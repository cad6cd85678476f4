package manager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"starweaved/internal/engine"
)

// Manager is the lifecycle facade over the shared model registry. One
// mutex guards every ModelRuntime; long-running engine work always happens
// outside it.
type Manager struct {
	mu     sync.Mutex
	models map[string]*ModelRuntime
	order  []string

	eng       engine.Engine
	log       zerolog.Logger
	publisher EventPublisher

	modelDir     string
	metaPath     string
	defaultModel string

	maxResident      int
	diskQuotaBytes   int64
	sweepInterval    time.Duration
	failureThreshold uint64
	loadGrace        time.Duration

	loadsTotal     uint64
	evictionsTotal uint64
	startTime      time.Time

	stopCh   chan struct{}
	memDone  chan struct{}
	diskDone chan struct{}
	loadWG   sync.WaitGroup
	started  bool
	closed   bool
}

// NewWithConfig constructs a Manager. It creates the model directory,
// builds a runtime per registry entry and seeds counters from the cache
// metadata file. Background sweeps do not run until Start.
func NewWithConfig(cfg ManagerConfig) (*Manager, error) {
	cfg = cfg.withDefaults()
	if cfg.Engine == nil {
		return nil, fmt.Errorf("manager: engine is required")
	}
	if cfg.ModelDir == "" {
		return nil, fmt.Errorf("manager: model dir is required")
	}
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return nil, fmt.Errorf("manager: create model dir: %w", err)
	}
	logger := zerolog.Nop()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	m := &Manager{
		models:           make(map[string]*ModelRuntime, len(cfg.Registry)),
		eng:              cfg.Engine,
		log:              logger,
		publisher:        cfg.Publisher,
		modelDir:         cfg.ModelDir,
		metaPath:         filepath.Join(cfg.ModelDir, "cache_metadata.json"),
		defaultModel:     cfg.DefaultModel,
		maxResident:      cfg.MaxResident,
		diskQuotaBytes:   cfg.DiskQuotaBytes,
		sweepInterval:    cfg.SweepInterval,
		failureThreshold: cfg.FailureThreshold,
		loadGrace:        cfg.LoadGrace,
		startTime:        time.Now(),
		stopCh:           make(chan struct{}),
	}
	for _, c := range cfg.Registry {
		if _, dup := m.models[c.ID]; dup {
			return nil, fmt.Errorf("manager: duplicate model id %q", c.ID)
		}
		m.models[c.ID] = &ModelRuntime{Config: c, Phase: PhaseUnloaded}
		m.order = append(m.order, c.ID)
	}
	m.loadMetadata()
	return m, nil
}

// DefaultModel returns the configured default model id.
func (m *Manager) DefaultModel() string { return m.defaultModel }

// Ready reports whether any model is resident.
func (m *Manager) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.models {
		if rt.Phase == PhaseLoaded {
			return true
		}
	}
	return false
}

// cacheDirFor maps a model id to its stable on-disk cache subtree.
func (m *Manager) cacheDirFor(id string) string {
	return filepath.Join(m.cacheRoot(), hashID(id))
}

func (m *Manager) cacheRoot() string {
	return filepath.Join(m.modelDir, "cache")
}
