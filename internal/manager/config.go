package manager

import (
	"time"

	"github.com/rs/zerolog"

	"starweaved/internal/engine"
	"starweaved/pkg/types"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultMaxResident      = 2
	defaultDiskQuotaBytes   = 10 << 30 // 10 GiB
	defaultSweepInterval    = 5 * time.Minute
	defaultFailureThreshold = 3
	defaultLoadGrace        = 10 * time.Second
	defaultLoopStopWait     = 5 * time.Second
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Registry []types.ModelConfig
	Engine   engine.Engine
	// ModelDir holds the weight cache and the metadata file.
	ModelDir string
	// DefaultModel is protected by the memory eviction policy and loaded
	// eagerly on Start. Empty means the first enabled registry entry.
	DefaultModel string
	// MaxResident bounds how many models stay in accelerator memory.
	MaxResident int
	// DiskQuotaBytes bounds the aggregate on-disk weight cache size.
	DiskQuotaBytes int64
	// SweepInterval is the memory sweep period; the disk sweep runs at
	// twice this interval.
	SweepInterval time.Duration
	// FailureThreshold is the error count at which a model is reported
	// unavailable rather than not-yet-ready.
	FailureThreshold uint64
	// LoadGrace bounds how long Close waits for in-flight loads.
	LoadGrace time.Duration

	Logger    *zerolog.Logger
	Publisher EventPublisher
}

func (cfg ManagerConfig) withDefaults() ManagerConfig {
	if cfg.MaxResident <= 0 {
		cfg.MaxResident = defaultMaxResident
	}
	if cfg.DiskQuotaBytes <= 0 {
		cfg.DiskQuotaBytes = defaultDiskQuotaBytes
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultSweepInterval
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.LoadGrace <= 0 {
		cfg.LoadGrace = defaultLoadGrace
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	if cfg.DefaultModel == "" {
		for _, c := range cfg.Registry {
			if c.Enabled {
				cfg.DefaultModel = c.ID
				break
			}
		}
	}
	return cfg
}
