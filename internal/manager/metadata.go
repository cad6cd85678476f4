package manager

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// cacheRecord is the durable subset of ModelRuntime.
type cacheRecord struct {
	LastUsed   int64  `json:"last_used"`
	LoadCount  uint64 `json:"load_count"`
	ErrorCount uint64 `json:"error_count"`
}

// loadMetadata seeds runtime counters from the metadata file. A missing
// file is the normal first-run case; any other failure is logged and the
// service continues with defaults.
func (m *Manager) loadMetadata() {
	b, err := os.ReadFile(m.metaPath)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Warn().Err(err).Str("path", m.metaPath).Msg("failed to load cache metadata")
		}
		return
	}
	var data map[string]cacheRecord
	if err := json.Unmarshal(b, &data); err != nil {
		m.log.Warn().Err(err).Str("path", m.metaPath).Msg("failed to parse cache metadata")
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, rec := range data {
		rt, ok := m.models[id]
		if !ok {
			continue
		}
		if rec.LastUsed > 0 {
			rt.LastUsed = time.Unix(rec.LastUsed, 0)
		}
		rt.LoadCount = rec.LoadCount
		rt.ErrorCount = rec.ErrorCount
	}
}

// saveMetadata persists the counters with a write-to-temp-then-rename so a
// concurrent reader sees either the old or the new version, never a torn
// one. Failures are logged and non-fatal.
func (m *Manager) saveMetadata() {
	m.mu.Lock()
	data := make(map[string]cacheRecord, len(m.models))
	for id, rt := range m.models {
		data[id] = cacheRecord{
			LastUsed:   rt.LastUsed.Unix(),
			LoadCount:  rt.LoadCount,
			ErrorCount: rt.ErrorCount,
		}
	}
	m.mu.Unlock()

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		m.log.Error().Err(err).Msg("failed to marshal cache metadata")
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(m.metaPath), filepath.Base(m.metaPath)+".tmp-*")
	if err != nil {
		m.log.Error().Err(err).Msg("failed to create metadata temp file")
		return
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		m.log.Error().Err(err).Msg("failed to write cache metadata")
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		m.log.Error().Err(err).Msg("failed to sync cache metadata")
		return
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		m.log.Error().Err(err).Msg("failed to close cache metadata")
		return
	}
	if err := os.Rename(tmpName, m.metaPath); err != nil {
		os.Remove(tmpName)
		m.log.Error().Err(err).Msg("failed to commit cache metadata")
	}
}
