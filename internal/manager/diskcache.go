package manager

import (
	"os"
	"path/filepath"
	"sort"
	"time"

	"starweaved/internal/common/fsutil"
)

// diskEntry is one cache subtree, recomputed from scratch every sweep.
// Orphaned subtrees (ids unknown to the registry) are swept like any other.
type diskEntry struct {
	path     string
	lastUsed time.Time
	size     int64
}

// diskSweep applies the disk-quota eviction policy: scan the cache root,
// sort subtrees by last use (oldest first) and delete until the aggregate
// size is at or below 90% of the quota. Deletion failures keep their size
// counted so the entry is retried next sweep instead of silently "freed".
func (m *Manager) diskSweep() {
	root := m.cacheRoot()
	dirs, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			m.log.Error().Err(err).Str("dir", root).Msg("disk sweep: read cache root")
		}
		return
	}

	var entries []diskEntry
	var total int64
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		p := filepath.Join(root, d.Name())
		info, err := d.Info()
		if err != nil {
			continue
		}
		size := fsutil.DirSize(p)
		// ModTime is a portable stand-in for atime, which relatime/noatime
		// mounts make unreliable anyway.
		entries = append(entries, diskEntry{path: p, lastUsed: info.ModTime(), size: size})
		total += size
	}

	target := m.diskQuotaBytes * 9 / 10
	if total <= target {
		return
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].lastUsed.Before(entries[j].lastUsed)
	})

	for _, ent := range entries {
		if total <= target {
			break
		}
		if err := os.RemoveAll(ent.path); err != nil {
			m.log.Error().Err(err).Str("path", ent.path).Msg("disk sweep: remove cache subtree")
			continue
		}
		total -= ent.size
		metricDiskReclaimed.Add(float64(ent.size))
		m.log.Info().
			Str("path", ent.path).
			Int64("size_bytes", ent.size).
			Msg("removed old model cache")
		m.publisher.Publish(Event{Name: "disk_evict", ModelID: filepath.Base(ent.path), Fields: map[string]any{"size": ent.size}})
	}
}
