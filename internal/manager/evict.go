package manager

import (
	"fmt"
	"sort"

	"starweaved/internal/engine"
)

type victim struct {
	id   string
	pipe engine.Pipeline
}

// evictLocked transitions rt out of residency and returns the pipeline
// handle for release outside the lock. Caller holds m.mu and has verified
// rt.Phase == PhaseLoaded.
func (m *Manager) evictLocked(rt *ModelRuntime, reason string) victim {
	v := victim{id: rt.Config.ID, pipe: rt.Pipeline}
	rt.Pipeline = nil
	rt.Phase = PhaseUnloaded
	rt.MemoryBytes = 0
	m.evictionsTotal++
	metricResident.Dec()
	metricEvictions.WithLabelValues(reason).Inc()
	m.publisher.Publish(Event{Name: "evict", ModelID: rt.Config.ID, Fields: map[string]any{"reason": reason}})
	return v
}

// releaseVictims frees device memory for evicted models. The handles are
// already dropped, so release errors cannot leave a stuck loaded model;
// they are logged and counted against the model.
func (m *Manager) releaseVictims(victims []victim) {
	for _, v := range victims {
		m.log.Info().Str("model", v.id).Msg("model evicted")
		m.releasePipeline(v.id, v.pipe)
	}
}

// Evict unloads a single resident model. Only loaded models may be
// evicted; loading models are owned by their load task.
func (m *Manager) Evict(id string) error {
	m.mu.Lock()
	rt, ok := m.models[id]
	if !ok {
		m.mu.Unlock()
		return ErrModelNotFound(id)
	}
	if rt.Phase != PhaseLoaded {
		m.mu.Unlock()
		return fmt.Errorf("model %s is not loaded", id)
	}
	v := m.evictLocked(rt, "manual")
	m.mu.Unlock()
	m.releaseVictims([]victim{v})
	return nil
}

// memorySweep applies the accelerator-memory eviction policy:
//  1. resident count over MaxResident: LRU (oldest, least reliable first),
//     sparing the default model while an alternative victim exists;
//  2. device utilization above 90%: largest-first until at or below 70%,
//     the default model only as a last resort;
//  3. memory probe failed: conservative fallback keeping the first loaded
//     model and shrinking to max(1, MaxResident/2).
//
// Individual evict errors never fail the sweep.
func (m *Manager) memorySweep() {
	var victims []victim

	m.mu.Lock()
	loaded := m.loadedLocked()
	if over := len(loaded) - m.maxResident; over > 0 {
		sort.SliceStable(loaded, func(i, j int) bool {
			if !loaded[i].LastUsed.Equal(loaded[j].LastUsed) {
				return loaded[i].LastUsed.Before(loaded[j].LastUsed)
			}
			return loaded[i].ErrorCount < loaded[j].ErrorCount
		})
		remaining := len(loaded)
		evicted := 0
		for _, rt := range loaded {
			if evicted >= over {
				break
			}
			if rt.Config.ID == m.defaultModel && remaining > 1 {
				continue
			}
			victims = append(victims, m.evictLocked(rt, "max_resident"))
			evicted++
			remaining--
		}
	}
	m.mu.Unlock()
	m.releaseVictims(victims)

	used, total, err := m.eng.DeviceMemory()
	switch {
	case err != nil:
		m.log.Error().Err(err).Msg("device memory probe failed, conservative eviction")
		m.conservativeSweep()
	case total > 0 && used > total*9/10:
		m.log.Warn().
			Int64("used", used).
			Int64("total", total).
			Msg("high device memory usage, forcing eviction")
		m.pressureSweep(used, total)
	}
}

// pressureSweep evicts largest-first until estimated utilization drops to
// 70% of capacity or only the default model remains resident.
func (m *Manager) pressureSweep(used, total int64) {
	target := total * 7 / 10
	var victims []victim

	m.mu.Lock()
	loaded := m.loadedLocked()
	sort.SliceStable(loaded, func(i, j int) bool {
		return loaded[i].MemoryBytes > loaded[j].MemoryBytes
	})
	remaining := len(loaded)
	for _, rt := range loaded {
		if used <= target {
			break
		}
		if rt.Config.ID == m.defaultModel && remaining > 1 {
			continue
		}
		used -= rt.MemoryBytes
		victims = append(victims, m.evictLocked(rt, "memory_pressure"))
		remaining--
	}
	m.mu.Unlock()
	m.releaseVictims(victims)
}

// conservativeSweep shrinks residency when the memory reading itself is
// unavailable: keep the first loaded model (registry order), drop the rest
// until resident count <= max(1, MaxResident/2).
func (m *Manager) conservativeSweep() {
	keep := m.maxResident / 2
	if keep < 1 {
		keep = 1
	}
	var victims []victim

	m.mu.Lock()
	loaded := m.loadedLocked()
	if len(loaded) > 1 {
		for _, rt := range loaded[1:] {
			if len(loaded)-len(victims) <= keep {
				break
			}
			victims = append(victims, m.evictLocked(rt, "probe_failed"))
		}
	}
	m.mu.Unlock()
	m.releaseVictims(victims)
}

// evictAll is the shutdown path: every resident model is unloaded.
func (m *Manager) evictAll() {
	var victims []victim
	m.mu.Lock()
	for _, rt := range m.loadedLocked() {
		victims = append(victims, m.evictLocked(rt, "shutdown"))
	}
	m.mu.Unlock()
	m.releaseVictims(victims)
}
