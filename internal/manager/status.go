package manager

import (
	"time"

	"starweaved/pkg/types"
)

// GetOrLoad returns the current snapshot for id, triggering an
// asynchronous load when the model is unloaded. It never blocks past the
// registry lock: callers observing a loading phase poll again later.
func (m *Manager) GetOrLoad(id string) (Snapshot, error) {
	if id == "" {
		id = m.defaultModel
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.models[id]
	if !ok {
		return Snapshot{}, ErrModelNotFound(id)
	}
	rt.LastUsed = time.Now()
	if rt.Phase == PhaseUnloaded {
		m.requestLoadLocked(rt)
	}
	return snapshotOf(rt), nil
}

func snapshotOf(rt *ModelRuntime) Snapshot {
	return Snapshot{
		ID:          rt.Config.ID,
		Phase:       rt.Phase,
		LastErr:     rt.LastErr,
		LastUsed:    rt.LastUsed,
		MemoryBytes: rt.MemoryBytes,
		LoadCount:   rt.LoadCount,
		ErrorCount:  rt.ErrorCount,
	}
}

// ListStatuses returns one status per registered model, in registry order.
func (m *Manager) ListStatuses() []types.ModelStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.ModelStatus, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, statusOf(m.models[id]))
	}
	return out
}

func statusOf(rt *ModelRuntime) types.ModelStatus {
	s := types.ModelStatus{
		ID:          rt.Config.ID,
		Name:        rt.Config.Name,
		Kind:        rt.Config.Kind,
		Status:      string(rt.Phase),
		LoadCount:   rt.LoadCount,
		ErrorCount:  rt.ErrorCount,
		MemoryBytes: rt.MemoryBytes,
		LastError:   rt.LastErr,
	}
	if !rt.LastUsed.IsZero() {
		s.LastUsed = rt.LastUsed.Unix()
	}
	return s
}

// Status builds the manager-wide status response.
func (m *Manager) Status() types.StatusResponse {
	m.mu.Lock()
	defer m.mu.Unlock()
	resp := types.StatusResponse{
		MaxResident:    m.maxResident,
		DiskQuotaBytes: m.diskQuotaBytes,
		LoadsTotal:     m.loadsTotal,
		EvictionsTotal: m.evictionsTotal,
		UptimeSeconds:  int64(time.Since(m.startTime).Seconds()),
		ServerTimeUnix: time.Now().Unix(),
	}
	resp.Models = make([]types.ModelStatus, 0, len(m.order))
	for _, id := range m.order {
		rt := m.models[id]
		if rt.Phase == PhaseLoaded {
			resp.ResidentCount++
		}
		resp.Models = append(resp.Models, statusOf(rt))
	}
	return resp
}
