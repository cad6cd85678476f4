package manager

import (
	"crypto/md5"
	"encoding/hex"
	"sync"
	"time"
)

// hashID maps a model id (which may contain '/') to a stable directory name.
func hashID(id string) string {
	sum := md5.Sum([]byte(id))
	return hex.EncodeToString(sum[:])
}

// loadedLocked returns the resident models. Caller holds m.mu.
// Loading models are excluded: only their own load task may transition them.
func (m *Manager) loadedLocked() []*ModelRuntime {
	var out []*ModelRuntime
	for _, id := range m.order {
		if rt := m.models[id]; rt.Phase == PhaseLoaded {
			out = append(out, rt)
		}
	}
	return out
}

// waitGroupTimeout waits for wg with an upper bound. Returns false when
// the bound elapsed first.
func waitGroupTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
