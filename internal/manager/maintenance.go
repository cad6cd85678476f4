package manager

import (
	"time"
)

// Start launches the two maintenance loops and eagerly loads the default
// model. Safe to call once; subsequent calls are no-ops.
func (m *Manager) Start() {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.memDone = make(chan struct{})
	m.diskDone = make(chan struct{})
	m.mu.Unlock()

	if m.defaultModel != "" {
		m.RequestLoad(m.defaultModel)
	}

	go m.sweepLoop("memory", m.sweepInterval, m.memDone, func() {
		m.memorySweep()
		m.saveMetadata()
	})
	// Disk usage changes slowly; sweep it at half the cadence.
	go m.sweepLoop("disk", 2*m.sweepInterval, m.diskDone, m.diskSweep)
}

// sweepLoop runs fn every interval until the stop channel closes. A
// panicking sweep is logged and the loop keeps running.
func (m *Manager) sweepLoop(name string, interval time.Duration, done chan struct{}, fn func()) {
	defer close(done)
	for {
		select {
		case <-m.stopCh:
			return
		case <-time.After(interval):
		}
		m.runSweep(name, fn)
	}
}

func (m *Manager) runSweep(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Str("sweep", name).Interface("panic", r).Msg("maintenance sweep panicked")
		}
	}()
	fn()
}

// Close performs the orderly shutdown sequence: stop the maintenance
// loops, drain in-flight loads for a bounded grace period, persist final
// metadata and evict every resident model. Idempotent and synchronous.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	started := m.started
	m.mu.Unlock()

	close(m.stopCh)
	if started {
		m.waitLoop(m.memDone)
		m.waitLoop(m.diskDone)
	}
	// Loads are cooperative, not aborted; give them a bounded grace period.
	if !waitGroupTimeout(&m.loadWG, m.loadGrace) {
		m.log.Warn().Dur("grace", m.loadGrace).Msg("in-flight loads did not finish before shutdown grace expired")
	}

	m.evictAll()
	m.saveMetadata()
	m.log.Info().Msg("manager shut down")
	return nil
}

func (m *Manager) waitLoop(done chan struct{}) {
	select {
	case <-done:
	case <-time.After(defaultLoopStopWait):
		m.log.Warn().Msg("maintenance loop did not stop in time")
	}
}
