package manager

import (
	"context"
	"time"
)

// healthLoop periodically checks resident backends for crashed
// processes. A crashed instance transitions to Failed and leaves the
// registry, so subsequent dispatches fall through to auto-load instead
// of targeting a dead process.
func (m *Manager) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.reapCrashed()
		}
	}
}

// reapCrashed removes instances whose backend process has exited.
func (m *Manager) reapCrashed() {
	for _, inst := range func() []*Instance {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.snapshot()
	}() {
		m.mu.RLock()
		crashed := inst.State == StateReady && inst.backend != nil && inst.backend.Exited()
		m.mu.RUnlock()
		if !crashed {
			continue
		}
		m.mu.Lock()
		// Re-check under the write lock; a racing unload may have won.
		if cur, ok := m.find(inst.Name); ok && cur == inst && inst.backend.Exited() {
			inst.State = StateFailed
			m.remove(inst.Name)
			m.mu.Unlock()
			crashesTotal.Inc()
			m.publisher.Publish(Event{Name: "instance_crashed", ModelName: inst.Name, Fields: map[string]any{"pid": inst.PID}})
			m.log.Warn().Str("model", inst.Name).Int("pid", inst.PID).Msg("backend process exited unexpectedly")
			continue
		}
		m.mu.Unlock()
	}
}
