package manager

import "sync"

// Guard is a reference on one instance held for the full duration of a
// request. While any guard is held the instance cannot be destroyed;
// the eviction policy's idleness check is the sole gate for teardown.
type Guard struct {
	m    *Manager
	inst *Instance
	once sync.Once
}

// acquire increments the instance's in-flight count and refreshes its
// LRU timestamp. It fails when the instance is absent, not ready, or
// already selected for eviction.
func (m *Manager) acquire(name string) (*Guard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.find(name)
	if !ok {
		return nil, ErrModelNotLoaded(name)
	}
	if inst.State != StateReady || inst.evicting {
		return nil, ErrModelNotLoaded(name)
	}
	inst.inFlight++
	m.touch(inst)
	inflightGauge.Inc()
	return &Guard{m: m, inst: inst}, nil
}

// Release decrements the in-flight count and refreshes the timestamp.
// Safe on every exit path: releasing twice is a no-op.
func (g *Guard) Release() {
	g.once.Do(func() {
		g.m.mu.Lock()
		g.inst.inFlight--
		g.m.touch(g.inst)
		g.m.mu.Unlock()
		inflightGauge.Dec()
	})
}

// Instance returns the guarded instance.
func (g *Guard) Instance() *Instance { return g.inst }
