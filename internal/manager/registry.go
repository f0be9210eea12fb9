package manager

import (
	"sort"

	"inferd/internal/engine"
)

// Instance registry: the live set of backend instances. All helpers in
// this file require Manager.mu to be held by the caller; membership
// changes are rare compared to dispatch, so a single lock suffices.

// find returns the live instance for a model name.
func (m *Manager) find(name string) (*Instance, bool) {
	inst, ok := m.instances[name]
	return inst, ok
}

// allOf returns the instances of a type ordered oldest-LastUsed first,
// ties broken by insertion order.
func (m *Manager) allOf(t engine.ModelType) []*Instance {
	var out []*Instance
	for _, inst := range m.instances {
		if inst.Type == t {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastUsed.Equal(out[j].LastUsed) {
			return out[i].seq < out[j].seq
		}
		return out[i].LastUsed.Before(out[j].LastUsed)
	})
	return out
}

// countOf counts Ready-or-Loading instances of a type; Unloading and
// Failed instances no longer hold a slot.
func (m *Manager) countOf(t engine.ModelType) int {
	n := 0
	for _, inst := range m.instances {
		if inst.Type != t {
			continue
		}
		if inst.State == StateReady || inst.State == StateLoading {
			n++
		}
	}
	return n
}

// npuHolder returns the instance occupying the NPU, if any. The NPU is
// globally exclusive so there is at most one.
func (m *Manager) npuHolder() *Instance {
	for _, inst := range m.instances {
		if inst.Devices.Has(engine.NPU) && inst.State != StateUnloading {
			return inst
		}
	}
	return nil
}

// insert adds an instance and stamps its insertion order.
func (m *Manager) insert(inst *Instance) {
	m.seq++
	inst.seq = m.seq
	m.instances[inst.Name] = inst
}

// remove deletes an instance from the registry.
func (m *Manager) remove(name string) {
	delete(m.instances, name)
	if m.lastTouched == name {
		m.lastTouched = ""
	}
}

// snapshot returns a copy of the current instance pointers, for callers
// that must iterate without holding the lock.
func (m *Manager) snapshot() []*Instance {
	out := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		out = append(out, inst)
	}
	return out
}
