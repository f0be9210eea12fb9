package manager

import (
	"time"

	"inferd/internal/engine"
)

// admitDecision is the eviction policy's answer for one load attempt.
type admitDecision struct {
	evict []*Instance
}

// admit decides which instances must be destroyed before an instance of
// the given type and device mask may be created. It is called exactly
// once per load attempt, at dequeue time, so the decision reflects live
// registry state. reloadOf names the instance being replaced in place
// (empty for a fresh load); it never selects itself as a victim.
//
// Two passes:
//  1. NPU exclusivity: runs unconditionally before the capacity pass.
//     If the target needs the NPU and another instance holds it, that
//     holder is evicted regardless of type or slot counts.
//  2. Capacity: if the type is at its slot limit, the least recently
//     used instance of that type goes. Idle instances are preferred;
//     when all are busy the LRU one is still selected and its
//     destruction waits for its in-flight requests to drain.
func (m *Manager) admit(t engine.ModelType, mask engine.Device, reloadOf string) admitDecision {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var d admitDecision
	marked := map[string]bool{}
	if reloadOf != "" {
		marked[reloadOf] = true
	}

	if mask.Has(engine.NPU) {
		if holder := m.npuHolder(); holder != nil && !marked[holder.Name] {
			d.evict = append(d.evict, holder)
			marked[holder.Name] = true
		}
	}

	// Count the slots still occupied after the NPU pass.
	occupied := 0
	for _, inst := range m.allOf(t) {
		if marked[inst.Name] {
			continue
		}
		if inst.State == StateReady || inst.State == StateLoading {
			occupied++
		}
	}
	if occupied < m.slotsFor(t) {
		return d
	}

	if victim := m.lruVictim(t, marked); victim != nil {
		d.evict = append(d.evict, victim)
	}
	return d
}

// lruVictim picks the least recently used Ready instance of a type,
// preferring idle ones. Caller must hold mu.
func (m *Manager) lruVictim(t engine.ModelType, skip map[string]bool) *Instance {
	ordered := m.allOf(t)
	for _, inst := range ordered {
		if skip[inst.Name] || inst.State != StateReady {
			continue
		}
		if inst.idle() {
			return inst
		}
	}
	// All busy: still select the LRU one; the caller defers destruction
	// until its in-flight count drains.
	for _, inst := range ordered {
		if skip[inst.Name] || inst.State != StateReady {
			continue
		}
		return inst
	}
	return nil
}

func (m *Manager) slotsFor(t engine.ModelType) int {
	switch t {
	case engine.TypeEmbedding:
		return m.slots.Embeddings
	case engine.TypeReranking:
		return m.slots.Rerankings
	case engine.TypeAudio:
		return m.slots.Audio
	default:
		return m.slots.LLMs
	}
}

// evictInstance drains and destroys one instance: waits for in-flight
// requests to finish (unbounded, per the let-it-finish rule), stops the
// backend process and removes the registry entry.
func (m *Manager) evictInstance(inst *Instance, reason string) {
	m.mu.Lock()
	if cur, ok := m.instances[inst.Name]; !ok || cur != inst {
		// Already gone (raced with an explicit unload).
		m.mu.Unlock()
		return
	}
	inst.evicting = true
	m.mu.Unlock()

	m.waitIdle(inst)

	m.mu.Lock()
	inst.State = StateUnloading
	m.mu.Unlock()

	if inst.backend != nil {
		_ = inst.backend.Stop()
	}

	m.mu.Lock()
	m.remove(inst.Name)
	m.mu.Unlock()

	evictionsTotal.WithLabelValues(reason).Inc()
	m.publisher.Publish(Event{Name: "evict", ModelName: inst.Name, Fields: map[string]any{"reason": reason}})
	m.log.Info().Str("model", inst.Name).Str("reason", reason).Msg("instance evicted")
}

// waitIdle blocks until the instance has no in-flight requests. New
// acquires are already rejected via the evicting flag, so the count can
// only go down.
func (m *Manager) waitIdle(inst *Instance) {
	for {
		m.mu.RLock()
		n := inst.inFlight
		m.mu.RUnlock()
		if n == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// evictAll destroys every resident instance except the named one. It is
// the "nuclear" fallback: after most load failures a full reset is
// always safe, whereas partial recovery across heterogeneous engines is
// not.
func (m *Manager) evictAll(except string, reason string) {
	m.mu.RLock()
	victims := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		if inst.Name != except {
			victims = append(victims, inst)
		}
	}
	m.mu.RUnlock()
	for _, v := range victims {
		m.evictInstance(v, reason)
	}
}
