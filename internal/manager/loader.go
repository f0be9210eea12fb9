package manager

import (
	"context"
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// Load serializer: a single worker consumes loadCh so that at most one
// instance creation is in flight system-wide. Unloads do not pass
// through this queue; they only wait for their own instance to drain.

// LoadSpec names a model to load plus per-request overrides. Overrides
// take priority over process-level configuration.
type LoadSpec struct {
	ModelName  string
	Checkpoint string
	Recipe     string
	Overrides  engine.Overrides
}

type loadRequest struct {
	spec LoadSpec
	done chan error
}

// RequestLoad enqueues a load and blocks until it completes, fails, or
// ctx is cancelled. Loads are strictly FIFO; concurrent callers for the
// same model wait in order and the registry check at dequeue time makes
// the duplicate a no-op.
func (m *Manager) RequestLoad(ctx context.Context, spec LoadSpec) error {
	if spec.ModelName == "" {
		return ErrModelNotFound("(unspecified)")
	}
	req := &loadRequest{spec: spec, done: make(chan error, 1)}
	select {
	case m.loadCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// loadLoop is the single serializer worker.
func (m *Manager) loadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-m.loadCh:
			req.done <- m.performLoad(ctx, req.spec)
		}
	}
}

// performLoad runs one dequeued load: admit → evict → spawn → commit,
// with the full-reset fallback and a single retry on most failures.
func (m *Manager) performLoad(ctx context.Context, spec LoadSpec) error {
	mdl, err := m.resolveModel(spec)
	if err != nil {
		return err
	}
	ov := m.effectiveOverrides(spec)
	// A request that carries no overrides of its own takes whatever
	// configuration the resident instance already has. Only an explicit
	// override may force a reconfiguring reload.
	bare := overridesEqual(spec.Overrides, engine.Overrides{})

	// Dequeue-time registry check: a usable instance makes this load a
	// no-op. Decisions here reflect live state, never enqueue-time state.
	reloadOf := ""
	m.mu.Lock()
	if inst, ok := m.find(spec.ModelName); ok {
		if inst.State == StateReady && !inst.evicting &&
			inst.Model.Recipe == mdl.Recipe && (bare || overridesEqual(inst.Overrides, ov)) {
			m.touch(inst)
			m.mu.Unlock()
			return nil
		}
		// Present but unusable or reconfigured: replace it in place.
		reloadOf = inst.Name
	}
	m.mu.Unlock()

	eng, devices, err := engine.ForRecipe(mdl.Recipe, m.cfg.Engines)
	if err != nil {
		return ErrModelNotFound(spec.ModelName + " (" + err.Error() + ")")
	}
	mtype := engine.TypeOf(mdl)

	d := m.admit(mtype, devices, reloadOf)
	for _, victim := range d.evict {
		m.evictInstance(victim, evictReasonFor(victim, devices))
	}
	if reloadOf != "" {
		m.mu.RLock()
		old, ok := m.find(reloadOf)
		m.mu.RUnlock()
		if ok {
			m.evictInstance(old, "reload")
		}
	}

	inst := &Instance{
		Name:      spec.ModelName,
		Model:     mdl,
		Type:      mtype,
		Devices:   devices,
		Engine:    eng,
		State:     StateLoading,
		LastUsed:  time.Now(),
		Overrides: ov,
	}
	m.mu.Lock()
	m.insert(inst)
	m.touch(inst)
	m.mu.Unlock()
	m.publisher.Publish(Event{Name: "load_start", ModelName: spec.ModelName, Fields: map[string]any{"recipe": mdl.Recipe}})
	m.log.Info().Str("model", spec.ModelName).Str("recipe", mdl.Recipe).Msg("loading instance")

	backend, err := m.spawner.Spawn(ctx, eng, mdl, ov)
	if err != nil && !IsFileNotFound(err) && ctx.Err() == nil {
		// Full reset and one retry: partial-failure recovery across
		// heterogeneous engines is too error-prone, and freeing
		// everything is always safe.
		m.log.Warn().Err(err).Str("model", spec.ModelName).Msg("load failed, resetting all instances and retrying")
		nuclearResetsTotal.Inc()
		m.publisher.Publish(Event{Name: "nuclear_reset", ModelName: spec.ModelName, Fields: map[string]any{"error": err.Error()}})
		m.evictAll(spec.ModelName, "nuclear")
		backend, err = m.spawner.Spawn(ctx, eng, mdl, ov)
	}
	if err != nil {
		m.mu.Lock()
		inst.State = StateFailed
		m.remove(spec.ModelName)
		m.mu.Unlock()
		loadFailuresTotal.WithLabelValues(failureReason(err)).Inc()
		m.publisher.Publish(Event{Name: "load_failed", ModelName: spec.ModelName, Fields: map[string]any{"error": err.Error()}})
		return err
	}

	m.mu.Lock()
	inst.backend = backend
	inst.Port = backend.Port
	inst.PID = backend.PID
	inst.BaseURL = backend.BaseURL
	inst.State = StateReady
	m.touch(inst)
	m.mu.Unlock()
	loadsTotal.Inc()
	m.publisher.Publish(Event{Name: "load_ready", ModelName: spec.ModelName, Fields: map[string]any{"port": backend.Port, "pid": backend.PID}})
	m.log.Info().Str("model", spec.ModelName).Int("port", backend.Port).Int("pid", backend.PID).Msg("instance ready")
	return nil
}

// resolveModel finds the catalog entry, or builds an ad-hoc one when the
// request supplies its own checkpoint.
func (m *Manager) resolveModel(spec LoadSpec) (types.Model, error) {
	var mdl types.Model
	if m.catalog != nil {
		if found, ok := m.catalog.Find(spec.ModelName); ok {
			mdl = found
		}
	}
	if mdl.Name == "" {
		if spec.Checkpoint == "" {
			return types.Model{}, ErrModelNotFound(spec.ModelName)
		}
		mdl = types.Model{Name: spec.ModelName, Checkpoint: spec.Checkpoint, Recipe: "llamacpp"}
	}
	if spec.Checkpoint != "" {
		mdl.Checkpoint = spec.Checkpoint
	}
	if spec.Recipe != "" {
		mdl.Recipe = spec.Recipe
	}
	return mdl, nil
}

// effectiveOverrides layers request overrides over process defaults.
func (m *Manager) effectiveOverrides(spec LoadSpec) engine.Overrides {
	ov := m.cfg.Defaults
	if spec.Overrides.CtxSize > 0 {
		ov.CtxSize = spec.Overrides.CtxSize
	}
	if len(spec.Overrides.LlamacppArgs) > 0 {
		ov.LlamacppArgs = spec.Overrides.LlamacppArgs
	}
	if spec.Overrides.LlamacppBackend != "" {
		ov.LlamacppBackend = spec.Overrides.LlamacppBackend
	}
	return ov
}

// overridesEqual compares overrides field by field; a mismatch forces a
// reload of an already-resident instance.
func overridesEqual(a, b engine.Overrides) bool {
	if a.CtxSize != b.CtxSize || a.LlamacppBackend != b.LlamacppBackend {
		return false
	}
	if len(a.LlamacppArgs) != len(b.LlamacppArgs) {
		return false
	}
	for i := range a.LlamacppArgs {
		if a.LlamacppArgs[i] != b.LlamacppArgs[i] {
			return false
		}
	}
	return true
}

func evictReasonFor(victim *Instance, targetMask engine.Device) string {
	if victim.Devices.Has(engine.NPU) && targetMask.Has(engine.NPU) {
		return "npu-exclusive"
	}
	return "capacity"
}

func failureReason(err error) string {
	switch {
	case IsFileNotFound(err):
		return "file_not_found"
	case IsLoadFailed(err):
		return "spawn"
	default:
		return "other"
	}
}
