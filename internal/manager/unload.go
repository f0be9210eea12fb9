package manager

// Unload drains and destroys one named instance. It does not pass
// through the load serializer: it only waits for the instance's own
// in-flight requests to finish, possibly while an unrelated load is in
// progress. Returns a not-loaded error when no instance exists.
func (m *Manager) Unload(modelName string) error {
	if modelName == "" {
		return ErrModelNotLoaded("(unspecified)")
	}
	m.mu.RLock()
	inst, ok := m.find(modelName)
	m.mu.RUnlock()
	if !ok || inst.State == StateUnloading {
		return ErrModelNotLoaded(modelName)
	}
	m.publisher.Publish(Event{Name: "unload_start", ModelName: modelName, Fields: map[string]any{}})
	m.evictInstance(inst, "explicit")
	m.publisher.Publish(Event{Name: "unload_done", ModelName: modelName, Fields: map[string]any{}})
	return nil
}

// UnloadAll drains and destroys every resident instance.
func (m *Manager) UnloadAll() {
	m.evictAll("", "unload-all")
}
