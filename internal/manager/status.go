package manager

import (
	"inferd/pkg/types"
)

// Health builds the GET /health payload: singular fields describe the
// most recently touched instance, the array lists every resident one.
func (m *Manager) Health() types.HealthResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	resp := types.HealthResponse{
		Status:          "ok",
		AllModelsLoaded: make([]types.LoadedModel, 0, len(m.instances)),
	}
	for _, inst := range m.instances {
		if inst.State == StateUnloading || inst.State == StateFailed {
			continue
		}
		resp.AllModelsLoaded = append(resp.AllModelsLoaded, types.LoadedModel{
			ModelName:  inst.Name,
			Checkpoint: inst.Model.Checkpoint,
			Type:       string(inst.Type),
			Device:     inst.Devices.String(),
			LastUse:    inst.LastUsed.Unix(),
			BackendURL: inst.BaseURL,
		})
	}
	if inst, ok := m.instances[m.lastTouched]; ok {
		resp.ModelLoaded = inst.Name
		resp.CheckpointLoaded = inst.Model.Checkpoint
	}
	return resp
}

// Stats returns the telemetry snapshot of the most recently used
// instance.
func (m *Manager) Stats() types.StatsResponse {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if inst, ok := m.instances[m.lastTouched]; ok {
		return types.StatsResponse{ModelName: inst.Name, Telemetry: inst.Telemetry}
	}
	return types.StatsResponse{}
}

// Loaded reports whether a named model has a resident, usable instance.
func (m *Manager) Loaded(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.find(name)
	return ok && inst.State == StateReady && !inst.evicting
}
