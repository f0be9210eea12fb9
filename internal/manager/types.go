package manager

import (
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// State represents the lifecycle state of a backend instance.
type State string

const (
	StateLoading   State = "loading"
	StateReady     State = "ready"
	StateUnloading State = "unloading"
	StateFailed    State = "failed"
)

// Instance is one running backend server process bound to one model.
// All mutable fields are guarded by Manager.mu; the process handle is
// immutable once the instance is inserted.
type Instance struct {
	Name    string
	Model   types.Model
	Type    engine.ModelType
	Devices engine.Device
	Engine  engine.Engine

	State   State
	Port    int
	PID     int
	BaseURL string

	// LastUsed is refreshed on load start/completion and on every
	// request acquire/release; it drives LRU eviction.
	LastUsed time.Time
	// seq is the insertion order, used as the LRU tie-break.
	seq uint64

	// inFlight counts active requests. An instance is never destroyed
	// while this is above zero.
	inFlight int
	// evicting marks an instance selected for eviction; new acquires are
	// rejected so the drain can complete.
	evicting bool

	// Overrides applied when the instance was spawned. A load request
	// carrying different overrides forces a reload.
	Overrides engine.Overrides

	// Telemetry of the most recent completed request.
	Telemetry types.Telemetry

	backend *Backend
}

// idle reports whether the instance has no in-flight requests.
func (i *Instance) idle() bool { return i.inFlight == 0 }
