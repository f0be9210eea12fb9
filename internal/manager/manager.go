package manager

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/catalog"
	"inferd/internal/config"
	"inferd/pkg/types"
)

// Manager owns the live set of backend instances and everything that
// mutates it: the load serializer, the eviction policy, the busy guard
// and the dispatcher. Membership and per-instance counters are guarded
// by a single mutex; slow work (spawn, teardown, proxying) never runs
// under it.
type Manager struct {
	mu sync.RWMutex

	cfg       ManagerConfig
	catalog   *catalog.Catalog
	slots     config.MaxSlots
	instances map[string]*Instance

	// lastTouched is the name of the most recently used instance,
	// reported by /health and /stats.
	lastTouched string
	// seq increments on every insert; it breaks LRU timestamp ties.
	seq uint64

	spawner    Spawner
	httpClient *http.Client
	loadCh     chan *loadRequest
	publisher  EventPublisher
	log        zerolog.Logger
	startTime  time.Time
}

// Run starts the load serializer worker and the health monitor. It
// blocks until ctx is cancelled, then stops every resident instance.
func (m *Manager) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.healthLoop(ctx)
		close(done)
	}()
	m.loadLoop(ctx)
	<-done
	m.UnloadAll()
	return ctx.Err()
}

// Ready reports whether at least one instance is ready to serve.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, inst := range m.instances {
		if inst.State == StateReady {
			return true
		}
	}
	return false
}

// ListModels returns the catalog. When downloadedOnly is set, models
// whose checkpoint is missing on disk are skipped.
func (m *Manager) ListModels(downloadedOnly bool) []types.Model {
	if m.catalog == nil {
		return nil
	}
	return m.catalog.List(downloadedOnly)
}

// touch refreshes the instance's LRU timestamp and marks it as the most
// recently used one. Caller must hold mu.
func (m *Manager) touch(inst *Instance) {
	inst.LastUsed = time.Now()
	m.lastTouched = inst.Name
}
