package manager

import (
	"time"

	"github.com/rs/zerolog"

	"inferd/internal/catalog"
	"inferd/internal/config"
	"inferd/internal/engine"
)

// Defaults applied when corresponding ManagerConfig fields are unset.
const (
	defaultLoadQueueDepth = 64
	defaultReadyTimeout   = 120 * time.Second
	defaultHealthInterval = 5 * time.Second
	defaultHost           = "127.0.0.1"
)

// ManagerConfig encapsulates all tunables for Manager construction.
type ManagerConfig struct {
	Catalog *catalog.Catalog
	Slots   config.MaxSlots
	Engines engine.Config

	// Defaults are process-level overrides applied to every load unless
	// the request carries its own.
	Defaults engine.Overrides

	Host      string
	PortStart int
	PortEnd   int

	// LoadQueueDepth bounds the pending-load queue.
	LoadQueueDepth int
	// ReadyTimeout bounds how long a spawned backend may take to report
	// ready before the load attempt fails.
	ReadyTimeout time.Duration
	// HealthInterval is the period of the crash-detection poll.
	HealthInterval time.Duration

	// Spawner overrides process spawning; nil selects the exec-based
	// spawner. Tests inject fakes here.
	Spawner Spawner

	Publisher EventPublisher
	Logger    zerolog.Logger
}

// NewWithConfig constructs a Manager from ManagerConfig, applying
// package defaults for unset fields.
func NewWithConfig(cfg ManagerConfig) *Manager {
	if cfg.Slots == (config.MaxSlots{}) {
		cfg.Slots = config.DefaultMaxSlots()
	}
	if cfg.Host == "" {
		cfg.Host = defaultHost
	}
	if cfg.LoadQueueDepth <= 0 {
		cfg.LoadQueueDepth = defaultLoadQueueDepth
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = defaultReadyTimeout
	}
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = defaultHealthInterval
	}
	if cfg.Publisher == nil {
		cfg.Publisher = noopPublisher{}
	}
	m := &Manager{
		cfg:       cfg,
		catalog:   cfg.Catalog,
		slots:     cfg.Slots,
		instances: make(map[string]*Instance),
		loadCh:    make(chan *loadRequest, cfg.LoadQueueDepth),
		publisher: cfg.Publisher,
		log:       cfg.Logger,
		startTime: time.Now(),
	}
	m.spawner = cfg.Spawner
	if m.spawner == nil {
		m.spawner = newExecSpawner(cfg)
	}
	m.httpClient = newBackendClient()
	return m
}
