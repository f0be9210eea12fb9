package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"inferd/internal/catalog"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/pkg/types"
)

// fakeSpawner satisfies Spawner without launching processes. Failures
// can be queued per model; each Spawn consumes one queued error before
// succeeding.
type fakeSpawner struct {
	mu       sync.Mutex
	calls    []string
	failures map[string][]error
	stopped  []string
	baseURL  string
	exited   map[string]bool
	nextPort int
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		failures: make(map[string][]error),
		exited:   make(map[string]bool),
		nextPort: 30000,
	}
}

func (f *fakeSpawner) failNext(model string, errs ...error) {
	f.mu.Lock()
	f.failures[model] = append(f.failures[model], errs...)
	f.mu.Unlock()
}

func (f *fakeSpawner) Spawn(ctx context.Context, eng engine.Engine, m types.Model, ov engine.Overrides) (*Backend, error) {
	f.mu.Lock()
	f.calls = append(f.calls, m.Name)
	if q := f.failures[m.Name]; len(q) > 0 {
		err := q[0]
		f.failures[m.Name] = q[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.nextPort++
	port := f.nextPort
	name := m.Name
	f.mu.Unlock()
	return &Backend{
		PID:     1000 + port,
		Port:    port,
		BaseURL: f.baseURL,
		stopFn: func() error {
			f.mu.Lock()
			f.stopped = append(f.stopped, name)
			f.mu.Unlock()
			return nil
		},
		exitedFn: func() bool {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.exited[name]
		},
	}, nil
}

func (f *fakeSpawner) spawnCount(model string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == model {
			n++
		}
	}
	return n
}

func (f *fakeSpawner) wasStopped(model string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.stopped {
		if s == model {
			return true
		}
	}
	return false
}

func (f *fakeSpawner) markExited(model string) {
	f.mu.Lock()
	f.exited[model] = true
	f.mu.Unlock()
}

// testModels is a catalog spanning every type and device mask.
func testModels() []types.Model {
	return []types.Model{
		{Name: "llm-a", Checkpoint: "/m/a.gguf", Recipe: "llamacpp"},
		{Name: "llm-b", Checkpoint: "/m/b.gguf", Recipe: "llamacpp"},
		{Name: "llm-c", Checkpoint: "/m/c.gguf", Recipe: "llamacpp"},
		{Name: "llm-d", Checkpoint: "/m/d.gguf", Recipe: "llamacpp"},
		{Name: "gpu-llm", Checkpoint: "/m/g.gguf", Recipe: "llamacpp-vulkan"},
		{Name: "hybrid-llm", Checkpoint: "/m/h.onnx", Recipe: "oga-hybrid"},
		{Name: "npu-llm", Checkpoint: "/m/n.bin", Recipe: "flm"},
		{Name: "embed-a", Checkpoint: "/m/e.gguf", Recipe: "llamacpp", Labels: []string{"embedding"}},
		{Name: "rerank-a", Checkpoint: "/m/r.gguf", Recipe: "llamacpp", Labels: []string{"reranking"}},
		{Name: "whisper-a", Checkpoint: "/m/w.bin", Recipe: "whisper"},
	}
}

func testCatalog() *catalog.Catalog { return catalog.New(testModels()) }

// startLoops runs the manager's serializer and health monitor until the
// test ends.
func startLoops(t *testing.T, m *Manager) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

// newTestManager builds a manager with a fake spawner and starts its
// loops.
func newTestManager(t *testing.T, slots config.MaxSlots, spawner *fakeSpawner) *Manager {
	t.Helper()
	if spawner == nil {
		spawner = newFakeSpawner()
	}
	m := NewWithConfig(ManagerConfig{
		Catalog:        testCatalog(),
		Slots:          slots,
		Spawner:        spawner,
		Publisher:      NewMemoryPublisher(),
		HealthInterval: 10 * time.Millisecond,
	})
	startLoops(t, m)
	return m
}

// mustLoad loads a model or fails the test.
func mustLoad(t *testing.T, m *Manager, name string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.RequestLoad(ctx, LoadSpec{ModelName: name}); err != nil {
		t.Fatalf("load %s: %v", name, err)
	}
}

// touchAt backdates an instance's LastUsed for LRU tests.
func touchAt(t *testing.T, m *Manager, name string, ts time.Time) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.find(name)
	if !ok {
		t.Fatalf("instance %s not found", name)
	}
	inst.LastUsed = ts
}

func residentNames(m *Manager) map[string]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool, len(m.instances))
	for name := range m.instances {
		out[name] = true
	}
	return out
}
