package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"inferd/internal/catalog"
	"inferd/internal/config"
	"inferd/internal/engine"
	"inferd/internal/httpapi"
	"inferd/internal/manager"
	"inferd/pkg/types"
)

// stubSpawner satisfies manager.Spawner without starting real
// processes; every backend handle points at the shared fake server.
type stubSpawner struct {
	mu      sync.Mutex
	baseURL string
	spawned []string
}

func (s *stubSpawner) Spawn(ctx context.Context, eng engine.Engine, m types.Model, ov engine.Overrides) (*manager.Backend, error) {
	s.mu.Lock()
	s.spawned = append(s.spawned, m.Name)
	s.mu.Unlock()
	return &manager.Backend{PID: 4242, Port: 30001, BaseURL: s.baseURL}, nil
}

func (s *stubSpawner) spawnCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.spawned)
}

// fakeOpenAIBackend speaks just enough of the llama-server surface for
// the gateway to proxy against.
func fakeOpenAIBackend(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var env struct {
			Stream bool `json:"stream"`
		}
		_ = json.Unmarshal(body, &env)
		if env.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hello\"}}]}\n\n")
			io.WriteString(w, "data: {\"usage\":{\"prompt_tokens\":2,\"completion_tokens\":1}}\n\n")
			io.WriteString(w, "data: [DONE]\n\n")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":2,"completion_tokens":1}}`)
	})
	mux.HandleFunc("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"data":[{"embedding":[0.1,0.2]}],"usage":{"prompt_tokens":3,"completion_tokens":0}}`)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func gatewayModels() []types.Model {
	return []types.Model{
		{Name: "chat-a", Checkpoint: "/models/chat-a.gguf", Recipe: "llamacpp", Downloaded: true},
		{Name: "chat-b", Checkpoint: "/models/chat-b.gguf", Recipe: "llamacpp", Downloaded: true},
		{Name: "embed-a", Checkpoint: "/models/embed-a.gguf", Recipe: "llamacpp", Labels: []string{"embeddings"}, Downloaded: true},
	}
}

// newGateway wires a real manager behind the real mux, with backends
// stubbed out, and returns the public HTTP surface.
func newGateway(t *testing.T, slots config.MaxSlots) (*httptest.Server, *stubSpawner) {
	t.Helper()
	backend := fakeOpenAIBackend(t)
	sp := &stubSpawner{baseURL: backend.URL}
	mgr := manager.NewWithConfig(manager.ManagerConfig{
		Catalog: catalog.New(gatewayModels()),
		Slots:   slots,
		Spawner: sp,
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = mgr.Run(ctx)
		close(done)
	}()
	srv := httptest.NewServer(httpapi.NewMux(mgr))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Errorf("manager loops did not stop")
		}
	})
	return srv, sp
}

func postJSON(t *testing.T, url, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, b
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if dst != nil {
		if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}
