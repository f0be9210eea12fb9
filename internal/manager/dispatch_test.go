package manager

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"inferd/internal/config"
	"inferd/internal/engine"
)

// fakeBackend stands in for a spawned inference server. Every Spawn
// from the fake spawner points at it, so Dispatch proxies here.
func fakeBackend(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatchProxiesBodyAndStoresTelemetry(t *testing.T) {
	var gotPath string
	var gotBody []byte
	srv := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"choices":[],"usage":{"prompt_tokens":12,"completion_tokens":34},`+
			`"timings":{"prompt_ms":50.0,"predicted_ms":200.0,"predicted_per_second":170.0}}`)
	})

	sp := newFakeSpawner()
	sp.baseURL = srv.URL
	m := newTestManager(t, config.DefaultMaxSlots(), sp)
	mustLoad(t, m, "llm-a")

	var out bytes.Buffer
	body := []byte(`{"model":"llm-a","messages":[]}`)
	if err := m.Dispatch(context.Background(), OpChat, "llm-a", body, false, &out, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if gotPath != "/v1/chat/completions" {
		t.Fatalf("backend path = %q", gotPath)
	}
	if !bytes.Equal(gotBody, body) {
		t.Fatalf("body not forwarded verbatim: %q", gotBody)
	}
	if !strings.Contains(out.String(), `"usage"`) {
		t.Fatalf("response not relayed: %q", out.String())
	}

	stats := m.Stats()
	if stats.ModelName != "llm-a" {
		t.Fatalf("stats model = %q", stats.ModelName)
	}
	tel := stats.Telemetry
	if tel.InputTokens != 12 || tel.OutputTokens != 34 {
		t.Fatalf("tokens = %d/%d", tel.InputTokens, tel.OutputTokens)
	}
	if tel.PrefillTime != 0.05 || tel.DecodeTime != 0.2 {
		t.Fatalf("timings = %v/%v", tel.PrefillTime, tel.DecodeTime)
	}
	if tel.TokensPerSecond != 170.0 {
		t.Fatalf("tps = %v", tel.TokensPerSecond)
	}
}

func TestDispatchAutoLoadsOnDemand(t *testing.T) {
	srv := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{}`)
	})
	sp := newFakeSpawner()
	sp.baseURL = srv.URL
	m := newTestManager(t, config.DefaultMaxSlots(), sp)

	var out bytes.Buffer
	if err := m.Dispatch(context.Background(), OpChat, "llm-a", []byte(`{}`), false, &out, nil); err != nil {
		t.Fatalf("dispatch with auto-load: %v", err)
	}
	if sp.spawnCount("llm-a") != 1 {
		t.Fatalf("spawns = %d, want 1", sp.spawnCount("llm-a"))
	}
	if !m.Loaded("llm-a") {
		t.Fatalf("llm-a should stay resident after dispatch")
	}
}

func TestDispatchUnknownModel(t *testing.T) {
	m := newTestManager(t, config.DefaultMaxSlots(), nil)
	err := m.Dispatch(context.Background(), OpChat, "no-such", nil, false, io.Discard, nil)
	if !IsModelNotFound(err) {
		t.Fatalf("expected not-found, got %v", err)
	}
	err = m.Dispatch(context.Background(), OpChat, "", nil, false, io.Discard, nil)
	if !IsModelNotFound(err) {
		t.Fatalf("expected not-found for empty name, got %v", err)
	}
}

func TestDispatchRejectsUnsupportedOperation(t *testing.T) {
	m := newTestManager(t, config.DefaultMaxSlots(), nil)
	mustLoad(t, m, "npu-llm") // flm engine: chat and completion only
	err := m.Dispatch(context.Background(), OpEmbedding, "npu-llm", nil, false, io.Discard, nil)
	if !IsUnsupportedOp(err) {
		t.Fatalf("expected unsupported-op, got %v", err)
	}
}

func TestDispatchBackendErrorPreservesBody(t *testing.T) {
	srv := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"context window exceeded"}`, http.StatusInternalServerError)
	})
	sp := newFakeSpawner()
	sp.baseURL = srv.URL
	m := newTestManager(t, config.DefaultMaxSlots(), sp)
	mustLoad(t, m, "llm-a")

	err := m.Dispatch(context.Background(), OpChat, "llm-a", []byte(`{}`), false, io.Discard, nil)
	if !IsBackendError(err) {
		t.Fatalf("expected backend error, got %v", err)
	}
	if !strings.Contains(err.Error(), "context window exceeded") {
		t.Fatalf("backend body lost: %v", err)
	}
}

func TestDispatchUnreachableBackend(t *testing.T) {
	sp := newFakeSpawner()
	sp.baseURL = "http://127.0.0.1:1" // nothing listens here
	m := newTestManager(t, config.DefaultMaxSlots(), sp)
	mustLoad(t, m, "llm-a")

	err := m.Dispatch(context.Background(), OpChat, "llm-a", []byte(`{}`), false, io.Discard, nil)
	if !IsNetworkError(err) {
		t.Fatalf("expected network error, got %v", err)
	}
}

func TestDispatchRelaysStreamWithSentinel(t *testing.T) {
	srv := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi\"}}]}\n\n")
		io.WriteString(w, "data: {\"usage\":{\"prompt_tokens\":3,\"completion_tokens\":7}}\n\n")
		io.WriteString(w, "data: [DONE]\n\n")
	})
	sp := newFakeSpawner()
	sp.baseURL = srv.URL
	m := newTestManager(t, config.DefaultMaxSlots(), sp)
	mustLoad(t, m, "llm-a")

	var out bytes.Buffer
	flushes := 0
	err := m.Dispatch(context.Background(), OpChat, "llm-a", []byte(`{}`), true, &out, func() { flushes++ })
	if err != nil {
		t.Fatalf("dispatch stream: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, `"content":"hi"`) {
		t.Fatalf("chunk not relayed: %q", got)
	}
	if n := strings.Count(got, "data: [DONE]"); n != 1 {
		t.Fatalf("sentinel relayed %d times, want exactly once:\n%s", n, got)
	}
	if flushes == 0 {
		t.Fatalf("stream never flushed")
	}
	tel := m.Stats().Telemetry
	if tel.InputTokens != 3 || tel.OutputTokens != 7 {
		t.Fatalf("streamed telemetry = %d/%d", tel.InputTokens, tel.OutputTokens)
	}
	if tel.TimeToFirstToken <= 0 {
		t.Fatalf("ttft not recorded")
	}
}

func TestDispatchAppendsMissingSentinel(t *testing.T) {
	srv := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		// Backend drops the connection without sending [DONE].
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"a\"}}]}\n\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"b\"}}]}\n\n")
	})
	sp := newFakeSpawner()
	sp.baseURL = srv.URL
	m := newTestManager(t, config.DefaultMaxSlots(), sp)
	mustLoad(t, m, "llm-a")

	var out bytes.Buffer
	if err := m.Dispatch(context.Background(), OpChat, "llm-a", []byte(`{}`), true, &out, nil); err != nil {
		t.Fatalf("dispatch stream: %v", err)
	}
	if !strings.HasSuffix(out.String(), "data: [DONE]\n\n") {
		t.Fatalf("terminal sentinel not appended:\n%q", out.String())
	}
}

func TestDispatchReleasesGuardAfterStream(t *testing.T) {
	srv := fakeBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: [DONE]\n\n")
	})
	sp := newFakeSpawner()
	sp.baseURL = srv.URL
	m := newTestManager(t, config.DefaultMaxSlots(), sp)
	mustLoad(t, m, "llm-a")

	if err := m.Dispatch(context.Background(), OpChat, "llm-a", []byte(`{}`), true, io.Discard, nil); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	m.mu.RLock()
	inst, _ := m.find("llm-a")
	n := inst.inFlight
	m.mu.RUnlock()
	if n != 0 {
		t.Fatalf("inFlight=%d after dispatch returned", n)
	}
}

func TestBackendPathPerOperation(t *testing.T) {
	cases := map[engine.Operation]string{
		OpChat:          "/v1/chat/completions",
		OpCompletion:    "/v1/completions",
		OpEmbedding:     "/v1/embeddings",
		OpReranking:     "/v1/rerank",
		OpResponses:     "/v1/responses",
		OpTranscription: "/inference",
	}
	for op, want := range cases {
		if got := backendPath(op); got != want {
			t.Fatalf("path(%s) = %q, want %q", op, got, want)
		}
	}
}
