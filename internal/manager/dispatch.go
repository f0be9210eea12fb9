package manager

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"inferd/internal/engine"
	"inferd/pkg/types"
)

// Dispatch resolves a model name to a (possibly newly created) backend
// instance and forwards the request body verbatim over loopback. When
// stream is set the backend's server-sent events are relayed chunk by
// chunk; otherwise the JSON response is written whole. Telemetry is
// extracted either way and stored on the instance.
//
// The busy guard is held for the full duration, including the stream; a
// client disconnect releases it without surfacing an error.
func (m *Manager) Dispatch(ctx context.Context, op engine.Operation, modelName string, body []byte, stream bool, w io.Writer, flush func()) error {
	if modelName == "" {
		return ErrModelNotFound("(unspecified)")
	}
	guard, err := m.acquire(modelName)
	if IsModelNotLoaded(err) {
		// Auto-load on demand: block until the serializer loads it.
		if err := m.RequestLoad(ctx, LoadSpec{ModelName: modelName}); err != nil {
			return err
		}
		guard, err = m.acquire(modelName)
	}
	if err != nil {
		return err
	}
	defer guard.Release()

	inst := guard.Instance()
	if !inst.Engine.Supports(op) {
		return ErrUnsupportedOp(modelName, inst.Engine.Name(), string(op))
	}

	url := inst.BaseURL + backendPath(op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return networkError{err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return networkError{err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return backendError{status: resp.StatusCode, body: strings.TrimSpace(string(b))}
	}

	if !stream {
		return m.relayResponse(inst, resp.Body, w)
	}
	return m.relayStream(inst, resp.Body, w, flush, start)
}

// relayResponse forwards a non-streaming JSON response and extracts the
// usage/timings telemetry it carries.
func (m *Manager) relayResponse(inst *Instance, body io.Reader, w io.Writer) error {
	b, err := io.ReadAll(body)
	if err != nil {
		return networkError{err: err}
	}
	tel := telemetryFromJSON(b, types.Telemetry{})
	m.storeTelemetry(inst, tel)
	_, err = w.Write(b)
	return err
}

// relayStream forwards server-sent events as they arrive, recording the
// first-token timestamp and the final usage/timings chunk, and appends
// the terminal sentinel if the backend omitted it. A write failure
// means the client disconnected: the relay stops without error, which
// releases the guard promptly instead of waiting for the backend.
func (m *Manager) relayStream(inst *Instance, body io.Reader, w io.Writer, flush func(), start time.Time) error {
	var (
		tel       types.Telemetry
		sawDone   bool
		sawFirst  bool
		chunkSeen int
	)
	defer func() {
		if !sawDone {
			if _, err := io.WriteString(w, "data: [DONE]\n\n"); err == nil && flush != nil {
				flush()
			}
		}
		m.storeTelemetry(inst, tel)
	}()

	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(line[len("data:"):])
			if data == "[DONE]" {
				sawDone = true
			} else if data != "" {
				chunkSeen++
				if !sawFirst {
					sawFirst = true
					tel.TimeToFirstToken = time.Since(start).Seconds()
				}
				tel = telemetryFromJSON([]byte(data), tel)
			}
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			// Client gone; stop relaying.
			sawDone = true
			return nil
		}
		if flush != nil && line == "" {
			// SSE events end on a blank line.
			flush()
		}
		if sawDone && line == "" {
			break
		}
	}
	if err := sc.Err(); err != nil {
		return networkError{err: err}
	}
	if sawDone {
		// Sentinel already relayed above; skip the deferred append.
		if tel.OutputTokens == 0 {
			tel.OutputTokens = chunkSeen
		}
		if tel.TokensPerSecond == 0 && tel.OutputTokens > 0 {
			if dt := time.Since(start).Seconds() - tel.TimeToFirstToken; dt > 0 {
				tel.TokensPerSecond = float64(tel.OutputTokens) / dt
			}
		}
	}
	return nil
}

func (m *Manager) storeTelemetry(inst *Instance, tel types.Telemetry) {
	if tel == (types.Telemetry{}) {
		return
	}
	m.mu.Lock()
	inst.Telemetry = tel
	m.mu.Unlock()
}

// backendPath maps a gateway operation to the backend server's route.
func backendPath(op engine.Operation) string {
	switch op {
	case OpChat:
		return "/v1/chat/completions"
	case OpCompletion:
		return "/v1/completions"
	case OpEmbedding:
		return "/v1/embeddings"
	case OpReranking:
		return "/v1/rerank"
	case OpResponses:
		return "/v1/responses"
	case OpTranscription:
		return "/inference"
	default:
		return "/v1/" + string(op)
	}
}

// Re-exported operation constants so HTTP handlers do not import the
// engine package for dispatch calls.
const (
	OpChat          = engine.OpChat
	OpCompletion    = engine.OpCompletion
	OpEmbedding     = engine.OpEmbedding
	OpReranking     = engine.OpReranking
	OpResponses     = engine.OpResponses
	OpTranscription = engine.OpTranscription
)
