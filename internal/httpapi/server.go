package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"inferd/internal/engine"
	"inferd/internal/manager"
	"inferd/pkg/types"
)

// Service defines the methods required by the HTTP API layer. The
// manager satisfies it.
type Service interface {
	ListModels(downloadedOnly bool) []types.Model
	Health() types.HealthResponse
	Stats() types.StatsResponse
	Ready() bool
	Dispatch(ctx context.Context, op engine.Operation, model string, body []byte, stream bool, w io.Writer, flush func()) error
	RequestLoad(ctx context.Context, spec manager.LoadSpec) error
	Unload(name string) error
	UnloadAll()
}

// dispatchEnvelope is the slice of an inference request body the
// gateway itself needs; the rest passes through to the backend opaque.
type dispatchEnvelope struct {
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
}

// countingWriter tracks whether any response bytes left the building,
// which determines if an error can still change the status code.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Health()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/models", func(w http.ResponseWriter, r *http.Request) {
		showAll := r.URL.Query().Get("show_all") == "true"
		w.Header().Set("Content-Type", "application/json")
		resp := types.ModelsResponse{Models: svc.ListModels(!showAll)}
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(svc.Stats()); err != nil {
			writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
		}
	})

	r.Post("/load", func(w http.ResponseWriter, r *http.Request) {
		var req types.LoadRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ModelName) == "" {
			writeJSONError(w, http.StatusBadRequest, "model_name is required")
			return
		}
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		err := svc.RequestLoad(ctx, manager.LoadSpec{
			ModelName:  req.ModelName,
			Checkpoint: req.Checkpoint,
			Recipe:     req.Recipe,
			Overrides: engine.Overrides{
				CtxSize:         req.CtxSize,
				LlamacppArgs:    req.LlamacppArgs,
				LlamacppBackend: req.LlamacppBackend,
			},
		})
		if err != nil {
			writeManagerError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "model_name": req.ModelName})
	})

	r.Post("/unload", func(w http.ResponseWriter, r *http.Request) {
		var req types.UnloadRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.ModelName) == "" {
			svc.UnloadAll()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "success"})
			return
		}
		if err := svc.Unload(req.ModelName); err != nil {
			writeManagerError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "success", "model_name": req.ModelName})
	})

	// OpenAI-compatible inference surface. Each route proxies to the
	// target model's backend, loading it first when needed.
	r.Post("/chat/completions", dispatchHandler(svc, engine.OpChat))
	r.Post("/completions", dispatchHandler(svc, engine.OpCompletion))
	r.Post("/embeddings", dispatchHandler(svc, engine.OpEmbedding))
	r.Post("/reranking", dispatchHandler(svc, engine.OpReranking))
	r.Post("/responses", dispatchHandler(svc, engine.OpResponses))
	r.Post("/audio/transcriptions", dispatchHandler(svc, engine.OpTranscription))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("starting"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)

	return r
}

// dispatchHandler builds the proxy handler for one inference operation.
// The body is read whole so the model name and stream flag can be
// peeked before it is forwarded verbatim.
func dispatchHandler(svc Service, op engine.Operation) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ct := r.Header.Get("Content-Type")
		if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
			writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		body, err := io.ReadAll(r.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "failed to read request body")
			return
		}
		var env dispatchEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		if env.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Header().Set("Cache-Control", "no-cache")
			w.Header().Set("Connection", "keep-alive")
			streamsActive.Inc()
			defer streamsActive.Dec()
		} else {
			w.Header().Set("Content-Type", "application/json")
		}

		lvl := requestLogLevel(r)
		start := time.Now()
		if lvl >= LevelInfo && zlog != nil {
			z := zlog.Info().Str("path", r.URL.Path).Str("model", env.Model).Bool("stream", env.Stream)
			if rid := middleware.GetReqID(r.Context()); rid != "" {
				z = z.Str("request_id", rid)
			}
			z.Msg("dispatch start")
		}

		writer := io.Writer(w)
		if lvl >= LevelDebug && env.Stream {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		cw := &countingWriter{w: writer}

		// Join server base context with request context so shutdown
		// cancels in-flight proxying too.
		ctx, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		err = svc.Dispatch(ctx, op, env.Model, body, env.Stream, cw, flush)
		status := http.StatusOK
		if err != nil {
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				// Client disconnected or shutting down.
				return
			}
			if cw.n > 0 {
				// The stream already started; the status line is gone.
				logDispatchEnd(r, lvl, 0, start, err)
				return
			}
			status = statusFor(err)
			writeJSONError(w, status, err.Error())
		}
		logDispatchEnd(r, lvl, status, start, err)
	}
}

func logDispatchEnd(r *http.Request, lvl LogLevel, status int, start time.Time, err error) {
	if lvl < LevelInfo || zlog == nil {
		return
	}
	z := zlog.Info().Int("status", status).Dur("dur", time.Since(start))
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		z = z.Str("request_id", rid)
	}
	if err != nil {
		z = z.Err(err)
	}
	z.Msg("dispatch end")
}

// decodeJSONBody decodes a JSON request body, writing the error
// response itself on failure.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if err == io.EOF {
			// An empty body means all-defaults; /unload relies on it.
			return true
		}
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}
