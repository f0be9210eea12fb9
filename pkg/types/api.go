package types

// LoadRequest is the body of POST /load. Per-request overrides take
// priority over process-level configuration.
type LoadRequest struct {
	// Name of the catalog model to load.
	// example: Qwen2.5-0.5B-Instruct-CPU
	ModelName string `json:"model_name" example:"Qwen2.5-0.5B-Instruct-CPU"`
	// Optional checkpoint path override.
	Checkpoint string `json:"checkpoint,omitempty"`
	// Optional recipe override.
	// example: llamacpp-vulkan
	Recipe string `json:"recipe,omitempty" example:"llamacpp-vulkan"`
	// Optional context size override; a differing value forces a reload.
	// example: 8192
	CtxSize int `json:"ctx_size,omitempty" example:"8192"`
	// Extra arguments passed through to llama-server.
	LlamacppArgs []string `json:"llamacpp_args,omitempty"`
	// llama.cpp backend variant (e.g. vulkan, rocm, metal, cpu).
	// example: vulkan
	LlamacppBackend string `json:"llamacpp_backend,omitempty" example:"vulkan"`
}

// UnloadRequest is the body of POST /unload. An empty model name unloads
// every resident instance.
type UnloadRequest struct {
	ModelName string `json:"model_name,omitempty" example:"Qwen2.5-0.5B-Instruct-CPU"`
}

// LoadedModel describes one resident backend instance inside /health.
type LoadedModel struct {
	ModelName string `json:"model_name" example:"Qwen2.5-0.5B-Instruct-CPU"`
	// Checkpoint path backing the instance.
	Checkpoint string `json:"checkpoint"`
	// Model type: llm, embedding, reranking or audio.
	// example: llm
	Type string `json:"type" example:"llm"`
	// Device set the instance occupies (e.g. "cpu", "gpu", "gpu|npu").
	// example: cpu
	Device string `json:"device" example:"cpu"`
	// Last time the instance was used (unix seconds).
	// example: 1700000000
	LastUse int64 `json:"last_use" example:"1700000000"`
	// Loopback base URL of the backend process.
	// example: http://127.0.0.1:30001
	BackendURL string `json:"backend_url" example:"http://127.0.0.1:30001"`
}

// HealthResponse is returned by GET /health. The singular fields describe
// the most recently touched instance; AllModelsLoaded enumerates every
// resident instance.
type HealthResponse struct {
	// example: ok
	Status           string        `json:"status" example:"ok"`
	CheckpointLoaded string        `json:"checkpoint_loaded,omitempty"`
	ModelLoaded      string        `json:"model_loaded,omitempty"`
	AllModelsLoaded  []LoadedModel `json:"all_models_loaded"`
}

// ModelsResponse wraps the list returned by GET /models.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// Telemetry is the per-request timing snapshot kept for each instance and
// returned by GET /stats.
type Telemetry struct {
	// example: 42
	InputTokens int `json:"input_tokens" example:"42"`
	// example: 128
	OutputTokens int `json:"output_tokens" example:"128"`
	// Time to first token in seconds.
	// example: 0.21
	TimeToFirstToken float64 `json:"time_to_first_token" example:"0.21"`
	// Decode speed in tokens per second.
	// example: 34.7
	TokensPerSecond float64 `json:"tokens_per_second" example:"34.7"`
	// Prompt processing time in seconds.
	// example: 0.18
	PrefillTime float64 `json:"prefill_time" example:"0.18"`
	// Total decode time in seconds.
	// example: 3.69
	DecodeTime float64 `json:"decode_time" example:"3.69"`
}

// StatsResponse is returned by GET /stats: the telemetry of the most
// recently used instance.
type StatsResponse struct {
	ModelName string `json:"model_name,omitempty" example:"Qwen2.5-0.5B-Instruct-CPU"`
	Telemetry
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: model not found: unknown-model
	Error string `json:"error" example:"model not found: unknown-model"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}
