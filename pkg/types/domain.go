package types

// Model describes a catalog entry: a model that can be loaded into a
// backend instance. Entries come from the model catalog file or from a
// directory scan of bare *.gguf files.
type Model struct {
	// Stable identifier used in API requests.
	// example: Qwen2.5-0.5B-Instruct-CPU
	Name string `json:"model_name" example:"Qwen2.5-0.5B-Instruct-CPU"`
	// Path to the model artifact on disk.
	// example: /home/user/models/qwen2.5-0.5b-instruct-q4_k_m.gguf
	Checkpoint string `json:"checkpoint" example:"/home/user/models/qwen2.5-0.5b-instruct-q4_k_m.gguf"`
	// Inference engine recipe (e.g. llamacpp, llamacpp-vulkan, oga-npu, flm, whisper).
	// example: llamacpp
	Recipe string `json:"recipe" example:"llamacpp"`
	// Free-form labels; "embedding" and "reranking" select the model type.
	// example: ["embedding"]
	Labels []string `json:"labels,omitempty" example:"embedding"`
	// Default context size for this model (0 = engine default).
	// example: 4096
	CtxSize int `json:"ctx_size,omitempty" example:"4096"`
	// Whether the checkpoint currently exists on disk.
	// example: true
	Downloaded bool `json:"downloaded" example:"true"`
}
