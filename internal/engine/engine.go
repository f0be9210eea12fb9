// Package engine maps model recipes to concrete inference engines. Each
// engine declares the devices it occupies, the operations it can serve,
// and how to build the command line for its backend server process. The
// manager depends only on the Engine interface, never on engine identity.
package engine

import (
	"fmt"
	"strings"

	"inferd/pkg/types"
)

// Device is a bitset over the physical accelerators an instance occupies.
type Device uint8

const (
	CPU Device = 1 << iota
	GPU
	NPU
)

// Has reports whether all bits of d are set in the mask.
func (m Device) Has(d Device) bool { return m&d == d }

func (m Device) String() string {
	var parts []string
	if m.Has(CPU) {
		parts = append(parts, "cpu")
	}
	if m.Has(GPU) {
		parts = append(parts, "gpu")
	}
	if m.Has(NPU) {
		parts = append(parts, "npu")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// ModelType partitions instances for capacity accounting.
type ModelType string

const (
	TypeLLM       ModelType = "llm"
	TypeEmbedding ModelType = "embedding"
	TypeReranking ModelType = "reranking"
	TypeAudio     ModelType = "audio"
)

// Operation is one dispatchable request kind.
type Operation string

const (
	OpChat          Operation = "chat/completions"
	OpCompletion    Operation = "completions"
	OpEmbedding     Operation = "embeddings"
	OpReranking     Operation = "reranking"
	OpResponses     Operation = "responses"
	OpTranscription Operation = "audio/transcriptions"
)

// Overrides carries per-load request overrides passed down to Command.
type Overrides struct {
	CtxSize         int
	LlamacppArgs    []string
	LlamacppBackend string
}

// Engine builds and describes one backend server flavor.
type Engine interface {
	// Name identifies the engine family (llamacpp, oga, flm, whisper).
	Name() string
	// Supports reports whether the engine can serve the operation.
	Supports(op Operation) bool
	// Command returns the binary and arguments to spawn a backend server
	// for the model on the given loopback port.
	Command(m types.Model, host string, port int, ov Overrides) (string, []string)
	// ReadyPath is the HTTP path polled until the backend reports ready.
	ReadyPath() string
}

// Config carries binary locations for the engine implementations.
type Config struct {
	LlamaBin   string
	FLMBin     string
	OGABin     string
	WhisperBin string
}

// ForRecipe resolves a recipe string to its engine and device mask.
func ForRecipe(recipe string, cfg Config) (Engine, Device, error) {
	switch recipe {
	case "llamacpp", "llamacpp-cpu":
		return newLlamaServer(cfg, "cpu"), CPU, nil
	case "llamacpp-vulkan", "llamacpp-rocm", "llamacpp-metal":
		return newLlamaServer(cfg, strings.TrimPrefix(recipe, "llamacpp-")), GPU, nil
	case "oga-cpu":
		return newOGA(cfg, recipe), CPU, nil
	case "oga-hybrid":
		return newOGA(cfg, recipe), GPU | NPU, nil
	case "oga-npu":
		return newOGA(cfg, recipe), NPU, nil
	case "flm":
		return newFLM(cfg), NPU, nil
	case "whisper":
		return newWhisper(cfg), CPU, nil
	default:
		return nil, 0, fmt.Errorf("unknown recipe: %s", recipe)
	}
}

// TypeOf derives the model type from its labels and recipe: an
// "embedding" label wins, then "reranking", audio recipes map to audio,
// everything else is an LLM.
func TypeOf(m types.Model) ModelType {
	for _, l := range m.Labels {
		switch strings.ToLower(l) {
		case "embedding", "embeddings":
			return TypeEmbedding
		case "reranking", "reranker":
			return TypeReranking
		}
	}
	if m.Recipe == "whisper" {
		return TypeAudio
	}
	return TypeLLM
}
