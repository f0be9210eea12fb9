package engine

import (
	"fmt"

	"inferd/pkg/types"
)

// llamaServer spawns a llama-server process. The backend variant (cpu,
// vulkan, rocm, metal) only selects which build of the binary runs; the
// command line is the same across variants.
type llamaServer struct {
	bin     string
	backend string
}

func newLlamaServer(cfg Config, backend string) *llamaServer {
	bin := cfg.LlamaBin
	if bin == "" {
		bin = "llama-server"
	}
	return &llamaServer{bin: bin, backend: backend}
}

func (e *llamaServer) Name() string { return "llamacpp" }

func (e *llamaServer) Supports(op Operation) bool {
	switch op {
	case OpChat, OpCompletion, OpEmbedding, OpReranking, OpResponses:
		return true
	}
	return false
}

func (e *llamaServer) Command(m types.Model, host string, port int, ov Overrides) (string, []string) {
	args := []string{
		"-m", m.Checkpoint,
		"--host", host,
		"--port", fmt.Sprint(port),
		"--jinja",
	}
	ctx := m.CtxSize
	if ov.CtxSize > 0 {
		ctx = ov.CtxSize
	}
	if ctx > 0 {
		args = append(args, "-c", fmt.Sprint(ctx))
	}
	switch TypeOf(m) {
	case TypeEmbedding:
		args = append(args, "--embeddings")
	case TypeReranking:
		args = append(args, "--reranking")
	}
	if len(ov.LlamacppArgs) > 0 {
		args = append(args, ov.LlamacppArgs...)
	}
	return e.bin, args
}

func (e *llamaServer) ReadyPath() string { return "/health" }
