package engine

import (
	"fmt"

	"inferd/pkg/types"
)

// oga spawns an ONNX GenAI server. The recipe variant decides device
// placement: oga-cpu, oga-hybrid (GPU+NPU) or oga-npu.
type oga struct {
	bin    string
	recipe string
}

func newOGA(cfg Config, recipe string) *oga {
	bin := cfg.OGABin
	if bin == "" {
		bin = "oga-server"
	}
	return &oga{bin: bin, recipe: recipe}
}

func (e *oga) Name() string { return "oga" }

func (e *oga) Supports(op Operation) bool {
	switch op {
	case OpChat, OpCompletion, OpResponses:
		return true
	}
	return false
}

func (e *oga) Command(m types.Model, host string, port int, ov Overrides) (string, []string) {
	args := []string{
		"--model", m.Checkpoint,
		"--device", e.recipe,
		"--host", host,
		"--port", fmt.Sprint(port),
	}
	ctx := m.CtxSize
	if ov.CtxSize > 0 {
		ctx = ov.CtxSize
	}
	if ctx > 0 {
		args = append(args, "--max-length", fmt.Sprint(ctx))
	}
	return e.bin, args
}

func (e *oga) ReadyPath() string { return "/health" }
