package engine

import (
	"fmt"

	"inferd/pkg/types"
)

// flm spawns an NPU-accelerated text generation server. The NPU is a
// globally exclusive resource; the manager enforces that at most one
// instance holds it.
type flm struct {
	bin string
}

func newFLM(cfg Config) *flm {
	bin := cfg.FLMBin
	if bin == "" {
		bin = "flm-server"
	}
	return &flm{bin: bin}
}

func (e *flm) Name() string { return "flm" }

func (e *flm) Supports(op Operation) bool {
	switch op {
	case OpChat, OpCompletion, OpResponses:
		return true
	}
	return false
}

func (e *flm) Command(m types.Model, host string, port int, ov Overrides) (string, []string) {
	args := []string{
		"serve", m.Checkpoint,
		"--host", host,
		"--port", fmt.Sprint(port),
	}
	ctx := m.CtxSize
	if ov.CtxSize > 0 {
		ctx = ov.CtxSize
	}
	if ctx > 0 {
		args = append(args, "--ctx-size", fmt.Sprint(ctx))
	}
	return e.bin, args
}

func (e *flm) ReadyPath() string { return "/health" }
