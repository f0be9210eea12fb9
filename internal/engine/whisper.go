package engine

import (
	"fmt"

	"inferd/pkg/types"
)

// whisper spawns a speech-to-text server (whisper.cpp style). Audio
// models are identified by this recipe rather than by labels.
type whisper struct {
	bin string
}

func newWhisper(cfg Config) *whisper {
	bin := cfg.WhisperBin
	if bin == "" {
		bin = "whisper-server"
	}
	return &whisper{bin: bin}
}

func (e *whisper) Name() string { return "whisper" }

func (e *whisper) Supports(op Operation) bool { return op == OpTranscription }

func (e *whisper) Command(m types.Model, host string, port int, ov Overrides) (string, []string) {
	args := []string{
		"-m", m.Checkpoint,
		"--host", host,
		"--port", fmt.Sprint(port),
	}
	return e.bin, args
}

func (e *whisper) ReadyPath() string { return "/health" }
