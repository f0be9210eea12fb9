package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the service.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr        string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir   string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CatalogPath string `json:"catalog" yaml:"catalog" toml:"catalog"`

	// MaxLoadedModels holds the raw --max-loaded-models values; see
	// ParseMaxLoadedModels for the accepted shapes.
	MaxLoadedModels []int `json:"max_loaded_models" yaml:"max_loaded_models" toml:"max_loaded_models"`

	CtxSize         int      `json:"ctx_size" yaml:"ctx_size" toml:"ctx_size"`
	LlamaBin        string   `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamacppBackend string   `json:"llamacpp_backend" yaml:"llamacpp_backend" toml:"llamacpp_backend"`
	LlamacppArgs    []string `json:"llamacpp_args" yaml:"llamacpp_args" toml:"llamacpp_args"`
	FLMBin          string   `json:"flm_bin" yaml:"flm_bin" toml:"flm_bin"`
	OGABin          string   `json:"oga_bin" yaml:"oga_bin" toml:"oga_bin"`
	WhisperBin      string   `json:"whisper_bin" yaml:"whisper_bin" toml:"whisper_bin"`
	PortStart       int      `json:"port_start" yaml:"port_start" toml:"port_start"`
	PortEnd         int      `json:"port_end" yaml:"port_end" toml:"port_end"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// MaxSlots is the per-type instance capacity resolved from
// --max-loaded-models.
type MaxSlots struct {
	LLMs       int
	Embeddings int
	Rerankings int
	Audio      int
}

// DefaultMaxSlots returns one slot per type.
func DefaultMaxSlots() MaxSlots {
	return MaxSlots{LLMs: 1, Embeddings: 1, Rerankings: 1, Audio: 1}
}

// ParseMaxLoadedModels resolves the --max-loaded-models values into
// per-type capacities. Accepted shapes:
//
//	1 value:  LLM capacity only; embedding/reranking/audio stay at 1.
//	3 values: LLM, embedding, reranking; audio stays at 1.
//	4 values: LLM, embedding, reranking, audio.
//
// Exactly 2 values is rejected. All values must be positive.
func ParseMaxLoadedModels(vals []int) (MaxSlots, error) {
	slots := DefaultMaxSlots()
	switch len(vals) {
	case 0:
		return slots, nil
	case 1:
		slots.LLMs = vals[0]
	case 3:
		slots.LLMs, slots.Embeddings, slots.Rerankings = vals[0], vals[1], vals[2]
	case 4:
		slots.LLMs, slots.Embeddings, slots.Rerankings, slots.Audio = vals[0], vals[1], vals[2], vals[3]
	default:
		return MaxSlots{}, fmt.Errorf("--max-loaded-models accepts 1, 3 or 4 values, got %d", len(vals))
	}
	for _, v := range vals {
		if v <= 0 {
			return MaxSlots{}, fmt.Errorf("--max-loaded-models values must be positive, got %d", v)
		}
	}
	return slots, nil
}

// SplitMaxLoadedModels parses the space- or comma-separated flag string
// into integers, e.g. "2 1 1" or "2,1,1".
func SplitMaxLoadedModels(s string) ([]int, error) {
	fields := strings.FieldsFunc(s, func(r rune) bool { return r == ' ' || r == ',' })
	out := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("--max-loaded-models: %q is not an integer", f)
		}
		out = append(out, n)
	}
	return out, nil
}

// Merge overlays non-zero fields of b onto a and returns the result.
// Used so flag values win over config-file values.
func Merge(a, b Config) Config {
	if b.Addr != "" {
		a.Addr = b.Addr
	}
	if b.ModelsDir != "" {
		a.ModelsDir = b.ModelsDir
	}
	if b.CatalogPath != "" {
		a.CatalogPath = b.CatalogPath
	}
	if len(b.MaxLoadedModels) > 0 {
		a.MaxLoadedModels = b.MaxLoadedModels
	}
	if b.CtxSize > 0 {
		a.CtxSize = b.CtxSize
	}
	if b.LlamaBin != "" {
		a.LlamaBin = b.LlamaBin
	}
	if b.LlamacppBackend != "" {
		a.LlamacppBackend = b.LlamacppBackend
	}
	if len(b.LlamacppArgs) > 0 {
		a.LlamacppArgs = b.LlamacppArgs
	}
	if b.FLMBin != "" {
		a.FLMBin = b.FLMBin
	}
	if b.OGABin != "" {
		a.OGABin = b.OGABin
	}
	if b.WhisperBin != "" {
		a.WhisperBin = b.WhisperBin
	}
	if b.PortStart > 0 {
		a.PortStart = b.PortStart
	}
	if b.PortEnd > 0 {
		a.PortEnd = b.PortEnd
	}
	if b.LogLevel != "" {
		a.LogLevel = b.LogLevel
	}
	return a
}
