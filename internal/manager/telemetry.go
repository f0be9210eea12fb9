package manager

import (
	"encoding/json"

	"inferd/pkg/types"
)

// backendStats is the subset of a llama-server style response carrying
// timing information. Both shapes appear in the wild: an OpenAI "usage"
// object and a llama.cpp "timings" block.
type backendStats struct {
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Timings *struct {
		PromptN            int     `json:"prompt_n"`
		PredictedN         int     `json:"predicted_n"`
		PromptMS           float64 `json:"prompt_ms"`
		PredictedMS        float64 `json:"predicted_ms"`
		PredictedPerSecond float64 `json:"predicted_per_second"`
	} `json:"timings"`
}

// telemetryFromJSON folds any usage/timings fields present in a backend
// response or stream chunk into base. Absent fields leave base values
// untouched, so stream chunks accumulate.
func telemetryFromJSON(b []byte, base types.Telemetry) types.Telemetry {
	var s backendStats
	if err := json.Unmarshal(b, &s); err != nil {
		return base
	}
	if s.Usage != nil {
		if s.Usage.PromptTokens > 0 {
			base.InputTokens = s.Usage.PromptTokens
		}
		if s.Usage.CompletionTokens > 0 {
			base.OutputTokens = s.Usage.CompletionTokens
		}
	}
	if s.Timings != nil {
		if s.Timings.PromptN > 0 {
			base.InputTokens = s.Timings.PromptN
		}
		if s.Timings.PredictedN > 0 {
			base.OutputTokens = s.Timings.PredictedN
		}
		if s.Timings.PromptMS > 0 {
			base.PrefillTime = s.Timings.PromptMS / 1000
		}
		if s.Timings.PredictedMS > 0 {
			base.DecodeTime = s.Timings.PredictedMS / 1000
		}
		if s.Timings.PredictedPerSecond > 0 {
			base.TokensPerSecond = s.Timings.PredictedPerSecond
		}
	}
	return base
}
