package api

import "github.com/shopspring/decimal"

// ModelDescriptor is the static pricing and capability record for one model.
type ModelDescriptor struct {
	Name               string          `json:"name"`
	Provider           Provider        `json:"provider"`
	InputCostPerToken  decimal.Decimal `json:"input_cost_per_token"`
	OutputCostPerToken decimal.Decimal `json:"output_cost_per_token"`
	MaxOutputTokens    int             `json:"max_tokens"`
	ContextWindow      int             `json:"context_window"`
	SupportsStreaming  bool            `json:"supports_streaming"`
	SupportsFunctions  bool            `json:"supports_functions"`
}
