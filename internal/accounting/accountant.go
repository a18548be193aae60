package accounting

import (
	"strings"

	"github.com/nulzo/llm-proxy/pkg/api"
	"github.com/shopspring/decimal"
)

// Method names how a token count was obtained.
type Method string

const (
	// MethodTiktoken is an exact count from the model family's BPE tokenizer.
	MethodTiktoken Method = "tiktoken"
	// MethodFallback is the word-count heuristic. It is an approximation.
	MethodFallback Method = "fallback"
)

type TokenCount struct {
	Tokens int
	Method Method
}

// Resolver is the subset of the model registry the accountant needs.
type Resolver interface {
	Resolve(name string) (api.ModelDescriptor, error)
}

// Accountant counts tokens and prices requests.
type Accountant struct {
	models   Resolver
	encoders encoderCache
}

func New(models Resolver) *Accountant {
	useOfflineRanks()
	return &Accountant{models: models}
}

// Count tokenizes text with the model's BPE encoding when one is known and
// falls back to the word heuristic otherwise.
func (a *Accountant) Count(text, model string) TokenCount {
	if enc := a.encoders.get(model); enc != nil {
		if n, ok := encode(enc, text); ok {
			return TokenCount{Tokens: n, Method: MethodTiktoken}
		}
	}
	return TokenCount{Tokens: estimate(text), Method: MethodFallback}
}

func (a *Accountant) CountTokens(text, model string) int {
	return a.Count(text, model).Tokens
}

// Cost prices a request. Unknown models cost zero: the figure is advisory.
func (a *Accountant) Cost(model string, inputTokens, outputTokens int) decimal.Decimal {
	est, err := a.Estimate(model, inputTokens, outputTokens)
	if err != nil {
		return decimal.Zero
	}
	return est.TotalCost
}

type CostEstimate struct {
	Model        string
	InputTokens  int
	OutputTokens int
	InputCost    decimal.Decimal
	OutputCost   decimal.Decimal
	TotalCost    decimal.Decimal
}

// Estimate returns the per-side cost breakdown, failing for unknown models.
func (a *Accountant) Estimate(model string, inputTokens, outputTokens int) (CostEstimate, error) {
	d, err := a.models.Resolve(model)
	if err != nil {
		return CostEstimate{}, err
	}

	in := d.InputCostPerToken.Mul(decimal.NewFromInt(int64(inputTokens)))
	out := d.OutputCostPerToken.Mul(decimal.NewFromInt(int64(outputTokens)))

	return CostEstimate{
		Model:        model,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		InputCost:    in,
		OutputCost:   out,
		TotalCost:    in.Add(out),
	}, nil
}

// LocalUsage computes usage for providers that do not report it: the prompt
// is every message content joined with a space.
func (a *Accountant) LocalUsage(model string, messages []api.ChatMessage, completion string) api.Usage {
	parts := make([]string, 0, len(messages))
	for _, m := range messages {
		parts = append(parts, m.Content)
	}
	return api.NewUsage(
		a.CountTokens(strings.Join(parts, " "), model),
		a.CountTokens(completion, model),
	)
}
