package llm

import (
	"context"
	"time"

	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/pkg/api"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Adapter translates canonical chat requests to one upstream's wire format.
// Credentials are passed per call; adapters hold no per-request state.
type Adapter interface {
	Provider() api.Provider
	Chat(ctx context.Context, req *api.ChatRequest, credential string) (*api.ChatResponse, error)
	Stream(ctx context.Context, req *api.ChatRequest, credential string) (<-chan api.StreamChunk, error)
}

// Accountant prices responses and counts tokens for providers that do not
// report usage.
type Accountant interface {
	Cost(model string, inputTokens, outputTokens int) decimal.Decimal
	LocalUsage(model string, messages []api.ChatMessage, completion string) api.Usage
}

// Endpoint is the per-provider upstream configuration.
type Endpoint struct {
	BaseURL string
	Headers map[string]string

	// SystemInstruction is honoured by the google adapter only.
	SystemInstruction bool
}

// Deps are shared by every adapter.
type Deps struct {
	Client     httpclient.HTTPClient
	Accountant Accountant
	Logger     *zap.Logger
	Now        func() time.Time
}

func (d Deps) WithDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (e Endpoint) BaseURLOr(fallback string) string {
	if e.BaseURL == "" {
		return fallback
	}
	return e.BaseURL
}
