package api

import (
	"github.com/shopspring/decimal"
)

type ChatResponse struct {
	ID        string          `json:"id"`
	Object    string          `json:"object"`
	Created   int64           `json:"created"`
	Model     string          `json:"model"`
	Provider  Provider        `json:"provider"`
	Choices   []Choice        `json:"choices"`
	Usage     Usage           `json:"usage"`
	Cost      decimal.Decimal `json:"cost"`
	RequestID string          `json:"request_id"`
}

type Choice struct {
	Index        int          `json:"index"`
	Message      *ChatMessage `json:"message,omitempty"`
	FinishReason string       `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

func NewUsage(prompt, completion int) Usage {
	return Usage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// StreamChunk is one raw provider-formatted event payload. Data is forwarded
// to the client verbatim as "data: <Data>\n\n".
type StreamChunk struct {
	Data []byte
	Err  error
}

// DoneChunk terminates every stream handed to a client.
var DoneChunk = StreamChunk{Data: []byte("[DONE]")}

// IsDone reports whether c is the terminal sentinel.
func (c StreamChunk) IsDone() bool {
	return c.Err == nil && string(c.Data) == "[DONE]"
}

type TokenCountResponse struct {
	Text       string `json:"text"`
	Model      string `json:"model"`
	Tokens     int    `json:"tokens"`
	Characters int    `json:"characters"`
	Method     string `json:"method"`
}

type CostEstimateResponse struct {
	Model        string          `json:"model"`
	InputTokens  int             `json:"input_tokens"`
	OutputTokens int             `json:"output_tokens"`
	TotalTokens  int             `json:"total_tokens"`
	InputCost    decimal.Decimal `json:"input_cost"`
	OutputCost   decimal.Decimal `json:"output_cost"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Currency     string          `json:"currency"`
}

type HealthResponse struct {
	Status             string     `json:"status"`
	Service            string     `json:"service"`
	Version            string     `json:"version"`
	SupportedProviders []Provider `json:"supported_providers"`
}

type IndexResponse struct {
	Message   string     `json:"message"`
	Providers []Provider `json:"providers"`
	Models    []string   `json:"models"`
}

type ModelList struct {
	Models []ModelDescriptor `json:"models"`
}
