package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// UsageRecord is one completed, non-streamed chat completion as reported by
// the dispatcher.
type UsageRecord struct {
	ID               string          `db:"id" json:"id"`
	RequestID        string          `db:"request_id" json:"request_id"`
	UserID           *int64          `db:"user_id" json:"user_id"`
	ChatID           *int64          `db:"chat_id" json:"chat_id"`
	Provider         string          `db:"provider" json:"provider"`
	Model            string          `db:"model" json:"model"`
	PromptTokens     int             `db:"prompt_tokens" json:"prompt_tokens"`
	CompletionTokens int             `db:"completion_tokens" json:"completion_tokens"`
	TotalTokens      int             `db:"total_tokens" json:"total_tokens"`
	Cost             decimal.Decimal `db:"cost" json:"cost"`
	FinishReason     string          `db:"finish_reason" json:"finish_reason"`
	LatencyMS        int64           `db:"latency_ms" json:"latency_ms"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
}

// DailyStats represents aggregated usage data for a specific day.
type DailyStats struct {
	Date           string          `db:"date" json:"date"`
	TotalRequests  int             `db:"total_requests" json:"total_requests"`
	TotalTokens    int             `db:"total_tokens" json:"total_tokens"`
	TotalCost      decimal.Decimal `db:"total_cost" json:"total_cost"`
	AverageLatency float64         `db:"avg_latency" json:"avg_latency"`
}
