package store

import (
	"context"
	"errors"

	"github.com/nulzo/llm-proxy/internal/store/model"
)

var ErrNotFound = errors.New("record not found")

// Repository is the main contract for the data layer.
type Repository interface {
	Usage() UsageRepository

	// transaction support
	WithTx(ctx context.Context, fn func(repo Repository) error) error

	Close() error
}

type UsageRepository interface {
	// Log stores a completed request's usage.
	Log(ctx context.Context, rec *model.UsageRecord) error
	// GetByID returns a single record, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*model.UsageRecord, error)
	// GetRecent returns the last N records for a user.
	GetRecent(ctx context.Context, userID int64, limit int) ([]model.UsageRecord, error)
	// GetDailyStats returns aggregated stats grouped by day.
	GetDailyStats(ctx context.Context, days int) ([]model.DailyStats, error)
}
