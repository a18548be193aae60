package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nulzo/llm-proxy/internal/store"
	"github.com/nulzo/llm-proxy/internal/store/cache"
	"github.com/nulzo/llm-proxy/internal/store/model"
	"go.uber.org/zap"
)

const (
	DefaultDays     = 7
	MaxDays         = 365
	DefaultCacheTTL = 30 * time.Second
)

type Service interface {
	GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error)
	GetRecord(ctx context.Context, id string) (*model.UsageRecord, error)
	GetRecent(ctx context.Context, userID int64, limit int) ([]model.UsageRecord, error)
}

type service struct {
	logger *zap.Logger
	repo   store.Repository
	cache  cache.CacheService
	ttl    time.Duration
}

// NewService returns the read side of the usage log. c may be nil, in which
// case overviews are always read from the store.
func NewService(logger *zap.Logger, repo store.Repository, c cache.CacheService, ttl time.Duration) Service {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &service{
		logger: logger,
		repo:   repo,
		cache:  c,
		ttl:    ttl,
	}
}

func (s *service) GetUsageOverview(ctx context.Context, days int) ([]model.DailyStats, error) {
	if days <= 0 {
		days = DefaultDays
	}
	if days > MaxDays {
		days = MaxDays
	}

	key := fmt.Sprintf("usage:overview:%d", days)

	if s.cache != nil {
		var cached []model.DailyStats
		err := s.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("Usage overview cache read failed", zap.Error(err))
		}
	}

	stats, err := s.repo.Usage().GetDailyStats(ctx, days)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []model.DailyStats{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, stats, s.ttl); err != nil {
			s.logger.Warn("Usage overview cache write failed", zap.Error(err))
		}
	}

	return stats, nil
}

func (s *service) GetRecord(ctx context.Context, id string) (*model.UsageRecord, error) {
	return s.repo.Usage().GetByID(ctx, id)
}

func (s *service) GetRecent(ctx context.Context, userID int64, limit int) ([]model.UsageRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	records, err := s.repo.Usage().GetRecent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []model.UsageRecord{}
	}
	return records, nil
}
