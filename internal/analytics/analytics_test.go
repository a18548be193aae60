package analytics

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nulzo/llm-proxy/internal/store"
	"github.com/nulzo/llm-proxy/internal/store/cache/memory"
	"github.com/nulzo/llm-proxy/internal/store/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeRepo struct {
	mu       sync.Mutex
	records  []*model.UsageRecord
	txCount  int
	failTx   error
	stats    []model.DailyStats
	statHits int
}

func (f *fakeRepo) Usage() store.UsageRepository { return (*fakeUsage)(f) }
func (f *fakeRepo) Close() error                 { return nil }

func (f *fakeRepo) WithTx(ctx context.Context, fn func(store.Repository) error) error {
	f.mu.Lock()
	f.txCount++
	fail := f.failTx
	f.mu.Unlock()
	if fail != nil {
		return fail
	}
	return fn(f)
}

func (f *fakeRepo) saved() []*model.UsageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*model.UsageRecord(nil), f.records...)
}

type fakeUsage fakeRepo

func (u *fakeUsage) Log(_ context.Context, rec *model.UsageRecord) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.records = append(u.records, rec)
	return nil
}

func (u *fakeUsage) GetByID(_ context.Context, id string) (*model.UsageRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, r := range u.records {
		if r.ID == id {
			return r, nil
		}
	}
	return nil, store.ErrNotFound
}

func (u *fakeUsage) GetRecent(_ context.Context, _ int64, limit int) ([]model.UsageRecord, error) {
	return nil, nil
}

func (u *fakeUsage) GetDailyStats(_ context.Context, _ int) ([]model.DailyStats, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.statHits++
	return u.stats, nil
}

func record(id string) *model.UsageRecord {
	return &model.UsageRecord{
		ID:          id,
		RequestID:   "req-" + id,
		Provider:    "openai",
		Model:       "gpt-3.5-turbo",
		TotalTokens: 7,
		Cost:        decimal.RequireFromString("0.0000115"),
	}
}

func TestIngestor_FlushesOnBatchSizeInOneTransaction(t *testing.T) {
	repo := &fakeRepo{}
	core, logs := observer.New(zap.InfoLevel)
	ing := NewIngestor(zap.New(core), repo, IngestorConfig{BufferSize: 10, BatchSize: 3, FlushInterval: time.Hour})
	ing.Start(context.Background())

	for _, id := range []string{"a", "b", "c"} {
		ing.Log(record(id))
	}

	require.Eventually(t, func() bool { return len(repo.saved()) == 3 }, time.Second, 5*time.Millisecond)
	ing.Stop()

	assert.Equal(t, 1, repo.txCount)
	assert.Equal(t, 3, logs.FilterMessage("Usage logged").Len())
}

func TestIngestor_StopDrainsPending(t *testing.T) {
	repo := &fakeRepo{}
	ing := NewIngestor(zap.NewNop(), repo, IngestorConfig{BufferSize: 10, BatchSize: 50, FlushInterval: time.Hour})
	ing.Start(context.Background())

	ing.Log(record("a"))
	ing.Log(record("b"))
	ing.Stop()

	assert.Len(t, repo.saved(), 2)
}

func TestIngestor_LogAfterStopIsDropped(t *testing.T) {
	repo := &fakeRepo{}
	core, logs := observer.New(zap.WarnLevel)
	ing := NewIngestor(zap.New(core), repo, IngestorConfig{BufferSize: 10, BatchSize: 50, FlushInterval: time.Hour})
	ing.Start(context.Background())

	ing.Log(record("a"))
	ing.Stop()

	// a handler that outlived server shutdown
	assert.NotPanics(t, func() { ing.Log(record("late")) })
	assert.NotPanics(t, ing.Stop)

	assert.Len(t, repo.saved(), 1)
	assert.Equal(t, 1, logs.FilterMessage("Usage ingestor stopped, dropping record").Len())
}

func TestIngestor_FlushesOnTicker(t *testing.T) {
	repo := &fakeRepo{}
	ing := NewIngestor(zap.NewNop(), repo, IngestorConfig{BufferSize: 10, BatchSize: 50, FlushInterval: 10 * time.Millisecond})
	ing.Start(context.Background())
	defer ing.Stop()

	ing.Log(record("a"))

	require.Eventually(t, func() bool { return len(repo.saved()) == 1 }, time.Second, 5*time.Millisecond)
}

func TestIngestor_LogNeverBlocksWhenFull(t *testing.T) {
	repo := &fakeRepo{}
	core, logs := observer.New(zap.WarnLevel)
	// not started, so nothing drains the buffer
	ing := NewIngestor(zap.New(core), repo, IngestorConfig{BufferSize: 1, BatchSize: 1, FlushInterval: time.Hour})

	done := make(chan struct{})
	go func() {
		ing.Log(record("a"))
		ing.Log(record("b"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Log blocked on a full buffer")
	}
	assert.Equal(t, 1, logs.FilterMessage("Usage buffer full, dropping record").Len())
}

func TestIngestor_PersistFailureIsSwallowed(t *testing.T) {
	repo := &fakeRepo{failTx: errors.New("disk full")}
	core, logs := observer.New(zap.ErrorLevel)
	ing := NewIngestor(zap.New(core), repo, IngestorConfig{BufferSize: 10, BatchSize: 1, FlushInterval: time.Hour})
	ing.Start(context.Background())

	ing.Log(record("a"))
	ing.Stop()

	assert.Empty(t, repo.saved())
	assert.Equal(t, 1, logs.FilterMessage("Failed to persist usage batch").Len())
}

func TestService_OverviewIsCached(t *testing.T) {
	repo := &fakeRepo{stats: []model.DailyStats{{
		Date:          "2024-01-01",
		TotalRequests: 2,
		TotalTokens:   14,
		TotalCost:     decimal.RequireFromString("0.000023"),
	}}}
	svc := NewService(zap.NewNop(), repo, memory.New(), time.Minute)

	first, err := svc.GetUsageOverview(context.Background(), 7)
	require.NoError(t, err)
	second, err := svc.GetUsageOverview(context.Background(), 7)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.statHits)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].TotalTokens, second[0].TotalTokens)
	assert.True(t, first[0].TotalCost.Equal(second[0].TotalCost))
}

func TestService_OverviewWithoutCache(t *testing.T) {
	repo := &fakeRepo{}
	svc := NewService(zap.NewNop(), repo, nil, 0)

	stats, err := svc.GetUsageOverview(context.Background(), 0)
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)
}

func TestService_GetRecord(t *testing.T) {
	repo := &fakeRepo{}
	repo.records = []*model.UsageRecord{record("a")}
	svc := NewService(zap.NewNop(), repo, nil, 0)

	rec, err := svc.GetRecord(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "req-a", rec.RequestID)

	_, err = svc.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
