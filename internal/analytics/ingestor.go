package analytics

import (
	"context"
	"sync"
	"time"

	"github.com/nulzo/llm-proxy/internal/metrics"
	"github.com/nulzo/llm-proxy/internal/store"
	"github.com/nulzo/llm-proxy/internal/store/model"
	"go.uber.org/zap"
)

// Ingestor handles the asynchronous persistence of usage records.
type Ingestor interface {
	Log(rec *model.UsageRecord)
	Start(ctx context.Context)
	Stop()
}

type IngestorConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
}

func DefaultIngestorConfig() IngestorConfig {
	return IngestorConfig{
		BufferSize:    10000,
		BatchSize:     50,
		FlushInterval: 5 * time.Second,
	}
}

type ingestor struct {
	logger    *zap.Logger
	repo      store.Repository
	recChan   chan *model.UsageRecord
	batchSize int
	flushTime time.Duration

	// mu guards stopped against the close of recChan
	mu       sync.RWMutex
	stopped  bool
	done     chan struct{}
}

func NewIngestor(logger *zap.Logger, repo store.Repository, cfg IngestorConfig) Ingestor {
	def := DefaultIngestorConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}

	return &ingestor{
		logger:    logger,
		repo:      repo,
		recChan:   make(chan *model.UsageRecord, cfg.BufferSize),
		batchSize: cfg.BatchSize,
		flushTime: cfg.FlushInterval,
		done:      make(chan struct{}),
	}
}

// Log never blocks. When the buffer is full, or the ingestor has been
// stopped, the record is dropped.
func (i *ingestor) Log(rec *model.UsageRecord) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.stopped {
		metrics.UsageDropped.Inc()
		i.logger.Warn("Usage ingestor stopped, dropping record",
			zap.String("request_id", rec.RequestID),
			zap.String("model", rec.Model),
		)
		return
	}

	select {
	case i.recChan <- rec:
	default:
		metrics.UsageDropped.Inc()
		i.logger.Warn("Usage buffer full, dropping record",
			zap.String("request_id", rec.RequestID),
			zap.String("model", rec.Model),
		)
	}
}

func (i *ingestor) Start(ctx context.Context) {
	go i.worker(ctx)
}

// Stop drains pending records and waits for the final flush. It must follow
// Start. Records logged afterwards are dropped.
func (i *ingestor) Stop() {
	i.mu.Lock()
	if !i.stopped {
		i.stopped = true
		close(i.recChan)
	}
	i.mu.Unlock()
	<-i.done
}

func (i *ingestor) worker(ctx context.Context) {
	defer close(i.done)

	batch := make([]*model.UsageRecord, 0, i.batchSize)
	ticker := time.NewTicker(i.flushTime)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}

		err := i.repo.WithTx(context.Background(), func(repo store.Repository) error {
			for _, rec := range batch {
				if err := repo.Usage().Log(context.Background(), rec); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			i.logger.Error("Failed to persist usage batch", zap.Int("records", len(batch)), zap.Error(err))
		} else {
			metrics.UsagePersisted.Add(float64(len(batch)))
			for _, rec := range batch {
				i.logger.Info("Usage logged",
					zap.Int64p("user_id", rec.UserID),
					zap.Int64p("chat_id", rec.ChatID),
					zap.String("provider", rec.Provider),
					zap.String("model", rec.Model),
					zap.Int("total_tokens", rec.TotalTokens),
					zap.String("cost", rec.Cost.String()),
				)
			}
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-i.recChan:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= i.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			flush()
			return
		}
	}
}
