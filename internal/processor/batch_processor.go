package processor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/AniJ15/timbr/config"
	"github.com/AniJ15/timbr/internal/models"
)

// Committer applies one refresh cycle's properties atomically
type Committer interface {
	CommitRefresh(ctx context.Context, properties []models.Property, refreshedAt time.Time) error
}

// BatchProcessor writes refresh batches through to the cache store. Writes
// run detached from the caller's context so they finish even when the caller
// stops waiting.
type BatchProcessor struct {
	store      Committer
	logger     *logrus.Logger
	maxRetries int
	retryDelay time.Duration
	waitGroup  sync.WaitGroup
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(store Committer, cfg *config.Config, logger *logrus.Logger) *BatchProcessor {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	p := &BatchProcessor{store: store, logger: logger}
	if cfg != nil {
		p.maxRetries = cfg.BatchProcessing.MaxRetries
		p.retryDelay = cfg.BatchProcessing.RetryDelay
	}
	if p.maxRetries < 0 {
		p.maxRetries = 0
	}
	return p
}

// Commit writes the batch and waits for the outcome. If ctx ends first,
// Commit returns ctx.Err() while the write keeps going in the background.
func (p *BatchProcessor) Commit(ctx context.Context, batch []models.Property, refreshedAt time.Time) error {
	done := make(chan error, 1)
	writeCtx := context.WithoutCancel(ctx)

	p.waitGroup.Add(1)
	go func() {
		defer p.waitGroup.Done()
		done <- p.processBatch(writeCtx, batch, refreshedAt)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.logger.WithField("batch_size", len(batch)).Warn("Caller stopped waiting, cache write continues in background")
		return ctx.Err()
	}
}

// Stop waits for in-flight writes to finish
func (p *BatchProcessor) Stop() {
	p.waitGroup.Wait()
}

// processBatch handles a single batch of properties with retry logic
func (p *BatchProcessor) processBatch(ctx context.Context, batch []models.Property, refreshedAt time.Time) error {
	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying cache write, attempt %d of %d", attempt, p.maxRetries)
			time.Sleep(p.retryDelay)
		}

		err = p.store.CommitRefresh(ctx, batch, refreshedAt)
		if err == nil {
			p.logger.Infof("Successfully wrote batch of %d properties", len(batch))
			return nil
		}

		p.logger.WithError(err).WithFields(logrus.Fields{
			"attempt":    attempt + 1,
			"batch_size": len(batch),
		}).Error("Cache write failed")
	}

	return fmt.Errorf("failed to write batch after %d attempts: %w", p.maxRetries+1, err)
}
