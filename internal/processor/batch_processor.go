package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"reddata/warehouse/config"
	"reddata/warehouse/internal/models"
	"reddata/warehouse/internal/queue"
)

// ListingUpserter persists one batch of listings transactionally.
type ListingUpserter interface {
	UpsertListingBatch(ctx context.Context, batch []*models.Listing) error
}

// BatchProcessor drains the listing queue and upserts batches with retry.
type BatchProcessor struct {
	upserter  ListingUpserter
	logger    *logrus.Logger
	config    *config.Config
	queue     *queue.ListingQueue
	waitGroup sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewBatchProcessor creates a new batch processor instance
func NewBatchProcessor(upserter ListingUpserter, q *queue.ListingQueue, cfg *config.Config, logger *logrus.Logger) *BatchProcessor {
	ctx, cancel := context.WithCancel(context.Background())
	return &BatchProcessor{
		upserter: upserter,
		queue:    q,
		config:   cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins processing batches from the queue
func (p *BatchProcessor) Start() {
	for i := 0; i < p.config.BatchProcessing.ProcessorCount; i++ {
		p.waitGroup.Add(1)
		go p.processLoop()
	}
}

// Stop gracefully shuts down the processor
func (p *BatchProcessor) Stop() {
	p.cancel()
	p.waitGroup.Wait()
}

// Wait blocks until every processor goroutine has drained the queue and
// exited; the producer must close the queue first.
func (p *BatchProcessor) Wait() {
	p.waitGroup.Wait()
}

func (p *BatchProcessor) processLoop() {
	defer p.waitGroup.Done()

	for {
		batch, ok := p.queue.Dequeue(p.ctx)
		if !ok {
			return
		}
		if err := p.processBatch(batch); err != nil {
			p.logger.WithError(err).Error("Failed to process batch")
		}
	}
}

// processBatch handles a single batch of listings with retry logic.
func (p *BatchProcessor) processBatch(batch []*models.Listing) error {
	var err error
	for attempt := 0; attempt <= p.config.BatchProcessing.MaxRetries; attempt++ {
		if attempt > 0 {
			p.logger.Infof("Retrying batch processing, attempt %d of %d", attempt, p.config.BatchProcessing.MaxRetries)
			time.Sleep(time.Duration(p.config.BatchProcessing.RetryDelay) * time.Second)
		}

		err = p.upserter.UpsertListingBatch(p.ctx, batch)
		if err == nil {
			p.logger.Infof("Successfully processed batch of %d listings", len(batch))
			return nil
		}

		p.logger.Errorf("Batch processing failed: %v", err)
	}

	return fmt.Errorf("failed to process batch after %d attempts: %w", p.config.BatchProcessing.MaxRetries, err)
}
