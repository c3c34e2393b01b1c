package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"reddata/warehouse/internal/models"
)

var (
	ErrQueueFull   = errors.New("queue is full")
	ErrQueueClosed = errors.New("queue is closed")
)

// ListingQueue buffers listing batches between the sync producer and the
// batch processors.
type ListingQueue struct {
	items  chan []*models.Listing
	mu     sync.RWMutex
	closed bool
	logger *logrus.Logger
}

// NewListingQueue creates a queue holding up to bufferSize batches.
func NewListingQueue(bufferSize int, logger *logrus.Logger) *ListingQueue {
	return &ListingQueue{
		items:  make(chan []*models.Listing, bufferSize),
		logger: logger,
	}
}

// Push enqueues a batch without blocking; a full queue is the producer's
// signal to slow down, not a reason to stall the sync loop.
func (q *ListingQueue) Push(batch []*models.Listing) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.items <- batch:
		q.logger.WithField("batch_size", len(batch)).Debug("Pushed batch to queue")
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a batch is available, the queue is drained and
// closed, or the context is done. The second return is false once no more
// batches will ever arrive.
func (q *ListingQueue) Dequeue(ctx context.Context) ([]*models.Listing, bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case batch, ok := <-q.items:
		if !ok {
			return nil, false
		}
		return batch, true
	}
}

// Close stops the queue. Buffered batches remain consumable until drained.
func (q *ListingQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

// Len returns the number of buffered batches.
func (q *ListingQueue) Len() int {
	return len(q.items)
}

// IsClosed reports whether the queue accepts new batches.
func (q *ListingQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
