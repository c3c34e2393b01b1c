package queue

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reddata/warehouse/internal/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func batch(ids ...string) []*models.Listing {
	out := make([]*models.Listing, len(ids))
	for i, id := range ids {
		out[i] = &models.Listing{InternalID: id}
	}
	return out
}

func TestListingQueue_PushAndDequeue(t *testing.T) {
	q := NewListingQueue(2, testLogger())

	require.NoError(t, q.Push(batch("a", "b")))
	assert.Equal(t, 1, q.Len())

	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Len(t, got, 2)
	assert.Equal(t, "a", got[0].InternalID)
}

func TestListingQueue_Full(t *testing.T) {
	q := NewListingQueue(1, testLogger())

	require.NoError(t, q.Push(batch("a")))
	assert.Equal(t, ErrQueueFull, q.Push(batch("b")))
}

func TestListingQueue_Closed(t *testing.T) {
	q := NewListingQueue(2, testLogger())
	require.NoError(t, q.Push(batch("a")))

	q.Close()
	assert.True(t, q.IsClosed())
	assert.Equal(t, ErrQueueClosed, q.Push(batch("b")))

	// Buffered batches drain after close, then Dequeue reports done.
	got, ok := q.Dequeue(context.Background())
	require.True(t, ok)
	assert.Equal(t, "a", got[0].InternalID)

	_, ok = q.Dequeue(context.Background())
	assert.False(t, ok)
}

func TestListingQueue_DequeueHonorsContext(t *testing.T) {
	q := NewListingQueue(1, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, ok := q.Dequeue(ctx)
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestListingQueue_CloseIsIdempotent(t *testing.T) {
	q := NewListingQueue(1, testLogger())
	q.Close()
	q.Close()
	assert.True(t, q.IsClosed())
}
