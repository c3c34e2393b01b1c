package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"reddata/warehouse/config"
	"reddata/warehouse/internal/models"
	"reddata/warehouse/internal/queue"
)

type MockUpserter struct {
	mock.Mock
}

func (m *MockUpserter) UpsertListingBatch(ctx context.Context, batch []*models.Listing) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.BatchProcessing.MaxBatchSize = 10
	cfg.BatchProcessing.ProcessorCount = 1
	cfg.BatchProcessing.MaxRetries = 2
	cfg.BatchProcessing.RetryDelay = 0
	return cfg
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testBatch(n int) []*models.Listing {
	url := "https://example.com/expose/1"
	batch := make([]*models.Listing, n)
	for i := range batch {
		batch[i] = &models.Listing{InternalID: "listing", URL: &url, GeocodingStatus: models.GeocodingPending}
	}
	return batch
}

func TestBatchProcessor_ProcessesQueuedBatch(t *testing.T) {
	upserter := new(MockUpserter)
	upserter.On("UpsertListingBatch", mock.Anything, mock.Anything).Return(nil).Once()

	q := queue.NewListingQueue(4, testLogger())
	p := NewBatchProcessor(upserter, q, testConfig(), testLogger())
	p.Start()

	require.NoError(t, q.Push(testBatch(3)))
	q.Close()
	p.Wait()

	upserter.AssertExpectations(t)
}

func TestBatchProcessor_RetriesFailedBatch(t *testing.T) {
	upserter := new(MockUpserter)
	upserter.On("UpsertListingBatch", mock.Anything, mock.Anything).
		Return(errors.New("deadlock detected")).Once()
	upserter.On("UpsertListingBatch", mock.Anything, mock.Anything).
		Return(nil).Once()

	q := queue.NewListingQueue(4, testLogger())
	p := NewBatchProcessor(upserter, q, testConfig(), testLogger())
	p.Start()

	require.NoError(t, q.Push(testBatch(1)))
	q.Close()
	p.Wait()

	upserter.AssertExpectations(t)
}

func TestBatchProcessor_GivesUpAfterMaxRetries(t *testing.T) {
	upserter := new(MockUpserter)
	// Initial attempt plus MaxRetries retries.
	upserter.On("UpsertListingBatch", mock.Anything, mock.Anything).
		Return(errors.New("connection refused")).Times(3)

	q := queue.NewListingQueue(4, testLogger())
	p := NewBatchProcessor(upserter, q, testConfig(), testLogger())
	p.Start()

	require.NoError(t, q.Push(testBatch(1)))
	q.Close()
	p.Wait()

	upserter.AssertExpectations(t)
}

func TestBatchProcessor_StopCancelsIdleWorkers(t *testing.T) {
	upserter := new(MockUpserter)

	q := queue.NewListingQueue(4, testLogger())
	p := NewBatchProcessor(upserter, q, testConfig(), testLogger())
	p.Start()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	upserter.AssertNotCalled(t, "UpsertListingBatch", mock.Anything, mock.Anything)
}

func TestBatchProcessor_MultipleWorkersDrainQueue(t *testing.T) {
	upserter := new(MockUpserter)
	upserter.On("UpsertListingBatch", mock.Anything, mock.Anything).Return(nil).Times(4)

	cfg := testConfig()
	cfg.BatchProcessing.ProcessorCount = 3

	q := queue.NewListingQueue(8, testLogger())
	p := NewBatchProcessor(upserter, q, cfg, testLogger())
	p.Start()

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Push(testBatch(2)))
	}
	q.Close()
	p.Wait()

	upserter.AssertExpectations(t)
	assert.Equal(t, 0, q.Len())
}
