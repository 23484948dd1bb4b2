package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"clinicsync/crm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu           sync.Mutex
	insertCalls  int
	failInsertOn map[int]bool
	inserted     []crm.Columns
	updated      map[int64]crm.Columns
	failUpdateID int64
	block        chan struct{}
}

func (w *fakeWriter) InsertBatch(_ context.Context, _ string, rows []crm.Columns) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.insertCalls++
	if w.failInsertOn[w.insertCalls] {
		return errors.New("constraint violation")
	}
	w.inserted = append(w.inserted, rows...)
	return nil
}

func (w *fakeWriter) UpdateOne(ctx context.Context, _ string, id int64, fields crm.Columns) error {
	if w.block != nil {
		select {
		case <-w.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if id == w.failUpdateID {
		return errors.New("row locked")
	}
	if w.updated == nil {
		w.updated = make(map[int64]crm.Columns)
	}
	w.updated[id] = fields
	return nil
}

func insertRows(n int) []crm.Columns {
	rows := make([]crm.Columns, n)
	for i := range rows {
		rows[i] = crm.Columns{"name": i}
	}
	return rows
}

func updateRows(n int) []Update {
	rows := make([]Update, n)
	for i := range rows {
		rows[i] = Update{ID: int64(i + 1), Fields: crm.Columns{"name": i}}
	}
	return rows
}

func TestExecute_FailedInsertBatchIsIsolated(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{failInsertOn: map[int]bool{3: true}}
	executor := NewExecutor(writer, Options{InsertBatchSize: 10})

	stats := executor.Execute(context.Background(), "personas", insertRows(100), nil, nil)

	assert.Equal(t, 10, writer.insertCalls, "every batch must be attempted")
	assert.Len(t, writer.inserted, 90)
	assert.Equal(t, 90, stats.New)
	assert.Equal(t, 10, stats.Errors)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, 3, stats.Failures[0].Batch)
	assert.True(t, errors.Is(stats.Failures[0].Err, ErrBatchWriteFailed))
}

func TestExecute_ShortLastBatchCountsItsOwnSize(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{failInsertOn: map[int]bool{3: true}}
	executor := NewExecutor(writer, Options{InsertBatchSize: 4})

	stats := executor.Execute(context.Background(), "personas", insertRows(10), nil, nil)

	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 8, stats.New)
}

func TestExecute_FailedUpdateBatch(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{failUpdateID: 7}
	executor := NewExecutor(writer, Options{UpdateBatchSize: 5, UpdateWorkers: 3})

	stats := executor.Execute(context.Background(), "personas", nil, updateRows(20), nil)

	assert.Equal(t, 15, stats.Updated)
	assert.Equal(t, 5, stats.Errors)
	require.Len(t, stats.Failures, 1)
	assert.Equal(t, PhaseUpdate, stats.Failures[0].Phase)
	assert.Equal(t, 2, stats.Failures[0].Batch)
}

func TestExecute_ProgressIsMonotonicAndEndsAtTotal(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		updates []Progress
	)
	executor := NewExecutor(&fakeWriter{}, Options{InsertBatchSize: 3, UpdateBatchSize: 2, UpdateWorkers: 4})

	executor.Execute(context.Background(), "personas", insertRows(10), updateRows(9), func(p Progress) {
		mu.Lock()
		defer mu.Unlock()
		updates = append(updates, p)
	})

	require.NotEmpty(t, updates)
	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Done, updates[i-1].Done)
	}
	last := updates[len(updates)-1]
	assert.Equal(t, 19, last.Done)
	assert.Equal(t, 19, last.Total)
}

func TestReporter_ThrottlesButAlwaysFlushes(t *testing.T) {
	t.Parallel()

	var got []Progress
	r := newReporter(func(p Progress) { got = append(got, p) }, time.Hour, 100)
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return clock }

	r.add(PhaseInsert, 10)
	r.add(PhaseInsert, 10)
	r.add(PhaseInsert, 10)
	r.flush()

	require.Len(t, got, 2)
	assert.Equal(t, 10, got[0].Done)
	assert.Equal(t, 30, got[1].Done)
}

func TestExecute_CancelledRunSkipsRemainingBatches(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	writer := &fakeWriter{}
	stats := NewExecutor(writer, Options{InsertBatchSize: 5}).Execute(ctx, "personas", insertRows(12), updateRows(3), nil)

	assert.Equal(t, 0, writer.insertCalls)
	assert.Equal(t, 15, stats.NotAttempted)
	assert.Equal(t, 0, stats.New)
	assert.Equal(t, 0, stats.Updated)
	assert.Equal(t, 0, stats.Errors)
}

func TestExecute_TimedOutBatchCountsAsFailure(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{block: make(chan struct{})}
	executor := NewExecutor(writer, Options{UpdateBatchSize: 2, BatchTimeout: 20 * time.Millisecond})

	stats := executor.Execute(context.Background(), "personas", nil, updateRows(2), nil)

	assert.Equal(t, 2, stats.Errors)
	assert.Equal(t, 0, stats.Updated)
	require.Len(t, stats.Failures, 1)
	assert.True(t, errors.Is(stats.Failures[0].Err, context.DeadlineExceeded))
}
