package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"clinicsync/crm"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var ErrBatchWriteFailed = errors.New("batch write failed")

// Writer persists rows of one table.
type Writer interface {
	InsertBatch(ctx context.Context, table string, rows []crm.Columns) error
	UpdateOne(ctx context.Context, table string, id int64, fields crm.Columns) error
}

// UpdateBatcher is implemented by writers that can apply a whole update batch
// atomically. Executors prefer it over row-by-row UpdateOne calls.
type UpdateBatcher interface {
	UpdateBatch(ctx context.Context, table string, updates []Update) error
}

// Update is a sparse overlay for one stored record.
type Update struct {
	ID     int64
	Fields crm.Columns
}

type Phase string

const (
	PhaseInsert Phase = "insert"
	PhaseUpdate Phase = "update"
)

// Progress is a snapshot of rows processed so far. Done never decreases
// within a run.
type Progress struct {
	Phase Phase `json:"phase"`
	Done  int   `json:"done"`
	Total int   `json:"total"`
}

type Failure struct {
	Phase Phase `json:"phase"`
	Batch int   `json:"batch"`
	Rows  int   `json:"rows"`
	Err   error `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s batch %d (%d rows): %v", f.Phase, f.Batch, f.Rows, f.Err)
}

// Stats counts the outcome of an import. New and Updated start optimistic and
// are corrected as batches fail.
type Stats struct {
	Total        int       `json:"total"`
	New          int       `json:"new"`
	Updated      int       `json:"updated"`
	Skipped      int       `json:"skipped"`
	Duplicates   int       `json:"duplicates"`
	Errors       int       `json:"errors"`
	NotAttempted int       `json:"notAttempted"`
	Failures     []Failure `json:"failures,omitempty"`
}

type Options struct {
	InsertBatchSize  int
	UpdateBatchSize  int
	UpdateWorkers    int
	BatchTimeout     time.Duration
	ProgressInterval time.Duration
	Logger           *logrus.Entry
}

type Executor struct {
	writer  Writer
	options Options
	log     *logrus.Entry
}

func NewExecutor(writer Writer, options Options) *Executor {
	if options.InsertBatchSize <= 0 {
		options.InsertBatchSize = 500
	}
	if options.UpdateBatchSize <= 0 {
		options.UpdateBatchSize = 50
	}
	if options.UpdateWorkers <= 0 {
		options.UpdateWorkers = 1
	}
	log := options.Logger
	if log == nil {
		log = logrusNop()
	}
	return &Executor{writer: writer, options: options, log: log}
}

// Execute writes inserts in sequential batches, then updates in batches on a
// bounded worker pool. A failed batch moves its rows from the optimistic
// counter to Errors and the run continues. Once ctx is cancelled no further
// batch is scheduled; batches already running finish.
func (e *Executor) Execute(ctx context.Context, table string, inserts []crm.Columns, updates []Update, onProgress func(Progress)) Stats {
	stats := Stats{
		Total:   len(inserts) + len(updates),
		New:     len(inserts),
		Updated: len(updates),
	}
	progress := newReporter(onProgress, e.options.ProgressInterval, stats.Total)

	e.runInserts(ctx, table, inserts, &stats, progress)
	e.runUpdates(ctx, table, updates, &stats, progress)

	progress.flush()
	e.log.WithFields(logrus.Fields{
		"table":         table,
		"new":           stats.New,
		"updated":       stats.Updated,
		"errors":        stats.Errors,
		"not_attempted": stats.NotAttempted,
	}).Info("batch execution finished")
	return stats
}

func (e *Executor) runInserts(ctx context.Context, table string, inserts []crm.Columns, stats *Stats, progress *reporter) {
	size := e.options.InsertBatchSize
	for start, number := 0, 1; start < len(inserts); start, number = start+size, number+1 {
		end := min(start+size, len(inserts))
		if ctx.Err() != nil {
			remaining := len(inserts) - start
			stats.New -= remaining
			stats.NotAttempted += remaining
			e.log.WithField("rows", remaining).Warn("import cancelled, remaining insert batches skipped")
			return
		}

		rows := inserts[start:end]
		err := e.withTimeout(ctx, func(batchCtx context.Context) error {
			return e.writer.InsertBatch(batchCtx, table, rows)
		})
		if err != nil {
			stats.New -= len(rows)
			stats.Errors += len(rows)
			stats.Failures = append(stats.Failures, Failure{
				Phase: PhaseInsert,
				Batch: number,
				Rows:  len(rows),
				Err:   fmt.Errorf("%w: %w", ErrBatchWriteFailed, err),
			})
			e.log.WithError(err).WithFields(logrus.Fields{"batch": number, "rows": len(rows)}).Error("insert batch failed")
		}
		progress.add(PhaseInsert, len(rows))
	}
}

func (e *Executor) runUpdates(ctx context.Context, table string, updates []Update, stats *Stats, progress *reporter) {
	var (
		group errgroup.Group
		mu    sync.Mutex
	)
	group.SetLimit(e.options.UpdateWorkers)

	size := e.options.UpdateBatchSize
	for start, number := 0, 1; start < len(updates); start, number = start+size, number+1 {
		end := min(start+size, len(updates))
		if ctx.Err() != nil {
			remaining := len(updates) - start
			mu.Lock()
			stats.Updated -= remaining
			stats.NotAttempted += remaining
			mu.Unlock()
			e.log.WithField("rows", remaining).Warn("import cancelled, remaining update batches skipped")
			break
		}

		rows := updates[start:end]
		batchNumber := number
		group.Go(func() error {
			err := e.withTimeout(ctx, func(batchCtx context.Context) error {
				return e.applyUpdates(batchCtx, table, rows)
			})
			if err != nil {
				mu.Lock()
				stats.Updated -= len(rows)
				stats.Errors += len(rows)
				stats.Failures = append(stats.Failures, Failure{
					Phase: PhaseUpdate,
					Batch: batchNumber,
					Rows:  len(rows),
					Err:   fmt.Errorf("%w: %w", ErrBatchWriteFailed, err),
				})
				mu.Unlock()
				e.log.WithError(err).WithFields(logrus.Fields{"batch": batchNumber, "rows": len(rows)}).Error("update batch failed")
			}
			progress.add(PhaseUpdate, len(rows))
			return nil
		})
	}

	_ = group.Wait()
}

func (e *Executor) applyUpdates(ctx context.Context, table string, rows []Update) error {
	if batcher, ok := e.writer.(UpdateBatcher); ok {
		return batcher.UpdateBatch(ctx, table, rows)
	}
	for _, row := range rows {
		if err := e.writer.UpdateOne(ctx, table, row.ID, row.Fields); err != nil {
			return fmt.Errorf("update id %d: %w", row.ID, err)
		}
	}
	return nil
}

// withTimeout runs fn detached from ctx cancellation, bounded by the batch
// timeout. A timed out batch is reported like any other failure.
func (e *Executor) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	batchCtx := context.WithoutCancel(ctx)
	if e.options.BatchTimeout > 0 {
		var cancel context.CancelFunc
		batchCtx, cancel = context.WithTimeout(batchCtx, e.options.BatchTimeout)
		defer cancel()
	}
	return fn(batchCtx)
}

// reporter throttles progress callbacks to one per interval. The last
// update is always delivered by flush.
type reporter struct {
	mu       sync.Mutex
	fn       func(Progress)
	interval time.Duration
	total    int
	done     int
	phase    Phase
	sent     int
	lastSent time.Time
	now      func() time.Time
}

func newReporter(fn func(Progress), interval time.Duration, total int) *reporter {
	return &reporter{fn: fn, interval: interval, total: total, sent: -1, now: time.Now}
}

func (r *reporter) add(phase Phase, rows int) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done += rows
	r.phase = phase
	if r.done < r.total && r.interval > 0 && r.now().Sub(r.lastSent) < r.interval {
		return
	}
	r.emit()
}

func (r *reporter) flush() {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent != r.done {
		r.emit()
	}
}

func (r *reporter) emit() {
	r.sent = r.done
	r.lastSent = r.now()
	r.fn(Progress{Phase: r.phase, Done: r.done, Total: r.total})
}

func logrusNop() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(l)
}
