package journal

import (
	"context"
	"sync"
	"time"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/resilience"
	"github.com/phoneixtaperlabs/shadow-screenshot/internal/trace"
)

// Batcher defaults
const (
	DefaultBatchSize  = 20
	DefaultFlushDelay = 2 * time.Second
)

// Inserter is the write side of a Journal.
type Inserter interface {
	Insert(ctx context.Context, records []Record) error
}

// Batcher accumulates records and writes them in batches, behind a circuit
// breaker and bounded retry. Journal failures are logged, never returned.
type Batcher struct {
	sink       Inserter
	maxSize    int
	flushDelay time.Duration
	breaker    *resilience.Breaker
	retry      resilience.RetryConfig

	mu      sync.Mutex
	items   []Record
	timer   *time.Timer
	stopped bool
	wg      sync.WaitGroup
}

// NewBatcher creates a batcher writing to sink.
func NewBatcher(sink Inserter, maxSize int, flushDelay time.Duration) *Batcher {
	if maxSize <= 0 {
		maxSize = DefaultBatchSize
	}
	if flushDelay <= 0 {
		flushDelay = DefaultFlushDelay
	}
	return &Batcher{
		sink:       sink,
		maxSize:    maxSize,
		flushDelay: flushDelay,
		breaker:    resilience.New("journal", resilience.JournalConfig()),
		retry:      resilience.DefaultRetryConfig(),
		items:      make([]Record, 0, maxSize),
	}
}

// Add queues a record. Records added after Stop are dropped.
func (b *Batcher) Add(r Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return
	}
	b.items = append(b.items, r)

	if len(b.items) >= b.maxSize {
		b.flushLocked()
		return
	}

	if b.timer == nil {
		b.timer = time.AfterFunc(b.flushDelay, b.timerFlush)
	} else {
		b.timer.Reset(b.flushDelay)
	}
}

func (b *Batcher) timerFlush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Batcher) flushLocked() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	if len(b.items) == 0 {
		return
	}
	items := b.items
	b.items = make([]Record, 0, b.maxSize)

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		ctx, span := trace.StartSpan(context.Background(), "journal_batch_flush")
		defer span.End()
		span.SetAttr("count", len(items))

		log := trace.Logger(ctx)
		retry := b.retry
		retry.OnRetry = func(attempt int, _ error) { span.SetAttr("retries", attempt) }
		err := b.breaker.Execute(func() error {
			return resilience.Retry(ctx, retry, func() error {
				return b.sink.Insert(ctx, items)
			})
		})
		if err != nil {
			span.SetAttr("error", err.Error())
			log.Warn("journal batch dropped", "error", err, "count", len(items), "breaker", b.breaker.State().String())
			return
		}
		log.Debug("journal batch stored", "count", len(items))
	}()
}

// Health reports the journal write breaker.
func (b *Batcher) Health() resilience.Snapshot {
	return b.breaker.Snapshot()
}

// Flush forces immediate flush of pending records.
func (b *Batcher) Flush() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

// Stop flushes what is pending and waits for in-flight writes.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	b.flushLocked()
	b.mu.Unlock()
	b.wg.Wait()
}
