package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joebot/courier/internal/clock"
	"github.com/joebot/courier/internal/logging"
)

const (
	DefaultBatchSize     = 5
	DefaultFlushInterval = 100 * time.Millisecond
)

// Handler processes one queued message. Its error is logged; the queue
// never retries.
type Handler func(ctx context.Context, msg *OutboundMessage) error

// QueueConfig configures a Queue. Zero fields select the defaults.
type QueueConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	Clock         clock.Clock
	Logger        *slog.Logger
}

type queueItem struct {
	ctx        context.Context
	msg        *OutboundMessage
	handler    Handler
	enqueuedAt time.Time
}

// Queue batches outbound messages so that bursts of sends reach the
// transport in bounded groups. A batch is flushed when BatchSize items
// are waiting, or FlushInterval after the last enqueue.
//
// Batches leave the queue in FIFO order; items within one batch are
// handled concurrently and in no particular order.
type Queue struct {
	batchSize int
	interval  time.Duration
	clock     clock.Clock
	logger    *slog.Logger

	mu       sync.Mutex
	items    []*queueItem
	timer    *clock.Timer
	flushing bool
}

// NewQueue creates an empty Queue.
func NewQueue(cfg QueueConfig) *Queue {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	cfg.Logger = logging.Component(cfg.Logger, "queue")
	return &Queue{
		batchSize: cfg.BatchSize,
		interval:  cfg.FlushInterval,
		clock:     cfg.Clock,
		logger:    cfg.Logger,
	}
}

// Enqueue appends msg. A full batch starts flushing immediately in the
// background; otherwise the flush timer is restarted.
func (q *Queue) Enqueue(ctx context.Context, msg *OutboundMessage, h Handler) {
	q.mu.Lock()
	q.items = append(q.items, &queueItem{
		ctx:        ctx,
		msg:        msg,
		handler:    h,
		enqueuedAt: q.clock.Now(),
	})
	full := len(q.items) >= q.batchSize
	q.timer.Stop()
	q.timer = nil
	if !full {
		q.timer = q.clock.AfterFunc(q.interval, q.Flush)
	}
	q.mu.Unlock()

	if full {
		go q.Flush()
	}
}

// Flush handles up to one batch and returns once every handler in it
// has returned. It is a no-op while another flush is running. If items
// remain afterwards another flush is scheduled on the timer.
func (q *Queue) Flush() {
	q.mu.Lock()
	if q.flushing || len(q.items) == 0 {
		q.mu.Unlock()
		return
	}
	q.flushing = true
	n := min(q.batchSize, len(q.items))
	batch := q.items[:n:n]
	q.items = q.items[n:]
	q.mu.Unlock()

	q.logger.Debug("flushing batch", "size", len(batch))

	var wg sync.WaitGroup
	for _, item := range batch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.run(item)
		}()
	}
	wg.Wait()

	q.mu.Lock()
	q.flushing = false
	if len(q.items) > 0 {
		q.timer.Stop()
		q.timer = q.clock.AfterFunc(q.interval, q.Flush)
	}
	q.mu.Unlock()
}

func (q *Queue) run(item *queueItem) {
	ctx := item.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := item.handler(ctx, item.msg); err != nil {
		q.logger.Warn("queued message failed",
			"id", item.msg.ID,
			"waited", q.clock.Now().Sub(item.enqueuedAt),
			"err", err)
	}
}

// Clear cancels the pending flush and drops every unflushed item
// without calling its handler. Batches already running are not
// interrupted.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.timer.Stop()
	q.timer = nil
	q.items = nil
}

// Len returns the number of items waiting to be flushed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
