// Package sender delivers outbound messages with bounded retry and a
// concurrency cap for batch sends.
package sender

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/clock"
	"github.com/joebot/courier/internal/logging"
	"github.com/joebot/courier/internal/text"
)

const (
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = time.Second
	DefaultConcurrencyLimit = 3
)

// Config configures a Sender.
//
// MaxRetries and RetryDelay are taken as given, so zero disables
// retries or the backoff wait; use DefaultConfig for the defaults.
type Config struct {
	MaxRetries       int
	RetryDelay       time.Duration
	ConcurrencyLimit int

	Normalizer *text.Normalizer
	// Queue backs QueueMessage. A default queue is created when nil.
	Queue  *bus.Queue
	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxRetries:       DefaultMaxRetries,
		RetryDelay:       DefaultRetryDelay,
		ConcurrencyLimit: DefaultConcurrencyLimit,
	}
}

// Result is the outcome of one message in SendMessages.
type Result struct {
	Receipt *bus.Receipt
	Err     error
}

// Sender makes sends resilient to transient transport failures.
// Retry state is per call; concurrent sends share nothing.
type Sender struct {
	maxRetries  int
	retryDelay  time.Duration
	concurrency int

	normalizer *text.Normalizer
	queue      *bus.Queue
	clock      clock.Clock
	logger     *slog.Logger
}

// New creates a Sender.
func New(cfg Config) *Sender {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = DefaultConcurrencyLimit
	}
	if cfg.Normalizer == nil {
		cfg.Normalizer = text.NewNormalizer(0, 0)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	cfg.Logger = logging.Component(cfg.Logger, "sender")
	if cfg.Queue == nil {
		cfg.Queue = bus.NewQueue(bus.QueueConfig{Clock: cfg.Clock, Logger: cfg.Logger})
	}
	return &Sender{
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		concurrency: cfg.ConcurrencyLimit,
		normalizer:  cfg.Normalizer,
		queue:       cfg.Queue,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Queue returns the batching queue behind QueueMessage.
func (s *Sender) Queue() *bus.Queue { return s.queue }

// OptimizeMessage returns a validated copy of msg with normalized
// content and an ID and timestamp filled in. msg is not modified.
func (s *Sender) OptimizeMessage(msg *bus.OutboundMessage) (*bus.OutboundMessage, error) {
	if !msg.HasBody() {
		return nil, &text.ValidationError{Reason: "message has no content, media or reply"}
	}
	out := msg.Clone()
	if out.Content != "" {
		content, err := s.normalizer.Preprocess(out.Content)
		if err != nil {
			return nil, err
		}
		out.Content = content
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = s.clock.Now()
	}
	if out.ID == "" {
		out.ID = s.newID(out.Timestamp)
	}
	return out, nil
}

// newID combines the send time with a random suffix.
func (s *Sender) newID(t time.Time) string {
	suffix, _, _ := strings.Cut(uuid.NewString(), "-")
	return fmt.Sprintf("%d-%s", t.UnixMilli(), suffix)
}

// SendMessage optimizes msg and delivers it through t, retrying
// rejected attempts after RetryDelay×attempt. Validation failures are
// returned immediately. Once retries are exhausted the error is a
// *DeliveryFailedError.
func (s *Sender) SendMessage(ctx context.Context, msg *bus.OutboundMessage, t bus.Transport) (*bus.Receipt, error) {
	out, err := s.OptimizeMessage(msg)
	if err != nil {
		return nil, err
	}
	return s.deliver(ctx, out, t)
}

func (s *Sender) deliver(ctx context.Context, msg *bus.OutboundMessage, t bus.Transport) (*bus.Receipt, error) {
	var last *TransportError
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay * time.Duration(attempt)
			s.logger.Warn("send failed, retrying",
				"id", msg.ID, "attempt", attempt, "delay", delay, "err", last.Err)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("deliver %s: %w", msg.ID, ctx.Err())
			case <-s.clock.After(delay):
			}
		}

		receipt, err := t.Send(ctx, msg)
		if err == nil {
			if receipt == nil {
				receipt = &bus.Receipt{MessageID: msg.ID, Channel: msg.Channel, DeliveredAt: s.clock.Now()}
			}
			if attempt > 0 {
				s.logger.Info("send recovered", "id", msg.ID, "attempts", attempt+1)
			}
			return receipt, nil
		}
		last = &TransportError{Attempt: attempt + 1, Err: err}
	}

	s.logger.Error("send failed permanently", "id", msg.ID, "attempts", s.maxRetries+1, "err", last.Err)
	return nil, &DeliveryFailedError{MessageID: msg.ID, Attempts: s.maxRetries + 1, Last: last}
}

// SendMessages delivers msgs in windows of ConcurrencyLimit, waiting for
// each window before starting the next. Every message is validated
// before anything is sent; one invalid message fails the whole call.
// Results are in input order and one message's failure does not affect
// the others.
func (s *Sender) SendMessages(ctx context.Context, msgs []*bus.OutboundMessage, t bus.Transport) ([]Result, error) {
	optimized := make([]*bus.OutboundMessage, len(msgs))
	for i, m := range msgs {
		out, err := s.OptimizeMessage(m)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i, err)
		}
		optimized[i] = out
	}

	results := make([]Result, len(optimized))
	for start := 0; start < len(optimized); start += s.concurrency {
		end := min(start+s.concurrency, len(optimized))
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				r, err := s.SendMessage(ctx, optimized[i], t)
				results[i] = Result{Receipt: r, Err: err}
			}()
		}
		wg.Wait()
	}
	return results, nil
}

// QueueMessage validates msg and hands it to the batching queue, which
// sends it with SendMessage when its batch flushes. done, if non-nil,
// receives the outcome. A validation error is returned directly and
// nothing is queued.
func (s *Sender) QueueMessage(ctx context.Context, msg *bus.OutboundMessage, t bus.Transport, done func(*bus.Receipt, error)) (*bus.OutboundMessage, error) {
	out, err := s.OptimizeMessage(msg)
	if err != nil {
		return nil, err
	}
	s.queue.Enqueue(ctx, out, func(ctx context.Context, m *bus.OutboundMessage) error {
		r, err := s.SendMessage(ctx, m, t)
		if done != nil {
			done(r, err)
		}
		return err
	})
	return out, nil
}
