// Package pipeline wires the delivery components into one object: text
// and attachments go in, retried sends and progress reports come out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/clock"
	"github.com/joebot/courier/internal/config"
	"github.com/joebot/courier/internal/logging"
	"github.com/joebot/courier/internal/media"
	"github.com/joebot/courier/internal/progress"
	"github.com/joebot/courier/internal/sender"
	"github.com/joebot/courier/internal/text"
	"github.com/joebot/courier/internal/typing"
)

// Config configures a Pipeline.
type Config struct {
	// Pipeline is used as given. Zero MaxRetries and RetryDelayMs mean a
	// single attempt with no backoff; start from config.DefaultConfig()
	// to get the standard retry policy. Other zero fields take defaults.
	Pipeline config.PipelineConfig
	Media    config.MediaConfig

	// Channel and ChatID address messages that name neither.
	Channel string
	ChatID  string

	Transport bus.Transport
	// Uploader transmits attachments. Without one, attachments are
	// sent by reference only.
	Uploader bus.Uploader

	Codec  media.Codec
	Rules  map[media.Kind]media.Rule
	Clock  clock.Clock
	Logger *slog.Logger
}

// ConfigFrom builds a Config from the loaded settings.
func ConfigFrom(cfg *config.Config, t bus.Transport, u bus.Uploader) Config {
	return Config{
		Pipeline:  cfg.Pipeline,
		Media:     cfg.Media,
		Channel:   cfg.Channels.Default,
		ChatID:    cfg.Channels.ChatID,
		Transport: t,
		Uploader:  u,
	}
}

// Pipeline is the client-side delivery path for one conversation.
type Pipeline struct {
	channel   string
	chatID    string
	transport bus.Transport
	uploader  bus.Uploader
	opts      media.Options

	sender    *sender.Sender
	typing    *typing.Signaler
	validator *media.Validator
	optimizer *media.Optimizer
	progress  *progress.Tracker
	logger    *slog.Logger
}

// New builds every component from cfg.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Transport == nil {
		return nil, errors.New("pipeline: transport is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	logger := logging.Component(cfg.Logger, "pipeline")
	p := cfg.Pipeline

	queue := bus.NewQueue(bus.QueueConfig{
		BatchSize:     p.BatchSize,
		FlushInterval: p.FlushInterval(),
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
	})
	s := sender.New(sender.Config{
		MaxRetries:       p.MaxRetries,
		RetryDelay:       p.RetryDelay(),
		ConcurrencyLimit: p.ConcurrencyLimit,
		Normalizer:       text.NewNormalizer(p.TextCacheSize, p.MaxContentLength),
		Queue:            queue,
		Clock:            cfg.Clock,
		Logger:           cfg.Logger,
	})

	return &Pipeline{
		channel:   cfg.Channel,
		chatID:    cfg.ChatID,
		transport: cfg.Transport,
		uploader:  cfg.Uploader,
		opts: media.Options{
			MaxImageSize: cfg.Media.MaxImageSize,
			Quality:      cfg.Media.Quality,
			MaxFileSize:  cfg.Media.MaxFileSizeBytes,
		},
		sender:    s,
		typing:    typing.New(cfg.Clock, p.TypingQuiet()),
		validator: media.NewValidator(cfg.Rules),
		optimizer: media.NewOptimizer(cfg.Codec, nil, cfg.Logger),
		progress:  progress.NewTracker(),
		logger:    logger,
	}, nil
}

func (p *Pipeline) Sender() *sender.Sender { return p.sender }

func (p *Pipeline) Typing() *typing.Signaler { return p.typing }

func (p *Pipeline) Progress() *progress.Tracker { return p.progress }

func (p *Pipeline) Previews() *media.Previews { return p.optimizer.Previews() }

// address fills the default channel and chat into a copy of msg.
func (p *Pipeline) address(msg *bus.OutboundMessage) *bus.OutboundMessage {
	out := msg.Clone()
	if out.Channel == "" {
		out.Channel = p.channel
	}
	if out.ChatID == "" {
		out.ChatID = p.chatID
	}
	return out
}

// Send delivers msg immediately with retry.
func (p *Pipeline) Send(ctx context.Context, msg *bus.OutboundMessage) (*bus.Receipt, error) {
	return p.sender.SendMessage(ctx, p.address(msg), p.transport)
}

// SendAll delivers msgs under the sender's concurrency cap.
func (p *Pipeline) SendAll(ctx context.Context, msgs []*bus.OutboundMessage) ([]sender.Result, error) {
	addressed := make([]*bus.OutboundMessage, len(msgs))
	for i, m := range msgs {
		addressed[i] = p.address(m)
	}
	return p.sender.SendMessages(ctx, addressed, p.transport)
}

// Queue validates msg and hands it to the batching queue. done receives
// the outcome once the batch is sent.
func (p *Pipeline) Queue(ctx context.Context, msg *bus.OutboundMessage, done func(*bus.Receipt, error)) (*bus.OutboundMessage, error) {
	return p.sender.QueueMessage(ctx, p.address(msg), p.transport, done)
}

// Stage validates files, then optimizes them into attachments with live
// preview handles. Nothing is staged if any file is rejected. The caller
// owns the returned refs until it passes them to SendAttachments or
// Discard.
func (p *Pipeline) Stage(ctx context.Context, files ...*media.File) ([]*media.AttachmentRef, error) {
	for _, f := range files {
		if err := p.validator.ValidateFile(f, media.KindOf(f.Type)); err != nil {
			return nil, err
		}
	}
	refs, err := p.optimizer.OptimizeFiles(ctx, files, p.opts)
	if err != nil {
		return nil, err
	}
	for _, r := range refs {
		p.logger.Debug("Attachment staged", "name", r.Name, "kind", r.Type,
			"original", r.OriginalSize, "optimized", r.OptimizedSize, "ratio", r.CompressionRatio)
	}
	return refs, nil
}

// Discard releases staged attachments that will not be sent.
func (p *Pipeline) Discard(refs []*media.AttachmentRef) {
	media.ReleaseAll(refs)
}

// SendAttachments takes ownership of refs, uploads them concurrently
// while reporting progress by index, and then sends msg carrying them.
// The preview handles are released on every return path. If any upload
// fails the message is not sent.
func (p *Pipeline) SendAttachments(ctx context.Context, msg *bus.OutboundMessage, refs []*media.AttachmentRef) (*bus.Receipt, error) {
	defer media.ReleaseAll(refs)

	out := p.address(msg)
	out.Media = append(out.Media, refs...)
	if _, err := p.sender.OptimizeMessage(out); err != nil {
		return nil, err
	}

	if p.uploader != nil && len(refs) > 0 {
		if err := p.upload(ctx, out.ChatID, refs); err != nil {
			return nil, err
		}
	}
	return p.sender.SendMessage(ctx, out, p.transport)
}

func (p *Pipeline) upload(ctx context.Context, chatID string, refs []*media.AttachmentRef) error {
	p.progress.Clear()
	for i := range refs {
		p.progress.Start(i)
	}

	errs := make([]error, len(refs))
	var wg sync.WaitGroup
	for i, ref := range refs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := p.uploader.Upload(ctx, chatID, ref.Source, func(pct int) {
				p.progress.SetProgress(i, pct)
			})
			if err != nil {
				p.progress.Fail(i, err)
				errs[i] = fmt.Errorf("upload %s: %w", ref.Name, err)
				return
			}
			if res != nil {
				ref.RemoteURL = res.URL
			}
			p.progress.Complete(i)
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		p.logger.Warn("Attachment upload failed", "err", err)
		return err
	}
	return nil
}

// Close stops typing and drops queued messages that have not flushed.
// Sends already in flight run to completion.
func (p *Pipeline) Close() {
	p.typing.Clear()
	if n := p.sender.Queue().Len(); n > 0 {
		p.logger.Warn("Dropping queued messages", "count", n)
	}
	p.sender.Queue().Clear()
}
