package channel

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/clock"
	"github.com/joebot/courier/internal/logging"
	"github.com/joebot/courier/internal/media"
)

// Fallback accepts every message and only logs it. It stands in when no
// real channel is configured.
type Fallback struct {
	clock  clock.Clock
	logger *slog.Logger
}

// NewFallback creates a log-only channel.
func NewFallback(logger *slog.Logger) *Fallback {
	return &Fallback{clock: clock.Real(), logger: logging.Component(logger, "log")}
}

func (f *Fallback) Name() string { return "log" }

func (f *Fallback) Send(_ context.Context, msg *bus.OutboundMessage) (*bus.Receipt, error) {
	f.logger.Warn("Fallback channel: skipped delivery", "id", msg.ID, "chat", msg.ChatID,
		"attachments", len(msg.Media), "content", msg.Content)
	return &bus.Receipt{
		MessageID:   msg.ID,
		RemoteID:    "log-" + msg.ID,
		Channel:     f.Name(),
		DeliveredAt: f.clock.Now(),
	}, nil
}

func (f *Fallback) Upload(_ context.Context, _ string, file *media.File, _ func(int)) (*bus.UploadResult, error) {
	id := uuid.NewString()
	f.logger.Warn("Fallback channel: skipped upload", "name", file.Name, "size", file.Size())
	return &bus.UploadResult{RemoteID: id, URL: "log://" + id}, nil
}

func (f *Fallback) Close() error { return nil }
