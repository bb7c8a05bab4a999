package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/clock"
	"github.com/joebot/courier/internal/config"
	"github.com/joebot/courier/internal/logging"
	"github.com/joebot/courier/internal/media"
)

// Routing keys on the outbound exchange.
const (
	keyMessage = "courier.message"
	keyChunk   = "courier.attachment.chunk"
)

// publisher is the part of *amqp.Channel the channel uses.
type publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// envelope is the JSON body of a published message.
type envelope struct {
	Meta envelopeMeta `json:"meta"`
	Data any          `json:"data"`
}

type envelopeMeta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlationId"`
	Type          string    `json:"type"`
	Time          time.Time `json:"time"`
}

type messageData struct {
	ChatID      string           `json:"chatId,omitempty"`
	Content     string           `json:"content,omitempty"`
	ReplyTo     string           `json:"replyTo,omitempty"`
	Attachments []attachmentData `json:"attachments,omitempty"`
}

type attachmentData struct {
	UploadID string `json:"uploadId,omitempty"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Type     string `json:"type,omitempty"`
	Size     int64  `json:"size"`
}

// AMQP publishes messages as JSON envelopes to a topic exchange and
// attachments as a sequence of raw chunk publications.
type AMQP struct {
	pub       publisher
	closer    io.Closer
	exchange  string
	chunkSize int
	clock     clock.Clock
	logger    *slog.Logger

	// Publishing on one channel is serialized so chunks stay in order.
	mu sync.Mutex
}

// NewAMQP dials the broker and declares the exchange.
func NewAMQP(cfg config.AMQPConfig, logger *slog.Logger) (*AMQP, error) {
	if cfg.URL == "" {
		return nil, errors.New("amqp url not configured")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	return newAMQP(ch, conn, cfg, clock.Real(), logger), nil
}

func newAMQP(pub publisher, closer io.Closer, cfg config.AMQPConfig, c clock.Clock, logger *slog.Logger) *AMQP {
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = config.DefaultConfig().Channels.AMQP.ChunkSize
	}
	return &AMQP{
		pub:       pub,
		closer:    closer,
		exchange:  cfg.Exchange,
		chunkSize: chunk,
		clock:     c,
		logger:    logging.Component(logger, "amqp"),
	}
}

func (a *AMQP) Name() string { return "amqp" }

// Send publishes msg as a persistent JSON envelope. The envelope's
// correlation id is the message id.
func (a *AMQP) Send(ctx context.Context, msg *bus.OutboundMessage) (*bus.Receipt, error) {
	data := messageData{ChatID: msg.ChatID, Content: msg.Content, ReplyTo: msg.ReplyTo}
	for _, ref := range msg.Media {
		att := attachmentData{
			UploadID: ref.RemoteURL,
			Name:     ref.Name,
			Kind:     string(ref.Type),
			Size:     ref.Size,
		}
		if ref.Source != nil {
			att.Type = ref.Source.Type
		}
		data.Attachments = append(data.Attachments, att)
	}

	now := a.clock.Now().UTC()
	env := envelope{
		Meta: envelopeMeta{
			ID:            uuid.NewString(),
			CorrelationID: msg.ID,
			Type:          "message",
			Time:          now,
		},
		Data: data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal envelope: %w", err)
	}

	a.mu.Lock()
	err = a.pub.PublishWithContext(ctx, a.exchange, keyMessage, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: env.Meta.CorrelationID,
		Type:          env.Meta.Type,
		Timestamp:     now,
		Body:          body,
	})
	a.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("publish message: %w", err)
	}
	a.logger.Info("published", "key", keyMessage, "exchange", a.exchange, "id", msg.ID)

	return &bus.Receipt{
		MessageID:   msg.ID,
		RemoteID:    env.Meta.ID,
		Channel:     a.Name(),
		DeliveredAt: now,
	}, nil
}

// Upload publishes file in chunks sharing one upload id, reporting
// progress as each chunk is accepted. The returned URL is the upload id,
// which Send references from the message envelope.
func (a *AMQP) Upload(ctx context.Context, chatID string, file *media.File, progress func(int)) (*bus.UploadResult, error) {
	uploadID := uuid.NewString()
	total := max(1, (len(file.Data)+a.chunkSize-1)/a.chunkSize)
	counter := newProgressCounter(file.Size(), progress)

	a.mu.Lock()
	defer a.mu.Unlock()
	for i := 0; i < total; i++ {
		chunk := file.Data[i*a.chunkSize : min((i+1)*a.chunkSize, len(file.Data))]
		err := a.pub.PublishWithContext(ctx, a.exchange, keyChunk, false, false, amqp.Publishing{
			ContentType:   file.Type,
			DeliveryMode:  amqp.Persistent,
			MessageId:     fmt.Sprintf("%s/%d", uploadID, i),
			CorrelationId: uploadID,
			Type:          "attachment.chunk",
			Timestamp:     a.clock.Now().UTC(),
			Headers: amqp.Table{
				"chat":   chatID,
				"name":   file.Name,
				"chunk":  int32(i),
				"chunks": int32(total),
				"size":   file.Size(),
			},
			Body: chunk,
		})
		if err != nil {
			return nil, fmt.Errorf("publish chunk %d/%d of %s: %w", i+1, total, file.Name, err)
		}
		counter.add(len(chunk))
	}
	a.logger.Debug("Uploaded attachment", "name", file.Name, "chunks", total, "upload", uploadID)
	return &bus.UploadResult{RemoteID: uploadID, URL: uploadID}, nil
}

func (a *AMQP) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
