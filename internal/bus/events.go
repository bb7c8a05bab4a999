package bus

import (
	"context"
	"time"

	"github.com/joebot/courier/internal/media"
)

// OutboundMessage is a message on its way to a chat channel.
type OutboundMessage struct {
	// ID is assigned by the sender when empty.
	ID        string
	Channel   string
	ChatID    string
	Content   string
	ReplyTo   string
	Media     []*media.AttachmentRef
	Timestamp time.Time
	Metadata  map[string]any
}

// HasBody reports whether the message carries content, media or a
// reply reference.
func (m *OutboundMessage) HasBody() bool {
	return m.Content != "" || len(m.Media) > 0 || m.ReplyTo != ""
}

// Clone returns a shallow copy with its own Media slice and Metadata map.
func (m *OutboundMessage) Clone() *OutboundMessage {
	c := *m
	if m.Media != nil {
		c.Media = append([]*media.AttachmentRef(nil), m.Media...)
	}
	if m.Metadata != nil {
		c.Metadata = make(map[string]any, len(m.Metadata))
		for k, v := range m.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// Receipt is a transport's acknowledgement of a delivered message.
type Receipt struct {
	MessageID   string
	RemoteID    string
	Channel     string
	DeliveredAt time.Time
}

// UploadResult is a transport's acknowledgement of an uploaded file.
type UploadResult struct {
	RemoteID string
	URL      string
}

// Transport performs the network send of one message.
type Transport interface {
	Send(ctx context.Context, msg *OutboundMessage) (*Receipt, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg *OutboundMessage) (*Receipt, error)

func (f TransportFunc) Send(ctx context.Context, msg *OutboundMessage) (*Receipt, error) {
	return f(ctx, msg)
}

// Uploader transmits an attachment to chatID, reporting percent
// complete as chunks are sent.
type Uploader interface {
	Upload(ctx context.Context, chatID string, file *media.File, progress func(percent int)) (*UploadResult, error)
}
