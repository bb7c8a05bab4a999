package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/media"
)

// Channel is a chat platform integration that can deliver messages and
// attachments.
type Channel interface {
	bus.Transport
	bus.Uploader
	Name() string
	Close() error
}

// Router dispatches sends to the channel named by each message, falling
// back to a default channel when the message names none.
type Router struct {
	mu       sync.RWMutex
	channels map[string]Channel
	fallback string
}

// NewRouter creates a Router with defaultChannel as the fallback route.
func NewRouter(defaultChannel string) *Router {
	return &Router{
		channels: make(map[string]Channel),
		fallback: defaultChannel,
	}
}

// Register adds ch under its name, replacing any previous registration.
func (r *Router) Register(ch Channel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.Name()] = ch
	if r.fallback == "" {
		r.fallback = ch.Name()
	}
}

// Names lists the registered channels.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.channels))
	for n := range r.channels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the fallback channel name.
func (r *Router) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fallback
}

func (r *Router) lookup(name string) (Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.fallback
	}
	ch, ok := r.channels[name]
	if !ok {
		return nil, fmt.Errorf("no channel registered as %q", name)
	}
	return ch, nil
}

// Send delivers msg through its channel.
func (r *Router) Send(ctx context.Context, msg *bus.OutboundMessage) (*bus.Receipt, error) {
	ch, err := r.lookup(msg.Channel)
	if err != nil {
		return nil, err
	}
	return ch.Send(ctx, msg)
}

// Uploader returns an Uploader bound to the named channel.
func (r *Router) Uploader(name string) bus.Uploader {
	return uploaderFunc(func(ctx context.Context, chatID string, f *media.File, progress func(int)) (*bus.UploadResult, error) {
		ch, err := r.lookup(name)
		if err != nil {
			return nil, err
		}
		return ch.Upload(ctx, chatID, f, progress)
	})
}

// Close closes every registered channel.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var first error
	for _, ch := range r.channels {
		if err := ch.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type uploaderFunc func(ctx context.Context, chatID string, f *media.File, progress func(int)) (*bus.UploadResult, error)

func (f uploaderFunc) Upload(ctx context.Context, chatID string, file *media.File, progress func(int)) (*bus.UploadResult, error) {
	return f(ctx, chatID, file, progress)
}
