package channel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/clock"
	"github.com/joebot/courier/internal/config"
	"github.com/joebot/courier/internal/logging"
	"github.com/joebot/courier/internal/media"
	"github.com/joebot/courier/internal/typing"
)

// Discord shows a typing indicator for about ten seconds per request.
const typingRefresh = 8 * time.Second

// discordSession is the part of *discordgo.Session the channel uses.
type discordSession interface {
	ChannelMessageSendComplex(channelID string, data *discordgo.MessageSend, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	Close() error
}

// Discord delivers messages and attachments through the Discord REST API.
// Rate limits are handled by discordgo; other failures are returned for
// the sender to retry.
type Discord struct {
	session discordSession
	clock   clock.Clock
	logger  *slog.Logger

	typingMu     sync.Mutex
	typingCancel map[string]context.CancelFunc
}

// NewDiscord creates a Discord channel authenticated as a bot.
func NewDiscord(cfg config.DiscordConfig, logger *slog.Logger) (*Discord, error) {
	if cfg.Token == "" {
		return nil, errors.New("discord bot token not configured")
	}
	s, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	return newDiscord(s, clock.Real(), logger), nil
}

func newDiscord(s discordSession, c clock.Clock, logger *slog.Logger) *Discord {
	return &Discord{
		session:      s,
		clock:        c,
		logger:       logging.Component(logger, "discord"),
		typingCancel: make(map[string]context.CancelFunc),
	}
}

func (d *Discord) Name() string { return "discord" }

// Send posts msg to its chat. Uploaded attachments are linked by URL.
func (d *Discord) Send(ctx context.Context, msg *bus.OutboundMessage) (*bus.Receipt, error) {
	if msg.ChatID == "" {
		return nil, errors.New("discord: message has no chat id")
	}

	content := msg.Content
	var links []string
	for _, ref := range msg.Media {
		if ref.RemoteURL != "" {
			links = append(links, ref.RemoteURL)
		}
	}
	if len(links) > 0 {
		content = strings.TrimSpace(content + "\n" + strings.Join(links, "\n"))
	}

	send := &discordgo.MessageSend{Content: content}
	if msg.ReplyTo != "" {
		send.Reference = &discordgo.MessageReference{MessageID: msg.ReplyTo, ChannelID: msg.ChatID}
		send.AllowedMentions = &discordgo.MessageAllowedMentions{RepliedUser: false}
	}

	m, err := d.session.ChannelMessageSendComplex(msg.ChatID, send, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("send discord message: %w", err)
	}
	d.logger.Debug("Discord message sent", "id", msg.ID, "remote", m.ID)

	delivered := m.Timestamp
	if delivered.IsZero() {
		delivered = d.clock.Now()
	}
	return &bus.Receipt{
		MessageID:   msg.ID,
		RemoteID:    m.ID,
		Channel:     d.Name(),
		DeliveredAt: delivered,
	}, nil
}

// Upload posts file to chatID as a message attachment.
func (d *Discord) Upload(ctx context.Context, chatID string, file *media.File, progress func(int)) (*bus.UploadResult, error) {
	if chatID == "" {
		return nil, errors.New("discord: upload has no chat id")
	}
	send := &discordgo.MessageSend{
		Files: []*discordgo.File{{
			Name:        file.Name,
			ContentType: file.Type,
			Reader:      newProgressReader(file.Open(), file.Size(), progress),
		}},
	}
	m, err := d.session.ChannelMessageSendComplex(chatID, send, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("upload %s to discord: %w", file.Name, err)
	}
	if len(m.Attachments) == 0 {
		return nil, fmt.Errorf("upload %s to discord: no attachment in response", file.Name)
	}
	a := m.Attachments[0]
	return &bus.UploadResult{RemoteID: a.ID, URL: a.URL}, nil
}

// BindTyping mirrors the signaler's typing state into Discord's typing
// indicator for chatID. The returned function removes the binding.
func (d *Discord) BindTyping(s *typing.Signaler, chatID string) (unbind func()) {
	remove := s.AddCallback(func(on bool) {
		if on {
			d.startTyping(chatID)
		} else {
			d.stopTyping(chatID)
		}
	})
	return func() {
		remove()
		d.stopTyping(chatID)
	}
}

func (d *Discord) startTyping(channelID string) {
	d.stopTyping(channelID)

	ctx, cancel := context.WithCancel(context.Background())
	d.typingMu.Lock()
	d.typingCancel[channelID] = cancel
	d.typingMu.Unlock()

	go func() {
		for {
			if err := d.session.ChannelTyping(channelID, discordgo.WithContext(ctx)); err != nil && ctx.Err() == nil {
				d.logger.Debug("Discord typing failed", "chat", channelID, "err", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-d.clock.After(typingRefresh):
			}
		}
	}()
}

func (d *Discord) stopTyping(channelID string) {
	d.typingMu.Lock()
	defer d.typingMu.Unlock()
	if cancel, ok := d.typingCancel[channelID]; ok {
		cancel()
		delete(d.typingCancel, channelID)
	}
}

// Close stops typing indicators and closes the session.
func (d *Discord) Close() error {
	d.typingMu.Lock()
	for _, cancel := range d.typingCancel {
		cancel()
	}
	clear(d.typingCancel)
	d.typingMu.Unlock()
	return d.session.Close()
}
