package config

import (
	"log/slog"
	"strings"
	"time"
)

// Config is the root configuration for courier.
type Config struct {
	Pipeline PipelineConfig `json:"pipeline"`
	Media    MediaConfig    `json:"media"`
	Channels ChannelsConfig `json:"channels"`
	Logging  LoggingConfig  `json:"logging"`
}

// PipelineConfig holds batching, retry and debounce settings.
type PipelineConfig struct {
	BatchSize        int `json:"batchSize"`
	FlushIntervalMs  int `json:"flushIntervalMs"`
	MaxRetries       int `json:"maxRetries"`
	RetryDelayMs     int `json:"retryDelayMs"`
	ConcurrencyLimit int `json:"concurrencyLimit"`
	TypingQuietMs    int `json:"typingQuietMs"`
	TextCacheSize    int `json:"textCacheSize"`
	MaxContentLength int `json:"maxContentLength"`
}

func (p PipelineConfig) FlushInterval() time.Duration {
	return time.Duration(p.FlushIntervalMs) * time.Millisecond
}

func (p PipelineConfig) RetryDelay() time.Duration {
	return time.Duration(p.RetryDelayMs) * time.Millisecond
}

func (p PipelineConfig) TypingQuiet() time.Duration {
	return time.Duration(p.TypingQuietMs) * time.Millisecond
}

// MediaConfig holds attachment optimization settings.
type MediaConfig struct {
	MaxImageSize     int     `json:"maxImageSize"`
	Quality          float64 `json:"quality"`
	MaxFileSizeBytes int64   `json:"maxFileSizeBytes"`
}

// ChannelsConfig holds all channel configurations.
type ChannelsConfig struct {
	// Default names the channel used when a message names none.
	Default string        `json:"default"`
	ChatID  string        `json:"chatId"`
	Discord DiscordConfig `json:"discord"`
	AMQP    AMQPConfig    `json:"amqp"`
}

// DiscordConfig holds Discord channel settings.
type DiscordConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
}

// AMQPConfig holds AMQP channel settings.
type AMQPConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
	// ChunkSize is the attachment payload size per published chunk.
	ChunkSize int `json:"chunkSize"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `json:"level"`
}

// SlogLevel parses Level, defaulting to info.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			BatchSize:        5,
			FlushIntervalMs:  100,
			MaxRetries:       3,
			RetryDelayMs:     1000,
			ConcurrencyLimit: 3,
			TypingQuietMs:    300,
			TextCacheSize:    100,
			MaxContentLength: 4000,
		},
		Media: MediaConfig{
			MaxImageSize:     1920,
			Quality:          0.8,
			MaxFileSizeBytes: 1 << 20,
		},
		Channels: ChannelsConfig{
			AMQP: AMQPConfig{
				Exchange:  "courier.outbound",
				ChunkSize: 64 << 10,
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// applyDefaults fills zero values that have no meaningful zero setting.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	p := &c.Pipeline
	if p.BatchSize == 0 {
		p.BatchSize = d.Pipeline.BatchSize
	}
	if p.FlushIntervalMs == 0 {
		p.FlushIntervalMs = d.Pipeline.FlushIntervalMs
	}
	if p.ConcurrencyLimit == 0 {
		p.ConcurrencyLimit = d.Pipeline.ConcurrencyLimit
	}
	if p.TypingQuietMs == 0 {
		p.TypingQuietMs = d.Pipeline.TypingQuietMs
	}
	if p.TextCacheSize == 0 {
		p.TextCacheSize = d.Pipeline.TextCacheSize
	}
	if p.MaxContentLength == 0 {
		p.MaxContentLength = d.Pipeline.MaxContentLength
	}
	m := &c.Media
	if m.MaxImageSize == 0 {
		m.MaxImageSize = d.Media.MaxImageSize
	}
	if m.Quality == 0 {
		m.Quality = d.Media.Quality
	}
	if m.MaxFileSizeBytes == 0 {
		m.MaxFileSizeBytes = d.Media.MaxFileSizeBytes
	}
	a := &c.Channels.AMQP
	if a.Exchange == "" {
		a.Exchange = d.Channels.AMQP.Exchange
	}
	if a.ChunkSize == 0 {
		a.ChunkSize = d.Channels.AMQP.ChunkSize
	}
}
