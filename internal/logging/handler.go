package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ANSI color codes.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiBlue   = "\033[34m"
	ansiGray   = "\033[90m"

	padding = "  " // left padding to align with TUI header
)

// ComponentKey tags a record with the pipeline component that logged it.
// It renders as a bracketed prefix instead of a key=value pair.
const ComponentKey = "component"

// Block attributes are rendered as indented blocks below the log line
// instead of inline key=value pairs.
var blockKeys = map[string]bool{
	"content": true,
	"err":     true,
}

// Options configures a Handler.
type Options struct {
	Level slog.Leveler
	Color bool
}

// Handler is a compact, optionally colored slog handler.
type Handler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	color     bool
	component string
	attrs     []slog.Attr
}

// NewHandler creates a new log handler.
func NewHandler(w io.Writer, opts *Options) *Handler {
	if opts == nil {
		opts = &Options{}
	}
	level := opts.Level
	if level == nil {
		level = slog.LevelInfo
	}
	return &Handler{
		w:     w,
		mu:    &sync.Mutex{},
		level: level,
		color: opts.Color,
	}
}

// Component returns a logger that tags its records with name.
func Component(l *slog.Logger, name string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(ComponentKey, name)
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	// Timestamp: short for terminal, full for file.
	var ts string
	if h.color {
		ts = r.Time.Format("15:04:05")
	} else {
		ts = r.Time.Format("2006-01-02 15:04:05")
	}

	component := h.component
	var inline strings.Builder
	var blocks []string
	add := func(a slog.Attr) {
		switch {
		case a.Key == ComponentKey:
			component = a.Value.String()
		case blockKeys[a.Key]:
			blocks = append(blocks, a.Value.String())
		default:
			inline.WriteString(h.fmtAttr(a))
		}
	}
	for _, a := range h.attrs {
		add(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a)
		return true
	})

	var tag string
	if component != "" {
		if h.color {
			tag = fmt.Sprintf("%s[%s]%s ", ansiBlue, component, ansiReset)
		} else {
			tag = "[" + component + "] "
		}
	}

	var sb strings.Builder
	lvl := levelLabel(r.Level)
	if h.color {
		fmt.Fprintf(&sb, "%s%s%s%s %s %s%s%s\n",
			padding,
			ansiGray, ts, ansiReset,
			colorLevel(r.Level, lvl),
			tag, r.Message, inline.String())
	} else {
		fmt.Fprintf(&sb, "%s%s %s %s%s%s\n", padding, ts, lvl, tag, r.Message, inline.String())
	}

	for _, text := range blocks {
		for _, line := range strings.Split(text, "\n") {
			if h.color {
				fmt.Fprintf(&sb, "%s  %s│%s %s\n", padding, ansiGray, ansiReset, line)
			} else {
				fmt.Fprintf(&sb, "%s  | %s\n", padding, line)
			}
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	c.attrs = append(c.attrs, h.attrs...)
	for _, a := range attrs {
		if a.Key == ComponentKey {
			c.component = a.Value.String()
			continue
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

func (h *Handler) WithGroup(string) slog.Handler {
	return h
}

func (h *Handler) fmtAttr(a slog.Attr) string {
	if h.color {
		return fmt.Sprintf(" %s%s%s=%s", ansiGray, a.Key, ansiReset, a.Value.String())
	}
	return fmt.Sprintf(" %s=%s", a.Key, a.Value.String())
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERR"
	case level >= slog.LevelWarn:
		return "WRN"
	case level >= slog.LevelInfo:
		return "INF"
	default:
		return "DBG"
	}
}

func colorLevel(level slog.Level, label string) string {
	switch {
	case level >= slog.LevelError:
		return ansiRed + label + ansiReset
	case level >= slog.LevelWarn:
		return ansiYellow + label + ansiReset
	case level >= slog.LevelInfo:
		return ansiCyan + label + ansiReset
	default:
		return ansiGray + label + ansiReset
	}
}
