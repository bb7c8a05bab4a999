package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	progressbar "github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/media"
	"github.com/joebot/courier/internal/pipeline"
	"github.com/joebot/courier/internal/progress"
	"github.com/joebot/courier/internal/sender"
)

// --- message types ---

type deliveredMsg struct {
	receipt *bus.Receipt
	err     error
	// attachments marks the outcome of a SendAttachments call.
	attachments bool
}

type stagedMsg struct {
	refs []*media.AttachmentRef
	err  error
}

type typingMsg bool

type progressMsg progress.Snapshot

// --- chat config ---

// ChatConfig holds display metadata for the chat TUI.
type ChatConfig struct {
	Channel string
	ChatID  string
}

// --- chat entry ---

type chatEntry struct {
	role    string // "user", "sent", "attach", "info", "error"
	content string
}

// --- interactive chat model ---

type chatModel struct {
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	bar      progressbar.Model

	history []chatEntry
	staged  []*media.AttachmentRef
	uploads progress.Snapshot
	typing  bool
	// inflight counts sends whose outcome has not arrived yet.
	inflight int
	// sending is set while attachments upload; input stays disabled.
	sending bool

	pipe   *pipeline.Pipeline
	ctx    context.Context
	events chan tea.Msg

	ready  bool
	width  int
	height int
	cfg    ChatConfig
}

func newChatModel(ctx context.Context, pipe *pipeline.Pipeline, cfg ChatConfig) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Type a message, /attach <path>, /discard, /quit"
	ti.Focus()
	ti.CharLimit = 0
	ti.Prompt = "❯ "
	ti.PromptStyle = lipgloss.NewStyle().Foreground(Accent)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Accent)

	return chatModel{
		input:   ti,
		spinner: sp,
		bar:     progressbar.New(progressbar.WithDefaultGradient(), progressbar.WithWidth(30)),
		pipe:    pipe,
		ctx:     ctx,
		events:  make(chan tea.Msg, 64),
		cfg:     cfg,
	}
}

// subscribe forwards pipeline notifications into the program's event
// channel. Callbacks run on pipeline goroutines and must not block.
func (m chatModel) subscribe() (unsubscribe func()) {
	offProgress := m.pipe.Progress().AddListener(func(s progress.Snapshot) {
		m.post(progressMsg(s))
	})
	offTyping := m.pipe.Typing().AddCallback(func(on bool) {
		m.post(typingMsg(on))
	})
	return func() {
		offProgress()
		offTyping()
	}
}

func (m chatModel) post(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
		// Progress and typing are superseded by the next update.
	}
}

// deliver posts an outcome. Unlike post it waits for room, since
// outcomes are never superseded.
func (m chatModel) deliver(msg deliveredMsg) {
	select {
	case m.events <- msg:
	case <-m.ctx.Done():
	}
}

func waitForEvent(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg { return <-ch }
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.events))
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Layout: header(1) + divider(1) + viewport + uploads + divider(1) + input(1) + status(1)
		vpHeight := max(msg.Height-5-len(m.uploads), 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = vpHeight
		}
		m.input.Width = msg.Width - 4
		m.bar.Width = min(40, max(msg.Width/3, 10))
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			return m, tea.Quit
		case tea.KeyEnter:
			if m.sending {
				return m, nil
			}
			input := strings.TrimSpace(m.input.Value())
			if input == "" && len(m.staged) == 0 {
				return m, nil
			}
			m.input.SetValue("")
			return m.submit(input)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyRunes, tea.KeySpace, tea.KeyBackspace:
			if !m.sending {
				m.pipe.Typing().SignalActivity()
			}
		}

	case typingMsg:
		m.typing = bool(msg)
		return m, waitForEvent(m.events)

	case progressMsg:
		m.uploads = progress.Snapshot(msg)
		return m, waitForEvent(m.events)

	case stagedMsg:
		if msg.err != nil {
			m.add("error", msg.err.Error())
		} else {
			for _, r := range msg.refs {
				m.add("attach", describeRef(r))
			}
			m.staged = append(m.staged, msg.refs...)
		}
		return m, nil

	case deliveredMsg:
		m.inflight--
		var focusCmd tea.Cmd
		if msg.attachments {
			m.sending = false
			focusCmd = m.input.Focus()
		}
		if msg.err != nil {
			m.add("error", describeError(msg.err))
		} else {
			m.add("sent", fmt.Sprintf("%s %s", msg.receipt.Channel, DimStyle.Render(msg.receipt.RemoteID)))
		}
		return m, tea.Batch(focusCmd, waitForEvent(m.events))

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if !m.sending {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// submit handles one line of input.
func (m chatModel) submit(input string) (tea.Model, tea.Cmd) {
	switch {
	case isExitCmd(input):
		return m, tea.Quit

	case strings.HasPrefix(input, "/attach"):
		paths := strings.Fields(strings.TrimPrefix(input, "/attach"))
		if len(paths) == 0 {
			m.add("error", "usage: /attach <path>...")
			return m, nil
		}
		return m, m.stage(paths)

	case input == "/discard":
		m.pipe.Discard(m.staged)
		m.add("info", fmt.Sprintf("discarded %d attachment(s)", len(m.staged)))
		m.staged = nil
		return m, nil
	}

	m.add("user", input)
	msg := &bus.OutboundMessage{Content: input}

	if len(m.staged) > 0 {
		refs := m.staged
		m.staged = nil
		m.sending = true
		m.inflight++
		m.input.Blur()
		return m, m.sendAttachments(msg, refs)
	}

	_, err := m.pipe.Queue(m.ctx, msg, func(r *bus.Receipt, err error) {
		m.deliver(deliveredMsg{receipt: r, err: err})
	})
	if err != nil {
		m.add("error", describeError(err))
		return m, nil
	}
	m.inflight++
	return m, nil
}

func (m chatModel) stage(paths []string) tea.Cmd {
	return func() tea.Msg {
		files := make([]*media.File, 0, len(paths))
		for _, p := range paths {
			f, err := media.ReadFile(p)
			if err != nil {
				return stagedMsg{err: err}
			}
			files = append(files, f)
		}
		refs, err := m.pipe.Stage(m.ctx, files...)
		return stagedMsg{refs: refs, err: err}
	}
}

func (m chatModel) sendAttachments(msg *bus.OutboundMessage, refs []*media.AttachmentRef) tea.Cmd {
	return func() tea.Msg {
		r, err := m.pipe.SendAttachments(m.ctx, msg, refs)
		m.deliver(deliveredMsg{receipt: r, err: err, attachments: true})
		return nil
	}
}

func (m *chatModel) add(role, content string) {
	m.history = append(m.history, chatEntry{role: role, content: content})
	m.refresh()
}

func (m *chatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderHistory())
	m.viewport.GotoBottom()
}

func (m chatModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	header := TitleStyle.Render(fmt.Sprintf(" %s courier", Logo))
	divider := DimStyle.Render(strings.Repeat("─", m.width))

	var inputLine string
	if m.sending {
		inputLine = fmt.Sprintf(" %s Uploading...", m.spinner.View())
	} else {
		inputLine = " " + m.input.View()
	}

	view := header + "\n" + divider + "\n" + m.viewport.View() + "\n"
	if bars := m.renderUploads(); bars != "" {
		view += bars
	}
	return view + divider + "\n" + inputLine + "\n" + m.renderStatusBar()
}

func (m chatModel) renderHistory() string {
	if len(m.history) == 0 {
		return m.renderWelcome()
	}

	var sb strings.Builder
	for _, entry := range m.history {
		switch entry.role {
		case "user":
			sb.WriteString("\n  " + UserLabel.Render("You") + "\n")
			for _, line := range strings.Split(entry.content, "\n") {
				sb.WriteString("  " + line + "\n")
			}
		case "sent":
			sb.WriteString("  " + OkStyle.Render("✓ ") + DimStyle.Render("delivered via ") + entry.content + "\n")
		case "attach":
			sb.WriteString("  " + SentLabel.Render("+ ") + entry.content + "\n")
		case "info":
			sb.WriteString("  " + DimStyle.Render(entry.content) + "\n")
		case "error":
			sb.WriteString("  " + ErrStyle.Render("Error: "+entry.content) + "\n")
		}
	}
	return sb.String()
}

func (m chatModel) renderWelcome() string {
	var sb strings.Builder
	sb.WriteString("\n")
	sb.WriteString(RenderBanner())
	sb.WriteString("\n")
	sb.WriteString("  " + BoldStyle.Render("Tips for getting started:") + "\n")
	sb.WriteString(DimStyle.Render("  1. Type and press Enter; rapid sends are batched") + "\n")
	sb.WriteString(DimStyle.Render("  2. /attach <path> stages files, the next message carries them") + "\n")
	sb.WriteString(DimStyle.Render("  3. /discard drops staged files") + "\n")
	return sb.String()
}

func (m chatModel) renderUploads() string {
	if len(m.uploads) == 0 {
		return ""
	}
	indexes := make([]int, 0, len(m.uploads))
	for i := range m.uploads {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	var sb strings.Builder
	for _, i := range indexes {
		e := m.uploads[i]
		label := fmt.Sprintf("  #%d ", i+1)
		switch e.Status {
		case progress.StatusFailed:
			sb.WriteString(label + ErrStyle.Render("failed: "+e.Error) + "\n")
		default:
			sb.WriteString(label + m.bar.ViewAs(float64(e.Percent)/100) + "\n")
		}
	}
	return sb.String()
}

func (m chatModel) renderStatusBar() string {
	target := m.cfg.Channel
	if m.cfg.ChatID != "" {
		target += " · " + m.cfg.ChatID
	}
	left := DimStyle.Render(" " + target)

	var parts []string
	if m.typing {
		parts = append(parts, WarnStyle.Render("typing"))
	}
	if n := len(m.staged); n > 0 {
		parts = append(parts, fmt.Sprintf("%d staged", n))
	}
	if m.inflight > 0 {
		parts = append(parts, fmt.Sprintf("%s %d pending", m.spinner.View(), m.inflight))
	}
	right := DimStyle.Render(strings.Join(parts, "  ") + " ")

	gap := max(m.width-lipgloss.Width(left)-lipgloss.Width(right), 1)
	return left + strings.Repeat(" ", gap) + right
}

func describeRef(r *media.AttachmentRef) string {
	s := fmt.Sprintf("%s %s", r.Name, DimStyle.Render(humanize.IBytes(uint64(r.OptimizedSize))))
	if r.CompressionRatio > 0 {
		s += DimStyle.Render(fmt.Sprintf(" (was %s, -%.1f%%)", humanize.IBytes(uint64(r.OriginalSize)), r.CompressionRatio))
	}
	return s
}

func describeError(err error) string {
	var failed *sender.DeliveryFailedError
	if errors.As(err, &failed) {
		return fmt.Sprintf("not delivered after %d attempts: %v", failed.Attempts, failed.Last.Err)
	}
	return err.Error()
}

func isExitCmd(s string) bool {
	s = strings.ToLower(s)
	return s == "exit" || s == "quit" || s == "/exit" || s == "/quit" || s == ":q"
}

// RunChat starts the interactive chat TUI.
func RunChat(ctx context.Context, pipe *pipeline.Pipeline, cfg ChatConfig) error {
	m := newChatModel(ctx, pipe, cfg)
	unsubscribe := m.subscribe()
	defer unsubscribe()

	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if fm, ok := final.(chatModel); ok {
		pipe.Discard(fm.staged)
	}
	return err
}
