package cli

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/joebot/courier/internal/bus"
	"github.com/joebot/courier/internal/media"
	"github.com/joebot/courier/internal/pipeline"
	"github.com/joebot/courier/internal/progress"
)

// SendRequest is one message given on the command line.
type SendRequest struct {
	Content string
	ReplyTo string
	Files   []string
}

type sendResultMsg struct {
	refs    []*media.AttachmentRef
	receipt *bus.Receipt
	err     error
}

// --- single message model ---

type singleModel struct {
	spinner spinner.Model
	pipe    *pipeline.Pipeline
	ctx     context.Context
	req     SendRequest
	events  chan tea.Msg

	uploads progress.Snapshot
	result  sendResultMsg
	done    bool
}

func (m singleModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.send(), waitForEvent(m.events))
}

func (m singleModel) send() tea.Cmd {
	return func() tea.Msg {
		msg := &bus.OutboundMessage{Content: m.req.Content, ReplyTo: m.req.ReplyTo}
		if len(m.req.Files) == 0 {
			r, err := m.pipe.Send(m.ctx, msg)
			return sendResultMsg{receipt: r, err: err}
		}

		files := make([]*media.File, 0, len(m.req.Files))
		for _, p := range m.req.Files {
			f, err := media.ReadFile(p)
			if err != nil {
				return sendResultMsg{err: err}
			}
			files = append(files, f)
		}
		refs, err := m.pipe.Stage(m.ctx, files...)
		if err != nil {
			return sendResultMsg{err: err}
		}
		r, err := m.pipe.SendAttachments(m.ctx, msg, refs)
		return sendResultMsg{refs: refs, receipt: r, err: err}
	}
}

func (m singleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
	case progressMsg:
		m.uploads = progress.Snapshot(msg)
		return m, waitForEvent(m.events)
	case sendResultMsg:
		m.result = msg
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m singleModel) View() string {
	if m.done {
		return ""
	}
	status := "Sending..."
	if n := len(m.uploads); n > 0 {
		var total int
		for _, e := range m.uploads {
			total += e.Percent
		}
		status = fmt.Sprintf("Uploading %d file(s)... %d%%", n, total/n)
	}
	return fmt.Sprintf("\n %s %s\n", m.spinner.View(), status)
}

// RunSend delivers one message with a spinner, then prints the receipt.
func RunSend(ctx context.Context, pipe *pipeline.Pipeline, req SendRequest) error {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(Accent)

	m := singleModel{
		spinner: sp,
		pipe:    pipe,
		ctx:     ctx,
		req:     req,
		events:  make(chan tea.Msg, 64),
	}
	off := pipe.Progress().AddListener(func(s progress.Snapshot) {
		select {
		case m.events <- progressMsg(s):
		default:
		}
	})
	defer off()

	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return err
	}

	fm := final.(singleModel)
	if !fm.done {
		return context.Canceled
	}
	if fm.result.err != nil {
		fmt.Println(ErrStyle.Render("\n  Error: " + describeError(fm.result.err)))
		return fm.result.err
	}

	fmt.Println()
	r := fm.result.receipt
	fmt.Println("  " + OkStyle.Render("✓") + " Delivered via " + SentLabel.Render(r.Channel) + " " + DimStyle.Render(r.RemoteID))
	for _, ref := range fm.result.refs {
		fmt.Println("    " + describeRef(ref))
	}
	fmt.Println()
	return nil
}
