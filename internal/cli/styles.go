package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const Logo = "📨"
const Version = "0.1.0"

var (
	Accent = lipgloss.Color("#00D4FF")
	Subtle = lipgloss.Color("#555555")
	Green  = lipgloss.Color("#04B575")
	Red    = lipgloss.Color("#FF4444")
	Amber  = lipgloss.Color("#FFB000")

	TitleStyle = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	BoldStyle  = lipgloss.NewStyle().Bold(true)
	UserLabel  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#AAAAAA"))
	SentLabel  = lipgloss.NewStyle().Bold(true).Foreground(Accent)
	ErrStyle   = lipgloss.NewStyle().Foreground(Red)
	OkStyle    = lipgloss.NewStyle().Foreground(Green).Bold(true)
	WarnStyle  = lipgloss.NewStyle().Foreground(Amber)
	DimStyle   = lipgloss.NewStyle().Foreground(Subtle)
)

func StatusBadge(ok bool) string {
	if ok {
		return OkStyle.Render("✓")
	}
	return DimStyle.Render("✗")
}

// RenderBanner returns the welcome banner shown in an empty chat.
func RenderBanner() string {
	var sb strings.Builder
	sb.WriteString("  " + TitleStyle.Render(fmt.Sprintf("%s courier v%s", Logo, Version)) + "\n")
	sb.WriteString("  " + DimStyle.Render(strings.Repeat("─", 24)) + "\n")
	return sb.String()
}
