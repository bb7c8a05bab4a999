package cli

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/joebot/courier/internal/config"
)

// --- onboard selection model ---

type onboardChoice int

const (
	choiceUpgrade onboardChoice = iota
	choiceOverwrite
	choiceSkip
)

type onboardModel struct {
	choices []string
	cursor  int
	chosen  bool
	choice  onboardChoice
}

func (m onboardModel) Init() tea.Cmd { return nil }

func (m onboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.choice = choiceSkip
			m.chosen = true
			return m, tea.Quit
		case tea.KeyUp, tea.KeyShiftTab:
			if m.cursor > 0 {
				m.cursor--
			}
		case tea.KeyDown, tea.KeyTab:
			if m.cursor < len(m.choices)-1 {
				m.cursor++
			}
		case tea.KeyEnter:
			m.choice = onboardChoice(m.cursor)
			m.chosen = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m onboardModel) View() string {
	if m.chosen {
		return ""
	}

	s := "\n"
	s += fmt.Sprintf("  Config already exists at %s\n\n", DimStyle.Render(config.ConfigPath()))

	for i, choice := range m.choices {
		cursor := "  "
		if i == m.cursor {
			cursor = SentLabel.Render("❯ ")
		}
		s += "  " + cursor + choice + "\n"
	}

	s += "\n" + DimStyle.Render("  ↑/↓ navigate · enter select · ctrl+c cancel") + "\n"
	return s
}

// RunOnboard creates or upgrades the config file.
func RunOnboard() {
	cfgPath := config.ConfigPath()

	fmt.Println()
	fmt.Println(TitleStyle.Render(fmt.Sprintf("  %s courier Onboard", Logo)))

	if _, err := os.Stat(cfgPath); err == nil {
		m := onboardModel{
			choices: []string{
				"Upgrade: add new fields, keep existing values",
				"Overwrite: replace with fresh defaults",
				"Skip: do not modify config",
			},
		}
		final, err := tea.NewProgram(m).Run()
		if err != nil {
			fail(err)
		}

		fmt.Println()
		switch final.(onboardModel).choice {
		case choiceUpgrade:
			if _, err := config.Upgrade(); err != nil {
				fail(err)
			}
			fmt.Println("  " + OkStyle.Render("✓") + " Upgraded config")
		case choiceOverwrite:
			if err := config.Save(config.DefaultConfig()); err != nil {
				fail(err)
			}
			fmt.Println("  " + OkStyle.Render("✓") + " Overwritten config")
		default:
			fmt.Println("  " + DimStyle.Render("Config unchanged"))
		}
	} else {
		if err := config.Save(config.DefaultConfig()); err != nil {
			fail(err)
		}
		fmt.Println()
		fmt.Println("  " + OkStyle.Render("✓") + " Created config at " + DimStyle.Render(cfgPath))
	}

	fmt.Println()
	fmt.Println(OkStyle.Render("  courier is ready!"))
	fmt.Println()
	fmt.Println(DimStyle.Render("  Next steps:"))
	fmt.Println(DimStyle.Render("  1. Set channels.discord.token or " + config.EnvDiscordToken + " (a .env file works too)"))
	fmt.Println(DimStyle.Render("  2. Set channels.chatId to the Discord channel to post in"))
	fmt.Println(DimStyle.Render("  3. Chat: courier chat, or one-shot: courier send -m \"Hello!\""))
	fmt.Println()
}

func fail(err error) {
	fmt.Println("  " + ErrStyle.Render("Error: "+err.Error()))
	os.Exit(1)
}
