package cli

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/vburojevic/dth/internal/devtools"
	"github.com/vburojevic/dth/internal/launch"
)

const externalChoiceLabel = "Open DevTools externally"

var (
	pickerTitleStyle    = lipgloss.NewStyle().Bold(true)
	pickerSelectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	pickerDimStyle      = lipgloss.NewStyle().Faint(true)
)

// pagePicker implements the interactive page prompt with a bubbletea list.
// A non-TTY stdin downgrades straight to the external-browser choice.
type pagePicker struct{}

func (pagePicker) ChoosePage(ctx context.Context, pages []devtools.Page) (launch.PageChoice, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return launch.PageChoice{External: true}, nil
	}

	model := pickerModel{pages: pages}
	p := tea.NewProgram(model, tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return launch.PageChoice{}, fmt.Errorf("page prompt: %w", err)
	}

	m, ok := final.(pickerModel)
	if !ok || m.cancelled {
		return launch.PageChoice{Cancelled: true}, nil
	}
	if m.cursor == len(m.pages) {
		return launch.PageChoice{External: true}, nil
	}
	return launch.PageChoice{Page: m.pages[m.cursor].ID}, nil
}

type pickerModel struct {
	pages     []devtools.Page
	cursor    int
	cancelled bool
	chosen    bool
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "esc", "q":
		m.cancelled = true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.pages) {
			m.cursor++
		}
	case "enter":
		m.chosen = true
		return m, tea.Quit
	}
	return m, nil
}

func (m pickerModel) View() string {
	if m.chosen || m.cancelled {
		return ""
	}

	s := pickerTitleStyle.Render("Which DevTools page?") + "\n\n"
	for i, page := range m.pages {
		s += m.renderRow(i, page.Title)
	}
	s += m.renderRow(len(m.pages), externalChoiceLabel)
	s += "\n" + pickerDimStyle.Render("enter: open • esc: cancel") + "\n"
	return s
}

func (m pickerModel) renderRow(i int, label string) string {
	if i == m.cursor {
		return pickerSelectedStyle.Render("> "+label) + "\n"
	}
	return "  " + label + "\n"
}
