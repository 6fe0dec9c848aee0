package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// spinnerProgress shows a spinner on stderr while the server starts. Without
// a TTY it degrades to a single status line.
type spinnerProgress struct {
	quiet bool
}

func (p spinnerProgress) Begin(msg string) func() {
	if p.quiet {
		return func() {}
	}
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		fmt.Fprintln(os.Stderr, msg)
		return func() {}
	}

	model := spinnerModel{
		spinner: newSpinner(),
		message: msg,
	}
	prog := tea.NewProgram(model, tea.WithOutput(os.Stderr))
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = prog.Run()
	}()
	return func() {
		prog.Quit()
		<-done
	}
}

func newSpinner() spinner.Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return s
}

type spinnerModel struct {
	spinner spinner.Model
	message string
}

func (m spinnerModel) Init() tea.Cmd { return m.spinner.Tick }

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	default:
		return m, nil
	}
}

func (m spinnerModel) View() string {
	return fmt.Sprintf("%s %s", m.spinner.View(), m.message)
}
