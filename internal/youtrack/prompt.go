package youtrack

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TerminalResolver asks the operator for the missing numeric suffix of a
// placeholder issue id. It deliberately blocks the upload loop: the item
// cannot be created before the identifier is correct.
type TerminalResolver struct{}

// Resolve runs an inline prompt and substitutes the answer for the
// placeholder token.
func (TerminalResolver) Resolve(candidate string) (string, error) {
	model := newPromptModel(candidate)
	program := tea.NewProgram(model)

	final, err := program.Run()
	if err != nil {
		return "", fmt.Errorf("cannot run prompt: %w", err)
	}

	result, ok := final.(promptModel)
	if !ok || result.aborted {
		return "", fmt.Errorf("placeholder resolution for %q was aborted", candidate)
	}

	return strings.Replace(candidate, placeholderToken, result.input.Value(), 1), nil
}

// StaticResolver substitutes a fixed replacement for the placeholder token.
// It serves tests and non-interactive runs.
type StaticResolver struct {
	Replacement string
}

func (r StaticResolver) Resolve(candidate string) (string, error) {
	if r.Replacement == "" {
		return "", fmt.Errorf("no replacement configured for placeholder id %q", candidate)
	}
	return strings.Replace(candidate, placeholderToken, r.Replacement, 1), nil
}

var promptStyle = lipgloss.NewStyle().Bold(true)

type promptModel struct {
	candidate string
	input     textinput.Model
	done      bool
	aborted   bool
}

func newPromptModel(candidate string) promptModel {
	input := textinput.New()
	input.Placeholder = "123"
	input.CharLimit = 16
	input.Focus()

	return promptModel{
		candidate: candidate,
		input:     input,
	}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter":
			m.done = true
			return m, tea.Quit
		case "ctrl+c", "esc":
			m.aborted = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || m.aborted {
		return ""
	}
	question := promptStyle.Render(fmt.Sprintf("==> enter number to replace %q in %s:", placeholderToken, m.candidate))
	return fmt.Sprintf("%s %s\n", question, m.input.View())
}
