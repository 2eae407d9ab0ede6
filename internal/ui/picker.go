// Package ui renders the interactive execution-path picker used by the
// one-shot CLI.
package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/ropas/pytea-sub003/internal/paths"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	stoppedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	failedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle      = lipgloss.NewStyle().Faint(true)
	maxTitleWidth = 72
)

type keymap struct {
	Up     key.Binding
	Down   key.Binding
	Select key.Binding
	Quit   key.Binding
}

func defaultKeymap() keymap {
	return keymap{
		Up:     key.NewBinding(key.WithKeys("up", "k")),
		Down:   key.NewBinding(key.WithKeys("down", "j")),
		Select: key.NewBinding(key.WithKeys("enter")),
		Quit:   key.NewBinding(key.WithKeys("q", "esc", "ctrl+c")),
	}
}

type pickerModel struct {
	title  string
	items  []paths.Props
	keys   keymap
	cursor int
	chosen int
}

// PickPath presents the batch and returns the chosen path index, or -1 when
// the picker was dismissed.
func PickPath(entry string, items []paths.Props) (int, error) {
	if len(items) == 0 {
		return -1, nil
	}
	model := &pickerModel{
		title:  runewidth.Truncate(entry, maxTitleWidth, "…"),
		items:  items,
		keys:   defaultKeymap(),
		chosen: -1,
	}
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return -1, err
	}
	picked, ok := final.(*pickerModel)
	if !ok {
		return -1, fmt.Errorf("unexpected picker model %T", final)
	}
	return picked.chosen, nil
}

func (m *pickerModel) Init() tea.Cmd { return nil }

func (m *pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Select):
		m.chosen = m.cursor
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.Quit):
		return m, tea.Quit
	}
	return m, nil
}

func (m *pickerModel) View() string {
	out := titleStyle.Render("execution paths: "+m.title) + "\n\n"
	for i, item := range m.items {
		cursor := "  "
		if i == m.cursor {
			cursor = cursorStyle.Render("> ")
		}
		out += fmt.Sprintf("%spath %d  %s\n", cursor, item.ID, statusLabel(item.Status))
	}
	out += "\n" + dimStyle.Render("enter: select  q: quit") + "\n"
	return out
}

func statusLabel(status string) string {
	switch status {
	case "success":
		return successStyle.Render(status)
	case "stopped":
		return stoppedStyle.Render(status)
	case "failed":
		return failedStyle.Render(status)
	}
	return status
}
