package tui

import "github.com/charmbracelet/lipgloss"

type theme struct {
	header     lipgloss.Style
	headerDim  lipgloss.Style
	user       lipgloss.Style
	model      lipgloss.Style
	toolCall   lipgloss.Style
	toolResult lipgloss.Style
	pending    lipgloss.Style
	failed     lipgloss.Style
	status     lipgloss.Style
	errStatus  lipgloss.Style
	note       lipgloss.Style
	input      lipgloss.Style
}

func newTheme() theme {
	return theme{
		header:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("62")).Padding(0, 1),
		headerDim:  lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Padding(0, 1),
		user:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		model:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		toolCall:   lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		toolResult: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		pending:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("226")),
		failed:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		status:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		errStatus:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		note:       lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("110")),
		input:      lipgloss.NewStyle().BorderStyle(lipgloss.NormalBorder()).BorderTop(true).BorderForeground(lipgloss.Color("240")),
	}
}
