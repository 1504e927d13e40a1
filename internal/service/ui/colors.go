// Package ui holds the terminal styles shared by the CLI and its help output.
package ui

import "github.com/charmbracelet/lipgloss"

// ANSI base colors only, so output follows the terminal theme.
var (
	TitleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Bold(true)

	UsageStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	// DescStyle is dimmed for secondary text.
	DescStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	FlagStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))

	ErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	ToolStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))

	RoleStyles = map[string]lipgloss.Style{
		"user":      lipgloss.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		"assistant": lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		"tool":      ToolStyle,
		"system":    DescStyle,
	}
)

// Role renders a message role label.
func Role(role string) string {
	if s, ok := RoleStyles[role]; ok {
		return s.Render(role)
	}
	return role
}
