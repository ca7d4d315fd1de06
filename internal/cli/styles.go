package cli

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/julianstephens/planmate/internal/models"
)

var (
	HeaderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	MutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	DangerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)

	cellStyle = lipgloss.NewStyle().Padding(0, 1)
)

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(MutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return HeaderStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		String()
}

// StatusLabel colours a status for display.
func StatusLabel(st models.Status) string {
	switch st {
	case models.StatusCompleted:
		return SuccessStyle.Render(string(st))
	case models.StatusWorking:
		return WarningStyle.Render(string(st))
	}
	return MutedStyle.Render(string(st))
}
