package style

import (
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	Primary = lipgloss.Color("#7C3AED")
	Green   = lipgloss.Color("#10B981")
	Red     = lipgloss.Color("#EF4444")
	Yellow  = lipgloss.Color("#F59E0B")
	Dim     = lipgloss.Color("#6B7280")
	White   = lipgloss.Color("#F9FAFB")

	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(Primary).
		MarginBottom(1)

	Bold = lipgloss.NewStyle().Bold(true).Foreground(White)

	Up      = lipgloss.NewStyle().Foreground(Green).Bold(true)
	Down    = lipgloss.NewStyle().Foreground(Red).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(Yellow)
	DimText = lipgloss.NewStyle().Foreground(Dim)

	TableHeader = lipgloss.NewStyle().Bold(true).Foreground(Primary)

	SuccessBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Green).
			Foreground(Green).
			Padding(0, 1)

	Key = lipgloss.NewStyle().Foreground(Dim).Width(16)
)

// Status renders a monitor or incident status with its color.
func Status(s string) string {
	switch s {
	case "UP", "RESOLVED":
		return Up.Render(s)
	case "DOWN", "ONGOING":
		return Down.Render(s)
	default:
		return DimText.Render(s)
	}
}

func Duration(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Second).String()
}

func When(t *time.Time) string {
	if t == nil || t.IsZero() {
		return DimText.Render("never")
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
