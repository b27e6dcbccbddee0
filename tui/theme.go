package tui

import "github.com/charmbracelet/lipgloss"

type Theme struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Help     lipgloss.Style
	Card     lipgloss.Style
	Key      lipgloss.Style
	Good     lipgloss.Style
	Bad      lipgloss.Style
}

func DefaultTheme() Theme {
	return Theme{
		Title:    lipgloss.NewStyle().Bold(true),
		Subtitle: lipgloss.NewStyle().Faint(true),
		Help:     lipgloss.NewStyle().Faint(true),
		Card: lipgloss.NewStyle().
			Padding(0, 1).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")),
		Key:  lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		Good: lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		Bad:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}
}

// yesNo renders a probe outcome.
func (t Theme) yesNo(ok bool) string {
	if ok {
		return t.Good.Render("yes")
	}
	return t.Bad.Render("no")
}
