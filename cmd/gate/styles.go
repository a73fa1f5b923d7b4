package main

import (
	"github.com/charmbracelet/lipgloss"

	"gatecheck/internal/alignment"
)

var (
	Success     = lipgloss.Color("#8BC34A")
	Warning     = lipgloss.Color("#FFC107")
	Destructive = lipgloss.Color("#e53935")
	Info        = lipgloss.Color("#2196F3")
	Muted       = lipgloss.Color("#6b7280")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(Info).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Width(12)
	mutedStyle = lipgloss.NewStyle().Foreground(Muted)
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Muted).
			Padding(0, 1)
)

// levelStyle colours an alignment level by severity.
func levelStyle(l alignment.Level) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch l {
	case alignment.LevelPerfect, alignment.LevelGood:
		return s.Foreground(Success)
	case alignment.LevelConcerning:
		return s.Foreground(Warning)
	case alignment.LevelCritical:
		return s.Foreground(Destructive)
	case alignment.LevelUnknown:
		return s.Foreground(Muted)
	}
	return s
}

// scoreStyle colours an overall score.
func scoreStyle(score float64) lipgloss.Style {
	s := lipgloss.NewStyle().Bold(true)
	switch {
	case score >= 80:
		return s.Foreground(Success)
	case score >= 50:
		return s.Foreground(Warning)
	default:
		return s.Foreground(Destructive)
	}
}
