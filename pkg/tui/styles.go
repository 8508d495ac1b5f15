package tui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/stream"
)

var (
	accent = lipgloss.Color("#00D4AA")
	muted  = lipgloss.Color("#888888")
	dim    = lipgloss.Color("#626262")
	danger = lipgloss.Color("#FF6B6B")
	warn   = lipgloss.Color("#FFC857")
	info   = lipgloss.Color("#7AA2F7")

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(muted)

	helpStyle = lipgloss.NewStyle().
			Foreground(dim)

	errorStyle = lipgloss.NewStyle().
			Foreground(danger).
			Bold(true)

	successStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Underline(true).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(muted).
				Padding(0, 1)

	timestampStyle = lipgloss.NewStyle().Foreground(dim)
	sourceStyle    = lipgloss.NewStyle().Foreground(muted)
)

var levelStyles = map[logs.Level]lipgloss.Style{
	logs.LevelDebug: lipgloss.NewStyle().Foreground(dim),
	logs.LevelInfo:  lipgloss.NewStyle().Foreground(info),
	logs.LevelWarn:  lipgloss.NewStyle().Foreground(warn),
	logs.LevelError: lipgloss.NewStyle().Foreground(danger),
	logs.LevelFatal: lipgloss.NewStyle().Foreground(danger).Bold(true).Reverse(true),
}

func levelStyle(l logs.Level) lipgloss.Style {
	if s, ok := levelStyles[l]; ok {
		return s
	}
	return levelStyles[logs.LevelInfo]
}

func statusStyle(s stream.Status) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch s {
	case stream.StatusConnected:
		return base.Foreground(lipgloss.Color("#000000")).Background(accent)
	case stream.StatusConnecting, stream.StatusReconnecting:
		return base.Foreground(lipgloss.Color("#000000")).Background(warn)
	case stream.StatusFailed:
		return base.Foreground(lipgloss.Color("#FFFFFF")).Background(danger)
	default:
		return base.Foreground(muted)
	}
}
