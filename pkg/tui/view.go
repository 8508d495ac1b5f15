package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/stream"
)

const lineTimeLayout = "15:04:05.000"

// View renders the UI
func (m Model) View() string {
	var s strings.Builder

	s.WriteString(m.renderHeader())
	s.WriteString("\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	switch m.tab {
	case tabStreams:
		s.WriteString(m.renderStreams())
	default:
		s.WriteString(m.renderLogs())
	}

	s.WriteString("\n")
	s.WriteString(m.renderFooter())
	return s.String()
}

func (m Model) renderHeader() string {
	resources := strings.Join(m.ctl.Resources(), ", ")
	if resources == "" {
		resources = "no resources"
	}
	left := titleStyle.Render("logwatch") + " " + subtitleStyle.Render(resources)
	right := statusStyle(m.state.Status).Render(connectionLabel(m.state, m.now))
	return left + "  " + right + "\n" + subtitleStyle.Render(m.statsLine())
}

func connectionLabel(st stream.State, now time.Time) string {
	switch st.Status {
	case stream.StatusReconnecting:
		if st.BackoffUntil.IsZero() {
			return fmt.Sprintf("%s (retry %d)", st.Status, st.RetryCount)
		}
		return fmt.Sprintf("%s (retry %d in %s)", st.Status, st.RetryCount, retryIn(st.BackoffUntil.Sub(now)))
	case stream.StatusFailed:
		if st.LastError != nil {
			return fmt.Sprintf("%s: %s", st.Status, st.LastError.Error())
		}
	}
	return st.Status.String()
}

// retryIn rounds the remaining backoff up to a tenth of a second.
func retryIn(d time.Duration) string {
	if d <= 0 {
		return "0.0s"
	}
	tenths := int64((d + 100*time.Millisecond - 1) / (100 * time.Millisecond))
	return fmt.Sprintf("%d.%ds", tenths/10, tenths%10)
}

func (m Model) statsLine() string {
	parts := []string{
		fmt.Sprintf("total %d", m.stats.TotalCount),
		fmt.Sprintf("shown %d", m.stats.FilteredCount),
		fmt.Sprintf("%d/min", m.stats.RatePerMinute),
	}
	if m.filter.MinLevel != "" {
		parts = append(parts, "level>="+m.filter.MinLevel.String())
	}
	if m.filter.Search != "" {
		parts = append(parts, fmt.Sprintf("search %q", m.filter.Search))
	}
	if m.paused {
		parts = append(parts, "PAUSED")
	}
	return strings.Join(parts, " | ")
}

func (m Model) renderTabs() string {
	names := []string{"Logs", "Streams"}
	out := make([]string, len(names))
	for i, n := range names {
		if tab(i) == m.tab {
			out[i] = activeTabStyle.Render(n)
		} else {
			out[i] = inactiveTabStyle.Render(n)
		}
	}
	return strings.Join(out, " ")
}

// logLines is the number of log rows that fit on screen.
func (m Model) logLines() int {
	n := m.height - chromeLines
	if n < 1 {
		n = 1
	}
	return n
}

// visible returns the slice of the view currently on screen.
func (m Model) visible() []logs.LogEntry {
	n := m.logLines()
	end := len(m.view) - m.offset
	if end < 0 {
		end = 0
	}
	start := end - n
	if start < 0 {
		start = 0
	}
	return m.view[start:end]
}

func (m Model) renderLogs() string {
	rows := m.visible()
	if len(rows) == 0 {
		return helpStyle.Render("Waiting for logs...")
	}
	lines := make([]string, len(rows))
	for i, e := range rows {
		lines[i] = m.renderEntry(e)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderEntry(e logs.LogEntry) string {
	source := e.Source
	if source == "" {
		source = "-"
	}
	prefixWidth := len(lineTimeLayout) + 1 + 7 + 1 + len(source) + 1
	msg := truncate(strings.ReplaceAll(e.Message, "\n", " "), m.width-prefixWidth)

	return timestampStyle.Render(e.Timestamp.Local().Format(lineTimeLayout)) + " " +
		levelStyle(e.Level).Render(fmt.Sprintf("%-7s", strings.ToUpper(e.Level.String()))) + " " +
		sourceStyle.Render(source) + " " +
		msg
}

func truncate(s string, width int) string {
	if width <= 1 {
		return ""
	}
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func (m Model) renderStreams() string {
	if len(m.streams) == 0 {
		return helpStyle.Render("No log streams. Press r to refresh.")
	}
	return m.table.View()
}

func (m Model) renderFooter() string {
	var s strings.Builder

	switch m.mode {
	case modeSearch:
		s.WriteString("Search: " + m.input.View() + "\n")
	case modeExport:
		s.WriteString("Export to: " + m.input.View() + "\n")
	default:
		switch {
		case m.err != nil:
			s.WriteString(errorStyle.Render("✗ "+m.err.Error()) + "\n")
		case m.status != "":
			s.WriteString(successStyle.Render(m.status) + "\n")
		default:
			s.WriteString("\n")
		}
	}

	help := "q quit • c clear • f level • / search • s save • tab switch • r refresh • p pause"
	switch {
	case m.mode != modeNone:
		help = "Enter to confirm • Esc to cancel"
	case m.tab == tabStreams:
		help = "↑/↓ select • enter apply • d delete • r refresh • tab logs • q quit"
	case m.state.Status == stream.StatusFailed:
		help += " • ctrl+r reconnect"
	}
	s.WriteString(helpStyle.Render(help))
	return s.String()
}
