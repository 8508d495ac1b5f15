// Package tui renders the monitor in a terminal with bubbletea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/DeBrosOfficial/logwatch/pkg/export"
	"github.com/DeBrosOfficial/logwatch/pkg/logs"
	"github.com/DeBrosOfficial/logwatch/pkg/monitor"
	"github.com/DeBrosOfficial/logwatch/pkg/registry"
	"github.com/DeBrosOfficial/logwatch/pkg/stream"
)

// Controller is the part of the monitor the UI drives.
type Controller interface {
	ApplyFilter(f logs.Filter)
	Filter() logs.Filter
	Clear()
	TriggerExport(destination string, format export.Format) (string, error)
	RefreshStreams(ctx context.Context) ([]registry.LogStream, error)
	ActivateStream(ctx context.Context, id string) (registry.LogStream, error)
	DeleteStream(ctx context.Context, id string) error
	Reconnect() error
	Resources() []string
}

var _ Controller = (*monitor.Monitor)(nil)

type tab int

const (
	tabLogs tab = iota
	tabStreams
)

type inputMode int

const (
	modeNone inputMode = iota
	modeSearch
	modeExport
)

const requestTimeout = 30 * time.Second

// chromeLines is the number of lines used by header, tabs and footer.
const chromeLines = 7

type streamsMsg struct {
	streams []registry.LogStream
	err     error
}

type exportDoneMsg struct {
	path string
	err  error
}

type actionDoneMsg struct {
	status string
	err    error
	reload bool
	filter *logs.Filter // buffer filter after the action, when it changed
}

// countdownMsg redraws the reconnect countdown.
type countdownMsg time.Time

const countdownInterval = 250 * time.Millisecond

// Model is the bubbletea model for the log viewer.
type Model struct {
	ctl Controller

	tab    tab
	mode   inputMode
	input  textinput.Model
	table  table.Model
	width  int
	height int

	view    []logs.LogEntry
	stats   logs.Stats
	state   stream.State
	filter  logs.Filter
	streams []registry.LogStream

	paused bool
	offset int // lines scrolled up from the bottom while paused

	status string
	err    error

	clock   func() time.Time
	now     time.Time
	ticking bool
}

// NewModel creates a model driving ctl.
func NewModel(ctl Controller) Model {
	ti := textinput.New()
	ti.CharLimit = 256
	ti.Width = 50

	t := table.New(
		table.WithColumns(streamColumns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	return Model{
		ctl:    ctl,
		input:  ti,
		table:  t,
		filter: ctl.Filter(),
		width:  80,
		height: 24,
		clock:  time.Now,
	}
}

func streamColumns(width int) []table.Column {
	name := width - 12 - 16 - 8 - 10 - 8
	if name < 12 {
		name = 12
	}
	return []table.Column{
		{Title: "ID", Width: 12},
		{Title: "Name", Width: name},
		{Title: "Resource", Width: 16},
		{Title: "Level", Width: 8},
		{Title: "Enabled", Width: 8},
	}
}

// Init loads the stream list.
func (m Model) Init() tea.Cmd {
	return m.refreshStreams()
}

func (m Model) refreshStreams() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		streams, err := ctl.RefreshStreams(ctx)
		return streamsMsg{streams: streams, err: err}
	}
}

func (m Model) exportView(dest string) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		path, err := ctl.TriggerExport(dest, "")
		return exportDoneMsg{path: path, err: err}
	}
}

func (m Model) activateStream(id string) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		ls, err := ctl.ActivateStream(ctx, id)
		if err != nil {
			return actionDoneMsg{err: err}
		}
		f := ctl.Filter()
		return actionDoneMsg{status: fmt.Sprintf("Applied stream %q", ls.Name), filter: &f}
	}
}

func countdown() tea.Cmd {
	return tea.Tick(countdownInterval, func(t time.Time) tea.Msg { return countdownMsg(t) })
}

func (m Model) deleteStream(id string) tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if err := ctl.DeleteStream(ctx, id); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Stream deleted", reload: true}
	}
}

func (m Model) reconnect() tea.Cmd {
	ctl := m.ctl
	return func() tea.Msg {
		if err := ctl.Reconnect(); err != nil {
			return actionDoneMsg{err: err}
		}
		return actionDoneMsg{status: "Reconnecting"}
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetColumns(streamColumns(msg.Width))
		m.table.SetHeight(max(3, msg.Height-chromeLines))
		return m, nil

	case bufferMsg:
		m.view = msg.view
		m.stats = msg.stats
		m.clampOffset()
		return m, nil

	case stateMsg:
		m.state = msg.state
		m.now = m.clock()
		if m.state.Status == stream.StatusReconnecting && !m.ticking {
			m.ticking = true
			return m, countdown()
		}
		return m, nil

	case countdownMsg:
		m.now = time.Time(msg)
		if m.state.Status != stream.StatusReconnecting {
			m.ticking = false
			return m, nil
		}
		return m, countdown()

	case streamsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.streams = msg.streams
		m.table.SetRows(streamRows(msg.streams))
		return m, nil

	case exportDoneMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
		} else {
			m.err = nil
			m.status = "Exported " + msg.path
		}
		return m, nil

	case actionDoneMsg:
		m.err = msg.err
		m.status = msg.status
		if msg.filter != nil {
			m.filter = *msg.filter
		}
		if msg.reload {
			return m, m.refreshStreams()
		}
		return m, nil

	case tea.KeyMsg:
		if m.mode != modeNone {
			return m.updateInput(msg)
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		return m, tea.Quit

	case "tab":
		if m.tab == tabLogs {
			m.tab = tabStreams
		} else {
			m.tab = tabLogs
		}
		return m, nil

	case "c":
		m.ctl.Clear()
		m.offset = 0
		m.status = "Buffer cleared"
		return m, nil

	case "f":
		m.filter.MinLevel = logs.NextLevel(m.filter.MinLevel)
		m.ctl.ApplyFilter(m.filter)
		return m, nil

	case "/":
		m.mode = modeSearch
		m.input.Placeholder = "search messages"
		m.input.SetValue(m.filter.Search)
		m.input.CursorEnd()
		return m, m.input.Focus()

	case "s":
		m.mode = modeExport
		m.input.Placeholder = "file name (.log, .jsonl, .csv, optional .zst)"
		m.input.SetValue(monitor.DefaultExportName(time.Now(), export.FormatText))
		m.input.CursorEnd()
		return m, m.input.Focus()

	case "r":
		m.status = "Refreshing streams"
		return m, m.refreshStreams()

	case "ctrl+r":
		return m, m.reconnect()

	case "p":
		m.paused = !m.paused
		if !m.paused {
			m.offset = 0
		}
		return m, nil

	case "esc":
		m.err = nil
		m.status = ""
		if m.filter.Search != "" {
			m.filter.Search = ""
			m.ctl.ApplyFilter(m.filter)
		}
		return m, nil
	}

	if m.tab == tabStreams {
		return m.handleStreamsKey(msg)
	}
	return m.handleScroll(msg)
}

func (m Model) handleScroll(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := m.logLines()
	switch msg.String() {
	case "up", "k":
		m.scroll(1)
	case "down", "j":
		m.scroll(-1)
	case "pgup":
		m.scroll(page)
	case "pgdown":
		m.scroll(-page)
	case "home", "g":
		m.scroll(len(m.view))
	case "end", "G":
		m.offset = 0
		m.paused = false
	}
	return m, nil
}

// scroll moves the window up by n lines (down when negative). Scrolling up
// pauses autoscroll.
func (m *Model) scroll(n int) {
	m.offset += n
	if n > 0 {
		m.paused = true
	}
	m.clampOffset()
}

func (m *Model) clampOffset() {
	limit := len(m.view) - m.logLines()
	if limit < 0 {
		limit = 0
	}
	if m.offset > limit {
		m.offset = limit
	}
	if m.offset < 0 {
		m.offset = 0
	}
}

func (m Model) handleStreamsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if ls, ok := m.selectedStream(); ok {
			return m, m.activateStream(ls.ID)
		}
		return m, nil
	case "d", "delete":
		if ls, ok := m.selectedStream(); ok {
			return m, m.deleteStream(ls.ID)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) selectedStream() (registry.LogStream, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.streams) {
		return registry.LogStream{}, false
	}
	return m.streams[i], true
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		value := strings.TrimSpace(m.input.Value())
		mode := m.mode
		m.mode = modeNone
		m.input.Blur()
		switch mode {
		case modeSearch:
			m.filter.Search = value
			m.ctl.ApplyFilter(m.filter)
			return m, nil
		case modeExport:
			m.status = "Exporting..."
			return m, m.exportView(value)
		}
		return m, nil

	case "esc":
		m.mode = modeNone
		m.input.Blur()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func streamRows(streams []registry.LogStream) []table.Row {
	rows := make([]table.Row, 0, len(streams))
	for _, s := range streams {
		level := s.Filter.Level.String()
		if level == "" {
			level = "any"
		}
		enabled := "no"
		if s.Enabled {
			enabled = "yes"
		}
		rows = append(rows, table.Row{shortID(s.ID), s.Name, s.ResourceID, level, enabled})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 11 {
		return id[:11]
	}
	return id
}

// Run starts the interactive viewer on mon and blocks until the user quits.
func Run(ctx context.Context, mon *monitor.Monitor) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bridge := NewBridge(50 * time.Millisecond)
	p := tea.NewProgram(NewModel(mon), tea.WithAltScreen(), tea.WithContext(ctx))
	mon.SetObserver(bridge)
	defer mon.SetObserver(nil)

	go bridge.Run(ctx, p.Send)

	_, err := p.Run()
	if err == tea.ErrProgramKilled && ctx.Err() != nil {
		return nil
	}
	return err
}
