// Package ui provides a terminal dashboard for monitoring a running
// scheduler. Uses Bubbletea for interactive display of queue pressure, agent
// load, and the live event feed.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/marcus/swarmsched/internal/scheduler"
)

// Panel represents which panel is currently focused.
type Panel int

const (
	PanelMetrics Panel = iota
	PanelAgents
	PanelEvents
)

// maxEventLines bounds the event feed buffer.
const maxEventLines = 200

// MetricsMsg delivers a fresh metrics snapshot to the dashboard. Sent from
// outside via Program.Send.
type MetricsMsg scheduler.Metrics

// EventMsg delivers a scheduler event to the dashboard.
type EventMsg scheduler.Event

// AgentRow is one line of the agent panel.
type AgentRow struct {
	ID   string
	Load float64
}

// EventLine is one line of the event feed.
type EventLine struct {
	Time   time.Time
	Label  string
	Detail string
	Level  string // ok, warn, error
}

// Model holds the dashboard state.
type Model struct {
	width       int
	height      int
	activePanel Panel
	quitting    bool

	metrics scheduler.Metrics
	agents  []AgentRow

	events      []EventLine
	eventScroll int

	progressTick int

	styles *Styles
}

// Styles holds lipgloss styles for the dashboard.
type Styles struct {
	ActiveBorder   lipgloss.Style
	InactiveBorder lipgloss.Style

	Title     lipgloss.Style
	Label     lipgloss.Style
	Value     lipgloss.Style
	Muted     lipgloss.Style
	Highlight lipgloss.Style

	StatusOK    lipgloss.Style
	StatusWarn  lipgloss.Style
	StatusError lipgloss.Style

	HelpKey  lipgloss.Style
	HelpText lipgloss.Style
}

// newStyles creates the default style set.
func newStyles() *Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#666", Dark: "#888"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	green := lipgloss.AdaptiveColor{Light: "#22863a", Dark: "#3fb950"}
	yellow := lipgloss.AdaptiveColor{Light: "#b08800", Dark: "#d29922"}
	red := lipgloss.AdaptiveColor{Light: "#cb2431", Dark: "#f85149"}

	return &Styles{
		ActiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(highlight),

		InactiveBorder: lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(subtle),

		Title: lipgloss.NewStyle().
			Bold(true).
			Foreground(highlight).
			MarginBottom(1),

		Label: lipgloss.NewStyle().
			Foreground(subtle),

		Value: lipgloss.NewStyle().
			Bold(true),

		Muted: lipgloss.NewStyle().
			Foreground(subtle),

		Highlight: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		StatusOK: lipgloss.NewStyle().
			Foreground(green).
			Bold(true),

		StatusWarn: lipgloss.NewStyle().
			Foreground(yellow).
			Bold(true),

		StatusError: lipgloss.NewStyle().
			Foreground(red).
			Bold(true),

		HelpKey: lipgloss.NewStyle().
			Foreground(highlight).
			Bold(true),

		HelpText: lipgloss.NewStyle().
			Foreground(subtle),
	}
}

// tickMsg is sent periodically to animate the spinner.
type tickMsg time.Time

// New creates a new dashboard model.
func New() *Model {
	return &Model{
		width:       80,
		height:      24,
		activePanel: PanelMetrics,
		events:      make([]EventLine, 0),
		styles:      newStyles(),
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		tea.EnterAltScreen,
	)
}

// tickCmd returns a command that ticks every second.
func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.progressTick++
		return m, tickCmd()

	case MetricsMsg:
		m.applyMetrics(scheduler.Metrics(msg))
		return m, nil

	case EventMsg:
		m.appendEvent(scheduler.Event(msg))
		return m, nil
	}

	return m, nil
}

// applyMetrics stores the snapshot and rebuilds the agent rows.
func (m *Model) applyMetrics(metrics scheduler.Metrics) {
	m.metrics = metrics
	m.agents = m.agents[:0]
	for id, load := range metrics.AgentUtilization {
		m.agents = append(m.agents, AgentRow{ID: id, Load: load})
	}
	sort.Slice(m.agents, func(i, j int) bool { return m.agents[i].ID < m.agents[j].ID })
}

// appendEvent adds an event line, trimming the buffer and auto-scrolling when
// the feed is pinned to the bottom.
func (m *Model) appendEvent(e scheduler.Event) {
	pinned := m.eventScroll >= len(m.events)-1

	line := EventLine{
		Time:   e.Time,
		Label:  e.Type.String(),
		Detail: formatEvent(e),
		Level:  eventLevel(e.Type),
	}
	if line.Time.IsZero() {
		line.Time = time.Now()
	}
	m.events = append(m.events, line)
	if len(m.events) > maxEventLines {
		m.events = m.events[len(m.events)-maxEventLines:]
	}
	if pinned {
		m.eventScroll = len(m.events) - 1
	}
}

// formatEvent renders the detail column for an event.
func formatEvent(e scheduler.Event) string {
	switch e.Type {
	case scheduler.EventTaskEnqueued:
		return fmt.Sprintf("%s (%s) depth=%d", short(e.TaskID), e.Priority, e.QueueDepth)
	case scheduler.EventTaskAssigned:
		return fmt.Sprintf("%s -> %s (%s)", short(e.TaskID), e.AgentID, e.Reason)
	case scheduler.EventTaskStarted:
		return fmt.Sprintf("%s on %s", short(e.TaskID), e.AgentID)
	case scheduler.EventTaskCompleted:
		return fmt.Sprintf("%s on %s in %s", short(e.TaskID), e.AgentID, e.Duration.Round(time.Millisecond))
	case scheduler.EventTaskRetrying:
		return fmt.Sprintf("%s retry %d: %s", short(e.TaskID), e.RetryCount, e.Error)
	case scheduler.EventTaskFailed:
		return fmt.Sprintf("%s after %d retries: %s", short(e.TaskID), e.RetryCount, e.Error)
	case scheduler.EventTaskStolen:
		return fmt.Sprintf("%s %s -> %s", short(e.TaskID), e.FromAgent, e.ToAgent)
	case scheduler.EventAgentRegistered, scheduler.EventAgentUnregistered:
		return e.AgentID
	default:
		return ""
	}
}

// eventLevel maps event types onto feed color levels.
func eventLevel(t scheduler.EventType) string {
	switch t {
	case scheduler.EventTaskCompleted:
		return "ok"
	case scheduler.EventTaskRetrying, scheduler.EventTaskStolen:
		return "warn"
	case scheduler.EventTaskFailed:
		return "error"
	default:
		return ""
	}
}

// short truncates long task IDs (UUIDs) for display.
func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab", "right", "l":
		m.activePanel = (m.activePanel + 1) % 3
		return m, nil

	case "shift+tab", "left", "h":
		m.activePanel = (m.activePanel + 2) % 3
		return m, nil

	case "up", "k":
		if m.activePanel == PanelEvents && m.eventScroll > 0 {
			m.eventScroll--
		}
		return m, nil

	case "down", "j":
		if m.activePanel == PanelEvents && m.eventScroll < len(m.events)-1 {
			m.eventScroll++
		}
		return m, nil

	case "end", "G":
		if m.activePanel == PanelEvents && len(m.events) > 0 {
			m.eventScroll = len(m.events) - 1
		}
		return m, nil
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	topHeight := m.height / 2
	bottomHeight := m.height - topHeight - 3
	leftWidth := m.width / 2
	rightWidth := m.width - leftWidth

	metricsPanel := m.renderMetricsPanel(leftWidth - 2)
	agentsPanel := m.renderAgentsPanel(rightWidth - 2)
	eventsPanel := m.renderEventsPanel(m.width-2, bottomHeight-2)

	metricsBorder := m.getBorder(PanelMetrics).Width(leftWidth - 2).Height(topHeight - 2)
	agentsBorder := m.getBorder(PanelAgents).Width(rightWidth - 2).Height(topHeight - 2)
	eventsBorder := m.getBorder(PanelEvents).Width(m.width - 2).Height(bottomHeight - 2)

	topRow := lipgloss.JoinHorizontal(
		lipgloss.Top,
		metricsBorder.Render(metricsPanel),
		agentsBorder.Render(agentsPanel),
	)

	return lipgloss.JoinVertical(
		lipgloss.Left,
		topRow,
		eventsBorder.Render(eventsPanel),
		m.renderHelpBar(),
	)
}

// getBorder returns the appropriate border style for a panel.
func (m Model) getBorder(panel Panel) lipgloss.Style {
	if m.activePanel == panel {
		return m.styles.ActiveBorder
	}
	return m.styles.InactiveBorder
}

// pressureStyle maps pressure levels onto status colors.
func (m Model) pressureStyle(p scheduler.Pressure) lipgloss.Style {
	switch p {
	case scheduler.PressureCritical:
		return m.styles.StatusError
	case scheduler.PressureHigh:
		return m.styles.StatusWarn
	default:
		return m.styles.StatusOK
	}
}

// renderMetricsPanel renders queue pressure and counters.
func (m Model) renderMetricsPanel(width int) string {
	var b strings.Builder
	mt := m.metrics

	b.WriteString(m.styles.Title.Render("Scheduler"))
	b.WriteString("\n\n")

	pressure := mt.Pressure
	if pressure == "" {
		pressure = scheduler.PressureLow
	}
	b.WriteString(m.styles.Label.Render("Pressure: "))
	b.WriteString(m.pressureStyle(pressure).Render(string(pressure)))
	b.WriteString("\n\n")

	pct := 0
	if mt.QueueCapacity > 0 {
		pct = mt.QueueDepth * 100 / mt.QueueCapacity
	}
	b.WriteString(m.styles.Label.Render("Queue: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d / %d", mt.QueueDepth, mt.QueueCapacity)))
	b.WriteString("\n")
	b.WriteString(m.renderGauge(pct, width-4))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("Scheduled: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d", mt.TasksScheduled)))
	b.WriteString(m.styles.Label.Render("  Completed: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d", mt.TasksCompleted)))
	b.WriteString("\n")
	b.WriteString(m.styles.Label.Render("Failed: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d", mt.TasksFailed)))
	b.WriteString(m.styles.Label.Render("  Stolen: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%d", mt.TasksStolen)))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Label.Render("Throughput: "))
	b.WriteString(m.styles.Value.Render(fmt.Sprintf("%.1f/s", mt.Throughput)))
	b.WriteString("\n")
	b.WriteString(m.styles.Label.Render("Avg Wait: "))
	b.WriteString(m.styles.Value.Render(mt.AverageWaitTime.Round(time.Millisecond).String()))

	return b.String()
}

// renderGauge renders a percentage bar colored by fill level.
func (m Model) renderGauge(pct, width int) string {
	if width < 10 {
		width = 10
	}
	filled := width * pct / 100
	if filled > width {
		filled = width
	}

	bar := strings.Repeat("=", filled) + strings.Repeat("-", width-filled)

	style := m.styles.StatusOK
	if pct >= 90 {
		style = m.styles.StatusError
	} else if pct >= 70 {
		style = m.styles.StatusWarn
	}
	return "[" + style.Render(bar) + "]"
}

// renderAgentsPanel renders one load bar per agent.
func (m Model) renderAgentsPanel(width int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Agents"))
	b.WriteString("\n\n")

	if len(m.agents) == 0 {
		b.WriteString(m.styles.Muted.Render("No agents registered"))
		return b.String()
	}

	barWidth := width - 18
	if barWidth < 10 {
		barWidth = 10
	}
	for _, a := range m.agents {
		b.WriteString(fmt.Sprintf("%-10s ", a.ID))
		b.WriteString(m.renderGauge(int(a.Load*100), barWidth))
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" %3.0f%%", a.Load*100)))
		b.WriteString("\n")
	}

	return b.String()
}

// renderEventsPanel renders the scrolling event feed.
func (m Model) renderEventsPanel(width, height int) string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("Events"))
	b.WriteString("\n\n")

	if len(m.events) == 0 {
		b.WriteString(m.styles.Muted.Render("No events yet"))
		return b.String()
	}

	visible := height - 4
	if visible < 1 {
		visible = 1
	}

	start := m.eventScroll - visible + 1
	if start < 0 {
		start = 0
	}

	for i := start; i < len(m.events) && i < start+visible; i++ {
		e := m.events[i]

		var levelStyle lipgloss.Style
		switch e.Level {
		case "ok":
			levelStyle = m.styles.StatusOK
		case "warn":
			levelStyle = m.styles.StatusWarn
		case "error":
			levelStyle = m.styles.StatusError
		default:
			levelStyle = m.styles.Muted
		}

		detail := e.Detail
		maxLen := width - 32
		if len(detail) > maxLen && maxLen > 3 {
			detail = detail[:maxLen-3] + "..."
		}

		b.WriteString(fmt.Sprintf("%s %s %s",
			m.styles.Muted.Render(e.Time.Format("15:04:05")),
			levelStyle.Render(fmt.Sprintf("%-18s", e.Label)),
			detail,
		))
		b.WriteString("\n")
	}

	if len(m.events) > visible {
		b.WriteString(m.styles.Muted.Render(fmt.Sprintf(" [%d/%d]", m.eventScroll+1, len(m.events))))
	}

	return b.String()
}

// renderHelpBar renders the help bar at the bottom.
func (m Model) renderHelpBar() string {
	helpItems := []struct {
		key  string
		desc string
	}{
		{"tab", "switch panel"},
		{"j/k", "scroll events"},
		{"q", "quit"},
	}

	var parts []string
	for _, item := range helpItems {
		parts = append(parts, fmt.Sprintf("%s %s",
			m.styles.HelpKey.Render(item.key),
			m.styles.HelpText.Render(item.desc),
		))
	}

	return "  " + strings.Join(parts, "  |  ")
}

// Run starts the dashboard and blocks until quit.
func (m *Model) Run() error {
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// RunWithProgram starts the dashboard in the background and returns the
// program so callers can feed it with Send.
func (m *Model) RunWithProgram() (*tea.Program, error) {
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		_, _ = p.Run()
	}()
	return p, nil
}
