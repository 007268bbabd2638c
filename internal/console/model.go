package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/reeslabree/sprinkler-controller/internal/config"
	"github.com/reeslabree/sprinkler-controller/internal/protocol"
)

// KeepAliveInterval is how often the dashboard pings the relay
const KeepAliveInterval = 10 * time.Second

// Requester is the part of Client the dashboard drives.
type Requester interface {
	ToggleZone(zone config.Zone, activate bool) error
	Status() error
	GetConfig() error
	KeepAlive() error
	Events() <-chan Event
}

// Messages
type eventMsg Event
type disconnectedMsg struct{}
type keepAliveTickMsg struct{}
type requestErrMsg struct{ err error }

type zoneToggle struct {
	zone     config.Zone
	activate bool
}

// keyMap defines key bindings for the dashboard
type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Toggle  key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Refresh, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Toggle},
		{k.Refresh, k.Help, k.Quit},
	}
}

func newKeyMap() keyMap {
	return keyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Toggle: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "toggle zone"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// Model is the interactive dashboard.
type Model struct {
	client Requester
	relay  string

	// Zone state as last acknowledged by the relay
	Zones  [config.ZoneCount]bool
	Cursor int

	// Controller liveness from status responses and heartbeats
	ControllerConnected bool
	LivenessKnown       bool

	Config *protocol.GetConfigResponse

	pending *zoneToggle
	Status  string
	Err     error
	Lost    bool

	Width  int
	Height int

	keys    keyMap
	help    help.Model
	spinner spinner.Model
}

// NewModel creates a dashboard for client. relay is shown in the header.
func NewModel(client Requester, relay string) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = PendingStyle

	return Model{
		client:  client,
		relay:   relay,
		keys:    newKeyMap(),
		help:    help.New(),
		spinner: s,
		Width:   TerminalWidth(),
	}
}

// Init requests the initial state and starts listening for relay messages
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.waitForEvent(),
		m.request(m.client.GetConfig),
		m.request(m.client.Status),
		keepAliveTick(),
		m.spinner.Tick,
	)
}

func (m Model) waitForEvent() tea.Cmd {
	events := m.client.Events()
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return disconnectedMsg{}
		}
		return eventMsg(ev)
	}
}

func (m Model) request(send func() error) tea.Cmd {
	return func() tea.Msg {
		if err := send(); err != nil {
			return requestErrMsg{err: err}
		}
		return nil
	}
}

func keepAliveTick() tea.Cmd {
	return tea.Tick(KeepAliveInterval, func(time.Time) tea.Msg {
		return keepAliveTickMsg{}
	})
}

// Update handles key presses and relay messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = ClampWidth(msg.Width)
		m.Height = msg.Height
		m.help.Width = m.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case eventMsg:
		m = m.handleEvent(Event(msg))
		return m, m.waitForEvent()

	case disconnectedMsg:
		m.Lost = true
		m.pending = nil
		m.Status = "connection to relay closed"
		return m, nil

	case requestErrMsg:
		m.Err = msg.err
		m.pending = nil
		return m, nil

	case keepAliveTickMsg:
		if m.Lost {
			return m, nil
		}
		return m, tea.Batch(m.request(m.client.KeepAlive), keepAliveTick())

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Up):
		if m.Cursor > 0 {
			m.Cursor--
		}

	case key.Matches(msg, m.keys.Down):
		if m.Cursor < config.ZoneCount-1 {
			m.Cursor++
		}

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll

	case key.Matches(msg, m.keys.Refresh):
		if m.Lost {
			return m, nil
		}
		m.Err = nil
		return m, tea.Batch(m.request(m.client.GetConfig), m.request(m.client.Status))

	case key.Matches(msg, m.keys.Toggle):
		if m.Lost {
			return m, nil
		}
		if m.pending != nil {
			m.Status = "waiting for the previous toggle"
			return m, nil
		}
		t := zoneToggle{zone: config.Zone(m.Cursor), activate: !m.Zones[m.Cursor]}
		m.pending = &t
		m.Err = nil
		m.Status = fmt.Sprintf("switching %s %s", t.zone, onOff(t.activate))
		return m, m.request(func() error { return m.client.ToggleZone(t.zone, t.activate) })
	}

	return m, nil
}

func (m Model) handleEvent(ev Event) Model {
	if ev.Err != nil {
		m.Err = ev.Err
		return m
	}

	switch resp := ev.Message.(type) {
	case protocol.ToggleZoneResponse:
		t := m.pending
		m.pending = nil
		if t == nil {
			return m
		}
		if !resp.Success {
			m.Status = fmt.Sprintf("%s not switched: %s", t.zone, resp.Error)
			return m
		}
		m.Zones[t.zone] = t.activate
		m.Status = fmt.Sprintf("%s switched %s", t.zone, onOff(t.activate))

	case protocol.StatusResponse:
		m.ControllerConnected = resp.IsControllerConnected
		m.LivenessKnown = true

	case protocol.ControllerHeartbeat:
		m.ControllerConnected = resp.IsControllerConnected
		m.LivenessKnown = true

	case protocol.GetConfigResponse:
		cfg := resp
		m.Config = &cfg

	case protocol.SetScheduleResponse:
		if resp.Success {
			m.Status = "schedules saved"
		} else {
			m.Status = "schedules rejected: " + resp.Error
		}
	}
	return m
}

// View renders the dashboard
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render(AppName))
	b.WriteString(" ")
	b.WriteString(SubtitleStyle.Render(AppVersion()))
	b.WriteString("\n")
	b.WriteString(SubtitleStyle.Render(m.relay))
	b.WriteString("  ")
	b.WriteString(m.renderLiveness())
	b.WriteString("\n")

	b.WriteString(SectionTitleStyle.Render("Zones"))
	b.WriteString("\n")
	for i, on := range m.Zones {
		b.WriteString(m.renderZone(i, on))
		b.WriteString("\n")
	}

	b.WriteString(SectionTitleStyle.Render("Schedules"))
	b.WriteString("\n")
	b.WriteString(m.renderSchedules())

	var status string
	switch {
	case m.Err != nil:
		status = ErrorStyle.Render("Error: " + m.Err.Error())
	case m.pending != nil:
		status = m.spinner.View() + " " + PendingStyle.Render(m.Status)
	case m.Status != "":
		status = m.Status
	}
	if status != "" {
		b.WriteString(StatusLineStyle.Render(status))
		b.WriteString("\n")
	}

	b.WriteString(HelpStyle.Render(m.help.View(m.keys)))

	return BoxStyle(ClampWidth(m.Width)).Render(b.String())
}

func (m Model) renderLiveness() string {
	switch {
	case m.Lost:
		return DisconnectedStyle.Render(OffMarker + " relay disconnected")
	case !m.LivenessKnown:
		return PendingStyle.Render(OffMarker + " controller unknown")
	case m.ControllerConnected:
		return ConnectedStyle.Render(OnMarker + " controller connected")
	default:
		return DisconnectedStyle.Render(OffMarker + " controller offline")
	}
}

func (m Model) renderZone(i int, on bool) string {
	marker := OffStyle.Render(OffMarker)
	state := OffStyle.Render("off")
	if on {
		marker = OnStyle.Render(OnMarker)
		state = OnStyle.Render("on")
	}
	line := fmt.Sprintf("%s %-6s %s", marker, config.Zone(i), state)

	if i == m.Cursor {
		return SelectedZoneStyle.Render(CursorMarker + line)
	}
	return ZoneStyle.Render(line)
}

func (m Model) renderSchedules() string {
	if m.Config == nil {
		return ScheduleStyle.Render(SubtitleStyle.Render("loading...")) + "\n"
	}
	if len(m.Config.Schedules) == 0 {
		return ScheduleStyle.Render(SubtitleStyle.Render("no schedules")) + "\n"
	}

	var lines []string
	for _, s := range m.Config.Schedules {
		style := ScheduleStyle
		if !s.IsActive {
			style = InactiveScheduleStyle
		}
		lines = append(lines, style.Render(FormatSchedule(s)))
	}
	lines = append(lines, ScheduleStyle.Render(fmt.Sprintf("stagger %s, zone overlap %s",
		onOff(m.Config.StaggerOn), onOff(m.Config.StaggerZones))))
	return lipgloss.JoinVertical(lipgloss.Left, lines...) + "\n"
}

// FormatSchedule renders a schedule on one line, e.g.
// "morning 06:00 mon,wed zone1 10m → zone2 5m".
func FormatSchedule(s config.Schedule) string {
	days := make([]string, len(s.Days))
	for i, d := range s.Days {
		days[i] = shortDay(d)
	}
	periods := make([]string, len(s.ActivePeriods))
	for i, p := range s.ActivePeriods {
		periods[i] = fmt.Sprintf("%s %dm", p.Zone, p.DurationMinutes)
	}

	line := fmt.Sprintf("%s %s %s %s", s.Name, s.StartTime(), strings.Join(days, ","), strings.Join(periods, " → "))
	if !s.IsActive {
		line += " (inactive)"
	}
	return line
}

func shortDay(d config.Day) string {
	if len(d) < 3 {
		return string(d)
	}
	return string(d[:3])
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
