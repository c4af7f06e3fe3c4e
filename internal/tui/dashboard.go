package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/intesis/internal/climate"
	"github.com/muurk/intesis/internal/deviceapi"
)

// refreshTimeout bounds a manual refresh
const refreshTimeout = 15 * time.Second

// Controller is the part of climate.Controller the dashboard drives
type Controller interface {
	Status() climate.Status
	Subscribe(fn func(climate.Status)) func()
	Refresh(ctx context.Context) error
	SetHVACMode(mode string) error
	SetTemperature(celsius float64) error
	SetFanMode(mode string) error
	SetSwingMode(mode string) error
	SetHorizontalVane(mode string) error
	SetPresetMode(mode string) error
	TurnOn() error
	TurnOff() error
}

// Field is an editable row of the dashboard
type Field int

const (
	FieldHVACMode Field = iota
	FieldTemperature
	FieldFanMode
	FieldSwingMode
	FieldHorizontalVane
	FieldPresetMode
	fieldCount
)

var fieldLabels = map[Field]string{
	FieldHVACMode:       "HVAC mode",
	FieldTemperature:    "Target temp",
	FieldFanMode:        "Fan",
	FieldSwingMode:      "Vertical vane",
	FieldHorizontalVane: "Horizontal vane",
	FieldPresetMode:     "Preset",
}

// fieldUIDs are the datapoints a row writes
var fieldUIDs = map[Field][]deviceapi.UID{
	FieldHVACMode:       {deviceapi.UIDPower, deviceapi.UIDMode},
	FieldTemperature:    {deviceapi.UIDSetpoint},
	FieldFanMode:        {deviceapi.UIDFanSpeed},
	FieldSwingMode:      {deviceapi.UIDVaneVertical},
	FieldHorizontalVane: {deviceapi.UIDVaneHorizontal},
	FieldPresetMode:     {deviceapi.UIDQuietMode},
}

// Messages
type statusMsg climate.Status

type refreshDoneMsg struct {
	err error
}

// dashboardKeyMap defines key bindings for the dashboard screen
type dashboardKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Left    key.Binding
	Right   key.Binding
	Power   key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k dashboardKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Left, k.Power, k.Refresh, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k dashboardKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Left, k.Right},
		{k.Power, k.Refresh, k.Help, k.Quit},
	}
}

func newDashboardKeyMap() dashboardKeyMap {
	return dashboardKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/↓", "select"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next"),
		),
		Left: key.NewBinding(
			key.WithKeys("left", "h", "-"),
			key.WithHelp("←/→", "change"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l", "+", "="),
			key.WithHelp("→/+", "increase"),
		),
		Power: key.NewBinding(
			key.WithKeys(" ", "p"),
			key.WithHelp("space", "power"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "refresh"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "esc", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// DashboardModel shows one device live and edits its climate settings
type DashboardModel struct {
	ctrl        Controller
	updates     chan climate.Status
	unsubscribe func()

	Status climate.Status

	// UI state
	Width       int
	Height      int
	Cursor      Field
	Refreshing  bool
	ShowingHelp bool
	LastErr     error

	Spinner spinner.Model
	Help    help.Model
	Keys    dashboardKeyMap
}

// NewDashboardModel subscribes to ctrl. Call Close when the program ends.
func NewDashboardModel(ctrl Controller) DashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := DashboardModel{
		ctrl:    ctrl,
		updates: make(chan climate.Status, 1),
		Status:  ctrl.Status(),
		Width:   MinTerminalWidth,
		Height:  MinTerminalLines,
		Spinner: s,
		Help:    help.New(),
		Keys:    newDashboardKeyMap(),
	}

	updates := m.updates
	m.unsubscribe = ctrl.Subscribe(func(status climate.Status) {
		// Keep only the newest status
		select {
		case updates <- status:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- status:
			default:
			}
		}
	})
	return m
}

// Close stops receiving status updates
func (m DashboardModel) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

func waitForStatus(updates <-chan climate.Status) tea.Cmd {
	return func() tea.Msg {
		return statusMsg(<-updates)
	}
}

func refreshCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
		defer cancel()
		return refreshDoneMsg{err: ctrl.Refresh(ctx)}
	}
}

// Init starts the spinner and the status listener
func (m DashboardModel) Init() tea.Cmd {
	return tea.Batch(m.Spinner.Tick, waitForStatus(m.updates))
}

// Update handles messages and updates the model
func (m DashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Help.Width = msg.Width
		return m, nil

	case statusMsg:
		m.Status = climate.Status(msg)
		return m, waitForStatus(m.updates)

	case refreshDoneMsg:
		m.Refreshing = false
		m.LastErr = msg.err
		m.Status = m.ctrl.Status()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m DashboardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.ShowingHelp {
		// Any key closes the help modal
		m.ShowingHelp = false
		return m, nil
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.Keys.Help):
		m.ShowingHelp = true

	case key.Matches(msg, m.Keys.Up):
		m.Cursor = (m.Cursor + fieldCount - 1) % fieldCount

	case key.Matches(msg, m.Keys.Down):
		m.Cursor = (m.Cursor + 1) % fieldCount

	case key.Matches(msg, m.Keys.Left):
		m.apply(m.change(-1))

	case key.Matches(msg, m.Keys.Right):
		m.apply(m.change(1))

	case key.Matches(msg, m.Keys.Power):
		if m.Status.Climate.HVACMode == climate.HVACOff {
			m.apply(m.ctrl.TurnOn())
		} else {
			m.apply(m.ctrl.TurnOff())
		}

	case key.Matches(msg, m.Keys.Refresh):
		if !m.Refreshing {
			m.Refreshing = true
			return m, refreshCmd(m.ctrl)
		}
	}

	return m, nil
}

// apply records the outcome of a command and shows the optimistic state
func (m *DashboardModel) apply(err error) {
	m.LastErr = err
	m.Status = m.ctrl.Status()
}

// change moves the selected row by delta steps
func (m DashboardModel) change(delta int) error {
	v := m.Status.Climate

	switch m.Cursor {
	case FieldHVACMode:
		return m.ctrl.SetHVACMode(cycle(v.HVACModes, v.HVACMode, delta))
	case FieldTemperature:
		if v.TargetTemperature == nil {
			return fmt.Errorf("target temperature not known yet")
		}
		return m.ctrl.SetTemperature(*v.TargetTemperature + float64(delta)*v.TemperatureStep)
	case FieldFanMode:
		return m.ctrl.SetFanMode(cycle(v.FanModes, v.FanMode, delta))
	case FieldSwingMode:
		return m.ctrl.SetSwingMode(cycle(v.SwingModes, v.SwingMode, delta))
	case FieldHorizontalVane:
		return m.ctrl.SetHorizontalVane(cycle(climate.HorizontalVaneTable.Names(), v.HorizontalVaneMode, delta))
	case FieldPresetMode:
		return m.ctrl.SetPresetMode(cycle(v.PresetModes, v.PresetMode, delta))
	}
	return nil
}

// cycle returns the name delta steps away from current, wrapping around.
// An unknown current value starts from the first (or last) name.
func cycle(names []string, current string, delta int) string {
	if len(names) == 0 {
		return current
	}
	idx := -1
	for i, n := range names {
		if n == current {
			idx = i
			break
		}
	}
	if idx < 0 {
		if delta < 0 {
			return names[len(names)-1]
		}
		return names[0]
	}
	n := len(names)
	return names[((idx+delta)%n+n)%n]
}

// fieldValue renders the current value of a row
func (m DashboardModel) fieldValue(f Field) string {
	v := m.Status.Climate
	switch f {
	case FieldHVACMode:
		return lipgloss.NewStyle().Foreground(ModeColor(v.HVACMode)).Bold(true).Render(strings.ToUpper(v.HVACMode))
	case FieldTemperature:
		return formatTemp(v.TargetTemperature)
	case FieldFanMode:
		return orDash(v.FanMode)
	case FieldSwingMode:
		return orDash(v.SwingMode)
	case FieldHorizontalVane:
		return orDash(v.HorizontalVaneMode)
	case FieldPresetMode:
		return orDash(v.PresetMode)
	}
	return "-"
}

// fieldPending reports whether a write to the row is still unconfirmed
func (m DashboardModel) fieldPending(f Field) bool {
	for _, p := range m.Status.Pending {
		for _, uid := range fieldUIDs[f] {
			if p.UID == uid {
				return true
			}
		}
	}
	return false
}

func formatTemp(t *float64) string {
	if t == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f°C", *t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return OnlineStyle.Render("yes")
	}
	return lipgloss.NewStyle().Foreground(SubtleColor).Render("no")
}

// renderField renders a row as "→ Label          Value"
func (m DashboardModel) renderField(f Field) string {
	selected := m.Cursor == f

	labelStyle := LabelStyle
	valueStyle := lipgloss.NewStyle()
	arrow := "  "
	if selected {
		labelStyle = labelStyle.Foreground(HighlightColor).Bold(true)
		valueStyle = valueStyle.Foreground(HighlightColor).Bold(true)
		arrow = "→ "
	}

	value := m.fieldValue(f)
	if selected && f != FieldHVACMode {
		value = valueStyle.Render("◂ " + value + " ▸")
	}

	line := lipgloss.JoinHorizontal(lipgloss.Left, arrow, labelStyle.Render(fieldLabels[f]), value)
	if m.fieldPending(f) {
		line += " " + PendingStyle.Render(m.Spinner.View()+"pending")
	}
	return line
}

func (m DashboardModel) renderDeviceLine() string {
	s := m.Status
	fw := "-"
	if s.DeviceInfo != nil {
		fw = s.DeviceInfo.FWVersion
	}
	return lipgloss.NewStyle().Foreground(TextColor).Render(
		fmt.Sprintf("Device: %s • %s • %s • FW: %s", s.Name, s.Serial, s.Host, fw))
}

func (m DashboardModel) renderStatusLine() string {
	var state string
	if m.Status.Available {
		state = OnlineStyle.Render("● ONLINE")
	} else {
		state = OfflineStyle.Render("● OFFLINE")
	}

	parts := []string{state}
	if !m.Status.LastUpdate.IsZero() {
		parts = append(parts, SubtitleStyle.Render("updated "+m.Status.LastUpdate.Local().Format("15:04:05")))
	}
	if m.Refreshing {
		parts = append(parts, m.Spinner.View()+"refreshing")
	}
	return strings.Join(parts, "  ")
}

func (m DashboardModel) renderSensors() string {
	v := m.Status.Climate
	row := func(label, value string) string {
		return lipgloss.JoinHorizontal(lipgloss.Left, "  ", LabelStyle.Render(label), value)
	}

	rssi := "-"
	if v.Sensors.WiFiSignal != nil {
		rssi = fmt.Sprintf("%d dBm", *v.Sensors.WiFiSignal)
	}
	errCode := "none"
	if v.BinarySensors.Error {
		errCode = ErrorTextStyle.Render(fmt.Sprintf("code %d", v.BinarySensors.ErrorCode))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		SectionTitleStyle.Render("SENSORS"),
		row("Room temp", formatTemp(v.CurrentTemperature)),
		row("Setpoint range", fmt.Sprintf("%.1f - %.1f°C", v.MinTemperature, v.MaxTemperature)),
		row("WiFi signal", rssi),
		row("AC connected", yesNo(v.BinarySensors.ACConnection)),
		row("WiFi connected", yesNo(v.BinarySensors.WiFiConnection)),
		row("Cloud connected", yesNo(v.BinarySensors.CloudConnection)),
		row("Error", errCode),
	)
}

func (m DashboardModel) renderContent() string {
	rows := []string{SectionTitleStyle.Render("CLIMATE")}
	for f := Field(0); f < fieldCount; f++ {
		rows = append(rows, m.renderField(f))
	}

	divider := lipgloss.NewStyle().
		Foreground(BorderColor).
		Render(strings.Repeat("─", 60))

	lines := []string{
		m.renderDeviceLine(),
		m.renderStatusLine(),
		divider,
		"",
		lipgloss.JoinVertical(lipgloss.Left, rows...),
		"",
		m.renderSensors(),
	}

	if n := len(m.Status.Pending); n > 0 {
		lines = append(lines, "", PendingStyle.Render(fmt.Sprintf("%d change(s) waiting for device confirmation", n)))
	}
	if m.LastErr != nil {
		lines = append(lines, "", ErrorTextStyle.Render("✗ "+deviceapi.GetShortErrorMessage(m.LastErr)))
	} else if m.Status.LastError != "" {
		lines = append(lines, "", ErrorTextStyle.Render("✗ "+m.Status.LastError))
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m DashboardModel) renderHelp() string {
	h := m.Help
	h.ShowAll = true
	return HelpBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		TitleStyle.Render("KEYS"),
		"",
		h.View(m.Keys),
		"",
		SubtitleStyle.Render("Changes show immediately and are confirmed by the next device read."),
		SubtitleStyle.Render("Press any key to close."),
	))
}

// View renders the dashboard
func (m DashboardModel) View() string {
	if m.ShowingHelp {
		return RenderModal(m.renderHelp(), m.Width, m.Height)
	}
	return RenderApplicationContainer(m.renderContent(), m.Help.View(m.Keys), m.Width, m.Height)
}
