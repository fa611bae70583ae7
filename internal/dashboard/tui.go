package dashboard

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"satbus/internal/bus"
)

const logHistoryCap = 500

var (
	styleHeader   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("4")).Padding(0, 1)
	styleLabel    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleNormal   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleWarning  = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	styleCritical = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleHelp     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// PacketMsg carries a telemetry packet into the TUI's event loop.
type PacketMsg struct{ Packet bus.TelemetryPacket }

// SafetyMsg carries the current safety level alongside a packet.
type SafetyMsg struct{ Level bus.SafetyLevel }

// ConnErrMsg reports a fatal connection failure to the TUI.
type ConnErrMsg struct{ Err error }

func safetyStyle(level bus.SafetyLevel) lipgloss.Style {
	switch level {
	case bus.LevelWarning:
		return styleWarning
	case bus.LevelCritical, bus.LevelEmergency:
		return styleCritical
	default:
		return styleNormal
	}
}

type tuiModel struct {
	vp     viewport.Model
	logs   []string
	latest bus.TelemetryPacket
	level  bus.SafetyLevel
	have   bool
	width  int
	height int
	err    error
	wrap   bool
}

// NewTUIModel returns a bubbletea model rendering telemetry packets as
// they arrive.
func NewTUIModel() tea.Model {
	vp := viewport.New(80, 20)
	return tuiModel{vp: vp, wrap: true}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = m.height - lipgloss.Height(m.renderHeader()) - lipgloss.Height(m.renderHelp())
		m.refreshViewport()
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		}
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	case PacketMsg:
		m.latest = msg.Packet
		m.have = true
		m.logs = append(m.logs, formatPacketLine(msg.Packet, m.level))
		if len(m.logs) > logHistoryCap {
			m.logs = m.logs[len(m.logs)-logHistoryCap:]
		}
		m.refreshViewport()
	case SafetyMsg:
		m.level = msg.Level
	case ConnErrMsg:
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func (m *tuiModel) refreshViewport() {
	lines := m.logs
	if m.wrap && m.vp.Width > 0 {
		wrapped := make([]string, len(lines))
		for i, l := range lines {
			wrapped[i] = wordwrap.String(l, m.vp.Width)
		}
		lines = wrapped
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	m.vp.GotoBottom()
}

func formatPacketLine(pkt bus.TelemetryPacket, level bus.SafetyLevel) string {
	return fmt.Sprintf(
		"seq=%d t=%dms battery=%d%% core_temp=%dC ber=%.5f safety=%s",
		pkt.SequenceNumber, pkt.TimestampMS,
		pkt.Power.BatteryLevelPercent, pkt.Thermal.CoreTempC,
		pkt.Comms.BitErrorRate, level,
	)
}

func (m tuiModel) renderHeader() string {
	if !m.have {
		return styleHeader.Render("satbus watch") + "  " + styleLabel.Render("waiting for telemetry...")
	}
	p := m.latest
	fields := fmt.Sprintf(
		"seq=%d  battery=%d%%  core_temp=%dC  thermal=%s  ber=%.5f  safety=%s",
		p.SequenceNumber, p.Power.BatteryLevelPercent, p.Thermal.CoreTempC, p.Thermal.Mode,
		p.Comms.BitErrorRate, safetyStyle(m.level).Render(string(m.level)),
	)
	return styleHeader.Render("satbus watch") + "  " + fields
}

func (m tuiModel) renderHelp() string {
	wrapState := "on"
	if !m.wrap {
		wrapState = "off"
	}
	return styleHelp.Render(fmt.Sprintf("w: toggle wrap (%s)  q/esc: quit", wrapState))
}

func (m tuiModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("connection error: %v\n", m.err)
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.vp.View(), m.renderHelp())
}
