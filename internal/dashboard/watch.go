package dashboard

import (
	tea "github.com/charmbracelet/bubbletea"

	"satbus/internal/bus"
)

// RunTUI starts the telemetry TUI and feeds it packets read from
// packets until the program quits or ctx-like cancellation closes the
// channel. safetyOf, if non-nil, is consulted for each packet to
// derive the safety level shown in the header.
func RunTUI(packets <-chan bus.TelemetryPacket, safetyOf func(bus.TelemetryPacket) bus.SafetyLevel) error {
	p := tea.NewProgram(NewTUIModel(), tea.WithAltScreen())

	go func() {
		for pkt := range packets {
			if safetyOf != nil {
				p.Send(SafetyMsg{Level: safetyOf(pkt)})
			}
			p.Send(PacketMsg{Packet: pkt})
		}
	}()

	_, err := p.Run()
	return err
}
