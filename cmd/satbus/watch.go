package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/spf13/cobra"

	"satbus/internal/bus"
	"satbus/internal/dashboard"
)

var watchAddr string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Attach a live TUI to a running satbus server",
	Long:  "watch dials a satbus serve instance over TCP and renders its NDJSON telemetry stream as a live terminal dashboard.",
	RunE: func(cmd *cobra.Command, args []string) error {
		conn, err := net.Dial("tcp", watchAddr)
		if err != nil {
			return fmt.Errorf("dial %s: %w", watchAddr, err)
		}
		defer conn.Close()

		packets := make(chan bus.TelemetryPacket, 8)
		errCh := make(chan error, 1)

		go func() {
			defer close(packets)
			scanner := bufio.NewScanner(conn)
			scanner.Buffer(make([]byte, bus.MaxTelemetryBytes+1), bus.MaxTelemetryBytes+1)
			for scanner.Scan() {
				line := scanner.Bytes()
				var pkt bus.TelemetryPacket
				if err := json.Unmarshal(line, &pkt); err != nil {
					// Lines that do not decode as a telemetry packet are
					// skipped. A command response decodes without error,
					// but watch sends no commands, so none arrive here.
					continue
				}
				packets <- pkt
			}
			if err := scanner.Err(); err != nil {
				errCh <- err
			}
		}()

		runErr := dashboard.RunTUI(packets, safetyFromPacket)
		select {
		case err := <-errCh:
			return err
		default:
			return runErr
		}
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchAddr, "addr", "127.0.0.1:7777", "Address of a running satbus serve instance")
	rootCmd.AddCommand(watchCmd)
}

var safetyRank = map[bus.SafetyLevel]int{
	bus.LevelNormal:    0,
	bus.LevelCaution:   1,
	bus.LevelWarning:   2,
	bus.LevelCritical:  3,
	bus.LevelEmergency: 4,
}

// safetyFromPacket derives the worst unresolved safety level carried in
// a packet's bounded event summary, since the wire format does not
// repeat the aggregate level on every frame.
func safetyFromPacket(pkt bus.TelemetryPacket) bus.SafetyLevel {
	level := bus.LevelNormal
	for _, e := range pkt.SafetyEvents {
		if !e.Resolved && safetyRank[e.Level] > safetyRank[level] {
			level = e.Level
		}
	}
	return level
}
