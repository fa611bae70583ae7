package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"satbus/internal/archive"
	"satbus/internal/bus"
	"satbus/internal/logging"
	"satbus/internal/replay"
)

var (
	replayInput      string
	replaySpeed      float64
	replayArchiveDSN string
	replayTable      string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a recorded telemetry log",
	Long:  "replay feeds telemetry packets from a log file recorded by 'serve --record' back out, to STDOUT or to GreptimeDB.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("--input is required")
		}

		logger := logging.New()
		var sink replay.Sink
		if replayArchiveDSN == "" {
			sink = func(pkt bus.TelemetryPacket) error {
				enc, err := json.Marshal(pkt)
				if err != nil {
					return err
				}
				fmt.Println(string(enc))
				return nil
			}
		} else {
			w, err := archive.NewWriter(replayArchiveDSN, "public", replayTable, logger)
			if err != nil {
				return err
			}
			sink = func(pkt bus.TelemetryPacket) error {
				return w.Write(pkt, "")
			}
		}

		if err := replay.ReplayFile(replayInput, sink, replaySpeed); err != nil {
			fmt.Fprintln(os.Stderr, "replay failed:", err)
			return err
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to a telemetry log file recorded with 'serve --record'")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 disables pacing)")
	replayCmd.Flags().StringVar(&replayArchiveDSN, "archive-endpoint", "", "GreptimeDB endpoint to replay into instead of STDOUT")
	replayCmd.Flags().StringVar(&replayTable, "archive-table", "satellite_telemetry", "GreptimeDB table name when --archive-endpoint is set")
	replayCmd.MarkFlagRequired("input")
}
