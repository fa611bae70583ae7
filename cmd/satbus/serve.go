package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"satbus/internal/archive"
	"satbus/internal/bus"
	"satbus/internal/config"
	"satbus/internal/logging"
	"satbus/internal/replay"
	"satbus/internal/server"
)

var (
	serveConfigPath string
	serveSchemaPath string
	serveRecordPath string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the satellite bus agent and serve it over NDJSON",
	Long:  "serve starts a bus.Agent, ticking it on its configured interval and exposing it to ground stations over a newline-delimited JSON TCP stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(serveConfigPath, serveSchemaPath)
		if err != nil {
			return err
		}

		logger := logging.NewWithLevel(cfg.SlogLevel())

		agent := bus.NewAgent(cfg.Agent.ToBusConfig())
		tickInterval := time.Duration(cfg.Agent.TickIntervalMS) * time.Millisecond
		if tickInterval <= 0 {
			tickInterval = 100 * time.Millisecond
		}

		srv := server.New(agent, logger, tickInterval)

		var archiveWriter *archive.Writer
		if cfg.Archive.Enabled {
			archiveWriter, err = archive.NewWriter(cfg.Archive.Endpoint, cfg.Archive.Database, cfg.Archive.Table, logger)
			if err != nil {
				return err
			}
		}

		var recorder *replay.Recorder
		if serveRecordPath != "" {
			recorder, err = replay.NewRecorder(serveRecordPath)
			if err != nil {
				return err
			}
			defer recorder.Close()
		}

		if archiveWriter != nil || recorder != nil {
			srv.OnTick(func(pkt bus.TelemetryPacket) {
				if archiveWriter != nil {
					if err := archiveWriter.Write(pkt, agent.SafetyState().Level); err != nil {
						logger.Error("archive write failed", "error", err)
					}
				}
				if recorder != nil {
					if err := recorder.Write(pkt); err != nil {
						logger.Error("record write failed", "error", err)
					}
				}
			})
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("satbus serving", "addr", cfg.Server.ListenAddr)
			errCh <- srv.Start(ctx, cfg.Server.ListenAddr)
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

		select {
		case <-sigs:
			logger.Info("shutdown requested")
			cancel()
			return <-errCh
		case err := <-errCh:
			return err
		}
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "configs/agent.yaml", "Path to agent configuration YAML")
	serveCmd.Flags().StringVar(&serveSchemaPath, "schema", "configs/agent.cue", "Path to CUE schema file")
	serveCmd.Flags().StringVar(&serveRecordPath, "record", "", "Path to record telemetry packets as JSONL, for later replay")
}
