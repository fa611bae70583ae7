package main

import (
	"github.com/spf13/cobra"

	"satbus/internal/dashboard"
)

var dashboardOutDir string

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Render the satellite telemetry Grafana dashboard",
	Long:  "dashboard renders the satellite-dashboard.json Grafana dashboard definition against the archive's GreptimeDB datasource.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return dashboard.Render(dashboardOutDir)
	},
}

func init() {
	dashboardCmd.Flags().StringVar(&dashboardOutDir, "out", "build", "Output directory for rendered dashboard JSON")
}
