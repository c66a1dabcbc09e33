package cmd

import (
	"github.com/curaious/xm/internal/api"
	"github.com/curaious/xm/internal/config"
	"github.com/curaious/xm/internal/telemetry"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the workspace API server",
	Run: func(cmd *cobra.Command, args []string) {
		conf := config.ReadConfig()

		shutdownTelemetry := telemetry.NewProvider(conf.OTEL_EXPORTER_OTLP_ENDPOINT)
		defer shutdownTelemetry()

		s := api.New(conf)
		s.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
