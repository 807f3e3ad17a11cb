package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deanluus/mcpscan/internal/report"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Health-check every configured server (initialize only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			workspace, err := workspaceRoot()
			if err != nil {
				return err
			}

			ctx, cancel := runContext()
			defer cancel()

			rep := newOrchestrator(workspace).HealthCheckAll(ctx, cfg)
			return emitReport(rep)
		},
	}
}

// emitReport writes the report to the configured sinks and converts an
// unhealthy result into the exit-code-1 sentinel.
func emitReport(rep *report.Report) error {
	if path := viper.GetString("output"); path != "" {
		if err := rep.WriteFile(path); err != nil {
			return err
		}
	}

	if viper.GetBool("json") {
		data, err := rep.MarshalIndent()
		if err != nil {
			return err
		}
		os.Stdout.Write(data)
	} else {
		report.Render(os.Stdout, rep)
	}

	if !rep.AllHealthy() {
		return errUnhealthy
	}
	return nil
}
