package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deanluus/mcpscan/internal/report"
	"github.com/deanluus/mcpscan/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run discovery whenever the configuration file changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runDiscovery(ctx)

			w, err := watcher.New(watcher.DefaultConfig(viper.GetString("config")), func() {
				runDiscovery(ctx)
			})
			if err != nil {
				return err
			}

			return w.Run(ctx)
		},
	}
}

// runDiscovery performs one discovery pass. Watch mode keeps running
// through bad config edits and unhealthy servers; errors are reported, not
// fatal.
func runDiscovery(parent context.Context) {
	cfg, err := loadConfig()
	if err != nil {
		cobra.WriteStringAndCheck(os.Stderr, "Error: "+err.Error()+"\n")
		return
	}
	workspace, err := workspaceRoot()
	if err != nil {
		cobra.WriteStringAndCheck(os.Stderr, "Error: "+err.Error()+"\n")
		return
	}

	ctx, cancel := context.WithTimeout(parent, viper.GetDuration("run-timeout"))
	defer cancel()

	rep := newOrchestrator(workspace).DiscoverAll(ctx, cfg)

	if path := viper.GetString("output"); path != "" {
		if err := rep.WriteFile(path); err != nil {
			cobra.WriteStringAndCheck(os.Stderr, "Error: "+err.Error()+"\n")
		}
	}
	report.Render(os.Stdout, rep)
}
