package main

import (
	"github.com/spf13/cobra"
)

func newDiscoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Run full tool discovery against every configured server",
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

			rep := newOrchestrator(workspace).DiscoverAll(ctx, cfg)
			return emitReport(rep)
		},
	}
}
