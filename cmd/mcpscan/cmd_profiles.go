package main

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/deanluus/mcpscan/internal/config"
	"github.com/deanluus/mcpscan/internal/profile"
	"github.com/deanluus/mcpscan/internal/report"
)

func newProfilesCmd() *cobra.Command {
	var (
		profilesPath string
		priority     []string
		live         bool
	)

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "Compile profile definitions into deterministic server profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := compileProfiles(profilesPath, priority, live)
			if err != nil {
				return err
			}

			data, err := profile.Marshal(profiles)
			if err != nil {
				return err
			}
			os.Stdout.Write(data)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&profilesPath, "profiles", "profiles.yaml", "path to the profile definitions file")
	cmd.PersistentFlags().StringSliceVar(&priority, "priority", profile.DefaultPriority, "servers pinned to the first ordering positions")
	cmd.PersistentFlags().BoolVar(&live, "live", false, "discover tool counts instead of using known estimates")

	cmd.AddCommand(newProfilesCompareCmd(&profilesPath, &priority, &live))
	return cmd
}

func newProfilesCompareCmd(profilesPath *string, priority *[]string, live *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <profile> <profile>",
		Short: "Compare the token estimates of two compiled profiles",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := compileProfiles(*profilesPath, *priority, *live)
			if err != nil {
				return err
			}

			byName := make(map[string]profile.Profile, len(profiles))
			for _, p := range profiles {
				byName[p.Name] = p
			}

			current, ok := byName[args[0]]
			if !ok {
				return errors.Newf("unknown profile %q", args[0])
			}
			other, ok := byName[args[1]]
			if !ok {
				return errors.Newf("unknown profile %q", args[1])
			}

			comparison := profile.Compare(current, other)
			data, err := profile.Marshal([]profile.Profile{comparison.Current, comparison.Other})
			if err != nil {
				return err
			}
			os.Stdout.Write(data)

			cmd.Printf("tools: %+d  tokens: %+d..%+d\n",
				comparison.ToolDifference, comparison.TokenDiffMin, comparison.TokenDiffMax)
			return nil
		},
	}
}

func compileProfiles(profilesPath string, priority []string, live bool) ([]profile.Profile, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	defs, err := config.LoadProfiles(profilesPath)
	if err != nil {
		return nil, err
	}

	compiler := profile.NewCompiler(priority)

	if live {
		workspace, err := workspaceRoot()
		if err != nil {
			return nil, err
		}

		ctx, cancel := runContext()
		defer cancel()

		rep := newOrchestrator(workspace).DiscoverAll(ctx, cfg)
		catalog := make(map[string]int, len(rep.Servers))
		for name, res := range rep.Servers {
			if res.Status == report.StatusHealthy {
				catalog[name] = res.ToolCount
			}
		}
		compiler = compiler.WithCatalog(catalog)
	}

	return compiler.CompileAll(defs, cfg)
}
