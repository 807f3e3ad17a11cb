// Command mcpscan discovers, health-checks, and catalogs the tool
// capabilities of configured MCP servers, and compiles deterministic
// token-budget profiles from the discovered catalog.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/deanluus/mcpscan/internal/config"
	"github.com/deanluus/mcpscan/internal/logger"
	"github.com/deanluus/mcpscan/internal/orchestrator"
)

const version = "0.1.0"

// errUnhealthy signals exit code 1 after the report has already been
// printed; scripts rely on the binary healthy/unhealthy exit signal.
var errUnhealthy = errors.New("one or more servers are not healthy")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errUnhealthy) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mcpscan",
		Short: "Discover and catalog MCP server tool capabilities",
		Long: `mcpscan launches each configured MCP server as a child process, performs
the initialize / tools/list handshake over stdio JSON-RPC, and reports
per-server health, discovered tools, and cross-server tool-name overlaps.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.Init(logger.Config{
				Level:  logger.ParseLevel(viper.GetString("log-level")),
				Format: viper.GetString("log-format"),
				Output: os.Stderr,
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", filepath.Join(".vscode", "mcp.json"), "path to the MCP configuration file")
	flags.String("workspace", "", "workspace root for ${workspaceFolder} resolution (default: cwd)")
	flags.Duration("init-timeout", 5*time.Second, "per-server initialize timeout")
	flags.Duration("list-timeout", 10*time.Second, "per-server tools/list timeout")
	flags.Duration("run-timeout", 60*time.Second, "deadline for the whole run")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text, json")
	flags.StringP("output", "o", "", "write the JSON report to this file")
	flags.Bool("json", false, "print the JSON report to stdout instead of the summary")

	viper.SetEnvPrefix("MCPSCAN")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	cobra.CheckErr(viper.BindPFlags(flags))

	root.Version = version
	root.SetVersionTemplate("mcpscan version {{.Version}}\n")

	root.AddCommand(newHealthCmd(), newDiscoverCmd(), newProfilesCmd(), newWatchCmd(), newMockCmd())
	return root
}

// runContext applies the run-level deadline and SIGINT/SIGTERM handling.
func runContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, viper.GetDuration("run-timeout"))
	return ctx, func() {
		cancel()
		stop()
	}
}

func workspaceRoot() (string, error) {
	if ws := viper.GetString("workspace"); ws != "" {
		return filepath.Abs(ws)
	}
	return os.Getwd()
}

func loadConfig() (*config.Config, error) {
	return config.Load(viper.GetString("config"))
}

func newOrchestrator(workspace string) *orchestrator.Orchestrator {
	return orchestrator.New(orchestrator.Options{
		WorkspaceRoot: workspace,
		InitTimeout:   viper.GetDuration("init-timeout"),
		ListTimeout:   viper.GetDuration("list-timeout"),
		ClientVersion: version,
	})
}
