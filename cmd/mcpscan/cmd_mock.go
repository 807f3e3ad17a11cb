package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/deanluus/mcpscan/internal/mockserver"
)

// newMockCmd exposes the built-in mock MCP server. Hidden: it exists for
// demos and for exercising mcpscan against a known-good peer.
func newMockCmd() *cobra.Command {
	var (
		name     string
		tools    []string
		failInit string
		hangInit bool
		hangList bool
		violate  bool
		noise    []string
		delay    time.Duration
	)

	cmd := &cobra.Command{
		Use:    "mock",
		Short:  "Serve a mock MCP server over stdio",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return mockserver.Run(cmd.Context(), mockserver.Options{
				Name:           name,
				Tools:          mockserver.MakeTools("", tools...),
				FailInitialize: failInit,
				HangInitialize: hangInit,
				HangList:       hangList,
				NoiseLines:     noise,
				Violate:        violate,
				Delay:          delay,
			}, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&name, "name", "mock", "server name reported by initialize")
	cmd.Flags().StringSliceVar(&tools, "tool", []string{"search", "read"}, "tool names to expose")
	cmd.Flags().StringVar(&failInit, "fail-initialize", "", "answer initialize with this JSON-RPC error message")
	cmd.Flags().BoolVar(&hangInit, "hang-initialize", false, "never answer initialize")
	cmd.Flags().BoolVar(&hangList, "hang-list", false, "never answer tools/list")
	cmd.Flags().BoolVar(&violate, "violate", false, "answer with neither result nor error")
	cmd.Flags().StringSliceVar(&noise, "noise", nil, "diagnostic lines to print on stdout before serving")
	cmd.Flags().DurationVar(&delay, "delay", 0, "delay before answering each request")

	return cmd
}
