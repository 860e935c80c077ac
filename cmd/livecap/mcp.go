package main

import (
	"log/slog"
	"os"

	"github.com/livecap/livecap/internal/mcpserver"
	"github.com/spf13/cobra"
)

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve caption tools over MCP on stdin/stdout",
		Long: "Starts a Model Context Protocol server exposing start, send_caption, " +
			"send_batch, sync_clock, get_status and stop tools, so an agent can drive " +
			"live captions directly.",
		RunE: func(_ *cobra.Command, _ []string) error {
			// stdout carries the protocol, logs go to stderr.
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: slog.LevelWarn,
			}))
			srv := mcpserver.NewServer(nil, logger, version)
			return srv.ServeStdio()
		},
	}
}
