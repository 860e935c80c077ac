// Package main is the entry point for the livecap CLI.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/livecap/livecap/internal/config"
	"github.com/livecap/livecap/internal/core"
	"github.com/livecap/livecap/internal/security"
	"github.com/livecap/livecap/pkg/app"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	// Compiled modules register themselves on import.
	_ "github.com/livecap/livecap/internal/cron"
	_ "github.com/livecap/livecap/internal/gateway"
	_ "github.com/livecap/livecap/internal/keepalive"
	_ "github.com/livecap/livecap/internal/observability"
	_ "github.com/livecap/livecap/internal/session"
	_ "github.com/livecap/livecap/modules/keys/sqlite"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "livecap",
		Short:         "Live caption relay for YouTube Live streams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		versionCmd(),
		startCmd(),
		configCmd(),
		initCmd(),
		serviceCmd(),
		sendCmd(),
		heartbeatCmd(),
		syncCmd(),
		mcpCmd(),
	)
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and compiled modules",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("livecap %s (commit: %s, built: %s)\n", version, commit, date)
			mods := core.GetModules()
			if len(mods) == 0 {
				fmt.Println("\nNo compiled modules.")
				return
			}
			fmt.Println("\nCompiled modules:")
			for _, mod := range mods {
				fmt.Printf("  %s\n", mod.ID)
			}
		},
	}
}

func startCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the relay with all configured modules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			verbose, _ := cmd.Flags().GetBool("verbose")

			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}

			return app.Run(app.RunParams{
				ConfigPath: cfgPath,
				Version:    version,
				Commit:     commit,
				Date:       date,
				DataDir:    dataDir,
				LogLevel:   level,
			})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	cmd.Flags().String("data-dir", "", "Override the data directory")
	cmd.Flags().BoolP("verbose", "v", false, "Enable debug logging")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}

			ids := config.Resolve(cfg)
			fmt.Printf("Configuration OK (%d modules)\n", len(ids))
			for _, id := range ids {
				fmt.Printf("  %s\n", id)
			}
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <path>",
		Short: "Print the resolved configuration with secrets redacted",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}

			resolved := make(map[string]any, len(cfg.Modules))
			for id, node := range cfg.Modules {
				var v any
				if err := node.Decode(&v); err != nil {
					return fmt.Errorf("decoding module %q: %w", id, err)
				}
				if m, ok := v.(map[string]any); ok {
					security.NewRedactor().RedactMap(m)
					v = m
				}
				resolved[id] = v
			}

			out, err := yaml.Marshal(map[string]any{
				"version": cfg.Version,
				"modules": resolved,
			})
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	return cmd
}
