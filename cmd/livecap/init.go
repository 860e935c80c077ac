package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
)

const configTemplate = `version: "1"

modules:
  relay.sessions:
    ttl: %s
  keys.sqlite:
    path: %s
  gateway.http:
    bind: %s
  keepalive: {}
  cron: {}
`

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactively create a livecap.yaml configuration",
		RunE: func(_ *cobra.Command, _ []string) error {
			var (
				bind       = ":8080"
				sessionTTL = "2h"
				dbPath     = "livecap.db"
				outPath    = "livecap.yaml"
				tracing    bool
				otlp       string
			)

			form := huh.NewForm(
				huh.NewGroup(
					huh.NewInput().
						Title("HTTP bind address").
						Description("Address the gateway listens on.").
						Value(&bind),
					huh.NewInput().
						Title("Session TTL").
						Description("Idle sessions are removed after this duration.").
						Value(&sessionTTL),
					huh.NewInput().
						Title("API key database path").
						Description("SQLite file holding registered API keys.").
						Value(&dbPath),
					huh.NewConfirm().
						Title("Enable OTLP tracing?").
						Value(&tracing),
				),
				huh.NewGroup(
					huh.NewInput().
						Title("OTLP collector endpoint").
						Placeholder("localhost:4318").
						Value(&otlp),
				).WithHideFunc(func() bool { return !tracing }),
				huh.NewGroup(
					huh.NewInput().
						Title("Write configuration to").
						Value(&outPath).
						Validate(func(s string) error {
							if strings.TrimSpace(s) == "" {
								return errors.New("path must not be empty")
							}
							return nil
						}),
				),
			)
			if err := form.Run(); err != nil {
				return err
			}

			content := fmt.Sprintf(configTemplate, sessionTTL, dbPath, bind)
			if tracing && otlp != "" {
				content += fmt.Sprintf("  observability.tracing:\n    endpoint: %s\n", otlp)
			}

			if _, err := os.Stat(outPath); err == nil {
				return fmt.Errorf("%s already exists, refusing to overwrite", outPath)
			}
			if dir := filepath.Dir(outPath); dir != "." {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return err
				}
			}
			if err := os.WriteFile(outPath, []byte(content), 0o600); err != nil {
				return err
			}

			fmt.Printf("Wrote %s\n", outPath)
			fmt.Println("Set JWT_SECRET and ADMIN_KEY in the environment, then run: livecap start")
			return nil
		},
	}
}
