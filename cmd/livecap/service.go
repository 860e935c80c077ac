package main

import (
	"fmt"
	"log/slog"

	"github.com/kardianos/service"
	"github.com/livecap/livecap/pkg/app"
	"github.com/spf13/cobra"
)

// program adapts the application loop to the service manager lifecycle.
type program struct {
	configPath string
	dataDir    string
	errCh      chan error
}

func (p *program) Start(service.Service) error {
	p.errCh = make(chan error, 1)
	go func() {
		p.errCh <- app.Run(app.RunParams{
			ConfigPath: p.configPath,
			Version:    version,
			Commit:     commit,
			Date:       date,
			DataDir:    p.dataDir,
			LogLevel:   slog.LevelInfo,
		})
	}()
	return nil
}

func (p *program) Stop(service.Service) error {
	// app.Run exits on SIGTERM, which the service manager already sent.
	return nil
}

func serviceCmd() *cobra.Command {
	var configPath, dataDir string

	cmd := &cobra.Command{
		Use:   "service <install|uninstall|start|stop|restart|run>",
		Short: "Manage livecap as a system service",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			svcConfig := &service.Config{
				Name:        "livecap",
				DisplayName: "livecap caption relay",
				Description: "Relay that forwards live captions to YouTube Live streams.",
				Arguments:   []string{"service", "run"},
			}
			if configPath != "" {
				svcConfig.Arguments = append(svcConfig.Arguments, "--config", configPath)
			}
			if dataDir != "" {
				svcConfig.Arguments = append(svcConfig.Arguments, "--data-dir", dataDir)
			}

			prg := &program{configPath: configPath, dataDir: dataDir}
			svc, err := service.New(prg, svcConfig)
			if err != nil {
				return err
			}

			action := args[0]
			switch action {
			case "run":
				return svc.Run()
			case "install", "uninstall", "start", "stop", "restart":
				if err := service.Control(svc, action); err != nil {
					return err
				}
				fmt.Printf("Service %s: done\n", action)
				return nil
			default:
				return fmt.Errorf("unknown action %q", action)
			}
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "Override the data directory")
	return cmd
}
