package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/livecap/livecap/pkg/caption"
	"github.com/spf13/cobra"
)

// oneShotSender builds a started sender for single-command use.
func oneShotSender(streamKey string, verbose bool) (*caption.Sender, error) {
	if streamKey == "" {
		streamKey = os.Getenv("LIVECAP_STREAM_KEY")
	}
	if streamKey == "" {
		return nil, errors.New("stream key required (--stream-key or LIVECAP_STREAM_KEY)")
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	sender := caption.New(caption.Config{StreamKey: streamKey, Logger: logger})
	if err := sender.Start(); err != nil {
		return nil, err
	}
	return sender, nil
}

func heartbeatCmd() *cobra.Command {
	var (
		streamKey string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "heartbeat",
		Short: "Send one empty POST to keep the caption connection warm",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sender, err := oneShotSender(streamKey, verbose)
			if err != nil {
				return err
			}
			defer sender.End()

			result, err := sender.Heartbeat(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("status %d, server time %s\n", result.StatusCode, result.ServerTimestamp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&streamKey, "stream-key", "k", "", "YouTube Live stream key")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}

func syncCmd() *cobra.Command {
	var (
		streamKey string
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Measure the clock offset against the caption endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sender, err := oneShotSender(streamKey, verbose)
			if err != nil {
				return err
			}
			defer sender.End()

			result, err := sender.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("offset %dms, rtt %dms, server time %s\n",
				result.SyncOffset, result.RoundTripTime, result.ServerTimestamp)
			return nil
		},
	}
	cmd.Flags().StringVarP(&streamKey, "stream-key", "k", "", "YouTube Live stream key")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}
