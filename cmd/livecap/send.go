package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/livecap/livecap/pkg/caption"
	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		streamKey string
		region    string
		cue       string
		timestamp string
		syncFirst bool
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "send <text>...",
		Short: "Send captions directly to a YouTube Live stream",
		Long: "Sends one or more captions straight to the YouTube caption ingestion " +
			"endpoint, without going through a running relay. Each argument becomes " +
			"one caption.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if streamKey == "" {
				streamKey = os.Getenv("LIVECAP_STREAM_KEY")
			}
			if streamKey == "" {
				return errors.New("stream key required (--stream-key or LIVECAP_STREAM_KEY)")
			}

			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

			sender := caption.New(caption.Config{
				StreamKey: streamKey,
				Region:    region,
				Cue:       cue,
				UseRegion: region != "",
				Logger:    logger,
			})
			if err := sender.Start(); err != nil {
				return err
			}
			defer sender.End()

			ctx := cmd.Context()

			if syncFirst {
				res, err := sender.Sync(ctx)
				if err != nil {
					return fmt.Errorf("clock sync: %w", err)
				}
				fmt.Fprintf(os.Stderr, "clock offset: %dms (rtt %dms)\n", res.SyncOffset, res.RoundTripTime)
			}

			at := time.Now()
			if timestamp != "" {
				parsed, err := caption.ParseTimestamp(timestamp)
				if err != nil {
					return fmt.Errorf("invalid --timestamp: %w", err)
				}
				at = parsed
			}

			captions := make([]caption.Caption, len(args))
			for i, text := range args {
				captions[i] = caption.Caption{Text: text, At: at}
			}

			result, err := sender.SendBatch(ctx, captions)
			if err != nil {
				return err
			}
			if !result.OK() {
				return fmt.Errorf("upstream returned status %d", result.StatusCode)
			}

			fmt.Printf("sent %d caption(s), sequence now %d\n", result.Count, result.Sequence)
			return nil
		},
	}

	cmd.Flags().StringVarP(&streamKey, "stream-key", "k", "", "YouTube Live stream key")
	cmd.Flags().StringVar(&region, "region", "", "Caption track region")
	cmd.Flags().StringVar(&cue, "cue", "", "Caption track cue")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "Caption timestamp (ISO-8601, defaults to now)")
	cmd.Flags().BoolVar(&syncFirst, "sync", false, "Run a clock sync round-trip before sending")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	return cmd
}
