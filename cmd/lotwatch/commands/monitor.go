package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"lotwatch/internal/monitor"
	"time"

	"github.com/spf13/cobra"
)

var monitorFlags struct {
	interval    time.Duration
	jitter      time.Duration
	closingSoon time.Duration
	once        bool
	stream      bool
	fake        bool
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch the bids on your watchlist (and your own auctions when signed in).",
	Long: `Poll every watched lot, record bid changes and send notifications for
outbids, lots over your max bid and lots about to close.

With --stream, bid updates are pushed over the firestore listener instead
of polled.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		m, err := app.Monitor(ctx, monitorOptions(), app.Sinks())
		if err != nil {
			return err
		}

		switch {
		case monitorFlags.once:
			result, err := m.RunOnce(ctx)
			if err != nil {
				return err
			}
			slog.Info(
				"monitor pass finished",
				"polled", result.Polled,
				"changed", result.Changed,
				"events", len(result.Events),
				"errors", result.Errors,
			)
			return nil
		case monitorFlags.stream:
			firestore, err := app.Firestore()
			if err != nil {
				return err
			}
			err = m.Stream(ctx, firestore)
			if errors.Is(err, monitor.ErrEmptyWatchlist) {
				return fmt.Errorf("%w, add lots with `lotwatch watch add`", err)
			}
			return ignoreCancel(err)
		}

		slog.Info("monitoring", "interval", monitorOptions().Interval)
		return ignoreCancel(m.Run(ctx))
	},
}

func monitorOptions() MonitorOptions {
	cfg := app.cfg.Monitor
	opts := MonitorOptions{
		Fake:        monitorFlags.fake,
		Interval:    duration(cfg.Interval, time.Minute),
		Jitter:      duration(cfg.Jitter, 0),
		ClosingSoon: duration(cfg.ClosingSoon, time.Minute*15),
	}
	if monitorFlags.interval > 0 {
		opts.Interval = monitorFlags.interval
	}
	if monitorFlags.jitter > 0 {
		opts.Jitter = monitorFlags.jitter
	}
	if monitorFlags.closingSoon > 0 {
		opts.ClosingSoon = monitorFlags.closingSoon
	}
	return opts
}

// ignoreCancel treats an interrupt as a clean exit.
func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func init() {
	flags := monitorCmd.Flags()
	flags.DurationVar(&monitorFlags.interval, "interval", 0, "Time between passes, overrides monitor.interval.")
	flags.DurationVar(&monitorFlags.jitter, "jitter", 0, "Random delay added to every interval, overrides monitor.jitter.")
	flags.DurationVar(&monitorFlags.closingSoon, "closing-soon", 0, "Notify when a watched lot closes within this window.")
	flags.BoolVar(&monitorFlags.once, "once", false, "Run a single pass and exit.")
	flags.BoolVar(&monitorFlags.stream, "stream", false, "Listen for bid updates instead of polling.")
	flags.BoolVar(&monitorFlags.fake, "fake", false, "Use generated listings instead of mac.bid.")
	monitorCmd.MarkFlagsMutuallyExclusive("once", "stream")

	rootCmd.AddCommand(monitorCmd)
}
