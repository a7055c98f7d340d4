package commands

import (
	"fmt"
	"lotwatch/internal/report"
	"lotwatch/internal/store"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var watchFlags struct {
	maxBid string
	note   string
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the lots the monitor keeps an eye on.",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <lot-id>",
	Short: "Watch a lot, or update its max bid and note.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxBid := decimal.Zero
		if watchFlags.maxBid != "" {
			var err error
			maxBid, err = decimal.NewFromString(watchFlags.maxBid)
			if err != nil {
				return fmt.Errorf("invalid max bid %q: %w", watchFlags.maxBid, err)
			}
			if maxBid.IsNegative() {
				return fmt.Errorf("max bid cannot be negative")
			}
		}

		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		err = st.Watch(cmd.Context(), store.WatchEntry{
			LotID:   args[0],
			MaxBid:  maxBid,
			Note:    watchFlags.note,
			AddedAt: app.clock.Now(),
		})
		if err != nil {
			return err
		}
		fmt.Printf("watching %s\n", args[0])
		return nil
	},
}

var watchRmCmd = &cobra.Command{
	Use:     "rm <lot-id>",
	Aliases: []string{"remove"},
	Short:   "Stop watching a lot.",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		removed, err := st.Unwatch(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			return fmt.Errorf("lot %s is not on the watchlist", args[0])
		}
		fmt.Printf("stopped watching %s\n", args[0])
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "Print the watchlist.",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		entries, err := st.Watchlist(cmd.Context())
		if err != nil {
			return err
		}
		report.Watchlist(os.Stdout, entries)
		return nil
	},
}

func init() {
	watchAddCmd.Flags().StringVar(&watchFlags.maxBid, "max-bid", "", "Most you are willing to pay, e.g. 42.50.")
	watchAddCmd.Flags().StringVar(&watchFlags.note, "note", "", "Free form note shown in the watchlist.")

	watchCmd.AddCommand(watchAddCmd, watchRmCmd, watchListCmd)
	rootCmd.AddCommand(watchCmd)
}
