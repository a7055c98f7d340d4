package commands

import (
	"errors"
	"fmt"
	"io"
	"lotwatch/internal/report"
	"os"

	"github.com/spf13/cobra"
)

var reportFlags struct {
	format   string
	out      string
	limit    int
	minScore float64
	chart    string
}

// reportOutput opens --out or falls back to stdout.
func reportOutput() (io.Writer, func() error, error) {
	if reportFlags.out == "" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(reportFlags.out)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// writeReport writes `v` as json or renders it with `table`.
func writeReport(v any, table func(w io.Writer)) error {
	format, err := report.ParseFormat(reportFlags.format)
	if err != nil {
		return err
	}
	if format == report.FormatXLSX {
		return fmt.Errorf("xlsx is only supported by `report top`")
	}
	w, closeOut, err := reportOutput()
	if err != nil {
		return err
	}
	if format == report.FormatJSON {
		err = report.WriteJSON(w, v)
	} else {
		table(w)
	}
	return errors.Join(err, closeOut())
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print what previous scans, monitors and probes recorded.",
}

var reportTopCmd = &cobra.Command{
	Use:   "top",
	Short: "Best opportunities from the latest scans.",
	Example: `  lotwatch report top --min-score 70
  lotwatch report top --format xlsx --out opportunities.xlsx`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := report.ParseFormat(reportFlags.format)
		if err != nil {
			return err
		}
		if format == report.FormatXLSX && reportFlags.out == "" {
			return fmt.Errorf("--format xlsx requires --out")
		}

		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		minScore := reportFlags.minScore
		if minScore < 0 {
			minScore = app.cfg.Scan.MinScore
		}
		list, err := st.TopOpportunities(cmd.Context(), minScore, reportFlags.limit, app.clock.Now())
		if err != nil {
			return err
		}

		w, closeOut, err := reportOutput()
		if err != nil {
			return err
		}
		switch format {
		case report.FormatXLSX:
			err = report.WriteXLSX(w, list)
		case report.FormatJSON:
			err = report.WriteJSON(w, report.OpportunityRows(list))
		default:
			report.Opportunities(w, list)
		}
		return errors.Join(err, closeOut())
	},
}

var reportHistoryCmd = &cobra.Command{
	Use:   "history <lot-id>",
	Short: "Bid history of a lot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		snapshots, err := st.History(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if reportFlags.chart != "" {
			err = report.WriteHistoryChart(reportFlags.chart, snapshots)
			if err != nil {
				return err
			}
		}
		return writeReport(snapshots, func(w io.Writer) {
			report.History(w, args[0], snapshots)
		})
	},
}

var reportScansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Most recent scans.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		list, err := st.Scans(cmd.Context(), reportFlags.limit)
		if err != nil {
			return err
		}
		return writeReport(list, func(w io.Writer) { report.Scans(w, list) })
	},
}

var reportProbesCmd = &cobra.Command{
	Use:   "probes",
	Short: "Most recent endpoint probes.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		list, err := st.Probes(cmd.Context(), reportFlags.limit)
		if err != nil {
			return err
		}
		return writeReport(list, func(w io.Writer) { report.Probes(w, list) })
	},
}

var reportFlashCmd = &cobra.Command{
	Use:   "flash",
	Short: "Flash deals that have not ended yet.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := app.Store(cmd.Context())
		if err != nil {
			return err
		}
		deals, err := st.FlashDeals(cmd.Context(), app.clock.Now())
		if err != nil {
			return err
		}
		return writeReport(deals, func(w io.Writer) { report.FlashDeals(w, deals) })
	},
}

func init() {
	flags := reportCmd.PersistentFlags()
	flags.StringVarP(&reportFlags.format, "format", "f", "table", "Output format: table, json or xlsx.")
	flags.StringVarP(&reportFlags.out, "out", "o", "", "Write to this file instead of stdout.")
	flags.IntVarP(&reportFlags.limit, "limit", "n", 25, "Rows to print.")
	reportTopCmd.Flags().Float64Var(&reportFlags.minScore, "min-score", -1, "Minimum score, defaults to scan.min_score.")
	reportHistoryCmd.Flags().StringVar(&reportFlags.chart, "chart", "", "Also save the history as a chart (.png, .svg or .pdf).")

	reportCmd.AddCommand(reportTopCmd, reportHistoryCmd, reportScansCmd, reportProbesCmd, reportFlashCmd)
	rootCmd.AddCommand(reportCmd)
}
