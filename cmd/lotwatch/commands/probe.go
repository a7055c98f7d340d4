package commands

import (
	"lotwatch/internal/probe"
	"lotwatch/internal/report"
	"os"

	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Check that every mac.bid endpoint lotwatch relies on still answers.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := app.Store(ctx)
		if err != nil {
			return err
		}
		client, err := app.Client(ctx)
		if err != nil {
			return err
		}
		nextData, err := app.NextData()
		if err != nil {
			return err
		}
		typesense, err := app.Typesense()
		if err != nil {
			return err
		}
		targets := probe.Targets{Client: client, Typesense: typesense, NextData: nextData}

		prober := probe.NewProber(probe.Checks(targets), st, app.clock, app.tel)
		results, err := prober.Run(ctx)
		if err != nil {
			return err
		}
		report.Probes(os.Stdout, results)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
