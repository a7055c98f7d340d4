package commands

import (
	"context"
	"fmt"
	"log/slog"
	"lotwatch/internal/components/chrono"
	"lotwatch/internal/components/telemetry"
	"lotwatch/internal/discovery"
	"lotwatch/internal/report"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var scanFlags struct {
	terms        []string
	categories   []string
	pages        int
	perPage      int
	concurrency  int
	minScore     float64
	locations    []string
	allLocations bool
	typesense    bool
	flash        bool
	schedule     string
	fake         bool
	limit        int
}

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Search for lots, score them and print the best opportunities.",
	Long: `Search mac.bid for every term (or every term of the given categories),
keep lots in the configured locations, score them and store the results.

With --flash the turbo clock is scanned instead. With --schedule the scan
repeats on a cron schedule until interrupted.`,
	Example: `  lotwatch scan --category electronics --min-score 60
  lotwatch scan --term "dewalt drill" --term ryobi --pages 2
  lotwatch scan --flash
  lotwatch scan --schedule "*/30 * * * *"`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if scanFlags.schedule == "" {
			return runScan(ctx)
		}

		cron := chrono.NewStandardCron(app.clock, telemetry.NewScopedAPI("scan", app.tel))
		err := cron.Cron(scanFlags.schedule, func() {
			err := runScan(ctx)
			if err != nil {
				slog.Error("scheduled scan failed", "err", err)
			}
		})
		if err != nil {
			return fmt.Errorf("invalid schedule: %w", err)
		}
		slog.Info("scan scheduled", "schedule", scanFlags.schedule, "next", cron.Next().Format(time.DateTime))
		<-ctx.Done()
		cron.Stop()
		return nil
	},
}

func scanLocations() []string {
	if scanFlags.allLocations {
		return nil
	}
	if len(scanFlags.locations) > 0 {
		return scanFlags.locations
	}
	return app.cfg.Scan.Locations
}

func runScan(ctx context.Context) error {
	scanner, err := app.Scanner(ctx, scanFlags.fake)
	if err != nil {
		return err
	}

	if scanFlags.flash {
		result, err := scanner.ScanFlashDeals(ctx, scanLocations())
		if err != nil {
			return err
		}
		st, err := app.Store(ctx)
		if err != nil {
			return err
		}
		deals, err := st.FlashDeals(ctx, app.clock.Now())
		if err != nil {
			return err
		}
		slog.Info("flash scan finished", "scan", result.ScanID, "deals", len(result.Deals))
		report.FlashDeals(os.Stdout, deals)
		return nil
	}

	terms, err := discovery.ResolveTerms(scanFlags.terms, scanFlags.categories)
	if err != nil {
		return err
	}

	cfg := app.cfg.Scan
	opts := discovery.ScanOptions{
		Terms:        terms,
		MaxPages:     cfg.MaxPages,
		PerPage:      cfg.PerPage,
		Concurrency:  cfg.Concurrency,
		Delay:        duration(cfg.Delay, 0),
		Locations:    scanLocations(),
		MinScore:     cfg.MinScore,
		UseTypesense: scanFlags.typesense,
	}
	if scanFlags.pages > 0 {
		opts.MaxPages = scanFlags.pages
	}
	if scanFlags.perPage > 0 {
		opts.PerPage = scanFlags.perPage
	}
	if scanFlags.concurrency > 0 {
		opts.Concurrency = scanFlags.concurrency
	}
	if scanFlags.minScore >= 0 {
		opts.MinScore = scanFlags.minScore
	}

	slog.Info("scanning", "terms", len(terms), "locations", strings.Join(opts.Locations, ", "))
	result, err := scanner.Scan(ctx, opts)
	if err != nil {
		return err
	}
	slog.Info(
		"scan finished",
		"scan", result.ScanID,
		"found", result.LotsFound,
		"kept", result.LotsKept,
		"opportunities", len(result.Opportunities),
		"errors", result.Errors,
		"took", result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond),
	)

	list := result.Opportunities
	if scanFlags.limit > 0 && len(list) > scanFlags.limit {
		list = list[:scanFlags.limit]
	}
	report.Opportunities(os.Stdout, list)
	return nil
}

func init() {
	flags := scanCmd.Flags()
	flags.StringArrayVarP(&scanFlags.terms, "term", "t", nil, "Search term, can be repeated.")
	flags.StringSliceVarP(&scanFlags.categories, "category", "c", nil, fmt.Sprintf("Term category (%s), can be repeated.", strings.Join(discovery.Categories(), ", ")))
	flags.IntVar(&scanFlags.pages, "pages", 0, "Max pages per term, overrides scan.max_pages.")
	flags.IntVar(&scanFlags.perPage, "per-page", 0, "Lots per page, overrides scan.per_page.")
	flags.IntVar(&scanFlags.concurrency, "concurrency", 0, "Terms searched at once, overrides scan.concurrency.")
	flags.Float64Var(&scanFlags.minScore, "min-score", -1, "Minimum score to keep an opportunity, overrides scan.min_score.")
	flags.StringSliceVarP(&scanFlags.locations, "location", "l", nil, "Warehouse location to keep, overrides scan.locations.")
	flags.BoolVar(&scanFlags.allLocations, "all-locations", false, "Keep lots from every location.")
	flags.BoolVar(&scanFlags.typesense, "typesense", false, "Search through typesense instead of the json api.")
	flags.BoolVar(&scanFlags.flash, "flash", false, "Scan the turbo clock flash deals.")
	flags.StringVar(&scanFlags.schedule, "schedule", "", "Cron schedule to repeat the scan on.")
	flags.BoolVar(&scanFlags.fake, "fake", false, "Use generated listings instead of mac.bid.")
	flags.IntVarP(&scanFlags.limit, "limit", "n", 25, "Rows to print, 0 prints everything.")

	rootCmd.AddCommand(scanCmd)
}
