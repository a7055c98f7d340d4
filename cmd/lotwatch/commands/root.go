package commands

import (
	"context"
	"fmt"
	"lotwatch/internal/components/telemetry"
	"lotwatch/lib/util/serviceutil"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/profile"
	"github.com/spf13/cobra"
)

var (
	configPath  string
	verbose     bool
	profileMode string
)

var app *App

var rootCmd = &cobra.Command{
	Use:   "lotwatch",
	Short: "lotwatch finds underpriced lots on mac.bid and keeps an eye on the ones you bid on.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(verbose)
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		cfg, err := loadConfig(configPath)
		if err != nil {
			return err
		}
		app, err = NewApp(cmd.Context(), cfg, verbose)
		if err != nil {
			return err
		}

		switch profileMode {
		case "":
		case "cpu":
			app.profile = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		case "mem":
			app.profile = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
		default:
			return fmt.Errorf("unknown profile mode %q, expected cpu or mem", profileMode)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		defer cancel()
		app.Close(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.json5", "Path to the config file, <name>.local.<ext> is merged on top.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log debug output and dump every http exchange to dev/.state/resty.")
	rootCmd.PersistentFlags().StringVar(&profileMode, "profile", "", "Write a cpu or mem profile to the working directory.")
}

func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if app != nil && err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
		app.Close(closeCtx)
		cancel()
	}
	if err != nil {
		serviceutil.Fatal("lotwatch failed", err)
	}
}
