package commands

import (
	"lotwatch/internal/api"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveFlags struct {
	addr    string
	monitor bool
	fake    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the json api and push monitor events over a websocket.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := app.Store(ctx)
		if err != nil {
			return err
		}

		addr := serveFlags.addr
		if addr == "" {
			addr = app.cfg.ServeAddr
		}

		hub := api.NewHub(app.tel)
		server := api.NewServer(st, hub, app.clock, app.tel)

		group, ctx := errgroup.WithContext(ctx)
		if serveFlags.monitor {
			opts := monitorOptions()
			opts.Fake = serveFlags.fake
			m, err := app.Monitor(ctx, opts, app.Sinks(hub))
			if err != nil {
				return err
			}
			group.Go(func() error {
				return ignoreCancel(m.Run(ctx))
			})
		}
		group.Go(func() error {
			return server.ListenAndServe(ctx, addr)
		})
		return ignoreCancel(group.Wait())
	},
}

func init() {
	flags := serveCmd.Flags()
	flags.StringVar(&serveFlags.addr, "addr", "", "Address to listen on, defaults to serve_addr.")
	flags.BoolVar(&serveFlags.monitor, "monitor", false, "Also run the monitor and push its events to websocket clients.")
	flags.BoolVar(&serveFlags.fake, "fake", false, "Monitor generated listings instead of mac.bid.")

	rootCmd.AddCommand(serveCmd)
}
