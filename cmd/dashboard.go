package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/dashboard"
	"github.com/sells-group/floodwatch/pkg/geocode"
)

var (
	dashboardHotspots  int
	dashboardNoGeocode bool
)

// dashboardView is the structured output of the dashboard command.
type dashboardView struct {
	Summary  dashboard.Summary   `json:"summary" yaml:"summary"`
	Hotspots []dashboard.Hotspot `json:"hotspots" yaml:"hotspots"`
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Summarize the report collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeClient)
		if err != nil {
			return err
		}
		defer env.Close()

		// Expired geocode entries are purged while the collection loads.
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Reports.FetchAll(gctx)
		})
		if env.Cache != nil {
			g.Go(func() error {
				n, err := env.Cache.DeleteExpired(gctx)
				if err != nil {
					zap.L().Warn("dashboard: purge geocode cache", zap.Error(err))
					return nil
				}
				zap.L().Debug("dashboard: purged geocode cache", zap.Int("removed", n))
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return eris.Wrap(err, "dashboard")
		}

		list := env.Reports.Reports()
		view := dashboardView{Summary: dashboard.Summarize(list, env.Session)}

		if dashboardHotspots > 0 {
			var geo geocode.Client
			if !dashboardNoGeocode {
				geo = env.Geocoder
			}
			view.Hotspots, err = dashboard.Hotspots(ctx, geo, list, dashboard.DefaultHotspotLevel, dashboardHotspots)
			if err != nil {
				return eris.Wrap(err, "dashboard: hotspots")
			}
		}

		out := cmd.OutOrStdout()
		if done, err := writeStructured(out, outputFormat, view); done {
			return err
		}
		formatSummary(out, view.Summary, view.Hotspots)
		return nil
	},
}

func init() {
	dashboardCmd.Flags().IntVar(&dashboardHotspots, "hotspots", 3, "number of flood hotspots to list (0 disables)")
	dashboardCmd.Flags().BoolVar(&dashboardNoGeocode, "no-geocode", false, "skip naming hotspots via the geocoder")
	rootCmd.AddCommand(dashboardCmd)
}
