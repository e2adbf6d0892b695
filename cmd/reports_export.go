package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/export"
)

var (
	exportFormat string
	exportOut    string
	exportMine   bool
)

var reportsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export flood reports to XLSX, shapefile or GeoJSON",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		var (
			format export.Format
			err    error
		)
		if exportFormat != "" {
			format, err = export.ParseFormat(exportFormat)
		} else {
			format, err = export.FormatFromPath(exportOut)
		}
		if err != nil {
			return err
		}

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeClient)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Reports.FetchAll(ctx); err != nil {
			return eris.Wrap(err, "reports export")
		}
		list := env.Reports.Reports()
		if exportMine {
			if err := env.Session.Require(); err != nil {
				return err
			}
			list = env.Session.Mine(list)
		}

		n, err := export.Write(exportOut, format, list)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(cmd.OutOrStdout(), "exported %d reports to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	reportsExportCmd.Flags().StringVar(&exportFormat, "format", "", "xlsx, shp or geojson (default from --out extension)")
	reportsExportCmd.Flags().StringVar(&exportOut, "out", "", "output file path")
	reportsExportCmd.Flags().BoolVar(&exportMine, "mine", false, "only reports created by the signed-in user")
	_ = reportsExportCmd.MarkFlagRequired("out")

	reportsCmd.AddCommand(reportsExportCmd)
}
