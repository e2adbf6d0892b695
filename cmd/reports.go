package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/model"
)

var reportsCmd = &cobra.Command{
	Use:     "reports",
	Aliases: []string{"report"},
	Short:   "List and manage flood reports",
}

var listMine bool

var reportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List flood reports, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeClient)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Reports.FetchAll(ctx); err != nil {
			return eris.Wrap(err, "reports list")
		}

		list := env.Reports.Reports()
		if listMine {
			if err := env.Session.Require(); err != nil {
				return err
			}
			list = env.Session.Mine(list)
		}
		if list == nil {
			list = []model.Report{}
		}

		out := cmd.OutOrStdout()
		if done, err := writeStructured(out, outputFormat, list); done {
			return err
		}
		formatReports(out, list)
		return nil
	},
}

var reportsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one flood report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeClient)
		if err != nil {
			return err
		}
		defer env.Close()

		r, err := findReport(cmd, env, model.ID(args[0]))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if done, err := writeStructured(out, outputFormat, r); done {
			return err
		}
		formatReport(out, *r)
		return nil
	},
}

// errReportNotFound is returned when an id is not in the fetched collection.
var errReportNotFound = eris.New("report not found")

// findReport loads the collection and looks up id.
func findReport(cmd *cobra.Command, env *clientEnv, id model.ID) (*model.Report, error) {
	if err := env.Reports.FetchAll(cmd.Context()); err != nil {
		return nil, eris.Wrap(err, "fetch reports")
	}
	r := env.Reports.Find(id)
	if r == nil {
		return nil, eris.Wrapf(errReportNotFound, "id %s", id)
	}
	return r, nil
}

func init() {
	reportsListCmd.Flags().BoolVar(&listMine, "mine", false, "only reports created by the signed-in user")

	reportsCmd.AddCommand(reportsListCmd, reportsShowCmd)
	rootCmd.AddCommand(reportsCmd)
}
