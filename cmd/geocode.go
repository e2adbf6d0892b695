package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/model"
)

var geocodeCmd = &cobra.Command{
	Use:   "geocode",
	Short: "Resolve coordinates and addresses",
}

var geocodeReverseCmd = &cobra.Command{
	Use:     "reverse <lat> <lng>",
	Short:   "Resolve coordinates to an address",
	Example: `  floodwatch geocode reverse -- -6.2605 106.8139`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		lat, err := parseFloatArg("lat", args[0])
		if err != nil {
			return err
		}
		lng, err := parseFloatArg("lng", args[1])
		if err != nil {
			return err
		}

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeClient)
		if err != nil {
			return err
		}
		defer env.Close()

		addr, err := env.Geocoder.Reverse(ctx, model.Coordinates{Lat: lat, Lng: lng})
		if err != nil {
			return eris.Wrap(err, "geocode reverse")
		}

		out := cmd.OutOrStdout()
		if done, err := writeStructured(out, outputFormat, addr); done {
			return err
		}
		_, _ = fmt.Fprintln(out, orDash(addr.Area()))
		return nil
	},
}

var geocodeSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Resolve an address to candidate coordinates",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initClient(ctx, cmd.ErrOrStderr(), config.ModeClient)
		if err != nil {
			return err
		}
		defer env.Close()

		places, err := env.Geocoder.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return eris.Wrap(err, "geocode search")
		}

		out := cmd.OutOrStdout()
		if done, err := writeStructured(out, outputFormat, places); done {
			return err
		}
		if len(places) == 0 {
			_, _ = fmt.Fprintln(out, "no matches")
			return nil
		}
		formatPlaces(out, places)
		return nil
	},
}

// parseFloatArg parses a positional coordinate argument.
func parseFloatArg(name, s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, eris.Errorf("%s %q is not a number", name, s)
	}
	return v, nil
}

func init() {
	geocodeCmd.AddCommand(geocodeReverseCmd, geocodeSearchCmd)
	rootCmd.AddCommand(geocodeCmd)
}
