package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodwatch/internal/config"
	"github.com/sells-group/floodwatch/internal/devserver"
	"github.com/sells-group/floodwatch/internal/model"
)

var (
	servePort int
	serveSeed string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start an in-memory flood report backend for development",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port
		if err := cfg.Validate(config.ModeServe); err != nil {
			return err
		}

		opts := []devserver.Option{devserver.WithAllowedOrigins(cfg.Server.AllowedOrigins...)}
		if serveSeed != "" {
			seed, err := loadSeed(serveSeed)
			if err != nil {
				return err
			}
			opts = append(opts, devserver.WithSeed(seed...))
			zap.L().Info("seeded reports", zap.Int("count", len(seed)))
		}

		backend := devserver.New(opts...)
		return backend.ListenAndServe(ctx, fmt.Sprintf(":%d", port))
	},
}

// loadSeed reads a JSON array of reports, newest first.
func loadSeed(path string) ([]model.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "serve: read seed file")
	}
	var reports []model.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, eris.Wrap(err, "serve: decode seed file")
	}
	return reports, nil
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveSeed, "seed", "", "JSON file of reports to preload")
	rootCmd.AddCommand(serveCmd)
}
