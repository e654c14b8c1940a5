package main

import (
	"github.com/fgeck/homelab-remote/internal/api"
	"github.com/fgeck/homelab-remote/internal/catalog"
	"github.com/fgeck/homelab-remote/internal/config"
	"github.com/fgeck/homelab-remote/internal/services/runner"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the configured targets over HTTP",
	Long: `Serve the configured targets over HTTP:
  GET  /healthz
  GET  /catalog
  POST /targets/{name}/exec            {"command": "..."} or {"preset": "..."}
  POST /targets/{name}/service/ensure
  GET  /targets/{name}/service/status
  POST /targets/{name}/service/stop
  POST /targets/{name}/test

The server has no authentication and listens on loopback by default.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "", "listen address (overrides server.listen)")
	serveCmd.Flags().StringVar(&serviceName, "service", "", "service to manage (overrides service.name)")
}

func runServe(cmd *cobra.Command, args []string) error {
	if configFile == "" {
		log.Error().Msg("config file is required")
		return cmd.Help()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if listenAddr != "" {
		cfg.Server.Listen = listenAddr
	}

	cat, err := catalog.Load()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	srv := api.NewServer(log.Logger, runner.New(log.Logger, cfg), cfg.Targets, cat)
	return srv.ListenAndServe(ctx, cfg.Server)
}
