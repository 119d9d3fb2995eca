package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jonathan/filing-validator/internal/config"
	"github.com/jonathan/filing-validator/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the HTTP API server exposing validation runs and blob storage.

Endpoints:
  GET  /health                         Health check
  POST /api/validate                   Run the validation pipeline
  POST /api/validate/stream            Run the pipeline with SSE progress
  GET  /api/blobs?container=NAME       List a container
  GET  /api/blobs/{container}/{name}   Download a blob
  POST /api/blobs                      Upload a blob (multipart)
  GET  /api/runs                       Recent runs (requires DATABASE_URL)
  GET  /api/runs/{id}                  One run
  GET  /api/runs/{id}/steps            Steps of one run

Set JWT_SECRET and/or API_KEY_HASH to require authentication on /api/.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides PORT)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.pipeline(ctx)
	if err != nil {
		return err
	}

	jwtCfg, err := config.NewJWTConfig()
	if err != nil {
		return fmt.Errorf("failed to load JWT config: %w", err)
	}
	apiKeyCfg, err := config.NewAPIKeyConfig()
	if err != nil {
		return fmt.Errorf("failed to load API key config: %w", err)
	}

	port := a.cfg.Port
	if servePort != 0 {
		port = servePort
	}

	srvCfg := server.Config{
		Port:   port,
		Runner: p,
		Store:  a.store,
		JWT:    jwtCfg,
		APIKey: apiKeyCfg,
		Logger: a.logger,
	}
	if a.database != nil {
		srvCfg.History = a.database
	}

	srv, err := server.New(srvCfg)
	if err != nil {
		return err
	}
	defer srv.Close()

	a.logger.Info("cli: starting server",
		zap.Int("port", port),
		zap.String("storage", a.cfg.StorageBackend),
		zap.Bool("history", a.database != nil),
	)
	return srv.Start(ctx)
}
