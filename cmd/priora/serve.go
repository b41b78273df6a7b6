package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fentz26/priora/internal/config"
	"github.com/fentz26/priora/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"daemon"},
	Short:   "Start the priora API server",
	Long:    `Starts the priora daemon which provides the HTTP API for scoring, difficulty and time estimation.`,
	RunE:    runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address for the API server (overrides server.listen)")
	serveCmd.Flags().String("db", "", "Store DSN, e.g. a SQLite path (overrides store.dsn)")
	_ = viper.BindPFlag("server.listen", serveCmd.Flags().Lookup("listen"))
	_ = viper.BindPFlag("store.dsn", serveCmd.Flags().Lookup("db"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	logger.Info("starting priora daemon", "version", version)

	rt, err := buildRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	srv := server.NewServer(rt.service, server.Config{
		Addr:         cfg.Server.Listen,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		CORSOrigins:  cfg.Server.CORSOrigins,
		JWTSecret:    cfg.Server.JWTSecret,
		Version:      version,
	}, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		logger.Info("received signal, initiating graceful shutdown", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			logger.Error("server error", "error", err)
			rt.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	logger.Info("closing store and cache connections")
	rt.Close()

	logger.Info("shutdown complete")
	return nil
}
