package main

import (
	"errors"
	"fmt"

	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-relay/internal/auth"
	"github.com/Tyrowin/gochat-relay/internal/group"
	"github.com/Tyrowin/gochat-relay/internal/metrics"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/internal/userstore"
)

func serveCmd() *cobra.Command {
	var (
		port     string
		logLevel string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the relay server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			return serve(cmd, *cfg)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "Listen address, overrides SERVER_PORT")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level, overrides LOG_LEVEL")

	return cmd
}

// serve wires every component and blocks until the command context is
// cancelled or the HTTP server fails.
func serve(cmd *cobra.Command, cfg server.Config) error {
	ctx := cmd.Context()

	if err := cfg.Validate(); err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	store, err := userstore.Open(cfg.UserStore, storePath(cfg))
	if err != nil {
		return fmt.Errorf("user store opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing user store...")
		_ = store.Close()
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg, cfg.MetricsNamespace)

	relay := server.New(cfg, server.Deps{
		Log:           log,
		Authenticator: auth.NewAuthenticator(auth.NewJWTVerifier(cfg.JWTSecret), store, log, m),
		Registry:      group.NewHub(log, m),
		Metrics:       m,
		Gatherer:      reg,
	})

	httpServer := server.CreateServer(cfg.Port, relay.Routes())

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting GoChat relay", "addr", cfg.Port, "store", cfg.UserStore)
		errChan <- server.StartServer(httpServer, log)
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	}

	var shutdownErr error
	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout, log); err != nil {
		shutdownErr = errors.Join(shutdownErr, err)
	}
	if err := relay.Shutdown(cfg.ShutdownTimeout); err != nil {
		shutdownErr = errors.Join(shutdownErr, fmt.Errorf("session shutdown: %w", err))
	}
	if shutdownErr == nil {
		log.Info("Server stopped cleanly")
	}
	return shutdownErr
}

func storePath(cfg server.Config) string {
	switch cfg.UserStore {
	case userstore.BackendSQLite:
		return cfg.SQLitePath
	case userstore.BackendBadger:
		return cfg.BadgerPath
	default:
		return ""
	}
}
