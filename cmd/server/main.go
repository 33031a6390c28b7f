package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/Tyrowin/gochat-relay/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serve := serveCmd()
	rootCmd := &cobra.Command{
		Use:   "gochat-relay",
		Short: "Real-time WebSocket message relay",
		Long: `gochat-relay relays chat messages between WebSocket clients.

Every client joins the public group. Clients presenting a valid access
token also join their personal group and can be messaged privately.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          serve.RunE,
	}
	rootCmd.Flags().AddFlagSet(serve.Flags())

	rootCmd.AddCommand(
		serve,
		tokenCmd(),
		userCmd(),
	)

	return rootCmd.ExecuteContext(ctx)
}

// loadConfig reads an optional .env file, then the environment.
func loadConfig() (*server.Config, error) {
	_ = godotenv.Load()

	cfg, err := server.NewConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}
	return cfg, nil
}
