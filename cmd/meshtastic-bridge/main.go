package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"meshbridge/internal/config"
	"meshbridge/internal/constants"
	"meshbridge/internal/logger"
	"meshbridge/pkg/logging"
)

var (
	configFile string

	// Set with -ldflags "-X main.version=...".
	version = "dev"
)

// @title           Meshtastic Bridge API
// @version         1.0
// @description     Relays mesh commands to the router and injects router messages into the mesh
// @BasePath        /
func main() {
	rootCmd := &cobra.Command{
		Use:   constants.ServiceName,
		Short: "Meshtastic radio to HTTP router bridge",
		Long:  "Relays whitelisted mesh commands to the router, acknowledges them over the radio, and injects router messages into the mesh",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (optional)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", constants.ServiceName, version)
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			earlyLog := logging.NewEarlyLog()

			if configFile == "" {
				configFile = os.Getenv("CONFIG_FILE")
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				earlyLog.Error("Failed to load config: %v", err)
				return err
			}

			log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				earlyLog.Error("Failed to init logger: %v", err)
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			log.InfowCtx(ctx, "Starting Meshtastic bridge", "version", version)

			app := NewApp(cfg, log)
			defer func() {
				if err := app.Shutdown(context.Background()); err != nil {
					log.ErrorwCtx(ctx, "Shutdown completed with errors", "error", err)
				}
			}()

			if err := app.Initialize(ctx); err != nil {
				if ctx.Err() != nil {
					log.InfowCtx(ctx, "Interrupted before the bridge became ready")
					return nil
				}
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			log.InfowCtx(ctx, "Bridge running")
			if err := app.Run(ctx); err != nil && err != context.Canceled {
				log.ErrorwCtx(ctx, "Bridge stopped with error", "error", err)
				return err
			}
			log.InfowCtx(ctx, "Bridge shutdown complete")
			return nil
		},
	}
}
