package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"Nowcast/internal/di"
	"Nowcast/pkg/config"
	"Nowcast/pkg/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd(ctx).Execute(); err != nil {
		stop()
		os.Exit(1)
	}
}

func rootCmd(ctx context.Context) *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "nowcast",
		Short:         "Ragged-edge quarterly nowcast backtester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(runCmd(ctx, &configPath))
	root.AddCommand(missingCmd(ctx, &configPath))
	return root
}

func runCmd(ctx context.Context, configPath *string) *cobra.Command {
	var serve bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the backtest and print the accuracy summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, func(cfg *config.Config) {
				if serve {
					cfg.HTTP.Enabled = true
					cfg.HTTP.Hold = true
				}
			}, func(app *server.App) error {
				return app.Run(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&serve, "serve", false, "keep /metrics and /api/status up after the run")
	return cmd
}

func missingCmd(ctx context.Context, configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "missing",
		Short: "List the cache keys a run would still compute",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*configPath, nil, func(app *server.App) error {
				return app.Missing(ctx)
			})
		},
	}
}

func withApp(path string, override func(*config.Config), fn func(*server.App) error) error {
	cfg, err := config.LoadWithEnv(path)
	if err != nil {
		log.Printf("config load failed: %v", err)
		return err
	}
	if override != nil {
		override(cfg)
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Printf("app initialization failed: %v", err)
		return err
	}
	defer cleanup()

	if err := fn(app); err != nil {
		log.Printf("app error: %v", err)
		return err
	}
	return nil
}
