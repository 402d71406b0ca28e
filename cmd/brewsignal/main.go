// Command brewsignal is the Brew Signal backend entrypoint: an HTTP API over
// the demand-signal store, plus operational subcommands for collection,
// source syncs, migration, and seeding.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/persistence/postgres"
)

const version = "v0.4.0"

var configPath string

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     "brewsignal",
		Short:   "IP licensing demand-signal backend",
		Version: version,
		Long: `Brew Signal tracks search, video, and merch demand signals for licensed
IPs, derives composite trends and opportunity scores, and serves them over a
JSON API.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCollectCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newScheduleCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newSeedCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func openManager(cfg config.Config) (*postgres.Manager, error) {
	manager, err := postgres.NewManager(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return manager, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager, err := openManager(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			if err := postgres.Migrate(cmd.Context(), manager.DB()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			log.Info().Msg("schema applied")
			return nil
		},
	}
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Install the source registry and a demo IP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager, err := openManager(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			ctx := cmd.Context()
			if err := postgres.Migrate(ctx, manager.DB()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			if err := postgres.Seed(ctx, manager.DB(), manager.Store()); err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}
			log.Info().Msg("seed data installed")
			return nil
		},
	}
}

// withTimeout derives a bounded context for one-shot subcommands.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
