package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	apihttp "github.com/brewsignal/brewsignal/internal/interfaces/http"
	"github.com/brewsignal/brewsignal/internal/interfaces/http/handlers"
	"github.com/brewsignal/brewsignal/internal/persistence/postgres"
)

const shutdownGrace = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Brew Signal API server",
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

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := manager.Ping(ctx); err != nil {
				return fmt.Errorf("database unreachable: %w", err)
			}
			if err := postgres.Migrate(ctx, manager.DB()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			store := manager.Store()
			svc := buildServices(cfg, store)

			h := handlers.New(handlers.Deps{
				Store:      store,
				Config:     cfg,
				Runner:     svc.runner,
				Indicators: svc.indicators,
				BD:         svc.bd,
				Launch:     svc.launch,
				Health:     svc.health,
				Catalog:    svc.catalog,
				Video:      svc.video,
				Merch:      svc.merch,
				Log:        log.Logger,
			})
			server := apihttp.NewServer(cfg.HTTP, h, log.Logger)

			errCh := make(chan error, 1)
			go func() {
				if err := server.Start(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("server failed: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown failed: %w", err)
			}
			log.Info().Msg("server stopped")
			return nil
		},
	}
}
