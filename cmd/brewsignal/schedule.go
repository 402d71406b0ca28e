package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/brewsignal/brewsignal/internal/scheduler"
)

func newScheduleCmd() *cobra.Command {
	var jobsPath string

	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run collection and sync jobs on their configured intervals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			jobs, err := scheduler.LoadConfig(jobsPath)
			if err != nil {
				return err
			}
			manager, err := openManager(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			store := manager.Store()
			svc := buildServices(cfg, store)

			sched := scheduler.New(jobs, log.Logger)
			sched.Register("collect", func(ctx context.Context) error {
				ips, err := store.IPs.List(ctx)
				if err != nil {
					return fmt.Errorf("failed to list IPs: %w", err)
				}
				var failures int
				for _, ip := range ips {
					if _, err := svc.runner.Run(ctx, ip.ID, "TW", "12m"); err != nil {
						failures++
						log.Error().Err(err).Str("ip_id", ip.ID.String()).Msg("scheduled collection failed")
					}
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d collection passes failed", failures, len(ips))
				}
				return nil
			})
			sched.Register("catalog_sync", func(ctx context.Context) error {
				_, err := svc.catalog.SyncAll(ctx)
				return err
			})
			sched.Register("video_sync", func(ctx context.Context) error {
				_, err := svc.video.SyncAll(ctx)
				return err
			})
			sched.Register("merch_sync", func(ctx context.Context) error {
				_, err := svc.merch.SyncAll(ctx)
				return err
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := sched.Start(ctx); err != nil && err != context.Canceled {
				return err
			}
			log.Info().Msg("scheduler stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&jobsPath, "jobs", "", "Path to the YAML job table (default: built-in cadence)")
	return cmd
}
