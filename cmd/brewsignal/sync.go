package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const syncTimeout = 30 * time.Minute

func newSyncCmd() *cobra.Command {
	var (
		source string
		ipFlag string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync catalogue, video, or merch data from external sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			switch source {
			case "catalog", "video", "merch", "all":
			default:
				return fmt.Errorf("unknown --source %q (want catalog, video, merch, or all)", source)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			manager, err := openManager(cfg)
			if err != nil {
				return err
			}
			defer manager.Close()

			svc := buildServices(cfg, manager.Store())

			ctx, cancel := withTimeout(cmd.Context(), syncTimeout)
			defer cancel()

			var ipID *uuid.UUID
			if ipFlag != "" {
				id, err := uuid.Parse(ipFlag)
				if err != nil {
					return fmt.Errorf("invalid --ip value %q: %w", ipFlag, err)
				}
				ipID = &id
			}

			if source == "catalog" || source == "all" {
				if err := runCatalogSync(ctx, svc, ipID); err != nil {
					return err
				}
			}
			if source == "video" || source == "all" {
				if err := runVideoSync(ctx, svc, ipID); err != nil {
					return err
				}
			}
			if source == "merch" || source == "all" {
				if err := runMerchSync(ctx, svc, ipID); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "all", "Source to sync: catalog, video, merch, or all")
	cmd.Flags().StringVar(&ipFlag, "ip", "", "IP UUID to sync (default: all IPs)")
	return cmd
}

func runCatalogSync(ctx context.Context, svc *services, ipID *uuid.UUID) error {
	if ipID != nil {
		result, err := svc.catalog.SyncIP(ctx, *ipID)
		if err != nil {
			return fmt.Errorf("catalog sync failed: %w", err)
		}
		log.Info().
			Str("ip", result.IPName).
			Bool("matched", result.Matched).
			Int("events_added", result.EventsAdded).
			Msg("catalog sync finished")
		return nil
	}

	results, err := svc.catalog.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("catalog sync failed: %w", err)
	}
	for _, r := range results {
		log.Info().
			Str("ip", r.IPName).
			Bool("matched", r.Matched).
			Int("events_added", r.EventsAdded).
			Msg("catalog sync finished")
	}
	return nil
}

func runVideoSync(ctx context.Context, svc *services, ipID *uuid.UUID) error {
	if ipID != nil {
		result, err := svc.video.SyncIP(ctx, *ipID)
		if err != nil {
			return fmt.Errorf("video sync failed: %w", err)
		}
		log.Info().
			Str("ip", result.IPName).
			Int("videos_added", result.VideosAdded).
			Msg("video sync finished")
		return nil
	}

	results, err := svc.video.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("video sync failed: %w", err)
	}
	for _, r := range results {
		log.Info().
			Str("ip", r.IPName).
			Int("videos_added", r.VideosAdded).
			Msg("video sync finished")
	}
	return nil
}

func runMerchSync(ctx context.Context, svc *services, ipID *uuid.UUID) error {
	if ipID != nil {
		result, err := svc.merch.SyncIP(ctx, *ipID)
		if err != nil {
			return fmt.Errorf("merch sync failed: %w", err)
		}
		log.Info().
			Str("ip", result.IPName).
			Int("platforms", len(result.Platforms)).
			Msg("merch sync finished")
		return nil
	}

	results, err := svc.merch.SyncAll(ctx)
	if err != nil {
		return fmt.Errorf("merch sync failed: %w", err)
	}
	for _, r := range results {
		log.Info().
			Str("ip", r.IPName).
			Int("platforms", len(r.Platforms)).
			Msg("merch sync finished")
	}
	return nil
}
