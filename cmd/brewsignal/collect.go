package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const collectTimeout = 10 * time.Minute

func newCollectCmd() *cobra.Command {
	var (
		ipFlag    string
		geo       string
		timeframe string
	)

	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Run a trend collection pass",
		Long: `Fetches search-interest samples for every enabled alias of the target IP,
recomputes the composite series and signal light, and logs the run. Without
--ip the pass covers every registered IP.`,
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

			store := manager.Store()
			svc := buildServices(cfg, store)

			ctx, cancel := withTimeout(cmd.Context(), collectTimeout)
			defer cancel()

			var targets []uuid.UUID
			if ipFlag != "" {
				id, err := uuid.Parse(ipFlag)
				if err != nil {
					return fmt.Errorf("invalid --ip value %q: %w", ipFlag, err)
				}
				targets = append(targets, id)
			} else {
				ips, err := store.IPs.List(ctx)
				if err != nil {
					return fmt.Errorf("failed to list IPs: %w", err)
				}
				for _, ip := range ips {
					targets = append(targets, ip.ID)
				}
			}

			var failures int
			for _, id := range targets {
				result, err := svc.runner.Run(ctx, id, geo, timeframe)
				if err != nil {
					failures++
					log.Error().Err(err).Str("ip_id", id.String()).Msg("collection failed")
					continue
				}
				log.Info().
					Str("ip_id", id.String()).
					Str("status", string(result.Status)).
					Int("aliases_fetched", result.AliasesFetched).
					Int("samples_written", result.SamplesWritten).
					Msg("collection finished")
			}
			if failures > 0 {
				return fmt.Errorf("%d of %d collection passes failed", failures, len(targets))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&ipFlag, "ip", "", "IP UUID to collect (default: all IPs)")
	cmd.Flags().StringVar(&geo, "geo", "TW", "Market geo code")
	cmd.Flags().StringVar(&timeframe, "timeframe", "12m", "Lookback window")
	return cmd
}
