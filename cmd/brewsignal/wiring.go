package main

import (
	"github.com/rs/zerolog/log"

	"github.com/brewsignal/brewsignal/internal/bd"
	"github.com/brewsignal/brewsignal/internal/collector"
	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/health"
	"github.com/brewsignal/brewsignal/internal/indicator"
	"github.com/brewsignal/brewsignal/internal/launch"
	"github.com/brewsignal/brewsignal/internal/net/circuit"
	"github.com/brewsignal/brewsignal/internal/net/ratelimit"
	"github.com/brewsignal/brewsignal/internal/persistence"
	"github.com/brewsignal/brewsignal/internal/syncsvc"
	"github.com/brewsignal/brewsignal/internal/trend"
)

// services bundles every wired domain service for the subcommands.
type services struct {
	runner     *collector.Runner
	indicators *indicator.Engine
	bd         *bd.Service
	launch     *launch.Engine
	health     *health.Service
	catalog    *syncsvc.CatalogSyncer
	video      *syncsvc.VideoSyncer
	merch      *syncsvc.MerchSyncer
}

// buildServices wires the full service graph on top of the store. Every
// subcommand shares the same construction so pacing, breaker state, and
// staleness thresholds behave identically across entrypoints.
func buildServices(cfg config.Config, store *persistence.Store) *services {
	aggregator := trend.NewAggregator(store, cfg.Signal, log.Logger)
	recorder := health.NewRecorder(store, cfg.Staleness, log.Logger)
	healthSvc := health.NewService(store, cfg.Confidence, cfg.Staleness, log.Logger)

	limiter := ratelimit.NewManager(cfg.Collector.MinInterval)
	breaker := circuit.NewManager(circuit.Config{
		FailureThreshold: cfg.Collector.BreakerThreshold,
		Cooldown:         cfg.Collector.BreakerCooldown,
	})
	trends := collector.NewTrendsCollector(cfg.Collector.TrendsBaseURL, cfg.Collector.RequestTimeout)
	paced := collector.NewPaced(trends, limiter, breaker, cfg.Collector.MaxRetries, log.Logger)
	runner := collector.NewRunner(store, paced, aggregator, recorder, log.Logger)

	indicators := indicator.NewEngine(store, cfg.Signal.LeadTimeWeeks)
	bdSvc := bd.NewService(store, indicators, healthSvc, cfg.BD, log.Logger)
	launchEng := launch.NewEngine(store, cfg.Launch, log.Logger)

	jikan := syncsvc.NewJikanClient("", cfg.Collector.RequestTimeout)
	youtube := syncsvc.NewYouTubeClient("", cfg.Collector.VideoAPIKey, cfg.Collector.VideoDailyQuota, cfg.Collector.RequestTimeout)
	shopee := syncsvc.NewShopeeClient("", cfg.Collector.RequestTimeout)
	ruten := syncsvc.NewRutenClient("", cfg.Collector.RequestTimeout)

	return &services{
		runner:     runner,
		indicators: indicators,
		bd:         bdSvc,
		launch:     launchEng,
		health:     healthSvc,
		catalog:    syncsvc.NewCatalogSyncer(store, jikan, recorder, healthSvc, log.Logger),
		video:      syncsvc.NewVideoSyncer(store, youtube, recorder, healthSvc, cfg.Collector, log.Logger),
		merch:      syncsvc.NewMerchSyncer(store, []syncsvc.MerchAPI{shopee, ruten}, recorder, healthSvc, log.Logger),
	}
}
