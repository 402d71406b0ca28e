package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

func strptr(s string) *string { return &s }

// RegistrySeed is the default source registry.
func RegistrySeed() []models.SourceRegistry {
	return []models.SourceRegistry{
		{SourceKey: "google_trends", AvailabilityLevel: "high", RiskType: "quota", IsKeySource: true, PriorityWeight: 1.0, Notes: strptr("search interest, daily")},
		{SourceKey: "youtube", AvailabilityLevel: "high", RiskType: "quota", IsKeySource: true, PriorityWeight: 0.9, Notes: strptr("official API, keyed")},
		{SourceKey: "shopee", AvailabilityLevel: "medium", RiskType: "anti_scraping", IsKeySource: false, PriorityWeight: 0.7, Notes: strptr("merch listing counts")},
		{SourceKey: "news_rss", AvailabilityLevel: "high", RiskType: "low", IsKeySource: true, PriorityWeight: 0.8, Notes: strptr("event calendar feed")},
		{SourceKey: "wiki_mal", AvailabilityLevel: "medium", RiskType: "scattered", IsKeySource: false, PriorityWeight: 0.6, Notes: strptr("catalogue metadata")},
		{SourceKey: "amazon_jp", AvailabilityLevel: "medium", RiskType: "anti_scraping", IsKeySource: false, PriorityWeight: 0.6, Notes: strptr("merch listing counts")},
	}
}

// Seed installs the source registry and a demo IP with its locale aliases.
// Safe to run repeatedly; the demo IP is skipped if an IP of the same name
// exists.
func Seed(ctx context.Context, db *sqlx.DB, store *persistence.Store) error {
	if err := store.Health.SeedRegistry(ctx, RegistrySeed()); err != nil {
		return fmt.Errorf("failed to seed registry: %w", err)
	}

	var exists bool
	ctxQ, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := db.GetContext(ctxQ, &exists,
		`SELECT EXISTS (SELECT 1 FROM ip WHERE name = $1)`, "Chiikawa")
	if err != nil {
		return fmt.Errorf("failed to check demo ip: %w", err)
	}
	if exists {
		return nil
	}

	ip := &models.IP{Name: "Chiikawa"}
	aliases := []models.Alias{
		{Alias: "Chiikawa", Locale: "en", Weight: 1.0, Enabled: true},
		{Alias: "ちいかわ", Locale: "jp", Weight: 1.2, Enabled: true},
		{Alias: "吉伊卡哇", Locale: "zh", Weight: 0.8, Enabled: true},
	}
	if err := store.IPs.Create(ctx, ip, aliases); err != nil {
		return fmt.Errorf("failed to seed demo ip: %w", err)
	}
	return nil
}
