package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the full DDL. Statements are idempotent so Migrate can run at
// every boot.
const schema = `
CREATE TABLE IF NOT EXISTS ip (
    id          UUID PRIMARY KEY,
    name        VARCHAR(255) NOT NULL,
    catalog_id  INTEGER,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ip_alias (
    id              UUID PRIMARY KEY,
    ip_id           UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    alias           VARCHAR(255) NOT NULL,
    locale          VARCHAR(10) NOT NULL DEFAULT 'en',
    weight          DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    original_weight DOUBLE PRECISION,
    enabled         BOOLEAN NOT NULL DEFAULT true
);
CREATE INDEX IF NOT EXISTS ix_ip_alias_ip ON ip_alias(ip_id);

CREATE TABLE IF NOT EXISTS trend_sample (
    id         UUID PRIMARY KEY,
    ip_id      UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    alias_id   UUID NOT NULL REFERENCES ip_alias(id) ON DELETE CASCADE,
    geo        VARCHAR(10) NOT NULL,
    timeframe  VARCHAR(10) NOT NULL,
    date       DATE NOT NULL,
    value      INTEGER NOT NULL,
    source     VARCHAR(30) NOT NULL,
    fetched_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_trend_sample UNIQUE (ip_id, alias_id, geo, timeframe, date)
);

CREATE TABLE IF NOT EXISTS composite_daily (
    id                  UUID PRIMARY KEY,
    ip_id               UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    geo                 VARCHAR(10) NOT NULL,
    timeframe           VARCHAR(10) NOT NULL,
    date                DATE NOT NULL,
    composite_value     DOUBLE PRECISION NOT NULL,
    ma7                 DOUBLE PRECISION,
    ma28                DOUBLE PRECISION,
    wow_growth          DOUBLE PRECISION,
    acceleration        BOOLEAN,
    breakout_percentile DOUBLE PRECISION,
    signal_light        VARCHAR(10),
    CONSTRAINT uq_composite_daily UNIQUE (ip_id, geo, timeframe, date)
);

CREATE TABLE IF NOT EXISTS collector_run_log (
    id          UUID PRIMARY KEY,
    source      VARCHAR(30) NOT NULL,
    ip_id       UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    geo         VARCHAR(10) NOT NULL,
    timeframe   VARCHAR(10) NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at TIMESTAMPTZ,
    status      VARCHAR(10) NOT NULL,
    http_code   INTEGER,
    error_code  VARCHAR(30),
    message     TEXT,
    duration_ms INTEGER
);
CREATE INDEX IF NOT EXISTS ix_run_log_ip_started ON collector_run_log(ip_id, started_at);

CREATE TABLE IF NOT EXISTS ip_event (
    id         UUID PRIMARY KEY,
    ip_id      UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    event_type VARCHAR(30) NOT NULL,
    title      VARCHAR(255) NOT NULL,
    event_date DATE NOT NULL,
    source     VARCHAR(30),
    source_url TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_ip_event_ip_date ON ip_event(ip_id, event_date);

CREATE TABLE IF NOT EXISTS source_registry (
    source_key         VARCHAR(30) PRIMARY KEY,
    availability_level VARCHAR(10) NOT NULL DEFAULT 'medium',
    risk_type          VARCHAR(30) NOT NULL DEFAULT 'unknown',
    is_key_source      BOOLEAN NOT NULL DEFAULT false,
    priority_weight    DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    notes              TEXT
);

CREATE TABLE IF NOT EXISTS source_run (
    id              UUID PRIMARY KEY,
    source_key      VARCHAR(30) NOT NULL,
    started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    finished_at     TIMESTAMPTZ,
    status          VARCHAR(10) NOT NULL DEFAULT 'ok',
    duration_ms     INTEGER,
    items_processed INTEGER NOT NULL DEFAULT 0,
    items_succeeded INTEGER NOT NULL DEFAULT 0,
    items_failed    INTEGER NOT NULL DEFAULT 0,
    error_sample    TEXT
);
CREATE INDEX IF NOT EXISTS ix_source_run_key_started ON source_run(source_key, started_at);

CREATE TABLE IF NOT EXISTS ip_source_health (
    id              UUID PRIMARY KEY,
    ip_id           UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    source_key      VARCHAR(30) NOT NULL,
    last_success_at TIMESTAMPTZ,
    last_attempt_at TIMESTAMPTZ,
    status          VARCHAR(10) NOT NULL DEFAULT 'down',
    staleness_hours INTEGER,
    last_error      TEXT,
    updated_items   INTEGER,
    CONSTRAINT uq_ip_source_health UNIQUE (ip_id, source_key)
);
CREATE INDEX IF NOT EXISTS ix_ip_source_health_ip ON ip_source_health(ip_id);

CREATE TABLE IF NOT EXISTS ip_confidence (
    ip_id                   UUID PRIMARY KEY REFERENCES ip(id) ON DELETE CASCADE,
    confidence_score        INTEGER NOT NULL DEFAULT 0,
    confidence_band         VARCHAR(15) NOT NULL DEFAULT 'insufficient',
    active_indicators       INTEGER NOT NULL DEFAULT 0,
    total_indicators        INTEGER NOT NULL DEFAULT 0,
    active_sources          INTEGER NOT NULL DEFAULT 0,
    expected_sources        INTEGER NOT NULL DEFAULT 0,
    missing_sources_json    TEXT,
    missing_indicators_json TEXT,
    last_calculated_at      TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS opportunity_input (
    id            UUID PRIMARY KEY,
    ip_id         UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    indicator_key VARCHAR(30) NOT NULL,
    value         DOUBLE PRECISION NOT NULL DEFAULT 0.5,
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_opportunity_input UNIQUE (ip_id, indicator_key)
);

CREATE TABLE IF NOT EXISTS ip_pipeline (
    id                 UUID PRIMARY KEY,
    ip_id              UUID NOT NULL UNIQUE REFERENCES ip(id) ON DELETE CASCADE,
    stage              VARCHAR(20) NOT NULL DEFAULT 'candidate',
    target_launch_date DATE,
    bd_start_date      DATE,
    license_start_date DATE,
    license_end_date   DATE,
    mg_amount_usd      INTEGER,
    notes              TEXT,
    bd_score           DOUBLE PRECISION,
    bd_decision        VARCHAR(10),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS video_metric (
    id            UUID PRIMARY KEY,
    ip_id         UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    video_id      VARCHAR(20) NOT NULL,
    title         VARCHAR(255) NOT NULL,
    channel_title VARCHAR(255),
    published_at  TIMESTAMPTZ,
    view_count    INTEGER NOT NULL DEFAULT 0,
    like_count    INTEGER NOT NULL DEFAULT 0,
    comment_count INTEGER NOT NULL DEFAULT 0,
    recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_video_metric UNIQUE (ip_id, video_id)
);
CREATE INDEX IF NOT EXISTS ix_video_metric_ip ON video_metric(ip_id);

CREATE TABLE IF NOT EXISTS merch_product_count (
    id            UUID PRIMARY KEY,
    ip_id         UUID NOT NULL REFERENCES ip(id) ON DELETE CASCADE,
    platform      VARCHAR(20) NOT NULL,
    query_term    VARCHAR(255) NOT NULL,
    product_count INTEGER NOT NULL,
    recorded_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    CONSTRAINT uq_merch_product_count UNIQUE (ip_id, platform)
);
CREATE INDEX IF NOT EXISTS ix_merch_product_count_ip ON merch_product_count(ip_id);
`

// Migrate applies the schema. Safe to run repeatedly.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
