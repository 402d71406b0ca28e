package health

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/brewsignal/brewsignal/internal/config"
	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

// Recorder persists per-(ip, source) attempt outcomes. It satisfies the
// collector runner's HealthRecorder contract.
type Recorder struct {
	store     *persistence.Store
	staleness config.StalenessConfig
	log       zerolog.Logger
	now       func() time.Time
}

// NewRecorder wires the health recorder.
func NewRecorder(store *persistence.Store, staleness config.StalenessConfig, log zerolog.Logger) *Recorder {
	return &Recorder{
		store:     store,
		staleness: staleness,
		log:       log.With().Str("component", "health").Logger(),
		now:       time.Now,
	}
}

// RecordAttempt upserts the (ip, source) health row after one collection or
// sync attempt. A failed attempt advances last_attempt_at and the error but
// keeps the previous last_success_at, so status degrades only through
// staleness.
func (r *Recorder) RecordAttempt(ctx context.Context, ipID uuid.UUID, sourceKey string, success bool, updatedItems int, attemptErr error) error {
	now := r.now().UTC()

	lastSuccess, err := r.lastSuccess(ctx, ipID, sourceKey)
	if err != nil {
		return err
	}
	if success {
		lastSuccess = &now
	}

	row := &models.IPSourceHealth{
		IPID:           ipID,
		SourceKey:      sourceKey,
		LastSuccessAt:  lastSuccess,
		LastAttemptAt:  &now,
		Status:         StatusFor(lastSuccess, now, r.staleness.For(sourceKey)),
		StalenessHours: StalenessHours(lastSuccess, now),
		UpdatedItems:   &updatedItems,
	}
	if attemptErr != nil {
		msg := attemptErr.Error()
		row.LastError = &msg
	}

	if err := r.store.Health.UpsertSourceHealth(ctx, row, success); err != nil {
		return fmt.Errorf("failed to upsert source health: %w", err)
	}
	r.log.Debug().Str("ip_id", ipID.String()).Str("source", sourceKey).
		Bool("success", success).Str("status", string(row.Status)).Msg("attempt recorded")
	return nil
}

func (r *Recorder) lastSuccess(ctx context.Context, ipID uuid.UUID, sourceKey string) (*time.Time, error) {
	rows, err := r.store.Health.ListSourceHealthByIP(ctx, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to load source health: %w", err)
	}
	for _, h := range rows {
		if h.SourceKey == sourceKey {
			return h.LastSuccessAt, nil
		}
	}
	return nil, nil
}
