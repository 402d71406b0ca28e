package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/brewsignal/brewsignal/internal/models"
	"github.com/brewsignal/brewsignal/internal/persistence"
)

type ipRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewIPRepo creates the PostgreSQL IP/alias repository.
func NewIPRepo(db *sqlx.DB, timeout time.Duration) persistence.IPRepo {
	return &ipRepo{db: db, timeout: timeout}
}

func (r *ipRepo) Create(ctx context.Context, ip *models.IP, aliases []models.Alias) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if ip.ID == uuid.Nil {
		ip.ID = uuid.New()
	}
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO ip (id, name, catalog_id) VALUES ($1, $2, $3) RETURNING created_at`,
		ip.ID, ip.Name, ip.CatalogID).Scan(&ip.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert ip: %w", err)
	}

	for i := range aliases {
		a := &aliases[i]
		a.ID = uuid.New()
		a.IPID = ip.ID
		if a.OriginalWeight == nil {
			w := a.Weight
			a.OriginalWeight = &w
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO ip_alias (id, ip_id, alias, locale, weight, original_weight, enabled)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			a.ID, a.IPID, a.Alias, a.Locale, a.Weight, a.OriginalWeight, a.Enabled)
		if err != nil {
			return fmt.Errorf("failed to insert alias %q: %w", a.Alias, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ip create: %w", err)
	}
	ip.Aliases = aliases
	return nil
}

func (r *ipRepo) Get(ctx context.Context, id uuid.UUID) (*models.IP, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ip models.IP
	err := r.db.GetContext(ctx, &ip,
		`SELECT id, name, catalog_id, created_at FROM ip WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query ip: %w", err)
	}

	err = r.db.SelectContext(ctx, &ip.Aliases,
		`SELECT id, ip_id, alias, locale, weight, original_weight, enabled
		 FROM ip_alias WHERE ip_id = $1 ORDER BY alias`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query aliases: %w", err)
	}
	return &ip, nil
}

func (r *ipRepo) List(ctx context.Context) ([]models.IP, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var ips []models.IP
	err := r.db.SelectContext(ctx, &ips,
		`SELECT id, name, catalog_id, created_at FROM ip ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list ips: %w", err)
	}

	for i := range ips {
		err = r.db.SelectContext(ctx, &ips[i].Aliases,
			`SELECT id, ip_id, alias, locale, weight, original_weight, enabled
			 FROM ip_alias WHERE ip_id = $1 ORDER BY alias`, ips[i].ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list aliases: %w", err)
		}
	}
	return ips, nil
}

func (r *ipRepo) UpdateName(ctx context.Context, id uuid.UUID, name string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE ip SET name = $2 WHERE id = $1`, id, name)
	if err != nil {
		return fmt.Errorf("failed to update ip name: %w", err)
	}
	return requireRow(res)
}

func (r *ipRepo) SetCatalogID(ctx context.Context, id uuid.UUID, catalogID int) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `UPDATE ip SET catalog_id = $2 WHERE id = $1`, id, catalogID)
	if err != nil {
		return fmt.Errorf("failed to set catalog id: %w", err)
	}
	return requireRow(res)
}

func (r *ipRepo) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM ip WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete ip: %w", err)
	}
	return requireRow(res)
}

func (r *ipRepo) AddAlias(ctx context.Context, alias *models.Alias) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	if alias.OriginalWeight == nil {
		w := alias.Weight
		alias.OriginalWeight = &w
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ip_alias (id, ip_id, alias, locale, weight, original_weight, enabled)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		alias.ID, alias.IPID, alias.Alias, alias.Locale, alias.Weight, alias.OriginalWeight, alias.Enabled)
	if err != nil {
		return fmt.Errorf("failed to insert alias: %w", err)
	}
	return nil
}

func (r *ipRepo) GetAlias(ctx context.Context, aliasID uuid.UUID) (*models.Alias, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var a models.Alias
	err := r.db.GetContext(ctx, &a,
		`SELECT id, ip_id, alias, locale, weight, original_weight, enabled
		 FROM ip_alias WHERE id = $1`, aliasID)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query alias: %w", err)
	}
	return &a, nil
}

func (r *ipRepo) UpdateAlias(ctx context.Context, aliasID uuid.UUID, upd persistence.AliasUpdate) (*models.Alias, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var a models.Alias
	err := r.db.QueryRowxContext(ctx,
		`UPDATE ip_alias SET
		   alias   = COALESCE($2, alias),
		   locale  = COALESCE($3, locale),
		   weight  = COALESCE($4, weight),
		   enabled = COALESCE($5, enabled)
		 WHERE id = $1
		 RETURNING id, ip_id, alias, locale, weight, original_weight, enabled`,
		aliasID, upd.Alias, upd.Locale, upd.Weight, upd.Enabled).
		StructScan(&a)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update alias: %w", err)
	}
	return &a, nil
}

func (r *ipRepo) DeleteAlias(ctx context.Context, aliasID uuid.UUID) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM ip_alias WHERE id = $1`, aliasID)
	if err != nil {
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	return requireRow(res)
}

func (r *ipRepo) ResetAliasWeight(ctx context.Context, aliasID uuid.UUID) (*models.Alias, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var a models.Alias
	err := r.db.QueryRowxContext(ctx,
		`UPDATE ip_alias SET weight = COALESCE(original_weight, weight)
		 WHERE id = $1
		 RETURNING id, ip_id, alias, locale, weight, original_weight, enabled`,
		aliasID).StructScan(&a)
	if err == sql.ErrNoRows {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to reset alias weight: %w", err)
	}
	return &a, nil
}

func (r *ipRepo) ListEnabledAliases(ctx context.Context, ipID uuid.UUID) ([]models.Alias, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var aliases []models.Alias
	err := r.db.SelectContext(ctx, &aliases,
		`SELECT id, ip_id, alias, locale, weight, original_weight, enabled
		 FROM ip_alias WHERE ip_id = $1 AND enabled = true ORDER BY alias`, ipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list enabled aliases: %w", err)
	}
	return aliases, nil
}

// requireRow maps a zero-row update/delete to ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return persistence.ErrNotFound
	}
	return nil
}
