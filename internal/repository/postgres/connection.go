// Package postgres implements the service repository interfaces against
// PostgreSQL. Every statement is scoped by organization_id, and upserts are
// explicit ON CONFLICT merges so the webhook and full-sync paths can write
// the same rows concurrently and redundantly.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/service/token"
)

// ConnectionRepo implements token.Repository against PostgreSQL.
type ConnectionRepo struct{ db *sql.DB }

// NewConnectionRepo creates a Postgres-backed connection repository.
func NewConnectionRepo(db *sql.DB) *ConnectionRepo { return &ConnectionRepo{db: db} }

func (r *ConnectionRepo) GetConnection(ctx context.Context, orgID string) (*domain.Connection, error) {
	c := &domain.Connection{}
	err := r.db.QueryRowContext(ctx, `
		SELECT organization_id, access_token, refresh_token, COALESCE(scope,''),
		       COALESCE(pco_user_id,''), last_refreshed_at, created_at
		FROM pco_connections
		WHERE organization_id = $1
	`, orgID).Scan(
		&c.OrganizationID, &c.AccessToken, &c.RefreshToken, &c.Scope,
		&c.PCOUserID, &c.LastRefreshedAt, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, token.ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	return c, nil
}

func (r *ConnectionRepo) CreateConnection(ctx context.Context, c *domain.Connection) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pco_connections
			(organization_id, access_token, refresh_token, scope, pco_user_id, last_refreshed_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (organization_id) DO UPDATE SET
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			scope = EXCLUDED.scope,
			pco_user_id = EXCLUDED.pco_user_id,
			last_refreshed_at = EXCLUDED.last_refreshed_at
	`, c.OrganizationID, c.AccessToken, c.RefreshToken, c.Scope, c.PCOUserID, c.LastRefreshedAt)
	if err != nil {
		return fmt.Errorf("create connection: %w", err)
	}
	return nil
}

// UpdateTokens persists a rotated pair only if last_refreshed_at still holds
// the value the caller read. A zero-row update means the refresh race was
// lost.
func (r *ConnectionRepo) UpdateTokens(ctx context.Context, orgID string, expected time.Time, accessToken, refreshToken, scope string, refreshedAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE pco_connections
		SET access_token = $3, refresh_token = $4, scope = $5, last_refreshed_at = $6
		WHERE organization_id = $1 AND last_refreshed_at = $2
	`, orgID, expected, accessToken, refreshToken, scope, refreshedAt)
	if err != nil {
		return false, fmt.Errorf("update tokens: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update tokens: rows affected: %w", err)
	}
	return n > 0, nil
}

// ListOrganizationIDs returns every connected organization, for the sync
// scheduler's sweep.
func (r *ConnectionRepo) ListOrganizationIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT organization_id FROM pco_connections ORDER BY organization_id`)
	if err != nil {
		return nil, fmt.Errorf("list organization ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list organization ids: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *ConnectionRepo) DeleteConnection(ctx context.Context, orgID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pco_connections WHERE organization_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("delete connection: %w", err)
	}
	return nil
}
