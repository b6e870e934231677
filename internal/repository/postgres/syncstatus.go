package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
)

// SyncStatusRepo implements fullsync.StatusStore against PostgreSQL.
type SyncStatusRepo struct{ db *sql.DB }

func NewSyncStatusRepo(db *sql.DB) *SyncStatusRepo { return &SyncStatusRepo{db: db} }

func (r *SyncStatusRepo) SetSynced(ctx context.Context, orgID string, rt domain.ResourceType, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sync_statuses (organization_id, resource_type, synced_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (organization_id, resource_type) DO UPDATE SET
			synced_at = EXCLUDED.synced_at
	`, orgID, string(rt), at)
	if err != nil {
		return fmt.Errorf("set synced %s: %w", rt, err)
	}
	return nil
}

func (r *SyncStatusRepo) GetStatus(ctx context.Context, orgID string) ([]domain.SyncStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT organization_id, resource_type, synced_at
		FROM sync_statuses
		WHERE organization_id = $1
		ORDER BY resource_type
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("get sync status: %w", err)
	}
	defer rows.Close()

	var out []domain.SyncStatus
	for rows.Next() {
		var s domain.SyncStatus
		if err := rows.Scan(&s.OrganizationID, &s.ResourceType, &s.SyncedAt); err != nil {
			return nil, fmt.Errorf("get sync status: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
