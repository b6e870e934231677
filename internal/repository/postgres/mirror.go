package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/church-space/church-space-sub003/internal/domain"
)

// MirrorRepo implements the mirror-table writes shared by the webhook and
// full-sync paths. Rows are keyed (organization_id, pco_id); upserts merge on
// that key and deletes of absent rows are no-ops, so deliveries can be
// replayed and the two ingestion paths can overlap safely.
type MirrorRepo struct{ db *sql.DB }

func NewMirrorRepo(db *sql.DB) *MirrorRepo { return &MirrorRepo{db: db} }

func (r *MirrorRepo) UpsertPerson(ctx context.Context, p *domain.Person) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pco_people
			(id, organization_id, pco_id, first_name, last_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (organization_id, pco_id) DO UPDATE SET
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			updated_at = NOW()
	`, uuid.New().String(), p.OrganizationID, p.PCOID, p.FirstName, p.LastName)
	if err != nil {
		return fmt.Errorf("upsert person %s: %w", p.PCOID, err)
	}
	return nil
}

func (r *MirrorRepo) DeletePerson(ctx context.Context, orgID, pcoID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pco_people WHERE organization_id = $1 AND pco_id = $2`, orgID, pcoID)
	if err != nil {
		return fmt.Errorf("delete person %s: %w", pcoID, err)
	}
	return nil
}

func (r *MirrorRepo) UpsertEmail(ctx context.Context, e *domain.PersonEmail) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pco_emails
			(id, organization_id, pco_id, pco_person_id, address, location, is_primary, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (organization_id, pco_id) DO UPDATE SET
			pco_person_id = EXCLUDED.pco_person_id,
			address = EXCLUDED.address,
			location = EXCLUDED.location,
			is_primary = EXCLUDED.is_primary,
			updated_at = NOW()
	`, uuid.New().String(), e.OrganizationID, e.PCOID, e.PCOPersonID, e.Address, e.Location, e.Primary)
	if err != nil {
		return fmt.Errorf("upsert email %s: %w", e.PCOID, err)
	}
	return nil
}

func (r *MirrorRepo) DeleteEmail(ctx context.Context, orgID, pcoID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pco_emails WHERE organization_id = $1 AND pco_id = $2`, orgID, pcoID)
	if err != nil {
		return fmt.Errorf("delete email %s: %w", pcoID, err)
	}
	return nil
}

func (r *MirrorRepo) UpsertList(ctx context.Context, l *domain.PCOList) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pco_lists
			(id, organization_id, pco_id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (organization_id, pco_id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			updated_at = NOW()
	`, uuid.New().String(), l.OrganizationID, l.PCOID, l.Name, l.Description)
	if err != nil {
		return fmt.Errorf("upsert list %s: %w", l.PCOID, err)
	}
	return nil
}

func (r *MirrorRepo) DeleteList(ctx context.Context, orgID, pcoID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pco_lists WHERE organization_id = $1 AND pco_id = $2`, orgID, pcoID)
	if err != nil {
		return fmt.Errorf("delete list %s: %w", pcoID, err)
	}
	return nil
}

func (r *MirrorRepo) UpsertListMember(ctx context.Context, m *domain.ListMember) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pco_list_members
			(id, organization_id, pco_id, pco_list_id, pco_person_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (organization_id, pco_id) DO UPDATE SET
			pco_list_id = EXCLUDED.pco_list_id,
			pco_person_id = EXCLUDED.pco_person_id
	`, uuid.New().String(), m.OrganizationID, m.PCOID, m.PCOListID, m.PCOPersonID)
	if err != nil {
		return fmt.Errorf("upsert list member %s: %w", m.PCOID, err)
	}
	return nil
}

func (r *MirrorRepo) DeleteListMember(ctx context.Context, orgID, pcoID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pco_list_members WHERE organization_id = $1 AND pco_id = $2`, orgID, pcoID)
	if err != nil {
		return fmt.Errorf("delete list member %s: %w", pcoID, err)
	}
	return nil
}

// ListPCOListIDs returns the upstream ids of every mirrored list for the
// organization, in stable order.
func (r *MirrorRepo) ListPCOListIDs(ctx context.Context, orgID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pco_id FROM pco_lists WHERE organization_id = $1 ORDER BY pco_id
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list pco list ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list pco list ids: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
