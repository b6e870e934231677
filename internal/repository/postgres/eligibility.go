package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/service/eligibility"
)

// EligibilityRepo implements eligibility.Repository. All reads; the pipeline
// never mutates state.
type EligibilityRepo struct{ db *sql.DB }

func NewEligibilityRepo(db *sql.DB) *EligibilityRepo { return &EligibilityRepo{db: db} }

func (r *EligibilityRepo) GetCampaign(ctx context.Context, orgID, campaignID string) (*domain.EmailCampaign, error) {
	c := &domain.EmailCampaign{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, COALESCE(list_id::TEXT,''), COALESCE(category_id::TEXT,''),
		       COALESCE(subject,''), COALESCE(from_email,''), COALESCE(from_name,''),
		       COALESCE(reply_to,''), scheduled_for, created_at
		FROM email_campaigns
		WHERE id = $1 AND organization_id = $2
	`, campaignID, orgID).Scan(
		&c.ID, &c.OrganizationID, &c.ListID, &c.CategoryID,
		&c.Subject, &c.FromEmail, &c.FromName,
		&c.ReplyTo, &c.ScheduledFor, &c.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, eligibility.ErrCampaignNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *EligibilityRepo) GetList(ctx context.Context, listID string) (*domain.PCOList, error) {
	l := &domain.PCOList{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, pco_id, name, COALESCE(description,'')
		FROM pco_lists
		WHERE id = $1
	`, listID).Scan(&l.ID, &l.OrganizationID, &l.PCOID, &l.Name, &l.Description)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get list: %w", err)
	}
	return l, nil
}

func (r *EligibilityRepo) GetCategory(ctx context.Context, categoryID string) (*domain.EmailCategory, error) {
	c := &domain.EmailCategory{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, organization_id, name
		FROM email_categories
		WHERE id = $1
	`, categoryID).Scan(&c.ID, &c.OrganizationID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get category: %w", err)
	}
	return c, nil
}

func (r *EligibilityRepo) ListMemberPersonIDs(ctx context.Context, orgID, pcoListID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pco_person_id FROM pco_list_members
		WHERE organization_id = $1 AND pco_list_id = $2
		ORDER BY pco_id
	`, orgID, pcoListID)
	if err != nil {
		return nil, fmt.Errorf("list member person ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list member person ids: scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *EligibilityRepo) EmailsForPeople(ctx context.Context, orgID string, personIDs []string) ([]eligibility.MemberEmail, error) {
	if len(personIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.pco_person_id, e.address,
		       COALESCE(p.first_name, ''), COALESCE(p.last_name, '')
		FROM pco_emails e
		LEFT JOIN pco_people p
			ON p.organization_id = e.organization_id AND p.pco_id = e.pco_person_id
		WHERE e.organization_id = $1 AND e.pco_person_id = ANY($2)
		ORDER BY e.id
	`, orgID, pq.Array(personIDs))
	if err != nil {
		return nil, fmt.Errorf("emails for people: %w", err)
	}
	defer rows.Close()

	var out []eligibility.MemberEmail
	for rows.Next() {
		var m eligibility.MemberEmail
		if err := rows.Scan(&m.EmailID, &m.PCOPersonID, &m.Address, &m.FirstName, &m.LastName); err != nil {
			return nil, fmt.Errorf("emails for people: scan: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *EligibilityRepo) GlobalStatuses(ctx context.Context, orgID string, addresses []string) (map[string]string, error) {
	if len(addresses) == 0 {
		return map[string]string{}, nil
	}
	lowered := make([]string, len(addresses))
	for i, a := range addresses {
		lowered[i] = strings.ToLower(a)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT LOWER(address), status FROM global_email_statuses
		WHERE organization_id = $1 AND LOWER(address) = ANY($2)
	`, orgID, pq.Array(lowered))
	if err != nil {
		return nil, fmt.Errorf("global statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var addr, status string
		if err := rows.Scan(&addr, &status); err != nil {
			return nil, fmt.Errorf("global statuses: scan: %w", err)
		}
		out[addr] = status
	}
	return out, rows.Err()
}

func (r *EligibilityRepo) CategoryUnsubscribes(ctx context.Context, orgID, categoryID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT LOWER(address) FROM category_unsubscribes
		WHERE organization_id = $1 AND category_id = $2
	`, orgID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("category unsubscribes: %w", err)
	}
	defer rows.Close()

	out := make(map[string]bool)
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("category unsubscribes: scan: %w", err)
		}
		out[addr] = true
	}
	return out, rows.Err()
}

func (r *EligibilityRepo) GetQuota(ctx context.Context, orgID string) (*domain.SendQuota, error) {
	q := &domain.SendQuota{}
	err := r.db.QueryRowContext(ctx, `
		SELECT organization_id, sends_remaining, sends_used
		FROM send_quotas
		WHERE organization_id = $1
	`, orgID).Scan(&q.OrganizationID, &q.SendsRemaining, &q.SendsUsed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get quota: %w", err)
	}
	return q, nil
}
