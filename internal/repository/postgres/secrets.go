package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/service/webhook"
)

// WebhookSecretRepo implements webhook.SecretStore against PostgreSQL.
type WebhookSecretRepo struct{ db *sql.DB }

func NewWebhookSecretRepo(db *sql.DB) *WebhookSecretRepo {
	return &WebhookSecretRepo{db: db}
}

func (r *WebhookSecretRepo) GetSecret(ctx context.Context, orgID, eventName string) (string, error) {
	var secret string
	err := r.db.QueryRowContext(ctx, `
		SELECT secret FROM pco_webhook_secrets
		WHERE organization_id = $1 AND event_name = $2
	`, orgID, eventName).Scan(&secret)
	if err == sql.ErrNoRows {
		return "", webhook.ErrUnknownSecret
	}
	if err != nil {
		return "", fmt.Errorf("get webhook secret: %w", err)
	}
	return secret, nil
}

func (r *WebhookSecretRepo) SaveSecret(ctx context.Context, s *domain.WebhookSecret) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO pco_webhook_secrets
			(organization_id, event_name, subscription_id, secret, created_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (organization_id, event_name) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			secret = EXCLUDED.secret
	`, s.OrganizationID, s.EventName, s.SubscriptionID, s.Secret)
	if err != nil {
		return fmt.Errorf("save webhook secret: %w", err)
	}
	return nil
}

func (r *WebhookSecretRepo) ListSecrets(ctx context.Context, orgID string) ([]domain.WebhookSecret, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT organization_id, event_name, subscription_id, secret
		FROM pco_webhook_secrets
		WHERE organization_id = $1
		ORDER BY event_name
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list webhook secrets: %w", err)
	}
	defer rows.Close()

	var out []domain.WebhookSecret
	for rows.Next() {
		var s domain.WebhookSecret
		if err := rows.Scan(&s.OrganizationID, &s.EventName, &s.SubscriptionID, &s.Secret); err != nil {
			return nil, fmt.Errorf("list webhook secrets: scan: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *WebhookSecretRepo) DeleteSecrets(ctx context.Context, orgID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM pco_webhook_secrets WHERE organization_id = $1`, orgID)
	if err != nil {
		return fmt.Errorf("delete webhook secrets: %w", err)
	}
	return nil
}
