package webhook

import (
	"context"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pco"
)

// SecretStore persists the per-(organization, event name) webhook secrets.
type SecretStore interface {
	// GetSecret returns the secret for the pair. Returns ErrUnknownSecret if
	// no subscription is on file.
	GetSecret(ctx context.Context, orgID, eventName string) (string, error)

	// SaveSecret stores a freshly registered subscription's secret,
	// replacing any previous one for the same pair.
	SaveSecret(ctx context.Context, secret *domain.WebhookSecret) error

	// ListSecrets returns every stored subscription for the organization.
	ListSecrets(ctx context.Context, orgID string) ([]domain.WebhookSecret, error)

	// DeleteSecrets removes all of the organization's subscriptions.
	DeleteSecrets(ctx context.Context, orgID string) error
}

// MirrorStore applies idempotent mutations to the mirror tables. Every
// operation is keyed by (organization id, upstream id): upserts merge on
// conflict and deletes of absent rows are no-ops.
type MirrorStore interface {
	UpsertPerson(ctx context.Context, p *domain.Person) error
	DeletePerson(ctx context.Context, orgID, pcoID string) error

	UpsertEmail(ctx context.Context, e *domain.PersonEmail) error
	DeleteEmail(ctx context.Context, orgID, pcoID string) error

	UpsertList(ctx context.Context, l *domain.PCOList) error
	DeleteList(ctx context.Context, orgID, pcoID string) error

	UpsertListMember(ctx context.Context, m *domain.ListMember) error
	DeleteListMember(ctx context.Context, orgID, pcoID string) error
}

// ReplayCache short-circuits redelivered events by event id. Purely an
// optimization: mutations are idempotent with or without it.
type ReplayCache interface {
	// Seen reports whether the event id has been fully applied before.
	Seen(ctx context.Context, eventID string) (bool, error)

	// Mark records the event id. Called only after every mutation of the
	// delivery has been applied; a failed delivery is never marked, so
	// upstream redelivery retries it.
	Mark(ctx context.Context, eventID string, ttl time.Duration) error
}

// SubscriptionClient is the slice of the Planning Center client used to
// manage webhook subscriptions upstream.
type SubscriptionClient interface {
	CreateSubscription(ctx context.Context, accessToken, eventName, deliveryURL string) (*pco.Subscription, error)
	DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error
}
