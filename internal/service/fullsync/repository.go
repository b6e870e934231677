package fullsync

import (
	"context"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pco"
)

// MirrorStore is the slice of the mirror persistence the paginator writes
// through. Same idempotent-upsert contract as the webhook path; both run
// concurrently against the same tables.
type MirrorStore interface {
	UpsertPerson(ctx context.Context, p *domain.Person) error
	UpsertEmail(ctx context.Context, e *domain.PersonEmail) error
	UpsertList(ctx context.Context, l *domain.PCOList) error
	UpsertListMember(ctx context.Context, m *domain.ListMember) error

	// ListPCOListIDs returns the upstream ids of every mirrored list, for
	// the nested member walk.
	ListPCOListIDs(ctx context.Context, orgID string) ([]string, error)
}

// StatusStore persists sync completion timestamps.
type StatusStore interface {
	SetSynced(ctx context.Context, orgID string, rt domain.ResourceType, at time.Time) error
	GetStatus(ctx context.Context, orgID string) ([]domain.SyncStatus, error)
}

// TokenSource produces a valid access token for an organization.
type TokenSource interface {
	EnsureValidToken(ctx context.Context, orgID string) (string, error)
}

// PageFetcher is the slice of the Planning Center client the paginator uses.
type PageFetcher interface {
	BaseURL() string
	GetPage(ctx context.Context, accessToken, pageURL string) (*pco.Page, error)
}
