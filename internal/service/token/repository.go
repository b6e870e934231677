package token

import (
	"context"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pco"
)

// Repository defines the persistence contract for connections.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetConnection returns the organization's credential.
	// Returns ErrNotConnected if no row exists.
	GetConnection(ctx context.Context, orgID string) (*domain.Connection, error)

	// CreateConnection inserts or replaces the organization's credential.
	CreateConnection(ctx context.Context, conn *domain.Connection) error

	// UpdateTokens persists a freshly rotated token pair as a single atomic
	// update, conditional on last_refreshed_at still holding the value the
	// caller read. Returns false when the row was changed by someone else in
	// the meantime (the caller lost the refresh race).
	UpdateTokens(ctx context.Context, orgID string, expectedLastRefreshedAt time.Time, accessToken, refreshToken, scope string, refreshedAt time.Time) (bool, error)

	// DeleteConnection removes the credential. Deleting an absent row is a
	// no-op.
	DeleteConnection(ctx context.Context, orgID string) error
}

// Upstream is the slice of the Planning Center client the service needs.
type Upstream interface {
	RefreshToken(ctx context.Context, refreshToken string) (*pco.TokenResponse, error)
	Me(ctx context.Context, accessToken string) (*pco.CurrentUser, error)
}
