package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pco"
	"github.com/church-space/church-space-sub003/internal/pkg/distlock"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
)

// DefaultGuardWindow is the minimum interval between refresh attempts.
const DefaultGuardWindow = 2 * time.Hour

// LockFactory builds a distributed lock for one organization's refresh
// critical section. May be nil, in which case only the guard window protects
// the refresh (the original, accepted-risk behavior).
type LockFactory func(orgID string) distlock.DistLock

// Service implements the token lifecycle. Safe for concurrent use across
// organizations; within one organization the guard window plus the refresh
// lock keep the single-use refresh token from being burned twice.
type Service struct {
	repo        Repository
	upstream    Upstream
	guardWindow time.Duration
	newLock     LockFactory
	now         func() time.Time
}

// NewService creates a token service. guardWindow <= 0 selects the default.
func NewService(repo Repository, upstream Upstream, guardWindow time.Duration, newLock LockFactory) *Service {
	if guardWindow <= 0 {
		guardWindow = DefaultGuardWindow
	}
	return &Service{
		repo:        repo,
		upstream:    upstream,
		guardWindow: guardWindow,
		newLock:     newLock,
		now:         time.Now,
	}
}

// EnsureValidToken returns an access token that is currently usable for the
// organization. Within the guard window the stored token is returned without
// any upstream call. Past the window the refresh token is exchanged, the new
// pair persisted, and the identity probe run. Unrecoverable failures delete
// the connection and return ErrReconnectRequired.
func (s *Service) EnsureValidToken(ctx context.Context, orgID string) (string, error) {
	conn, err := s.repo.GetConnection(ctx, orgID)
	if err != nil {
		return "", err
	}

	if s.withinGuard(conn) {
		logger.Debug("token recently refreshed, returning stored token",
			"org_id", orgID, "age", s.now().Sub(conn.LastRefreshedAt))
		return conn.AccessToken, nil
	}

	if s.newLock != nil {
		lock := s.newLock(orgID)
		acquired, lockErr := lock.Acquire(ctx)
		if lockErr != nil {
			logger.Warn("refresh lock unavailable, proceeding with guard window only",
				"org_id", orgID, "error", lockErr)
		} else if !acquired {
			// Another worker is refreshing right now. The stored token is at
			// worst guardWindow stale, which callers already tolerate.
			logger.Info("refresh in progress elsewhere, returning stored token", "org_id", orgID)
			return conn.AccessToken, nil
		} else {
			defer lock.Release(ctx)
			// Re-read under the lock: the other holder may have finished.
			conn, err = s.repo.GetConnection(ctx, orgID)
			if err != nil {
				return "", err
			}
			if s.withinGuard(conn) {
				return conn.AccessToken, nil
			}
		}
	}

	return s.refresh(ctx, conn)
}

func (s *Service) withinGuard(conn *domain.Connection) bool {
	return s.now().Sub(conn.LastRefreshedAt) < s.guardWindow
}

func (s *Service) refresh(ctx context.Context, conn *domain.Connection) (string, error) {
	orgID := conn.OrganizationID

	tok, err := s.upstream.RefreshToken(ctx, conn.RefreshToken)
	if err != nil {
		var serr *pco.StatusError
		if errors.As(err, &serr) && serr.Code >= 400 && serr.Code < 500 {
			// A rejected refresh token is dead; retrying cannot help.
			logger.Warn("refresh token rejected, deleting connection",
				"org_id", orgID, "status", serr.Code)
			if delErr := s.repo.DeleteConnection(ctx, orgID); delErr != nil {
				logger.Error("failed to delete dead connection", "org_id", orgID, "error", delErr)
			}
			return "", ErrReconnectRequired
		}
		// Transient upstream failure: leave the connection alone, caller may
		// retry later.
		return "", fmt.Errorf("refresh token for org %s: %w", orgID, err)
	}

	scope := tok.Scope
	if scope == "" {
		scope = conn.Scope
	}
	updated, err := s.repo.UpdateTokens(ctx, orgID, conn.LastRefreshedAt,
		tok.AccessToken, tok.RefreshToken, scope, s.now())
	if err != nil {
		return "", fmt.Errorf("persist refreshed tokens for org %s: %w", orgID, err)
	}
	if !updated {
		// Lost the race despite the guard: someone else refreshed first and
		// their pair is the live one. Ours is already invalidated upstream.
		current, err := s.repo.GetConnection(ctx, orgID)
		if err != nil {
			return "", err
		}
		logger.Info("lost refresh race, using winner's token", "org_id", orgID)
		return current.AccessToken, nil
	}

	if err := s.probe(ctx, orgID, tok.AccessToken); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// probe confirms the refreshed token still identifies a user with Manager
// permission. A connection that can no longer do what the rest of the system
// assumes is deleted rather than silently limping along.
func (s *Service) probe(ctx context.Context, orgID, accessToken string) error {
	user, err := s.upstream.Me(ctx, accessToken)
	if err != nil {
		logger.Warn("identity probe failed, deleting connection", "org_id", orgID, "error", err)
		if delErr := s.repo.DeleteConnection(ctx, orgID); delErr != nil {
			logger.Error("failed to delete connection after probe failure", "org_id", orgID, "error", delErr)
		}
		return ErrReconnectRequired
	}
	if !user.HasManagerPermission() {
		logger.Warn("people permission downgraded, deleting connection",
			"org_id", orgID, "permission", user.PeoplePermissions)
		if delErr := s.repo.DeleteConnection(ctx, orgID); delErr != nil {
			logger.Error("failed to delete downgraded connection", "org_id", orgID, "error", delErr)
		}
		return ErrReconnectRequired
	}
	return nil
}

// Connect persists a brand-new connection after a successful OAuth code
// exchange and verifies it with the identity probe. The half-created row is
// deleted if verification fails.
func (s *Service) Connect(ctx context.Context, orgID string, tok *pco.TokenResponse) (*pco.CurrentUser, error) {
	user, err := s.upstream.Me(ctx, tok.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("verify new connection for org %s: %w", orgID, err)
	}
	if !user.HasManagerPermission() {
		return nil, fmt.Errorf("org %s: connected user lacks Manager permission (has %q)", orgID, user.PeoplePermissions)
	}

	conn := &domain.Connection{
		OrganizationID:  orgID,
		AccessToken:     tok.AccessToken,
		RefreshToken:    tok.RefreshToken,
		Scope:           tok.Scope,
		PCOUserID:       user.ID,
		LastRefreshedAt: s.now(),
	}
	if err := s.repo.CreateConnection(ctx, conn); err != nil {
		return nil, fmt.Errorf("persist connection for org %s: %w", orgID, err)
	}
	return user, nil
}

// Disconnect removes the organization's credential.
func (s *Service) Disconnect(ctx context.Context, orgID string) error {
	return s.repo.DeleteConnection(ctx, orgID)
}

// Connection returns the current credential record for status display.
func (s *Service) Connection(ctx context.Context, orgID string) (*domain.Connection, error) {
	return s.repo.GetConnection(ctx, orgID)
}
