package eligibility

import (
	"context"

	"github.com/church-space/church-space-sub003/internal/domain"
)

// MemberEmail is one mirrored email row joined with its person's name
// metadata, as returned by the batched lookup.
type MemberEmail struct {
	EmailID     string
	PCOPersonID string
	Address     string
	FirstName   string
	LastName    string
}

// Repository defines the read-only data access the pipeline needs.
// Implementations must be safe for concurrent use.
type Repository interface {
	// GetCampaign returns a campaign. Returns ErrCampaignNotFound if it
	// doesn't exist.
	GetCampaign(ctx context.Context, orgID, campaignID string) (*domain.EmailCampaign, error)

	// GetList returns a mirrored list by its internal id, regardless of
	// organization (the pipeline checks ownership itself). Returns nil when
	// absent.
	GetList(ctx context.Context, listID string) (*domain.PCOList, error)

	// GetCategory returns an email category by id. Returns nil when absent.
	GetCategory(ctx context.Context, categoryID string) (*domain.EmailCategory, error)

	// ListMemberPersonIDs returns the upstream person ids of every member of
	// the given upstream list, in stable order.
	ListMemberPersonIDs(ctx context.Context, orgID, pcoListID string) ([]string, error)

	// EmailsForPeople returns the mirrored email rows (joined with names)
	// for one batch of person ids, in stable order. Callers chunk the ids;
	// the underlying query has a per-call id-count ceiling.
	EmailsForPeople(ctx context.Context, orgID string, personIDs []string) ([]MemberEmail, error)

	// GlobalStatuses returns the global subscription status for one batch of
	// addresses. Addresses with no status row are omitted from the map.
	GlobalStatuses(ctx context.Context, orgID string, addresses []string) (map[string]string, error)

	// CategoryUnsubscribes returns the set of addresses opted out of the
	// category, lowercased.
	CategoryUnsubscribes(ctx context.Context, orgID, categoryID string) (map[string]bool, error)

	// GetQuota returns the organization's send quota. Returns nil when no
	// quota row exists.
	GetQuota(ctx context.Context, orgID string) (*domain.SendQuota, error)
}
