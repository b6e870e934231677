package eligibility

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
)

// DefaultBatchSize caps the ids per batched mirror query.
const DefaultBatchSize = 500

// forbiddenPatterns are address fragments that mark a mailbox as
// non-deliverable for bulk mail. Matched case-insensitively.
var forbiddenPatterns = []string{"no-reply", "noreply", "no_reply"}

// Service implements the recipient eligibility pipeline. Read-only and
// deterministic; safe to run concurrently with an in-flight sync.
type Service struct {
	repo      Repository
	batchSize int
	now       func() time.Time
}

// NewService creates an eligibility service. batchSize <= 0 selects the
// default.
func NewService(repo Repository, batchSize int) *Service {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Service{repo: repo, batchSize: batchSize, now: time.Now}
}

// ComputeForCampaign loads the campaign and runs the pipeline.
func (s *Service) ComputeForCampaign(ctx context.Context, orgID, campaignID string) (*Result, error) {
	campaign, err := s.repo.GetCampaign(ctx, orgID, campaignID)
	if err != nil {
		return nil, err
	}
	return s.ComputeEligibleRecipients(ctx, campaign)
}

// ComputeEligibleRecipients runs the ordered narrowing stages and returns
// either the deliverable recipient set or a structured skip outcome.
func (s *Service) ComputeEligibleRecipients(ctx context.Context, campaign *domain.EmailCampaign) (*Result, error) {
	// Stage 1: preconditions and ownership.
	if res := s.checkPreconditions(campaign); res != nil {
		return res, nil
	}
	list, res, err := s.checkOwnership(ctx, campaign)
	if err != nil {
		return nil, err
	}
	if res != nil {
		return res, nil
	}

	// Stage 2: membership resolution.
	personIDs, err := s.repo.ListMemberPersonIDs(ctx, campaign.OrganizationID, list.PCOID)
	if err != nil {
		return nil, fmt.Errorf("resolve members of list %s: %w", list.PCOID, err)
	}

	// Stage 3: batched email resolution.
	emails, err := s.resolveEmails(ctx, campaign.OrganizationID, personIDs)
	if err != nil {
		return nil, err
	}

	// Stage 4: global subscription filter.
	emails, err = s.filterGlobalStatus(ctx, campaign.OrganizationID, emails)
	if err != nil {
		return nil, err
	}

	// Stage 5: category unsubscribe filter.
	emails, err = s.filterCategoryUnsubscribes(ctx, campaign.OrganizationID, campaign.CategoryID, emails)
	if err != nil {
		return nil, err
	}

	// Stage 6: no-reply pattern filter.
	kept := emails[:0]
	for _, e := range emails {
		if !isForbiddenAddress(e.Address) {
			kept = append(kept, e)
		}
	}
	emails = kept

	// Stage 7: case-insensitive dedup, first-encountered record wins.
	recipients := make(map[string]domain.Recipient, len(emails))
	seen := make(map[string]bool, len(emails))
	for _, e := range emails {
		lower := strings.ToLower(e.Address)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		recipients[e.EmailID] = domain.Recipient{
			Email:     e.Address,
			FirstName: e.FirstName,
			LastName:  e.LastName,
		}
	}

	// Stage 8: quota check. Read-only; the dispatcher decrements after a
	// successful send.
	quota, err := s.repo.GetQuota(ctx, campaign.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("load send quota: %w", err)
	}
	if quota == nil {
		return skip(OutcomeQuotaExceeded, "no send quota configured for organization"), nil
	}
	if len(recipients) > quota.SendsRemaining {
		return skip(OutcomeQuotaExceeded, fmt.Sprintf(
			"campaign needs %d sends but only %d remain", len(recipients), quota.SendsRemaining)), nil
	}

	logger.Info("eligibility computed", "org_id", campaign.OrganizationID,
		"campaign_id", campaign.ID, "recipients", len(recipients))
	return &Result{Outcome: OutcomeEligible, Recipients: recipients}, nil
}

// checkPreconditions validates the campaign itself. Returns a skip result or
// nil when all preconditions hold.
func (s *Service) checkPreconditions(c *domain.EmailCampaign) *Result {
	switch {
	case c.ListID == "":
		return skip(OutcomeMissingPrecondition, "campaign has no target list")
	case c.CategoryID == "":
		return skip(OutcomeMissingPrecondition, "campaign has no email category")
	case strings.TrimSpace(c.Subject) == "":
		return skip(OutcomeMissingPrecondition, "campaign has no subject")
	case c.FromEmail == "":
		return skip(OutcomeMissingPrecondition, "campaign has no from address")
	case isForbiddenAddress(c.FromEmail):
		return skip(OutcomeMissingPrecondition, "from address matches a no-reply pattern")
	case c.ReplyTo != "" && isForbiddenAddress(c.ReplyTo):
		return skip(OutcomeMissingPrecondition, "reply-to address matches a no-reply pattern")
	}
	if c.ScheduledFor != nil && c.ScheduledFor.After(s.now()) {
		return skip(OutcomeDeferred, fmt.Sprintf("campaign is scheduled for %s", c.ScheduledFor.Format(time.RFC3339)))
	}
	return nil
}

// checkOwnership confirms the referenced list and category belong to the
// campaign's organization.
func (s *Service) checkOwnership(ctx context.Context, c *domain.EmailCampaign) (*domain.PCOList, *Result, error) {
	list, err := s.repo.GetList(ctx, c.ListID)
	if err != nil {
		return nil, nil, fmt.Errorf("load list %s: %w", c.ListID, err)
	}
	if list == nil {
		return nil, skip(OutcomeMissingPrecondition, "target list does not exist"), nil
	}
	if list.OrganizationID != c.OrganizationID {
		return nil, skip(OutcomeInvalidOwnership, "list belongs to a different organization"), nil
	}

	category, err := s.repo.GetCategory(ctx, c.CategoryID)
	if err != nil {
		return nil, nil, fmt.Errorf("load category %s: %w", c.CategoryID, err)
	}
	if category == nil {
		return nil, skip(OutcomeMissingPrecondition, "email category does not exist"), nil
	}
	if category.OrganizationID != c.OrganizationID {
		return nil, skip(OutcomeInvalidOwnership, "category belongs to a different organization"), nil
	}
	return list, nil, nil
}

// resolveEmails fetches email rows in fixed-size batches and merges the
// results losslessly, preserving batch order.
func (s *Service) resolveEmails(ctx context.Context, orgID string, personIDs []string) ([]MemberEmail, error) {
	var merged []MemberEmail
	for _, chunk := range chunkIDs(personIDs, s.batchSize) {
		batch, err := s.repo.EmailsForPeople(ctx, orgID, chunk)
		if err != nil {
			return nil, fmt.Errorf("resolve emails: %w", err)
		}
		merged = append(merged, batch...)
	}
	return merged, nil
}

// filterGlobalStatus keeps addresses whose global status is "subscribed".
// Addresses with no status row have never opted out and are kept.
func (s *Service) filterGlobalStatus(ctx context.Context, orgID string, emails []MemberEmail) ([]MemberEmail, error) {
	if len(emails) == 0 {
		return emails, nil
	}

	statuses := make(map[string]string, len(emails))
	addresses := make([]string, len(emails))
	for i, e := range emails {
		addresses[i] = strings.ToLower(e.Address)
	}
	for _, chunk := range chunkIDs(addresses, s.batchSize) {
		batch, err := s.repo.GlobalStatuses(ctx, orgID, chunk)
		if err != nil {
			return nil, fmt.Errorf("load global statuses: %w", err)
		}
		for addr, status := range batch {
			statuses[strings.ToLower(addr)] = status
		}
	}

	kept := emails[:0]
	for _, e := range emails {
		status, found := statuses[strings.ToLower(e.Address)]
		if !found || status == domain.EmailStatusSubscribed {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

func (s *Service) filterCategoryUnsubscribes(ctx context.Context, orgID, categoryID string, emails []MemberEmail) ([]MemberEmail, error) {
	if len(emails) == 0 {
		return emails, nil
	}
	unsubs, err := s.repo.CategoryUnsubscribes(ctx, orgID, categoryID)
	if err != nil {
		return nil, fmt.Errorf("load category unsubscribes: %w", err)
	}

	kept := emails[:0]
	for _, e := range emails {
		if !unsubs[strings.ToLower(e.Address)] {
			kept = append(kept, e)
		}
	}
	return kept, nil
}

// isForbiddenAddress reports whether the address matches a no-reply pattern.
func isForbiddenAddress(address string) bool {
	lower := strings.ToLower(address)
	for _, p := range forbiddenPatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// chunkIDs splits ids into slices of at most size elements.
func chunkIDs(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
