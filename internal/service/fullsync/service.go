package fullsync

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pco"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
)

// DefaultMaxPages bounds a single cursor walk when no configuration is given.
const DefaultMaxPages = 1000

// Result summarizes one completed sync run.
type Result struct {
	ResourceType domain.ResourceType `json:"resource_type"`
	Records      int                 `json:"records"`
	Pages        int                 `json:"pages"`
	Skipped      int                 `json:"skipped"`
}

// Service walks upstream collections into the mirror tables.
type Service struct {
	mirror   MirrorStore
	status   StatusStore
	tokens   TokenSource
	client   PageFetcher
	maxPages int
	perPage  int
	now      func() time.Time
}

// NewService creates a sync service. maxPages/perPage <= 0 select defaults.
func NewService(mirror MirrorStore, status StatusStore, tokens TokenSource, client PageFetcher, maxPages, perPage int) *Service {
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	if perPage <= 0 {
		perPage = 100
	}
	return &Service{
		mirror:   mirror,
		status:   status,
		tokens:   tokens,
		client:   client,
		maxPages: maxPages,
		perPage:  perPage,
		now:      time.Now,
	}
}

// SyncAll syncs every mirrored collection in dependency order. The first
// failure aborts the remaining resource types.
func (s *Service) SyncAll(ctx context.Context, orgID string) ([]Result, error) {
	var results []Result
	for _, rt := range domain.SyncOrder {
		res, err := s.SyncResource(ctx, orgID, rt)
		if err != nil {
			return results, err
		}
		results = append(results, *res)
	}
	return results, nil
}

// SyncResource syncs one collection. Any non-success upstream response
// aborts the run; records upserted before the abort stay committed.
func (s *Service) SyncResource(ctx context.Context, orgID string, rt domain.ResourceType) (*Result, error) {
	if !rt.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownResource, rt)
	}

	token, err := s.tokens.EnsureValidToken(ctx, orgID)
	if err != nil {
		return nil, err
	}

	res := &Result{ResourceType: rt}
	switch rt {
	case domain.ResourcePeople:
		err = s.walk(ctx, token, s.collectionURL("/people/v2/people"), res, func(r pco.Resource) error {
			return s.applyPerson(ctx, orgID, r)
		})
	case domain.ResourceEmails:
		err = s.walk(ctx, token, s.collectionURL("/people/v2/emails"), res, func(r pco.Resource) error {
			return s.applyEmail(ctx, orgID, r)
		})
	case domain.ResourceLists:
		err = s.walk(ctx, token, s.collectionURL("/people/v2/lists"), res, func(r pco.Resource) error {
			return s.applyList(ctx, orgID, r)
		})
	case domain.ResourceListMembers:
		err = s.syncListMembers(ctx, orgID, token, res)
	}
	if err != nil {
		return nil, fmt.Errorf("sync %s for org %s: %w", rt, orgID, err)
	}

	if err := s.status.SetSynced(ctx, orgID, rt, s.now()); err != nil {
		return nil, fmt.Errorf("record sync status for org %s: %w", orgID, err)
	}
	logger.Info("sync completed", "org_id", orgID, "resource", string(rt),
		"records", res.Records, "pages", res.Pages, "skipped", res.Skipped)
	return res, nil
}

// Status returns the per-resource last-sync timestamps.
func (s *Service) Status(ctx context.Context, orgID string) ([]domain.SyncStatus, error) {
	return s.status.GetStatus(ctx, orgID)
}

func (s *Service) collectionURL(path string) string {
	return fmt.Sprintf("%s%s?per_page=%d", s.client.BaseURL(), path, s.perPage)
}

// walk follows next links from firstURL, applying each record. Records that
// fail to decode are skipped and counted; persistence failures abort. The
// walk stops cleanly at the page ceiling.
func (s *Service) walk(ctx context.Context, token, firstURL string, res *Result, apply func(pco.Resource) error) error {
	pageURL := firstURL
	for pageURL != "" {
		if res.Pages >= s.maxPages {
			logger.Warn("page ceiling reached, stopping walk",
				"url", firstURL, "max_pages", s.maxPages)
			return nil
		}

		page, err := s.client.GetPage(ctx, token, pageURL)
		if err != nil {
			return err
		}
		res.Pages++

		for _, record := range page.Data {
			if err := apply(record); err != nil {
				if _, ok := err.(*decodeError); ok {
					logger.Warn("skipping undecodable record", "id", record.ID, "error", err)
					res.Skipped++
					continue
				}
				return err
			}
			res.Records++
		}

		if page.Links.Next == nil {
			return nil
		}
		pageURL = s.resolveNext(*page.Links.Next)
	}
	return nil
}

// resolveNext handles upstream returning a path instead of an absolute URL.
func (s *Service) resolveNext(next string) string {
	if strings.HasPrefix(next, "/") {
		return s.client.BaseURL() + next
	}
	return next
}

// syncListMembers nests: for every mirrored list, an independent cursor walk
// over that list's results.
func (s *Service) syncListMembers(ctx context.Context, orgID, token string, res *Result) error {
	listIDs, err := s.mirror.ListPCOListIDs(ctx, orgID)
	if err != nil {
		return fmt.Errorf("load mirrored lists: %w", err)
	}

	for _, listID := range listIDs {
		inner := &Result{}
		first := fmt.Sprintf("%s/people/v2/lists/%s/list_results?per_page=%d", s.client.BaseURL(), listID, s.perPage)
		err := s.walk(ctx, token, first, inner, func(r pco.Resource) error {
			personID := r.RelationshipID("person")
			if personID == "" {
				return &decodeError{msg: "list result without person relationship"}
			}
			return s.mirror.UpsertListMember(ctx, &domain.ListMember{
				OrganizationID: orgID,
				PCOID:          r.ID,
				PCOListID:      listID,
				PCOPersonID:    personID,
			})
		})
		if err != nil {
			return fmt.Errorf("list %s members: %w", listID, err)
		}
		res.Records += inner.Records
		res.Pages += inner.Pages
		res.Skipped += inner.Skipped
	}
	return nil
}

func (s *Service) applyPerson(ctx context.Context, orgID string, r pco.Resource) error {
	var attrs struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return &decodeError{msg: err.Error()}
	}
	return s.mirror.UpsertPerson(ctx, &domain.Person{
		OrganizationID: orgID,
		PCOID:          r.ID,
		FirstName:      attrs.FirstName,
		LastName:       attrs.LastName,
	})
}

func (s *Service) applyEmail(ctx context.Context, orgID string, r pco.Resource) error {
	var attrs struct {
		Address  string `json:"address"`
		Location string `json:"location"`
		Primary  bool   `json:"primary"`
	}
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return &decodeError{msg: err.Error()}
	}
	return s.mirror.UpsertEmail(ctx, &domain.PersonEmail{
		OrganizationID: orgID,
		PCOID:          r.ID,
		PCOPersonID:    r.RelationshipID("person"),
		Address:        attrs.Address,
		Location:       attrs.Location,
		Primary:        attrs.Primary,
	})
}

func (s *Service) applyList(ctx context.Context, orgID string, r pco.Resource) error {
	var attrs struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(r.Attributes, &attrs); err != nil {
		return &decodeError{msg: err.Error()}
	}
	return s.mirror.UpsertList(ctx, &domain.PCOList{
		OrganizationID: orgID,
		PCOID:          r.ID,
		Name:           attrs.Name,
		Description:    attrs.Description,
	})
}

// decodeError marks a per-record failure that the walk policy skips instead
// of aborting the run.
type decodeError struct{ msg string }

func (e *decodeError) Error() string { return "decode record: " + e.msg }
