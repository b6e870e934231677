package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pco"
	"github.com/church-space/church-space-sub003/internal/pkg/logger"
)

// replayTTL is how long delivered event ids are remembered. Upstream
// redelivery happens within hours, not days.
const replayTTL = 24 * time.Hour

// Service verifies webhook deliveries and applies their mutations.
// Stateless and safe under arbitrary concurrency and redelivery.
type Service struct {
	secrets SecretStore
	mirror  MirrorStore
	replay  ReplayCache
	subs    SubscriptionClient
}

// NewService creates a webhook service. replay may be nil (no replay cache,
// every delivery is applied; still correct because mutations are idempotent).
func NewService(secrets SecretStore, mirror MirrorStore, replay ReplayCache, subs SubscriptionClient) *Service {
	return &Service{secrets: secrets, mirror: mirror, replay: replay, subs: subs}
}

// Delivery is one inbound webhook request, already read off the wire.
type Delivery struct {
	OrganizationID string
	EventID        string
	EventName      string
	Signature      string
	RawBody        []byte
}

// HandleDelivery verifies and applies one webhook delivery.
// The signature is computed over the exact raw body; any later mutation
// failure is returned as-is so the handler can ask upstream to redeliver.
func (s *Service) HandleDelivery(ctx context.Context, d Delivery) error {
	if d.EventID == "" || d.EventName == "" || d.Signature == "" {
		return ErrMissingHeader
	}

	secret, err := s.secrets.GetSecret(ctx, d.OrganizationID, d.EventName)
	if err != nil {
		return err
	}
	if !verifySignature(secret, d.RawBody, d.Signature) {
		return ErrSignatureMismatch
	}

	if s.replay != nil {
		seen, err := s.replay.Seen(ctx, d.EventID)
		if err != nil {
			// Cache trouble must not block deliveries; fall through and
			// rely on mutation idempotence.
			logger.Warn("replay cache unavailable", "event_id", d.EventID, "error", err)
		} else if seen {
			logger.Info("duplicate delivery acknowledged", "org_id", d.OrganizationID,
				"event_id", d.EventID, "event_name", d.EventName)
			return nil
		}
	}

	var envelope struct {
		Data []struct {
			ID         string `json:"id"`
			Attributes struct {
				Name    string `json:"name"`
				Payload string `json:"payload"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(d.RawBody, &envelope); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}

	for _, ev := range envelope.Data {
		name := ev.Attributes.Name
		if name == "" {
			name = d.EventName
		}
		if err := s.applyEvent(ctx, d.OrganizationID, name, ev.Attributes.Payload); err != nil {
			return fmt.Errorf("apply %s event %s: %w", name, ev.ID, err)
		}
	}

	// Mark only after every mutation has landed. A failed delivery stays
	// unmarked so the upstream redelivery is applied, not short-circuited.
	if s.replay != nil {
		if err := s.replay.Mark(ctx, d.EventID, replayTTL); err != nil {
			logger.Warn("recording delivery in replay cache failed",
				"event_id", d.EventID, "error", err)
		}
	}
	return nil
}

// verifySignature computes HMAC-SHA256 over the raw body and compares the
// hex digest to the authenticity header in constant time.
func verifySignature(secret string, rawBody []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// applyEvent routes one event to its idempotent mutation. Event names are
// "<resource>.<action>"; unknown resources or actions are logged and
// accepted so new upstream event types never bounce deliveries.
func (s *Service) applyEvent(ctx context.Context, orgID, eventName, payload string) error {
	resource, action, ok := strings.Cut(eventName, ".")
	if !ok {
		logger.Warn("unparseable event name, ignoring", "org_id", orgID, "event_name", eventName)
		return nil
	}

	var body struct {
		Data pco.Resource `json:"data"`
	}
	if err := json.Unmarshal([]byte(payload), &body); err != nil {
		return fmt.Errorf("%w: inner payload: %v", ErrMalformedBody, err)
	}
	res := body.Data

	destroy := action == "destroyed"
	if !destroy && action != "created" && action != "updated" {
		logger.Warn("unknown event action, ignoring", "org_id", orgID, "event_name", eventName)
		return nil
	}

	switch resource {
	case "person":
		if destroy {
			return s.mirror.DeletePerson(ctx, orgID, res.ID)
		}
		var attrs struct {
			FirstName string `json:"first_name"`
			LastName  string `json:"last_name"`
		}
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return fmt.Errorf("%w: person attributes: %v", ErrMalformedBody, err)
		}
		return s.mirror.UpsertPerson(ctx, &domain.Person{
			OrganizationID: orgID,
			PCOID:          res.ID,
			FirstName:      attrs.FirstName,
			LastName:       attrs.LastName,
		})

	case "email":
		if destroy {
			return s.mirror.DeleteEmail(ctx, orgID, res.ID)
		}
		var attrs struct {
			Address  string `json:"address"`
			Location string `json:"location"`
			Primary  bool   `json:"primary"`
		}
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return fmt.Errorf("%w: email attributes: %v", ErrMalformedBody, err)
		}
		return s.mirror.UpsertEmail(ctx, &domain.PersonEmail{
			OrganizationID: orgID,
			PCOID:          res.ID,
			PCOPersonID:    res.RelationshipID("person"),
			Address:        attrs.Address,
			Location:       attrs.Location,
			Primary:        attrs.Primary,
		})

	case "list":
		if destroy {
			return s.mirror.DeleteList(ctx, orgID, res.ID)
		}
		var attrs struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		}
		if err := json.Unmarshal(res.Attributes, &attrs); err != nil {
			return fmt.Errorf("%w: list attributes: %v", ErrMalformedBody, err)
		}
		return s.mirror.UpsertList(ctx, &domain.PCOList{
			OrganizationID: orgID,
			PCOID:          res.ID,
			Name:           attrs.Name,
			Description:    attrs.Description,
		})

	case "list_result":
		if destroy {
			return s.mirror.DeleteListMember(ctx, orgID, res.ID)
		}
		return s.mirror.UpsertListMember(ctx, &domain.ListMember{
			OrganizationID: orgID,
			PCOID:          res.ID,
			PCOListID:      res.RelationshipID("list"),
			PCOPersonID:    res.RelationshipID("person"),
		})

	default:
		logger.Warn("unknown event resource, ignoring", "org_id", orgID, "event_name", eventName)
		return nil
	}
}

// RegisterSubscriptions creates one upstream subscription per supported event
// and stores each returned secret. Called when an organization connects.
func (s *Service) RegisterSubscriptions(ctx context.Context, orgID, accessToken, deliveryURL string) error {
	for _, eventName := range pco.SupportedEvents {
		sub, err := s.subs.CreateSubscription(ctx, accessToken, eventName, deliveryURL)
		if err != nil {
			return fmt.Errorf("register %s subscription: %w", eventName, err)
		}
		if err := s.secrets.SaveSecret(ctx, &domain.WebhookSecret{
			OrganizationID: orgID,
			EventName:      eventName,
			SubscriptionID: sub.ID,
			Secret:         sub.Secret,
		}); err != nil {
			return fmt.Errorf("store %s secret: %w", eventName, err)
		}
	}
	logger.Info("webhook subscriptions registered", "org_id", orgID, "count", len(pco.SupportedEvents))
	return nil
}

// RemoveSubscriptions deletes the organization's subscriptions upstream
// (best effort) and then drops the stored secrets.
func (s *Service) RemoveSubscriptions(ctx context.Context, orgID, accessToken string) error {
	stored, err := s.secrets.ListSecrets(ctx, orgID)
	if err != nil {
		return fmt.Errorf("list stored secrets: %w", err)
	}
	for _, sec := range stored {
		if sec.SubscriptionID == "" {
			continue
		}
		if err := s.subs.DeleteSubscription(ctx, accessToken, sec.SubscriptionID); err != nil {
			logger.Warn("failed to delete upstream subscription",
				"org_id", orgID, "subscription_id", sec.SubscriptionID, "error", err)
		}
	}
	return s.secrets.DeleteSecrets(ctx, orgID)
}
