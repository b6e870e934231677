package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/church-space/church-space-sub003/internal/domain"
)

const testOrgID = "org-001"

// mockSecrets is an in-memory secret store.
type mockSecrets struct {
	store map[string]string // "orgID:eventName" -> secret
}

func newMockSecrets() *mockSecrets {
	return &mockSecrets{store: make(map[string]string)}
}

func (m *mockSecrets) GetSecret(_ context.Context, orgID, eventName string) (string, error) {
	secret, ok := m.store[orgID+":"+eventName]
	if !ok {
		return "", ErrUnknownSecret
	}
	return secret, nil
}

func (m *mockSecrets) SaveSecret(_ context.Context, s *domain.WebhookSecret) error {
	m.store[s.OrganizationID+":"+s.EventName] = s.Secret
	return nil
}

func (m *mockSecrets) ListSecrets(_ context.Context, orgID string) ([]domain.WebhookSecret, error) {
	return nil, nil
}

func (m *mockSecrets) DeleteSecrets(_ context.Context, orgID string) error {
	for k := range m.store {
		delete(m.store, k)
	}
	return nil
}

// mockMirror records idempotent mutations in maps keyed by (org, pco id).
type mockMirror struct {
	mu      sync.Mutex
	people  map[string]*domain.Person
	emails  map[string]*domain.PersonEmail
	lists   map[string]*domain.PCOList
	members map[string]*domain.ListMember
	failAll bool
}

func newMockMirror() *mockMirror {
	return &mockMirror{
		people:  make(map[string]*domain.Person),
		emails:  make(map[string]*domain.PersonEmail),
		lists:   make(map[string]*domain.PCOList),
		members: make(map[string]*domain.ListMember),
	}
}

func (m *mockMirror) key(orgID, pcoID string) string { return orgID + ":" + pcoID }

func (m *mockMirror) UpsertPerson(_ context.Context, p *domain.Person) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return errors.New("storage down")
	}
	m.people[m.key(p.OrganizationID, p.PCOID)] = p
	return nil
}

func (m *mockMirror) DeletePerson(_ context.Context, orgID, pcoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.people, m.key(orgID, pcoID))
	return nil
}

func (m *mockMirror) UpsertEmail(_ context.Context, e *domain.PersonEmail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails[m.key(e.OrganizationID, e.PCOID)] = e
	return nil
}

func (m *mockMirror) DeleteEmail(_ context.Context, orgID, pcoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.emails, m.key(orgID, pcoID))
	return nil
}

func (m *mockMirror) UpsertList(_ context.Context, l *domain.PCOList) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists[m.key(l.OrganizationID, l.PCOID)] = l
	return nil
}

func (m *mockMirror) DeleteList(_ context.Context, orgID, pcoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lists, m.key(orgID, pcoID))
	return nil
}

func (m *mockMirror) UpsertListMember(_ context.Context, lm *domain.ListMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[m.key(lm.OrganizationID, lm.PCOID)] = lm
	return nil
}

func (m *mockMirror) DeleteListMember(_ context.Context, orgID, pcoID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, m.key(orgID, pcoID))
	return nil
}

// sign produces the authenticity header value for a body.
func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// eventBody builds the outer envelope with the inner JSON-encoded payload
// string, the way upstream delivers it.
func eventBody(t *testing.T, eventName string, resource map[string]any) []byte {
	t.Helper()
	inner, err := json.Marshal(map[string]any{"data": resource})
	if err != nil {
		t.Fatal(err)
	}
	outer, err := json.Marshal(map[string]any{
		"data": []map[string]any{{
			"id": "evt-1",
			"attributes": map[string]any{
				"name":    eventName,
				"payload": string(inner),
			},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return outer
}

func newTestService(t *testing.T, eventName string) (*Service, *mockMirror, string) {
	t.Helper()
	secrets := newMockSecrets()
	const secret = "whsec-abc123"
	secrets.store[testOrgID+":"+eventName] = secret
	mirror := newMockMirror()
	return NewService(secrets, mirror, nil, nil), mirror, secret
}

func TestHandleDelivery_MissingHeaders(t *testing.T) {
	svc, _, _ := newTestService(t, "person.created")

	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventName:      "person.created",
		Signature:      "sig",
		// EventID missing
	})
	if !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("err = %v, want ErrMissingHeader", err)
	}
}

func TestHandleDelivery_NoSecretForEvent(t *testing.T) {
	svc, _, _ := newTestService(t, "person.created")

	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-1",
		EventName:      "list.created", // no secret stored for this pair
		Signature:      "sig",
		RawBody:        []byte(`{}`),
	})
	if !errors.Is(err, ErrUnknownSecret) {
		t.Fatalf("err = %v, want ErrUnknownSecret", err)
	}
}

func TestHandleDelivery_TamperedBodyRejected(t *testing.T) {
	svc, mirror, secret := newTestService(t, "person.created")

	body := eventBody(t, "person.created", map[string]any{
		"type": "Person", "id": "p-1",
		"attributes": map[string]any{"first_name": "Ada", "last_name": "Lovelace"},
	})
	sig := sign(secret, body)

	// Flip one byte after signing.
	tampered := append([]byte(nil), body...)
	tampered[len(tampered)/2] ^= 0x01

	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-1",
		EventName:      "person.created",
		Signature:      sig,
		RawBody:        tampered,
	})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("err = %v, want ErrSignatureMismatch", err)
	}
	if len(mirror.people) != 0 {
		t.Error("no mutation may happen on a rejected delivery")
	}
}

func TestHandleDelivery_CreatedIsIdempotent(t *testing.T) {
	svc, mirror, secret := newTestService(t, "person.created")

	body := eventBody(t, "person.created", map[string]any{
		"type": "Person", "id": "p-1",
		"attributes": map[string]any{"first_name": "Ada", "last_name": "Lovelace"},
	})
	d := Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-1",
		EventName:      "person.created",
		Signature:      sign(secret, body),
		RawBody:        body,
	}

	for i := 0; i < 2; i++ {
		if err := svc.HandleDelivery(context.Background(), d); err != nil {
			t.Fatalf("delivery %d: %v", i, err)
		}
	}
	if len(mirror.people) != 1 {
		t.Fatalf("mirror rows = %d, want exactly 1", len(mirror.people))
	}
}

func TestHandleDelivery_EmailUpdatedUpdatesMirror(t *testing.T) {
	svc, mirror, secret := newTestService(t, "email.updated")
	mirror.emails[testOrgID+":e-9"] = &domain.PersonEmail{
		OrganizationID: testOrgID, PCOID: "e-9", Address: "old@example.com",
	}

	body := eventBody(t, "email.updated", map[string]any{
		"type": "Email", "id": "e-9",
		"attributes": map[string]any{"address": "new@example.com", "primary": true},
		"relationships": map[string]any{
			"person": map[string]any{"data": map[string]any{"type": "Person", "id": "p-1"}},
		},
	})
	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-2",
		EventName:      "email.updated",
		Signature:      sign(secret, body),
		RawBody:        body,
	})
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}

	got := mirror.emails[testOrgID+":e-9"]
	if got.Address != "new@example.com" || got.PCOPersonID != "p-1" || !got.Primary {
		t.Errorf("mirrored email = %+v", got)
	}
}

func TestHandleDelivery_UpdatedForMissingRowUpserts(t *testing.T) {
	// The create event was missed; updated must not error.
	svc, mirror, secret := newTestService(t, "email.updated")

	body := eventBody(t, "email.updated", map[string]any{
		"type": "Email", "id": "e-new",
		"attributes": map[string]any{"address": "fresh@example.com"},
	})
	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-3",
		EventName:      "email.updated",
		Signature:      sign(secret, body),
		RawBody:        body,
	})
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if _, ok := mirror.emails[testOrgID+":e-new"]; !ok {
		t.Error("updated for a missing row should have been converted to an upsert")
	}
}

func TestHandleDelivery_DestroyedAbsentRowIsNoop(t *testing.T) {
	svc, _, secret := newTestService(t, "person.destroyed")

	body := eventBody(t, "person.destroyed", map[string]any{
		"type": "Person", "id": "never-seen", "attributes": map[string]any{},
	})
	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-4",
		EventName:      "person.destroyed",
		Signature:      sign(secret, body),
		RawBody:        body,
	})
	if err != nil {
		t.Fatalf("destroying an absent row must not error: %v", err)
	}
}

func TestHandleDelivery_UnknownEventAccepted(t *testing.T) {
	svc, mirror, secret := newTestService(t, "workflow_card.created")

	body := eventBody(t, "workflow_card.created", map[string]any{
		"type": "WorkflowCard", "id": "wc-1", "attributes": map[string]any{},
	})
	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-5",
		EventName:      "workflow_card.created",
		Signature:      sign(secret, body),
		RawBody:        body,
	})
	if err != nil {
		t.Fatalf("unknown event names must be accepted: %v", err)
	}
	if len(mirror.people)+len(mirror.emails)+len(mirror.lists)+len(mirror.members) != 0 {
		t.Error("unknown events must not mutate anything")
	}
}

func TestHandleDelivery_MutationFailurePropagates(t *testing.T) {
	svc, mirror, secret := newTestService(t, "person.created")
	mirror.failAll = true

	body := eventBody(t, "person.created", map[string]any{
		"type": "Person", "id": "p-1", "attributes": map[string]any{"first_name": "Ada"},
	})
	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-6",
		EventName:      "person.created",
		Signature:      sign(secret, body),
		RawBody:        body,
	})
	if err == nil {
		t.Fatal("mutation failure must propagate so upstream redelivers")
	}
	if errors.Is(err, ErrSignatureMismatch) || errors.Is(err, ErrMissingHeader) {
		t.Errorf("mutation failure misclassified: %v", err)
	}
}

// memoryReplay is a trivial in-process ReplayCache.
type memoryReplay struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (m *memoryReplay) Seen(_ context.Context, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen[eventID], nil
}

func (m *memoryReplay) Mark(_ context.Context, eventID string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen[eventID] = true
	return nil
}

func TestHandleDelivery_ReplayCacheShortCircuits(t *testing.T) {
	secrets := newMockSecrets()
	secrets.store[testOrgID+":list.created"] = "sec"
	mirror := newMockMirror()
	replay := &memoryReplay{seen: make(map[string]bool)}
	svc := NewService(secrets, mirror, replay, nil)

	body := eventBody(t, "list.created", map[string]any{
		"type": "List", "id": "l-1", "attributes": map[string]any{"name": "Volunteers"},
	})
	d := Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-7",
		EventName:      "list.created",
		Signature:      sign("sec", body),
		RawBody:        body,
	}

	if err := svc.HandleDelivery(context.Background(), d); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	// Remove the row behind the cache's back; a replayed delivery must not
	// re-create it because the cache short-circuits before dispatch.
	delete(mirror.lists, testOrgID+":l-1")

	if err := svc.HandleDelivery(context.Background(), d); err != nil {
		t.Fatalf("replayed delivery: %v", err)
	}
	if len(mirror.lists) != 0 {
		t.Error("replayed delivery should have been short-circuited")
	}
}

func TestHandleDelivery_FailedDeliveryAppliedOnRedelivery(t *testing.T) {
	secrets := newMockSecrets()
	secrets.store[testOrgID+":person.created"] = "sec"
	mirror := newMockMirror()
	replay := &memoryReplay{seen: make(map[string]bool)}
	svc := NewService(secrets, mirror, replay, nil)

	body := eventBody(t, "person.created", map[string]any{
		"type": "Person", "id": "p-9",
		"attributes": map[string]any{"first_name": "Dana"},
	})
	d := Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-9",
		EventName:      "person.created",
		Signature:      sign("sec", body),
		RawBody:        body,
	}

	mirror.failAll = true
	if err := svc.HandleDelivery(context.Background(), d); err == nil {
		t.Fatal("mutation failure must propagate")
	}
	if replay.seen["evt-9"] {
		t.Fatal("failed delivery must not be recorded as seen")
	}

	// Upstream redelivers after the 500; with storage healthy again the
	// event must be applied, not short-circuited.
	mirror.failAll = false
	if err := svc.HandleDelivery(context.Background(), d); err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if _, ok := mirror.people[testOrgID+":p-9"]; !ok {
		t.Error("redelivered event was not applied")
	}
	if !replay.seen["evt-9"] {
		t.Error("successful delivery should be recorded as seen")
	}
}

func TestHandleDelivery_ListResultEvents(t *testing.T) {
	svc, mirror, secret := newTestService(t, "list_result.created")

	body := eventBody(t, "list_result.created", map[string]any{
		"type": "ListResult", "id": "lr-1",
		"attributes": map[string]any{},
		"relationships": map[string]any{
			"list":   map[string]any{"data": map[string]any{"type": "List", "id": "l-4"}},
			"person": map[string]any{"data": map[string]any{"type": "Person", "id": "p-8"}},
		},
	})
	err := svc.HandleDelivery(context.Background(), Delivery{
		OrganizationID: testOrgID,
		EventID:        "evt-8",
		EventName:      "list_result.created",
		Signature:      sign(secret, body),
		RawBody:        body,
	})
	if err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}

	m := mirror.members[testOrgID+":lr-1"]
	if m == nil || m.PCOListID != "l-4" || m.PCOPersonID != "p-8" {
		t.Errorf("mirrored member = %+v", m)
	}
}
