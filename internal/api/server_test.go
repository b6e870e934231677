package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/church-space/church-space-sub003/internal/config"
	"github.com/church-space/church-space-sub003/internal/domain"
	"github.com/church-space/church-space-sub003/internal/pco"
	"github.com/church-space/church-space-sub003/internal/service/eligibility"
	"github.com/church-space/church-space-sub003/internal/service/fullsync"
	"github.com/church-space/church-space-sub003/internal/service/token"
	"github.com/church-space/church-space-sub003/internal/service/webhook"
)

// ---- in-memory fakes ----

type memConnections struct {
	conns map[string]*domain.Connection
}

func newMemConnections() *memConnections {
	return &memConnections{conns: map[string]*domain.Connection{}}
}

func (m *memConnections) GetConnection(_ context.Context, orgID string) (*domain.Connection, error) {
	c, ok := m.conns[orgID]
	if !ok {
		return nil, token.ErrNotConnected
	}
	cp := *c
	return &cp, nil
}

func (m *memConnections) CreateConnection(_ context.Context, c *domain.Connection) error {
	cp := *c
	m.conns[c.OrganizationID] = &cp
	return nil
}

func (m *memConnections) UpdateTokens(_ context.Context, orgID string, _ time.Time, access, refresh, scope string, refreshedAt time.Time) (bool, error) {
	c, ok := m.conns[orgID]
	if !ok {
		return false, nil
	}
	c.AccessToken, c.RefreshToken, c.Scope, c.LastRefreshedAt = access, refresh, scope, refreshedAt
	return true, nil
}

func (m *memConnections) DeleteConnection(_ context.Context, orgID string) error {
	delete(m.conns, orgID)
	return nil
}

type memSecrets struct {
	secrets map[string]domain.WebhookSecret // orgID + "/" + eventName
}

func newMemSecrets() *memSecrets {
	return &memSecrets{secrets: map[string]domain.WebhookSecret{}}
}

func (m *memSecrets) GetSecret(_ context.Context, orgID, eventName string) (string, error) {
	s, ok := m.secrets[orgID+"/"+eventName]
	if !ok {
		return "", webhook.ErrUnknownSecret
	}
	return s.Secret, nil
}

func (m *memSecrets) SaveSecret(_ context.Context, s *domain.WebhookSecret) error {
	m.secrets[s.OrganizationID+"/"+s.EventName] = *s
	return nil
}

func (m *memSecrets) ListSecrets(_ context.Context, orgID string) ([]domain.WebhookSecret, error) {
	var out []domain.WebhookSecret
	for k, v := range m.secrets {
		if strings.HasPrefix(k, orgID+"/") {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *memSecrets) DeleteSecrets(_ context.Context, orgID string) error {
	for k := range m.secrets {
		if strings.HasPrefix(k, orgID+"/") {
			delete(m.secrets, k)
		}
	}
	return nil
}

type memMirror struct {
	people map[string]*domain.Person
}

func newMemMirror() *memMirror { return &memMirror{people: map[string]*domain.Person{}} }

func (m *memMirror) UpsertPerson(_ context.Context, p *domain.Person) error {
	cp := *p
	m.people[p.OrganizationID+"/"+p.PCOID] = &cp
	return nil
}
func (m *memMirror) DeletePerson(_ context.Context, orgID, pcoID string) error {
	delete(m.people, orgID+"/"+pcoID)
	return nil
}
func (m *memMirror) UpsertEmail(context.Context, *domain.PersonEmail) error    { return nil }
func (m *memMirror) DeleteEmail(context.Context, string, string) error         { return nil }
func (m *memMirror) UpsertList(context.Context, *domain.PCOList) error         { return nil }
func (m *memMirror) DeleteList(context.Context, string, string) error          { return nil }
func (m *memMirror) UpsertListMember(context.Context, *domain.ListMember) error { return nil }
func (m *memMirror) DeleteListMember(context.Context, string, string) error    { return nil }

type stubEligRepo struct{}

func (stubEligRepo) GetCampaign(context.Context, string, string) (*domain.EmailCampaign, error) {
	return nil, eligibility.ErrCampaignNotFound
}
func (stubEligRepo) GetList(context.Context, string) (*domain.PCOList, error)       { return nil, nil }
func (stubEligRepo) GetCategory(context.Context, string) (*domain.EmailCategory, error) {
	return nil, nil
}
func (stubEligRepo) ListMemberPersonIDs(context.Context, string, string) ([]string, error) {
	return nil, nil
}
func (stubEligRepo) EmailsForPeople(context.Context, string, []string) ([]eligibility.MemberEmail, error) {
	return nil, nil
}
func (stubEligRepo) GlobalStatuses(context.Context, string, []string) (map[string]string, error) {
	return nil, nil
}
func (stubEligRepo) CategoryUnsubscribes(context.Context, string, string) (map[string]bool, error) {
	return nil, nil
}
func (stubEligRepo) GetQuota(context.Context, string) (*domain.SendQuota, error) { return nil, nil }

type stubUpstream struct{}

func (stubUpstream) RefreshToken(context.Context, string) (*pco.TokenResponse, error) {
	return nil, fmt.Errorf("unexpected refresh")
}
func (stubUpstream) Me(context.Context, string) (*pco.CurrentUser, error) {
	return &pco.CurrentUser{ID: "u-1", PeoplePermissions: pco.PermissionManager}, nil
}

type stubFetcher struct{}

func (stubFetcher) BaseURL() string { return "https://api.example.com" }
func (stubFetcher) GetPage(context.Context, string, string) (*pco.Page, error) {
	return &pco.Page{}, nil
}

type memStatus struct{}

func (memStatus) SetSynced(context.Context, string, domain.ResourceType, time.Time) error {
	return nil
}
func (memStatus) GetStatus(context.Context, string) ([]domain.SyncStatus, error) { return nil, nil }

type fsMirror struct{ *memMirror }

func (fsMirror) ListPCOListIDs(context.Context, string) ([]string, error) { return nil, nil }

// ---- server under test ----

func newTestServer(t *testing.T) (*Server, *memConnections, *memSecrets, *memMirror) {
	t.Helper()
	conns := newMemConnections()
	secrets := newMemSecrets()
	mirror := newMemMirror()

	tokens := token.NewService(conns, stubUpstream{}, 2*time.Hour, nil)
	webhooks := webhook.NewService(secrets, mirror, nil, nil)
	syncs := fullsync.NewService(fsMirror{mirror}, memStatus{}, tokens, stubFetcher{}, 10, 100)
	elig := eligibility.NewService(stubEligRepo{}, 100)

	cfg := &config.Config{}
	cfg.Server.PublicURL = "https://sub.churchspace.co"
	srv := NewServer(cfg, tokens, webhooks, syncs, elig)
	return srv, conns, secrets, mirror
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func eventBody(t *testing.T, eventName string, resource any) []byte {
	t.Helper()
	inner, err := json.Marshal(map[string]any{"data": resource})
	require.NoError(t, err)
	body, err := json.Marshal(map[string]any{
		"data": []map[string]any{{
			"id": "evt-1",
			"attributes": map[string]any{
				"name":    eventName,
				"payload": string(inner),
			},
		}},
	})
	require.NoError(t, err)
	return body
}

// ---- tests ----

func TestHealth(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")
}

func TestWebhook_ValidDeliveryApplied(t *testing.T) {
	srv, _, secrets, mirror := newTestServer(t)
	require.NoError(t, secrets.SaveSecret(context.Background(), &domain.WebhookSecret{
		OrganizationID: "org-1", EventName: "person.created", Secret: "s3cret",
	}))

	body := eventBody(t, "person.created", map[string]any{
		"type": "Person", "id": "p-1",
		"attributes": map[string]any{"first_name": "Alice", "last_name": "Smith"},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/org-1", strings.NewReader(string(body)))
	req.Header.Set("Event-ID", "evt-1")
	req.Header.Set("Event-Name", "person.created")
	req.Header.Set("Authenticity-Signature", sign("s3cret", body))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, mirror.people, "org-1/p-1")
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	srv, _, secrets, mirror := newTestServer(t)
	require.NoError(t, secrets.SaveSecret(context.Background(), &domain.WebhookSecret{
		OrganizationID: "org-1", EventName: "person.created", Secret: "s3cret",
	}))

	body := eventBody(t, "person.created", map[string]any{
		"type": "Person", "id": "p-1", "attributes": map[string]any{},
	})

	req := httptest.NewRequest(http.MethodPost, "/webhook/org-1", strings.NewReader(string(body)))
	req.Header.Set("Event-ID", "evt-1")
	req.Header.Set("Event-Name", "person.created")
	req.Header.Set("Authenticity-Signature", sign("wrong-secret", body))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, mirror.people)
}

func TestWebhook_MissingHeaders(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/org-1", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_OversizedBody(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	big := strings.Repeat("a", maxWebhookBody+1)
	req := httptest.NewRequest(http.MethodPost, "/webhook/org-1", strings.NewReader(big))
	req.Header.Set("Event-ID", "evt-1")
	req.Header.Set("Event-Name", "person.created")
	req.Header.Set("Authenticity-Signature", "sig")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// brokenBody fails partway through a read, like a client disconnecting.
type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, fmt.Errorf("connection reset") }

func TestWebhook_BodyReadFailureIsBadRequest(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/webhook/org-1", brokenBody{})
	req.Header.Set("Event-ID", "evt-1")
	req.Header.Set("Event-Name", "person.created")
	req.Header.Set("Authenticity-Signature", "sig")

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhook_UnknownSubscription(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	body := []byte(`{"data":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/org-unknown", strings.NewReader(string(body)))
	req.Header.Set("Event-ID", "evt-1")
	req.Header.Set("Event-Name", "person.created")
	req.Header.Set("Authenticity-Signature", sign("whatever", body))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSync_NotConnected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sync", nil)
	req.Header.Set("X-Organization-ID", "org-absent")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "not_connected")
}

func TestSync_UnknownResourceType(t *testing.T) {
	srv, conns, _, _ := newTestServer(t)
	require.NoError(t, conns.CreateConnection(context.Background(), &domain.Connection{
		OrganizationID:  "org-1",
		AccessToken:     "at",
		LastRefreshedAt: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/sync/bogus", nil)
	req.Header.Set("X-Organization-ID", "org-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSync_MissingOrgID(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectionStatus_NotConnected(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/pco/connection?organization_id=org-x", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, false, got["connected"])
}

func TestConnectionStatus_Connected(t *testing.T) {
	srv, conns, _, _ := newTestServer(t)
	require.NoError(t, conns.CreateConnection(context.Background(), &domain.Connection{
		OrganizationID:  "org-1",
		AccessToken:     "at",
		PCOUserID:       "u-1",
		Scope:           "people",
		LastRefreshedAt: time.Now(),
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/pco/connection", nil)
	req.Header.Set("X-Organization-ID", "org-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, true, got["connected"])
	assert.Equal(t, "u-1", got["pco_user_id"])
}

func TestDisconnect(t *testing.T) {
	srv, conns, secrets, _ := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, conns.CreateConnection(ctx, &domain.Connection{
		OrganizationID: "org-1", AccessToken: "at", LastRefreshedAt: time.Now(),
	}))
	require.NoError(t, secrets.SaveSecret(ctx, &domain.WebhookSecret{
		OrganizationID: "org-1", EventName: "person.created", Secret: "s",
	}))

	req := httptest.NewRequest(http.MethodDelete, "/api/pco/connection", nil)
	req.Header.Set("X-Organization-ID", "org-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	_, err := conns.GetConnection(ctx, "org-1")
	assert.ErrorIs(t, err, token.ErrNotConnected)
}

func TestRecipients_CampaignNotFound(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/campaigns/c-1/recipients", nil)
	req.Header.Set("X-Organization-ID", "org-1")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthorize_RedirectsWithState(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/pco/authorize?organization_id=org-1", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusFound, rec.Code)
	loc := rec.Header().Get("Location")
	assert.Contains(t, loc, "state=")
	assert.Contains(t, loc, "client_id=")

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, oauthStateCookie, cookies[0].Name)
	assert.Contains(t, cookies[0].Value, ".org-1")
}

// flakySubs succeeds for the first subscription and fails afterwards,
// leaving a partial registration behind.
type flakySubs struct {
	created int
	deleted []string
}

func (f *flakySubs) CreateSubscription(_ context.Context, _, eventName, _ string) (*pco.Subscription, error) {
	f.created++
	if f.created > 1 {
		return nil, fmt.Errorf("upstream 500")
	}
	return &pco.Subscription{ID: "sub-1", EventName: eventName, Secret: "s3cret"}, nil
}

func (f *flakySubs) DeleteSubscription(_ context.Context, _, subID string) error {
	f.deleted = append(f.deleted, subID)
	return nil
}

func TestCallback_RegistrationFailureRollsBackEverything(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"at-new","token_type":"Bearer","refresh_token":"rt-new","scope":"people"}`))
	}))
	defer tokenSrv.Close()

	conns := newMemConnections()
	secrets := newMemSecrets()
	mirror := newMemMirror()
	subs := &flakySubs{}

	tokens := token.NewService(conns, stubUpstream{}, 2*time.Hour, nil)
	webhooks := webhook.NewService(secrets, mirror, nil, subs)
	syncs := fullsync.NewService(fsMirror{mirror}, memStatus{}, tokens, stubFetcher{}, 10, 100)
	elig := eligibility.NewService(stubEligRepo{}, 100)

	cfg := &config.Config{}
	cfg.Server.PublicURL = "https://sub.churchspace.co"
	cfg.PCO.ClientID = "cid"
	cfg.PCO.ClientSecret = "csecret"
	cfg.PCO.TokenURL = tokenSrv.URL
	srv := NewServer(cfg, tokens, webhooks, syncs, elig)

	ctx := context.Background()
	state := "abc123.org-1"
	req := httptest.NewRequest(http.MethodGet, "/api/pco/callback?code=xyz&state="+state, nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: state})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)

	// The credential, the stored secret, and the upstream subscription must
	// all be gone; otherwise deliveries for a failed connect still verify.
	_, err := conns.GetConnection(ctx, "org-1")
	assert.ErrorIs(t, err, token.ErrNotConnected)
	stored, err := secrets.ListSecrets(ctx, "org-1")
	require.NoError(t, err)
	assert.Empty(t, stored)
	assert.Equal(t, []string{"sub-1"}, subs.deleted)
}

func TestCallback_StateMismatch(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/pco/callback?code=abc&state=forged.org-1", nil)
	req.AddCookie(&http.Cookie{Name: oauthStateCookie, Value: "legit.org-1"})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
