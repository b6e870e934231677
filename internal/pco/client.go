// Package pco is the Planning Center Online API client: token refresh,
// identity probe, cursor-paginated collection reads, and webhook
// subscription management.
package pco

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/church-space/church-space-sub003/internal/pkg/httpretry"
)

// Client is the Planning Center API client. It holds no per-organization
// state; access tokens are passed into each call so one client serves every
// organization concurrently.
type Client struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   httpretry.HTTPDoer
}

// Config holds the client settings.
type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// NewClient creates a new Planning Center API client.
func NewClient(cfg Config) *Client {
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		tokenURL:     cfg.TokenURL,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: 60 * time.Second,
		}, 3),
	}
}

// SetHTTPClient sets a custom HTTP client (useful for testing).
func (c *Client) SetHTTPClient(client httpretry.HTTPDoer) {
	c.httpClient = client
}

// BaseURL returns the API root, for building first-page collection URLs.
func (c *Client) BaseURL() string { return c.baseURL }

// RefreshToken exchanges a refresh token for a new access/refresh pair.
// The passed refresh token is dead after a successful exchange.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"refresh_token": {refreshToken},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("pco: build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pco: token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pco: read token response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return nil, fmt.Errorf("pco: decode token response: %w", err)
	}
	if tok.AccessToken == "" || tok.RefreshToken == "" {
		return nil, fmt.Errorf("pco: token response missing token pair")
	}
	return &tok, nil
}

// Me performs the identity probe: fetch the authenticated user and their
// people permission level.
func (c *Client) Me(ctx context.Context, accessToken string) (*CurrentUser, error) {
	body, err := c.get(ctx, accessToken, c.baseURL+"/people/v2/me")
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				FirstName         string `json:"first_name"`
				LastName          string `json:"last_name"`
				PeoplePermissions string `json:"people_permissions"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("pco: decode me response: %w", err)
	}

	return &CurrentUser{
		ID:                envelope.Data.ID,
		FirstName:         envelope.Data.Attributes.FirstName,
		LastName:          envelope.Data.Attributes.LastName,
		PeoplePermissions: envelope.Data.Attributes.PeoplePermissions,
	}, nil
}

// GetPage fetches one page of a cursor-paginated collection. pageURL is
// either a first-page URL built from BaseURL or the previous page's
// links.next value.
func (c *Client) GetPage(ctx context.Context, accessToken, pageURL string) (*Page, error) {
	body, err := c.get(ctx, accessToken, pageURL)
	if err != nil {
		return nil, err
	}

	var page Page
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("pco: decode page: %w", err)
	}
	return &page, nil
}

func (c *Client) get(ctx context.Context, accessToken, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("pco: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pco: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pco: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) do(ctx context.Context, accessToken, method, rawURL string, payload any) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("pco: marshal request body: %w", err)
		}
		reqBody = strings.NewReader(string(data))
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("pco: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pco: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("pco: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}
