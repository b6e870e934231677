package pco

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Subscription is a registered webhook subscription upstream. The
// authenticity secret is only returned on creation.
type Subscription struct {
	ID        string
	EventName string
	Secret    string
}

// SupportedEvents are the webhook event names this service subscribes to.
// One subscription is registered upstream per event name when an
// organization connects.
var SupportedEvents = []string{
	"person.created", "person.updated", "person.destroyed",
	"email.created", "email.updated", "email.destroyed",
	"list.created", "list.updated", "list.destroyed",
	"list_result.created", "list_result.destroyed",
}

// CreateSubscription registers one webhook subscription upstream pointing at
// deliveryURL and returns the subscription id and its authenticity secret.
func (c *Client) CreateSubscription(ctx context.Context, accessToken, eventName, deliveryURL string) (*Subscription, error) {
	payload := map[string]any{
		"data": map[string]any{
			"type": "Subscription",
			"attributes": map[string]any{
				"name":   eventName,
				"url":    deliveryURL,
				"active": true,
			},
		},
	}

	body, err := c.do(ctx, accessToken, http.MethodPost, c.baseURL+"/webhooks/v2/subscriptions", payload)
	if err != nil {
		return nil, fmt.Errorf("pco: create subscription %s: %w", eventName, err)
	}

	var envelope struct {
		Data struct {
			ID         string `json:"id"`
			Attributes struct {
				Name               string `json:"name"`
				AuthenticitySecret string `json:"authenticity_secret"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("pco: decode subscription response: %w", err)
	}
	if envelope.Data.Attributes.AuthenticitySecret == "" {
		return nil, fmt.Errorf("pco: subscription %s created without authenticity secret", eventName)
	}

	return &Subscription{
		ID:        envelope.Data.ID,
		EventName: envelope.Data.Attributes.Name,
		Secret:    envelope.Data.Attributes.AuthenticitySecret,
	}, nil
}

// DeleteSubscription removes a webhook subscription upstream. Deleting an
// already-absent subscription is not an error.
func (c *Client) DeleteSubscription(ctx context.Context, accessToken, subscriptionID string) error {
	_, err := c.do(ctx, accessToken, http.MethodDelete, c.baseURL+"/webhooks/v2/subscriptions/"+subscriptionID, nil)
	if serr, ok := err.(*StatusError); ok && serr.Code == http.StatusNotFound {
		return nil
	}
	return err
}
