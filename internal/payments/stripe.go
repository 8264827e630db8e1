// Package payments integrates with Stripe: webhook signature verification,
// event decoding and checkout session expansion.
package payments

import (
	"context"
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// EventCheckoutCompleted is the only event type this backend consumes.
const EventCheckoutCompleted = "checkout.session.completed"

// Event is a verified webhook event.
type Event struct {
	Type    string
	DataRaw json.RawMessage
}

// CheckoutSession is the slice of Stripe's checkout session object the
// backend reads from webhook payloads.
type CheckoutSession struct {
	ID              string            `json:"id"`
	Metadata        map[string]string `json:"metadata"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
}

// Webhook verifies and decodes incoming Stripe webhooks.
type Webhook struct {
	secret string
}

// NewWebhook creates a webhook verifier for the given endpoint secret.
func NewWebhook(secret string) (*Webhook, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook secret is required")
	}
	return &Webhook{secret: secret}, nil
}

// ParseEvent verifies the signature header against the raw payload and
// returns the decoded event. API version drift between Stripe and the pinned
// SDK version is tolerated; the payload subset we read is stable.
func (w *Webhook) ParseEvent(payload []byte, sigHeader string) (Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, w.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("verify webhook signature: %w", err)
	}
	return Event{
		Type:    string(event.Type),
		DataRaw: json.RawMessage(event.Data.Raw),
	}, nil
}

// DecodeCheckoutSession decodes the event payload of a checkout completion.
func DecodeCheckoutSession(raw json.RawMessage) (CheckoutSession, error) {
	var sess CheckoutSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return CheckoutSession{}, fmt.Errorf("decode checkout session: %w", err)
	}
	if sess.ID == "" {
		return CheckoutSession{}, fmt.Errorf("checkout session has no id")
	}
	return sess, nil
}

// SessionExpander retrieves checkout sessions with expanded line items via
// the Stripe API. It backs the plan resolution when session metadata does
// not name a plan.
type SessionExpander struct {
	client *session.Client
}

// NewSessionExpander creates an expander bound to the given API key.
func NewSessionExpander(apiKey string) (*SessionExpander, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("stripe API key is required")
	}
	return &SessionExpander{
		client: &session.Client{
			B:   stripe.GetBackend(stripe.APIBackend),
			Key: apiKey,
		},
	}, nil
}

// FirstPriceID returns the price ID of the session's first line item, or an
// empty string when the session has none.
func (e *SessionExpander) FirstPriceID(ctx context.Context, sessionID string) (string, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	params.AddExpand("line_items")

	sess, err := e.client.Get(sessionID, params)
	if err != nil {
		return "", fmt.Errorf("retrieve checkout session: %w", err)
	}
	if sess.LineItems == nil || len(sess.LineItems.Data) == 0 {
		return "", nil
	}
	item := sess.LineItems.Data[0]
	if item.Price == nil {
		return "", nil
	}
	return item.Price.ID, nil
}
