// Package identity integrates with the hosted identity provider's management
// REST API. The backend uses it to resolve users by email and to persist the
// subscription plan in the user's public metadata.
package identity

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/pretimmo/service_backend/internal/app/domain/subscription"
	"github.com/pretimmo/service_backend/internal/httputil"
)

// User is the subset of the provider's user object the backend needs.
type User struct {
	ID    string
	Email string
	Plan  subscription.Plan
}

// Config holds the identity provider settings.
type Config struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
}

// Client calls the identity provider management API.
type Client struct {
	http *httputil.JSONClient
}

// New creates an identity client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("identity base URL is required")
	}
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("identity secret key is required")
	}
	return &Client{
		http: httputil.NewJSONClient(httputil.JSONClientConfig{
			BaseURL: cfg.BaseURL,
			Token:   cfg.SecretKey,
			Timeout: cfg.Timeout,
		}),
	}, nil
}

// userResponse mirrors the provider's user payload.
type userResponse struct {
	ID             string `json:"id"`
	EmailAddresses []struct {
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
	PublicMetadata struct {
		Plan string `json:"plan"`
	} `json:"public_metadata"`
}

func (r userResponse) toUser() User {
	u := User{
		ID:   r.ID,
		Plan: subscription.Parse(r.PublicMetadata.Plan),
	}
	if len(r.EmailAddresses) > 0 {
		u.Email = r.EmailAddresses[0].EmailAddress
	}
	return u
}

// LookupUserIDByEmail resolves a user ID from an email address. It returns
// an empty ID when no user matches.
func (c *Client) LookupUserIDByEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", fmt.Errorf("email is required")
	}

	path := "/v1/users?email_address=" + url.QueryEscape(email) + "&limit=1"
	resp, err := c.http.Get(ctx, path)
	if err != nil {
		return "", fmt.Errorf("lookup user by email: %w", err)
	}

	var users []userResponse
	if err := httputil.DecodeResponse(resp, &users); err != nil {
		return "", fmt.Errorf("lookup user by email: %w", err)
	}
	if len(users) == 0 {
		return "", nil
	}
	return users[0].ID, nil
}

// GetUser loads a user by ID.
func (c *Client) GetUser(ctx context.Context, userID string) (User, error) {
	if userID == "" {
		return User{}, fmt.Errorf("user ID is required")
	}

	resp, err := c.http.Get(ctx, "/v1/users/"+url.PathEscape(userID))
	if err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}

	var user userResponse
	if err := httputil.DecodeResponse(resp, &user); err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return user.toUser(), nil
}

// SetUserPlan writes the plan into the user's public metadata.
func (c *Client) SetUserPlan(ctx context.Context, userID string, plan subscription.Plan) error {
	if userID == "" {
		return fmt.Errorf("user ID is required")
	}

	body := map[string]interface{}{
		"public_metadata": map[string]string{"plan": string(plan)},
	}
	resp, err := c.http.Patch(ctx, "/v1/users/"+url.PathEscape(userID)+"/metadata", body)
	if err != nil {
		return fmt.Errorf("set user plan: %w", err)
	}
	if err := httputil.DecodeResponse(resp, nil); err != nil {
		return fmt.Errorf("set user plan: %w", err)
	}
	return nil
}
