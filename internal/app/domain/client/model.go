package client

import "time"

// Client is a borrower record managed by a broker. InviteToken and InviteUsed
// drive the account-linking flow: a token is issued by the broker, then
// redeemed exactly once by the invited borrower, which sets UserID.
type Client struct {
	ID          string    `json:"id"`
	BrokerID    string    `json:"broker_id"`
	Nom         string    `json:"nom"`
	Email       string    `json:"email,omitempty"`
	InviteToken string    `json:"invite_token,omitempty"`
	InviteUsed  bool      `json:"invite_used"`
	UserID      string    `json:"client_user_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
