package models

import "time"

type ClientType string

const (
	ClientConfidential ClientType = "confidential"
	ClientPublic       ClientType = "public"
)

// Client is a registered OAuth application
// Immutable after registration except via explicit update
type Client struct {
	ID            string     `json:"client_id" db:"id"`
	SecretHash    []byte     `json:"-" db:"secret_hash"`
	Type          ClientType `json:"client_type" db:"type"`
	RedirectURIs  []string   `json:"redirect_uris" db:"redirect_uris"`
	AllowedScopes []string   `json:"allowed_scopes" db:"allowed_scopes"`
	OwnerID       string     `json:"owner_id" db:"owner_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Confidential reports whether the client is expected to hold a secret.
func (c *Client) Confidential() bool {
	return c.Type == ClientConfidential
}
