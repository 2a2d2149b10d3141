package models

import "time"

// AuthorizationCode model depends on RFC OAUTH2.1
// The code itself is an opaque high-entropy capability; the record binds it
// to the client, redirect URI, scope, user and PKCE challenge presented at
// authorization time. After consumption the record is retained briefly with
// Used=true solely to detect replay.
type AuthorizationCode struct {
	Code                string    `json:"code"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	State               string    `json:"state"`
	CodeChallenge       string    `json:"code_challenge"`
	CodeChallengeMethod string    `json:"code_challenge_method"`
	UserID              string    `json:"user_id"`
	Nonce               string    `json:"nonce,omitempty"`
	FamilyID            string    `json:"family_id"`
	CreatedAt           time.Time `json:"created_at"`
	ExpiresAt           time.Time `json:"expires_at"`
	Used                bool      `json:"used"`
}

// Expired reports whether the code is past its TTL at the given instant.
func (c *AuthorizationCode) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
