package models

import "time"

// RefreshToken's model
// GrantScope is the scope granted at the original authorization; Scope is the
// possibly narrowed scope of the current generation. Rotation retires the
// presented token and mints a successor with RotationGeneration+1.
type RefreshToken struct {
	Token              string    `json:"refresh_token"`
	UserID             string    `json:"user_id"`
	ClientID           string    `json:"client_id"`
	Scope              string    `json:"scope"`
	GrantScope         string    `json:"grant_scope"`
	FamilyID           string    `json:"family_id"`
	RotationGeneration int       `json:"rotation_generation"`
	IssuedAt           time.Time `json:"issued_at"`
	ExpiresAt          time.Time `json:"expires_at"`
	Retired            bool      `json:"retired"`
}

// Expired reports whether the token is past its TTL at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
