package models

import "time"

// TokenFamily links every credential minted from one authorization grant:
// the access token jtis (with their expiries, so a deny-list entry can carry
// the remaining lifetime) and the currently live refresh token. A detected
// replay revokes the whole family at once.
type TokenFamily struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	ClientID     string               `json:"client_id"`
	Access       map[string]time.Time `json:"access"`
	RefreshToken string               `json:"refresh_token"`
}
