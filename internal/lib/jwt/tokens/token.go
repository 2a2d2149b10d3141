package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"authd/internal/domain/models"
)

// AccessToken is a minted bearer credential with its decoded claims.
type AccessToken struct {
	Token     string `json:"token"`
	JTI       string `json:"jti"`
	Claims    map[string]interface{}
	ExpiresAt time.Time `json:"expires_at"`
}

// IDToken holds identity data about the authenticated user.
type IDToken struct {
	Token     string `json:"token"`
	Claims    map[string]interface{}
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenSet holds the three tokens issued by the token endpoint: access,
// refresh and (when the grant carries the identity scope) id.
type TokenSet struct {
	Access  *AccessToken         `json:"access_token"`
	ID      *IDToken             `json:"id_token"`
	Refresh *models.RefreshToken `json:"refresh_token"`
	Scope   string               `json:"scope"`
}

// ExpiresIn returns the whole seconds until the access token expires.
func (s *TokenSet) ExpiresIn(now time.Time) int64 {
	return int64(s.Access.ExpiresAt.Sub(now).Seconds())
}

// ClaimValue returns value of specified key
func (t *IDToken) ClaimValue(claim string) (interface{}, bool) {
	val, exists := t.Claims[claim]
	return val, exists
}

// NewOpaque creates an opaque high-entropy credential string, used for both
// authorization codes and refresh tokens.
//
// Returns 32 bytes of entropy in base64url form.
func NewOpaque() (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
