package jwt

import "context"

// Signer is the signing collaborator of the token engine. The core treats
// signed tokens as opaque self-describing strings and performs no key
// management of its own.
type Signer interface {
	Sign(ctx context.Context, claims map[string]interface{}) (string, error)
	Verify(ctx context.Context, token string) (map[string]interface{}, error)
}
