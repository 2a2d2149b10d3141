// Package pkce implements Proof Key for Code Exchange (RFC 7636) restricted
// to the S256 method, the only one OAuth 2.1 permits.
package pkce

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// MethodS256 is the single legal code_challenge_method.
const MethodS256 = "S256"

const (
	// RFC 7636 §4.1 bounds on the code_verifier length.
	MinVerifierLength = 43
	MaxVerifierLength = 128

	verifierEntropy = 32
)

// Pair is a client-side verifier and its derived challenge.
type Pair struct {
	Verifier  string `json:"code_verifier"`
	Challenge string `json:"code_challenge"`
	Method    string `json:"code_challenge_method"`
}

// Generate produces a cryptographically random verifier of 32 bytes of
// entropy and its S256 challenge. The base64url encoding of 32 bytes is
// exactly 43 characters, the lower bound of the legal range.
func Generate() (Pair, error) {
	raw := make([]byte, verifierEntropy)
	if _, err := rand.Read(raw); err != nil {
		return Pair{}, fmt.Errorf("generating code verifier: %w", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(raw)
	return Pair{
		Verifier:  verifier,
		Challenge: Challenge(verifier),
		Method:    MethodS256,
	}, nil
}

// Challenge derives the S256 code challenge: base64url(SHA-256(verifier))
// without padding characters.
func Challenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// Verify recomputes the challenge from the presented verifier and compares
// it to the stored one in constant time. Any "plain" or unknown method is
// rejected outright. A false result is an invalid_grant condition for the
// caller, never an abort.
func Verify(verifier, challenge, method string) bool {
	if method != MethodS256 {
		return false
	}
	if len(verifier) < MinVerifierLength || len(verifier) > MaxVerifierLength {
		return false
	}
	if !validCharset(verifier) {
		return false
	}
	expected := Challenge(verifier)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(challenge)) == 1
}

// validCharset checks the unreserved URL character set of RFC 7636 §4.1:
// ALPHA / DIGIT / "-" / "." / "_" / "~".
func validCharset(verifier string) bool {
	for _, r := range verifier {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_' || r == '~':
		default:
			return false
		}
	}
	return true
}
