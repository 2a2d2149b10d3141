package jwt

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jwk"
)

// LocalSigner signs and verifies tokens with an in-process RSA key pair.
// Used when no Vault Transit backend is configured (local/dev and tests).
type LocalSigner struct {
	key *rsa.PrivateKey
	kid string
}

// NewLocalSigner loads a PKCS#1/PKCS#8 PEM private key from keyPath.
// An empty path generates an ephemeral 2048-bit key, which is fine for a
// single instance but means tokens do not survive a restart.
func NewLocalSigner(keyPath string, kid string) (*LocalSigner, error) {
	if kid == "" {
		kid = "1"
	}
	if keyPath == "" {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return nil, fmt.Errorf("generating signing key: %w", err)
		}
		return &LocalSigner{key: key, kid: kid}, nil
	}
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", keyPath)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		parsed, pkcs8Err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if pkcs8Err != nil {
			return nil, fmt.Errorf("parsing signing key: %w", err)
		}
		rsaKey, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("signing key is not RSA")
		}
		key = rsaKey
	}
	return &LocalSigner{key: key, kid: kid}, nil
}

// Sign produces an RS256 JWT over the given claims.
func (s *LocalSigner) Sign(_ context.Context, claims map[string]interface{}) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims(claims))
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Verify parses the token, checks the RS256 signature and registered time
// claims, and returns the claim set.
func (s *LocalSigner) Verify(_ context.Context, raw string) (map[string]interface{}, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &s.key.PublicKey, nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

// JWKS renders the public half of the signing key as a JWK set document for
// the jwks endpoint.
func (s *LocalSigner) JWKS() ([]byte, error) {
	key, err := jwk.New(s.key.Public())
	if err != nil {
		return nil, fmt.Errorf("building jwk: %w", err)
	}
	if err := key.Set(jwk.KeyIDKey, s.kid); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		return nil, err
	}
	if err := key.Set(jwk.KeyUsageKey, jwk.ForSignature); err != nil {
		return nil, err
	}
	set := jwk.NewSet()
	set.Add(key)
	return json.Marshal(set)
}
