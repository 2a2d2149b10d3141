package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"authd/internal/storage/protected"
)

const keyName = "jwt_keys"

// Signer signs and verifies tokens with Vault's Transit engine, so the
// private key never leaves Vault. Implements the core's Signer contract.
type Signer struct {
	v *protected.Vault
}

// NewSigner creates a Transit-backed Signer.
func NewSigner(client *protected.Vault) *Signer {
	return &Signer{v: client}
}

// LatestKeyVersion gets the latest key version with proper error handling
func (s *Signer) LatestKeyVersion(ctx context.Context) (int, error) {
	secret, err := s.v.Client.Read(ctx, "transit/keys/"+keyName)
	if err != nil {
		return 0, fmt.Errorf("failed to read key: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return 0, fmt.Errorf("empty response from vault")
	}
	versionRaw, ok := secret.Data["latest_version"]
	if !ok {
		return 0, fmt.Errorf("latest_version field missing")
	}
	versionNum, ok := versionRaw.(json.Number)
	if !ok {
		return 0, fmt.Errorf("invalid version format")
	}
	version, err := versionNum.Int64()
	if err != nil {
		return 0, fmt.Errorf("version conversion failed: %w", err)
	}
	return int(version), nil
}

// Sign produces a JWT whose signature is computed by the Transit engine.
func (s *Signer) Sign(ctx context.Context, claims map[string]interface{}) (string, error) {
	keyVersion, err := s.LatestKeyVersion(ctx)
	if err != nil {
		return "", err
	}

	header := map[string]interface{}{
		"alg": "RS256",
		"typ": "JWT",
		"kid": fmt.Sprintf("%d", keyVersion),
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return "", fmt.Errorf("header marshaling failed: %w", err)
	}
	claimsJSON, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("claims marshaling failed: %w", err)
	}

	headerBase64 := base64.RawURLEncoding.EncodeToString(headerJSON)
	claimsBase64 := base64.RawURLEncoding.EncodeToString(claimsJSON)
	signingInput := headerBase64 + "." + claimsBase64

	signingData := map[string]interface{}{
		"input":       base64.StdEncoding.EncodeToString([]byte(signingInput)),
		"key_version": keyVersion,
	}
	secret, err := s.v.Client.Write(ctx, "transit/sign/"+keyName, signingData)
	if err != nil {
		return "", fmt.Errorf("vault signing failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("empty response from vault")
	}
	signatureRaw, ok := secret.Data["signature"]
	if !ok {
		return "", fmt.Errorf("signature missing in response")
	}
	signature, ok := signatureRaw.(string)
	if !ok {
		return "", fmt.Errorf("invalid signature format")
	}

	// Vault prefixes signatures with "vault:v<version>:".
	parts := strings.SplitN(signature, ":", 3)
	if len(parts) != 3 {
		return "", fmt.Errorf("unexpected signature format")
	}
	return signingInput + "." + parts[2], nil
}

// Verify checks the signature through Transit and the registered time claims
// locally, returning the claim set.
func (s *Signer) Verify(ctx context.Context, token string) (map[string]interface{}, error) {
	segments := strings.Split(token, ".")
	if len(segments) != 3 {
		return nil, fmt.Errorf("malformed token")
	}
	headerJSON, err := base64.RawURLEncoding.DecodeString(segments[0])
	if err != nil {
		return nil, fmt.Errorf("malformed header: %w", err)
	}
	var header struct {
		Kid string `json:"kid"`
	}
	if err = json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("malformed header: %w", err)
	}
	if header.Kid == "" {
		header.Kid = "1"
	}

	signingInput := segments[0] + "." + segments[1]
	verifyData := map[string]interface{}{
		"input":     base64.StdEncoding.EncodeToString([]byte(signingInput)),
		"signature": fmt.Sprintf("vault:v%s:%s", header.Kid, segments[2]),
	}
	secret, err := s.v.Client.Write(ctx, "transit/verify/"+keyName, verifyData)
	if err != nil {
		return nil, fmt.Errorf("vault verification failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("empty response from vault")
	}
	valid, ok := secret.Data["valid"].(bool)
	if !ok || !valid {
		return nil, fmt.Errorf("invalid signature")
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(segments[1])
	if err != nil {
		return nil, fmt.Errorf("malformed claims: %w", err)
	}
	var claims map[string]interface{}
	if err = json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, fmt.Errorf("malformed claims: %w", err)
	}
	if expRaw, ok := claims["exp"]; ok {
		exp, ok := expRaw.(float64)
		if !ok || time.Now().Unix() > int64(exp) {
			return nil, fmt.Errorf("token expired")
		}
	}
	return claims, nil
}

// RotateKey rotates the key pair with error handling
func (s *Signer) RotateKey(ctx context.Context) error {
	_, err := s.v.Client.Write(ctx, "transit/keys/"+keyName+"/rotate", nil)
	if err != nil {
		return fmt.Errorf("key rotation failed: %w", err)
	}
	return nil
}
