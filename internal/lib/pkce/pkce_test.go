package pkce_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/lib/pkce"
)

func TestGenerate_VerifierWithinLegalRange(t *testing.T) {
	for i := 0; i < 50; i++ {
		pair, err := pkce.Generate()
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(pair.Verifier), pkce.MinVerifierLength)
		assert.LessOrEqual(t, len(pair.Verifier), pkce.MaxVerifierLength)
		assert.Equal(t, pkce.MethodS256, pair.Method)
	}
}

func TestVerify_RoundTrip(t *testing.T) {
	pair, err := pkce.Generate()
	require.NoError(t, err)

	assert.True(t, pkce.Verify(pair.Verifier, pair.Challenge, "S256"))
}

func TestVerify_RejectsNonS256Methods(t *testing.T) {
	pair, err := pkce.Generate()
	require.NoError(t, err)

	for _, method := range []string{"plain", "s256", "S512", "", "none"} {
		assert.False(t, pkce.Verify(pair.Verifier, pair.Challenge, method), "method %q must be rejected", method)
	}
}

func TestVerify_RejectsIllegalVerifiers(t *testing.T) {
	challenge := pkce.Challenge("irrelevant")

	tests := []struct {
		name     string
		verifier string
	}{
		{"too short", strings.Repeat("a", 42)},
		{"too long", strings.Repeat("a", 129)},
		{"empty", ""},
		{"illegal characters", strings.Repeat("a", 42) + "!"},
		{"whitespace", strings.Repeat("a", 42) + " "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, pkce.Verify(tt.verifier, challenge, "S256"))
		})
	}
}

func TestVerify_RejectsWrongVerifier(t *testing.T) {
	pair, err := pkce.Generate()
	require.NoError(t, err)
	other, err := pkce.Generate()
	require.NoError(t, err)

	assert.False(t, pkce.Verify(other.Verifier, pair.Challenge, "S256"))
}

func TestChallenge_NoPadding(t *testing.T) {
	pair, err := pkce.Generate()
	require.NoError(t, err)

	assert.NotContains(t, pair.Challenge, "=")
	assert.NotContains(t, pair.Challenge, "+")
	assert.NotContains(t, pair.Challenge, "/")
}
