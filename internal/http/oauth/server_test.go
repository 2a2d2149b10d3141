package oauth_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/domain/models"
	"authd/internal/http/oauth"
	"authd/internal/lib/jwt"
	"authd/internal/lib/pkce"
	"authd/internal/services/authcode"
	"authd/internal/services/clients"
	"authd/internal/services/introspection"
	"authd/internal/services/replay"
	"authd/internal/services/token"
	"authd/internal/storage/memory"
)

const (
	testIssuer  = "https://auth.example"
	redirectURI = "https://app.example/cb"
)

type testServer struct {
	srv    *httptest.Server
	issuer *authcode.Issuer
	client *models.Client
	secret string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := slog.Default()
	kv := memory.New()
	signer, err := jwt.NewLocalSigner("", "1")
	require.NoError(t, err)

	registry := clients.New(log, memory.NewClients())
	client, secret, err := registry.Register(
		context.Background(),
		models.ClientConfidential,
		[]string{redirectURI},
		[]string{"read", "write", "openid"},
		gofakeit.UUID(),
	)
	require.NoError(t, err)

	guard := replay.New(log, kv, time.Minute)
	tokenSvc := token.New(log, registry, guard, kv, signer, testIssuer, 15*time.Minute, time.Hour, true)
	introSvc := introspection.New(log, kv, signer)

	server := oauth.New(log, tokenSvc, introSvc, testIssuer, signer)
	ts := httptest.NewServer(server.Routes())
	t.Cleanup(ts.Close)

	return &testServer{
		srv:    ts,
		issuer: authcode.New(log, registry, kv, 10*time.Minute),
		client: client,
		secret: secret,
	}
}

func (ts *testServer) createCode(t *testing.T, scope string, pair pkce.Pair) string {
	t.Helper()
	code, err := ts.issuer.CreateCode(context.Background(), authcode.CreateCodeRequest{
		ClientID:            ts.client.ID,
		RedirectURI:         redirectURI,
		Scope:               scope,
		CodeChallenge:       pair.Challenge,
		CodeChallengeMethod: pair.Method,
		UserID:              "u1",
	})
	require.NoError(t, err)
	return code
}

func (ts *testServer) post(t *testing.T, path string, form url.Values, basicAuth bool) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.srv.URL+path, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if basicAuth {
		req.SetBasicAuth(ts.client.ID, ts.secret)
	}

	resp, err := ts.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestTokenEndpoint_AuthorizationCodeGrant(t *testing.T) {
	ts := newTestServer(t)

	pair, err := pkce.Generate()
	require.NoError(t, err)
	code := ts.createCode(t, "read", pair)

	resp, body := ts.post(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {pair.Verifier},
		"redirect_uri":  {redirectURI},
	}, true)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, "read", body["scope"])
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.Greater(t, body["expires_in"].(float64), float64(0))
	assert.NotContains(t, body, "id_token")
}

func TestTokenEndpoint_RefreshGrantWithFormCredentials(t *testing.T) {
	ts := newTestServer(t)

	pair, err := pkce.Generate()
	require.NoError(t, err)
	code := ts.createCode(t, "openid read", pair)

	_, exchanged := ts.post(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {pair.Verifier},
		"redirect_uri":  {redirectURI},
	}, true)
	require.NotEmpty(t, exchanged["id_token"], "openid scope must yield an id token")

	resp, body := ts.post(t, "/oauth/token", url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {exchanged["refresh_token"].(string)},
		"client_id":     {ts.client.ID},
		"client_secret": {ts.secret},
	}, false)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "openid read", body["scope"])
	assert.NotEqual(t, exchanged["refresh_token"], body["refresh_token"], "rotation must issue a new token")
}

func TestTokenEndpoint_UnsupportedGrantType(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.post(t, "/oauth/token", url.Values{
		"grant_type": {"client_credentials"},
	}, true)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unsupported_grant_type", body["error"])
}

func TestTokenEndpoint_BadClientCredentials(t *testing.T) {
	ts := newTestServer(t)

	pair, err := pkce.Generate()
	require.NoError(t, err)
	code := ts.createCode(t, "read", pair)

	resp, body := ts.post(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {pair.Verifier},
		"redirect_uri":  {redirectURI},
		"client_id":     {ts.client.ID},
		"client_secret": {"wrong"},
	}, false)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "invalid_client", body["error"])
}

func TestTokenEndpoint_ReplayedCode(t *testing.T) {
	ts := newTestServer(t)

	pair, err := pkce.Generate()
	require.NoError(t, err)
	code := ts.createCode(t, "read", pair)

	form := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {pair.Verifier},
		"redirect_uri":  {redirectURI},
	}
	resp, _ := ts.post(t, "/oauth/token", form, true)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := ts.post(t, "/oauth/token", form, true)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_grant", body["error"])
}

func TestIntrospectEndpoint(t *testing.T) {
	ts := newTestServer(t)

	pair, err := pkce.Generate()
	require.NoError(t, err)
	code := ts.createCode(t, "read", pair)

	_, exchanged := ts.post(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {pair.Verifier},
		"redirect_uri":  {redirectURI},
	}, true)

	resp, body := ts.post(t, "/oauth/introspect", url.Values{
		"token": {exchanged["access_token"].(string)},
	}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["active"])
	assert.Equal(t, "read", body["scope"])
	assert.Equal(t, ts.client.ID, body["client_id"])

	resp, body = ts.post(t, "/oauth/introspect", url.Values{
		"token": {gofakeit.UUID()},
	}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["active"])
}

func TestRevokeEndpoint(t *testing.T) {
	ts := newTestServer(t)

	pair, err := pkce.Generate()
	require.NoError(t, err)
	code := ts.createCode(t, "read", pair)

	_, exchanged := ts.post(t, "/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {pair.Verifier},
		"redirect_uri":  {redirectURI},
	}, true)
	access := exchanged["access_token"].(string)

	resp, body := ts.post(t, "/oauth/revoke", url.Values{
		"token":           {access},
		"token_type_hint": {"access_token"},
	}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["revoked"])

	_, body = ts.post(t, "/oauth/introspect", url.Values{"token": {access}}, true)
	assert.Equal(t, false, body["active"])

	// Unknown tokens still revoke without error.
	resp, _ = ts.post(t, "/oauth/revoke", url.Values{"token": {gofakeit.UUID()}}, true)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetadataDocument(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/.well-known/oauth-authorization-server")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, testIssuer, doc["issuer"])
	assert.Equal(t, testIssuer+"/oauth/token", doc["token_endpoint"])
	assert.Equal(t, testIssuer+"/oauth/introspect", doc["introspection_endpoint"])
	assert.Equal(t, testIssuer+"/oauth/revoke", doc["revocation_endpoint"])
	assert.Equal(t, testIssuer+"/.well-known/jwks.json", doc["jwks_uri"])
	assert.Equal(t, []interface{}{"code"}, doc["response_types_supported"])
	assert.Equal(t, []interface{}{"authorization_code", "refresh_token"}, doc["grant_types_supported"])
	assert.Equal(t, []interface{}{"S256"}, doc["code_challenge_methods_supported"])
}

func TestJWKSEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := ts.srv.Client().Get(ts.srv.URL + "/.well-known/jwks.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Keys []map[string]interface{} `json:"keys"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Len(t, doc.Keys, 1)
	assert.Equal(t, "RSA", doc.Keys[0]["kty"])
}
