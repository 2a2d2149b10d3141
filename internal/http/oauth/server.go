package oauth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"authd/internal/domain/oautherr"
	"authd/internal/lib/jwt/tokens"
	"authd/internal/services/introspection"
	"authd/internal/services/token"
)

// JWKSProvider exposes the public signing keys as a JWK set document.
// The Vault-backed signer keeps keys inside Vault and provides none.
type JWKSProvider interface {
	JWKS() ([]byte, error)
}

// Server maps the core services onto the OAuth 2.1 wire contracts:
// POST /oauth/token, /oauth/introspect, /oauth/revoke and the RFC 8414
// metadata document.
type Server struct {
	log           *slog.Logger
	tokens        *token.Service
	introspection *introspection.Service
	issuer        string
	jwks          JWKSProvider
}

// New returns a new instance of the HTTP server surface
func New(
	log *slog.Logger,
	tokenService *token.Service,
	introspectionService *introspection.Service,
	issuer string,
	jwks JWKSProvider,
) *Server {
	return &Server{
		log:           log,
		tokens:        tokenService,
		introspection: introspectionService,
		issuer:        issuer,
		jwks:          jwks,
	}
}

// Routes registers all handlers on a fresh mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", s.handleToken)
	mux.HandleFunc("POST /oauth/introspect", s.handleIntrospect)
	mux.HandleFunc("POST /oauth/revoke", s.handleRevoke)
	mux.HandleFunc("GET /.well-known/oauth-authorization-server", s.handleMetadata)
	mux.HandleFunc("GET /.well-known/jwks.json", s.handleJWKS)
	return mux
}

// tokenResponse is the token endpoint's success shape.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
	IDToken      string `json:"id_token,omitempty"`
}

type revocationResponse struct {
	Revoked bool `json:"revoked"`
}

// serverMetadata is the RFC 8414 authorization-server metadata document.
type serverMetadata struct {
	Issuer                        string   `json:"issuer"`
	TokenEndpoint                 string   `json:"token_endpoint"`
	IntrospectionEndpoint         string   `json:"introspection_endpoint"`
	RevocationEndpoint            string   `json:"revocation_endpoint"`
	JWKSURI                       string   `json:"jwks_uri,omitempty"`
	ResponseTypesSupported        []string `json:"response_types_supported"`
	GrantTypesSupported           []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported []string `json:"code_challenge_methods_supported"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	const op = "http.oauth.handleToken"
	logger := s.log.With(slog.String("op", op))

	if err := r.ParseForm(); err != nil {
		s.writeError(w, oautherr.ErrInvalidRequest)
		return
	}
	clientID, clientSecret := clientCredentials(r)

	var (
		set *tokens.TokenSet
		err error
	)
	grantType := r.PostFormValue("grant_type")
	switch grantType {
	case "authorization_code":
		set, err = s.tokens.ExchangeCode(r.Context(), token.ExchangeRequest{
			Code:         r.PostFormValue("code"),
			CodeVerifier: r.PostFormValue("code_verifier"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURI:  r.PostFormValue("redirect_uri"),
		})
	case "refresh_token":
		set, err = s.tokens.Refresh(r.Context(), token.RefreshRequest{
			RefreshToken: r.PostFormValue("refresh_token"),
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Scope:        r.PostFormValue("scope"),
		})
	default:
		s.writeError(w, oautherr.ErrUnsupportedGrantType)
		return
	}
	if err != nil {
		logger.Info("token request rejected", slog.String("grant_type", grantType))
		s.writeError(w, err)
		return
	}
	resp := tokenResponse{
		AccessToken: set.Access.Token,
		TokenType:   "Bearer",
		ExpiresIn:   set.ExpiresIn(time.Now()),
		Scope:       set.Scope,
	}
	if set.Refresh != nil {
		resp.RefreshToken = set.Refresh.Token
	}
	if set.ID != nil {
		resp.IDToken = set.ID.Token
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, oautherr.ErrInvalidRequest)
		return
	}
	result, err := s.introspection.Introspect(r.Context(), r.PostFormValue("token"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.writeError(w, oautherr.ErrInvalidRequest)
		return
	}
	err := s.introspection.Revoke(r.Context(), r.PostFormValue("token"), r.PostFormValue("token_type_hint"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Success regardless of whether the token existed (RFC 7009).
	writeJSON(w, http.StatusOK, revocationResponse{Revoked: true})
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	doc := serverMetadata{
		Issuer:                        s.issuer,
		TokenEndpoint:                 s.issuer + "/oauth/token",
		IntrospectionEndpoint:         s.issuer + "/oauth/introspect",
		RevocationEndpoint:            s.issuer + "/oauth/revoke",
		ResponseTypesSupported:        []string{"code"},
		GrantTypesSupported:           []string{"authorization_code", "refresh_token"},
		CodeChallengeMethodsSupported: []string{"S256"},
	}
	if s.jwks != nil {
		doc.JWKSURI = s.issuer + "/.well-known/jwks.json"
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleJWKS(w http.ResponseWriter, r *http.Request) {
	if s.jwks == nil {
		http.NotFound(w, r)
		return
	}
	raw, err := s.jwks.JWKS()
	if err != nil {
		s.writeError(w, oautherr.SigningUnavailable(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

// clientCredentials prefers HTTP Basic auth and falls back to form fields.
func clientCredentials(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

// writeError maps the error taxonomy onto status codes: invalid_client is
// 401, other protocol errors 400, store faults 503 (retryable), signer
// faults 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	if oe, ok := oautherr.AsError(err); ok {
		status := http.StatusBadRequest
		if oe.Code == oautherr.CodeInvalidClient {
			status = http.StatusUnauthorized
		}
		writeJSON(w, status, oe)
		return
	}
	if errors.Is(err, oautherr.ErrStoreUnavailable) {
		writeJSON(w, http.StatusServiceUnavailable, &oautherr.Error{Code: oautherr.CodeServerError})
		return
	}
	s.log.Error("internal error on oauth endpoint", slog.String("error", err.Error()))
	writeJSON(w, http.StatusInternalServerError, &oautherr.Error{Code: oautherr.CodeServerError})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
