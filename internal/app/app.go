package app

import (
	"log/slog"

	"authd/internal/app/httpapp"
	"authd/internal/config"
	oauthhttp "authd/internal/http/oauth"
	"authd/internal/lib/jwt"
	"authd/internal/services/authcode"
	"authd/internal/services/clients"
	"authd/internal/services/introspection"
	"authd/internal/services/replay"
	"authd/internal/services/token"
	"authd/internal/storage"
	"authd/internal/storage/memory"
	"authd/internal/storage/postgres"
	"authd/internal/storage/protected"
	protectedvault "authd/internal/storage/protected/vault"
	redisstore "authd/internal/storage/redis"
)

// App wires the whole server: every service receives its collaborators here
// at startup, nothing is reached through process-wide state.
type App struct {
	HTTPSrv       *httpapp.App
	Registry      *clients.Registry
	CodeIssuer    *authcode.Issuer
	Tokens        *token.Service
	Introspection *introspection.Service
}

// New assembles the application from configuration.
func New(log *slog.Logger, cfg *config.Config) *App {
	clientStorage, err := postgres.New(cfg.StoragePath)
	if err != nil {
		panic(err)
	}

	var kv storage.KeyValue
	if cfg.Env == "local" {
		kv = memory.New()
	} else {
		store, err := redisstore.New(&cfg.Redis)
		if err != nil {
			panic(err)
		}
		kv = store
	}

	var signer jwt.Signer
	var jwks oauthhttp.JWKSProvider
	switch cfg.Signer.Mode {
	case "vault":
		vaultClient, err := protected.NewVaultClient()
		if err != nil {
			panic(err)
		}
		signer = protectedvault.NewSigner(vaultClient)
	default:
		local, err := jwt.NewLocalSigner(cfg.Signer.KeyPath, cfg.Signer.KeyID)
		if err != nil {
			panic(err)
		}
		signer = local
		jwks = local
	}

	registry := clients.New(log, clientStorage)
	codeIssuer := authcode.New(log, registry, kv, cfg.Tokens.AuthorizationCodeTTL)
	guard := replay.New(log, kv, cfg.Tokens.CodeRetention)
	tokenService := token.New(
		log,
		registry,
		guard,
		kv,
		signer,
		cfg.Issuer,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
		cfg.Tokens.RotationEnabled,
	)
	introspectionService := introspection.New(log, kv, signer)

	oauthServer := oauthhttp.New(log, tokenService, introspectionService, cfg.Issuer, jwks)
	httpApp := httpapp.New(log, oauthServer, cfg.HTTP.Port, cfg.HTTP.Timeout)

	return &App{
		HTTPSrv:       httpApp,
		Registry:      registry,
		CodeIssuer:    codeIssuer,
		Tokens:        tokenService,
		Introspection: introspectionService,
	}
}
