package httpapp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"authd/internal/http/oauth"
)

type App struct {
	log    *slog.Logger
	server *http.Server
	port   int
}

// New creates new HTTP server app
func New(log *slog.Logger, oauthServer *oauth.Server, port int, timeout time.Duration) *App {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      oauthServer.Routes(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	return &App{
		log:    log,
		server: server,
		port:   port,
	}
}

// MustRun runs HTTP server and panic if any occurs
func (a *App) MustRun() {
	if err := a.Run(); err != nil && err != http.ErrServerClosed {
		panic(err)
	}
}

// Run HTTP server
func (a *App) Run() error {
	const op = "httpapp.Run"

	log := a.log.With(slog.String("op", op),
		slog.Int("port", a.port),
	)

	log.Info("starting HTTP server", slog.String("addr", a.server.Addr))

	if err := a.server.ListenAndServe(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Stop HTTP server
func (a *App) Stop() {
	const op = "httpapp.Stop"

	a.log.With(slog.String("op", op)).Info("stopping HTTP server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}
