package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"authd/internal/domain/models"
	"authd/internal/storage"
)

// Private config for using inside postgres storage and open connections
type config struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
}

// Simple helper function to read an environment or return a default value
func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

// Init initialize config instance
func (c *config) Init() {
	c.Host = getEnv("DB_HOST", "localhost")
	c.Port = getEnv("DB_PORT", "5432")
	c.Username = getEnv("DB_USER", "postgres")
	c.Password = getEnv("DB_PASS", "postgres")
	c.Database = getEnv("DB_NAME", "authd_db")
}

// Storage holds the client registry's durable records. Registered clients
// change rarely and outlive every token, so they live in postgres rather
// than the key-value store.
type Storage struct {
	conf   config
	dbPool *pgxpool.Pool
}

// New initialize an instance of storage db context
func New(connString string) (*Storage, error) {
	conf := config{}
	conf.Init()
	if connString == "" {
		connString = getConnString(conf)
	}
	dbPool, err := pgxpool.New(context.Background(), connString)
	if err != nil {
		return nil, errors.New("error connecting to database: " + err.Error())
	}
	return &Storage{conf: conf, dbPool: dbPool}, nil
}

// CloseStorage ends database pool connection
func (s *Storage) CloseStorage() {
	s.dbPool.Close()
}

// getConnString Constructing database connection string
func getConnString(conf config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		conf.Username, conf.Password, conf.Host, conf.Port, conf.Database)
}

// SaveClient registers a client in data table 'clients'
func (s *Storage) SaveClient(ctx context.Context, client *models.Client) error {
	_, err := s.dbPool.Exec(
		ctx,
		`INSERT INTO clients(id, secret_hash, type, redirect_uris, allowed_scopes, owner_id, created_at, updated_at)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8)`,
		client.ID,
		client.SecretHash,
		string(client.Type),
		client.RedirectURIs,
		client.AllowedScopes,
		client.OwnerID,
		client.CreatedAt,
		client.UpdatedAt,
	)
	if err != nil {
		var pgxError *pgconn.PgError
		if errors.As(err, &pgxError) && pgxError.Code == "23505" {
			return storage.ErrClientExists
		}
		return fmt.Errorf("failed to save client: %w", err)
	}
	return nil
}

// Client gets a registered client from data table 'clients'
func (s *Storage) Client(ctx context.Context, clientID string) (*models.Client, error) {
	var client models.Client
	var clientType string
	err := s.dbPool.QueryRow(
		ctx,
		`SELECT id, secret_hash, type, redirect_uris, allowed_scopes, owner_id, created_at, updated_at
		 FROM clients WHERE id = $1`,
		clientID,
	).Scan(
		&client.ID,
		&client.SecretHash,
		&clientType,
		&client.RedirectURIs,
		&client.AllowedScopes,
		&client.OwnerID,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrClientNotFound
		}
		return nil, fmt.Errorf("failed to query client: %w", err)
	}
	client.Type = models.ClientType(clientType)
	return &client, nil
}

// UpdateClient replaces a registered client's mutable fields
func (s *Storage) UpdateClient(ctx context.Context, client *models.Client) error {
	tag, err := s.dbPool.Exec(
		ctx,
		`UPDATE clients
		 SET secret_hash = $2, type = $3, redirect_uris = $4, allowed_scopes = $5, updated_at = $6
		 WHERE id = $1`,
		client.ID,
		client.SecretHash,
		string(client.Type),
		client.RedirectURIs,
		client.AllowedScopes,
		client.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update client: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrClientNotFound
	}
	return nil
}

// DeleteClient removes a registered client
func (s *Storage) DeleteClient(ctx context.Context, clientID string) error {
	_, err := s.dbPool.Exec(ctx, `DELETE FROM clients WHERE id = $1`, clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return nil
}
