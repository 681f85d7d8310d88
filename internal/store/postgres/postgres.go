// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/copperline/beacon/internal/model"
	"github.com/copperline/beacon/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// NewWithDB wraps an existing connection without running migrations.
// Used by tests with sqlmock.
func NewWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) CreateSite(ctx context.Context, site *model.Site) error {
	return queryCreateSite(ctx, s.db, site)
}

func (s *PostgresStore) GetSite(ctx context.Context, id string) (*model.Site, error) {
	return queryGetSite(ctx, s.db, id)
}

func (s *PostgresStore) ListSites(ctx context.Context) ([]*model.Site, error) {
	return queryListSites(ctx, s.db)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *model.Event) error {
	return queryAppendEvent(ctx, s.db, event)
}

func (s *PostgresStore) ListEvents(ctx context.Context, siteID string, since time.Time, limit int) ([]*model.Event, error) {
	if limit <= 0 {
		limit = store.DefaultEventLimit
	}
	return queryListEvents(ctx, s.db, siteID, since, limit)
}

func (s *PostgresStore) EvictEvents(ctx context.Context, cutoff time.Time) (int, error) {
	return queryEvictEvents(ctx, s.db, cutoff)
}

func (s *PostgresStore) AllEvents(ctx context.Context) ([]*model.Event, error) {
	return queryAllEvents(ctx, s.db)
}

func (s *PostgresStore) UpsertItem(ctx context.Context, item *model.Item) error {
	return queryUpsertItem(ctx, s.db, item)
}

func (s *PostgresStore) DeleteItem(ctx context.Context, siteID, itemID string) error {
	return queryDeleteItem(ctx, s.db, siteID, itemID)
}

func (s *PostgresStore) ListItems(ctx context.Context, siteID string, limit int) ([]*model.Item, error) {
	if limit <= 0 {
		limit = store.DefaultItemLimit
	}
	return queryListItems(ctx, s.db, siteID, limit)
}
