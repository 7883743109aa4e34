package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // Registers the postgres driver
	_ "modernc.org/sqlite" // Registers the sqlite driver

	"github.com/conorfennell/recall/internal/domain"
)

// Supported driver names.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConflict is returned when a card changed since it was read.
	ErrConflict = errors.New("storage: version conflict")
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sqlx.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(driver, dsn string) (*DB, error) {
	var schema string
	switch driver {
	case DriverSQLite, "":
		driver, schema = DriverSQLite, sqliteSchema
	case DriverPostgres:
		schema = postgresSchema
	default:
		return nil, fmt.Errorf("failed to open database: unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// A single connection serialises writers and keeps :memory: databases alive.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}

	// Execute the schema to create tables if they don't exist.
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Driver returns the name of the driver in use.
func (db *DB) Driver() string {
	return db.conn.DriverName()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) q(query string) string {
	return db.conn.Rebind(query)
}

// utc normalises timestamps so stored values compare consistently.
func utc(t time.Time) time.Time {
	return t.UTC()
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// CreateDeck inserts a deck. An empty ID is filled with a new UUID.
func (db *DB) CreateDeck(ctx context.Context, deck *domain.Deck) error {
	if deck.ID == "" {
		deck.ID = uuid.NewString()
	}
	if deck.CreatedAt.IsZero() {
		deck.CreatedAt = time.Now()
	}
	deck.CreatedAt = utc(deck.CreatedAt)

	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO decks (id, name, created_at) VALUES (?, ?, ?)
	`), deck.ID, deck.Name, deck.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert deck %s: %w", deck.Name, err)
	}
	return nil
}

// GetDeck retrieves a deck by its ID.
func (db *DB) GetDeck(ctx context.Context, id string) (domain.Deck, error) {
	var d domain.Deck
	err := db.conn.GetContext(ctx, &d, db.q(`SELECT id, name, created_at FROM decks WHERE id = ?`), id)
	if err != nil {
		return d, fmt.Errorf("failed to get deck %s: %w", id, notFound(err))
	}
	return d, nil
}

// FindDeckByName retrieves a deck by its unique name.
func (db *DB) FindDeckByName(ctx context.Context, name string) (domain.Deck, error) {
	var d domain.Deck
	err := db.conn.GetContext(ctx, &d, db.q(`SELECT id, name, created_at FROM decks WHERE name = ?`), name)
	if err != nil {
		return d, fmt.Errorf("failed to find deck %s: %w", name, notFound(err))
	}
	return d, nil
}

// ListDecks returns every deck ordered by name.
func (db *DB) ListDecks(ctx context.Context) ([]domain.Deck, error) {
	var decks []domain.Deck
	if err := db.conn.SelectContext(ctx, &decks, `SELECT id, name, created_at FROM decks ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list decks: %w", err)
	}
	return decks, nil
}

// DeleteDeck removes a deck together with its cards, sources and settings.
func (db *DB) DeleteDeck(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM decks WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete deck %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to delete deck %s: %w", id, ErrNotFound)
	}
	return nil
}
