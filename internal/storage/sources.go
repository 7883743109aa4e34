package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/recall/internal/domain"
)

// InsertSource inserts a new source for a deck and returns its ID.
func (db *DB) InsertSource(ctx context.Context, deckID, path string, typ domain.SourceType) (int64, error) {
	var id int64
	err := db.conn.QueryRowxContext(ctx, db.q(`
		INSERT INTO sources (deck_id, path, type)
		VALUES (?, ?, ?)
		RETURNING id
	`), deckID, path, typ).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source from the database by its path.
func (db *DB) FindSourceByPath(ctx context.Context, path string) (domain.Source, error) {
	var s domain.Source
	err := db.conn.GetContext(ctx, &s, db.q(`
		SELECT id, deck_id, path, type, last_scanned
		FROM sources WHERE path = ?
	`), path)
	if err != nil {
		return s, fmt.Errorf("failed to find source by path %s: %w", path, notFound(err))
	}
	return s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources(ctx context.Context) ([]domain.Source, error) {
	var sources []domain.Source
	err := db.conn.SelectContext(ctx, &sources, `
		SELECT id, deck_id, path, type, last_scanned
		FROM sources ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	return sources, nil
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := db.conn.ExecContext(ctx, db.q(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`), utc(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source and the cards imported from it.
func (db *DB) DeleteSource(ctx context.Context, sourceID int64) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin deleting source ID %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM cards WHERE source_id = ?`), sourceID); err != nil {
		return fmt.Errorf("failed to delete cards of source ID %d: %w", sourceID, err)
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM sources WHERE id = ?`), sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to delete source ID %d: %w", sourceID, ErrNotFound)
	}
	return tx.Commit()
}
