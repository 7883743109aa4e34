package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/recall/internal/domain"
)

const cardColumns = `id, deck_id, question, answer, context, hash, status, interval_days,
	ease_factor, due_at, last_reviewed_at, repetitions, position, source_id, created_at, version`

// CardPatch holds the scheduling fields written by UpdateCard.
type CardPatch struct {
	Status         domain.Status
	IntervalDays   float64
	EaseFactor     float64
	DueAt          *time.Time
	LastReviewedAt *time.Time
	Repetitions    int
}

// PatchOf returns the scheduling fields of c as a patch.
func PatchOf(c domain.Card) CardPatch {
	return CardPatch{
		Status:         c.Status,
		IntervalDays:   c.IntervalDays,
		EaseFactor:     c.EaseFactor,
		DueAt:          c.DueAt,
		LastReviewedAt: c.LastReviewedAt,
		Repetitions:    c.Repetitions,
	}
}

// InsertCard inserts a new card at the end of its deck. An empty ID is
// filled with a new UUID; Position and Version are set on success.
func (db *DB) InsertCard(ctx context.Context, card *domain.Card) error {
	if card.ID == "" {
		card.ID = uuid.NewString()
	}
	if card.Status == "" {
		card.Status = domain.StatusNew
	}
	if card.EaseFactor == 0 {
		card.EaseFactor = domain.DefaultEaseFactor
	}
	if card.CreatedAt.IsZero() {
		card.CreatedAt = time.Now()
	}
	card.CreatedAt = utc(card.CreatedAt)

	err := db.conn.QueryRowxContext(ctx, db.q(`
		INSERT INTO cards (id, deck_id, question, answer, context, hash, status, interval_days,
			ease_factor, due_at, last_reviewed_at, repetitions, position, source_id, created_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM cards WHERE deck_id = ?),
			?, ?, 1)
		RETURNING position, version
	`),
		card.ID,
		card.DeckID,
		card.Question,
		card.Answer,
		card.Context,
		card.Hash,
		card.Status,
		card.IntervalDays,
		card.EaseFactor,
		utcPtr(card.DueAt),
		utcPtr(card.LastReviewedAt),
		card.Repetitions,
		card.DeckID,
		card.SourceID,
		card.CreatedAt,
	).Scan(&card.Position, &card.Version)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.Hash, err)
	}
	return nil
}

// GetCard retrieves a card by its ID.
func (db *DB) GetCard(ctx context.Context, id string) (domain.Card, error) {
	var c domain.Card
	err := db.conn.GetContext(ctx, &c, db.q(`SELECT `+cardColumns+` FROM cards WHERE id = ?`), id)
	if err != nil {
		return c, fmt.Errorf("failed to get card %s: %w", id, notFound(err))
	}
	return c, nil
}

// FindCardByHash retrieves a card of a deck by its content hash.
func (db *DB) FindCardByHash(ctx context.Context, deckID, hash string) (domain.Card, error) {
	var c domain.Card
	err := db.conn.GetContext(ctx, &c, db.q(`SELECT `+cardColumns+` FROM cards WHERE deck_id = ? AND hash = ?`), deckID, hash)
	if err != nil {
		return c, fmt.Errorf("failed to find card by hash %s: %w", hash, notFound(err))
	}
	return c, nil
}

// ListCards returns every card of a deck in creation order.
func (db *DB) ListCards(ctx context.Context, deckID string) ([]domain.Card, error) {
	var cards []domain.Card
	err := db.conn.SelectContext(ctx, &cards, db.q(`SELECT `+cardColumns+` FROM cards WHERE deck_id = ? ORDER BY position`), deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards for deck %s: %w", deckID, err)
	}
	return cards, nil
}

// GetCardsBySourceID retrieves all cards imported from a specific source.
func (db *DB) GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error) {
	var cards []domain.Card
	err := db.conn.SelectContext(ctx, &cards, db.q(`SELECT `+cardColumns+` FROM cards WHERE source_id = ? ORDER BY position`), sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	return cards, nil
}

// UpdateCard writes the scheduling fields of a card if its version is
// still version, and returns the new version. A card that changed in the
// meantime yields ErrConflict.
func (db *DB) UpdateCard(ctx context.Context, id string, patch CardPatch, version int64) (int64, error) {
	return updateCard(ctx, db.conn, id, patch, version)
}

// execer is satisfied by both *sqlx.DB and *sqlx.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	Rebind(query string) string
}

func updateCard(ctx context.Context, ex execer, id string, patch CardPatch, version int64) (int64, error) {
	res, err := ex.ExecContext(ctx, ex.Rebind(`
		UPDATE cards
		SET status = ?, interval_days = ?, ease_factor = ?, due_at = ?, last_reviewed_at = ?,
			repetitions = ?, version = version + 1
		WHERE id = ? AND version = ?
	`),
		patch.Status,
		patch.IntervalDays,
		patch.EaseFactor,
		utcPtr(patch.DueAt),
		utcPtr(patch.LastReviewedAt),
		patch.Repetitions,
		id,
		version,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to update card %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to update card %s: %w", id, err)
	}
	if n == 0 {
		var exists int
		err := ex.GetContext(ctx, &exists, ex.Rebind(`SELECT COUNT(*) FROM cards WHERE id = ?`), id)
		if err != nil {
			return 0, fmt.Errorf("failed to check card %s: %w", id, err)
		}
		if exists == 0 {
			return 0, fmt.Errorf("failed to update card %s: %w", id, ErrNotFound)
		}
		return 0, fmt.Errorf("failed to update card %s at version %d: %w", id, version, ErrConflict)
	}
	return version + 1, nil
}

// DeleteCard removes a card by its ID.
func (db *DB) DeleteCard(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, db.q(`DELETE FROM cards WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("failed to delete card %s: %w", id, ErrNotFound)
	}
	return nil
}
