package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/srs"
)

type deckConfigRow struct {
	DeckID    string  `db:"deck_id"`
	AgainDays float64 `db:"again_days"`
	HardDays  float64 `db:"hard_days"`
	GoodDays  float64 `db:"good_days"`
	EasyDays  float64 `db:"easy_days"`
	Variant   string  `db:"variant"`
}

// GetDeckConfig returns the scheduling override of a deck, or ErrNotFound
// when the deck uses the global defaults.
func (db *DB) GetDeckConfig(ctx context.Context, deckID string) (*srs.Config, error) {
	var row deckConfigRow
	err := db.conn.GetContext(ctx, &row, db.q(`
		SELECT deck_id, again_days, hard_days, good_days, easy_days, variant
		FROM deck_config WHERE deck_id = ?
	`), deckID)
	if err != nil {
		return nil, fmt.Errorf("failed to get config for deck %s: %w", deckID, notFound(err))
	}
	return &srs.Config{
		AgainDays: row.AgainDays,
		HardDays:  row.HardDays,
		GoodDays:  row.GoodDays,
		EasyDays:  row.EasyDays,
		Variant:   srs.Variant(row.Variant),
	}, nil
}

// SaveDeckConfig stores the scheduling override of a deck.
func (db *DB) SaveDeckConfig(ctx context.Context, deckID string, cfg srs.Config) error {
	if cfg.Variant == "" {
		cfg.Variant = srs.VariantSimple
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO deck_config (deck_id, again_days, hard_days, good_days, easy_days, variant)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (deck_id) DO UPDATE SET
			again_days = excluded.again_days,
			hard_days = excluded.hard_days,
			good_days = excluded.good_days,
			easy_days = excluded.easy_days,
			variant = excluded.variant
	`), deckID, cfg.AgainDays, cfg.HardDays, cfg.GoodDays, cfg.EasyDays, string(cfg.Variant))
	if err != nil {
		return fmt.Errorf("failed to save config for deck %s: %w", deckID, err)
	}
	return nil
}

// GetStudyState returns the saved positions of a deck. A deck that was
// never studied gets a zero state.
func (db *DB) GetStudyState(ctx context.Context, deckID string) (domain.StudyState, error) {
	var st domain.StudyState
	err := db.conn.GetContext(ctx, &st, db.q(`
		SELECT deck_id, cursor_pos, new_start_pos, review_start_pos, updated_at
		FROM study_state WHERE deck_id = ?
	`), deckID)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return domain.StudyState{DeckID: deckID}, nil
		}
		return st, fmt.Errorf("failed to get study state for deck %s: %w", deckID, err)
	}
	return st, nil
}

// SaveStudyState stores the positions of a deck. Last write wins.
func (db *DB) SaveStudyState(ctx context.Context, st domain.StudyState) error {
	if st.UpdatedAt.IsZero() {
		st.UpdatedAt = time.Now()
	}
	_, err := db.conn.ExecContext(ctx, db.q(`
		INSERT INTO study_state (deck_id, cursor_pos, new_start_pos, review_start_pos, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (deck_id) DO UPDATE SET
			cursor_pos = excluded.cursor_pos,
			new_start_pos = excluded.new_start_pos,
			review_start_pos = excluded.review_start_pos,
			updated_at = excluded.updated_at
	`), st.DeckID, st.Cursor, st.NewStartPos, st.ReviewStartPos, utc(st.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save study state for deck %s: %w", st.DeckID, err)
	}
	return nil
}

// RecordReview applies a rating to a card and logs it in one transaction.
// It returns the card's new version; see UpdateCard for ErrConflict.
func (db *DB) RecordReview(ctx context.Context, id string, patch CardPatch, version int64, entry *domain.ReviewLog) (int64, error) {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin review of card %s: %w", id, err)
	}
	defer tx.Rollback()

	next, err := updateCard(ctx, tx, id, patch, version)
	if err != nil {
		return 0, err
	}
	if err := appendReviewLog(ctx, tx, entry); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit review of card %s: %w", id, err)
	}
	return next, nil
}

// appendReviewLog records one rating. An empty ID is filled with a new UUID.
func appendReviewLog(ctx context.Context, ex execer, entry *domain.ReviewLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	_, err := ex.ExecContext(ctx, ex.Rebind(`
		INSERT INTO review_logs (id, deck_id, card_id, rating, rated_at, mode, prev_status,
			prev_interval, new_interval, prev_ease, new_ease, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		entry.ID,
		entry.DeckID,
		entry.CardID,
		entry.Rating,
		utc(entry.RatedAt),
		entry.Mode,
		entry.PrevStatus,
		entry.PrevInterval,
		entry.NewInterval,
		entry.PrevEase,
		entry.NewEase,
		entry.DurationMS,
	)
	if err != nil {
		return fmt.Errorf("failed to append review log for card %s: %w", entry.CardID, err)
	}
	return nil
}

// ListReviewLogs returns the review history of a card, oldest first.
func (db *DB) ListReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	var logs []domain.ReviewLog
	err := db.conn.SelectContext(ctx, &logs, db.q(`
		SELECT id, deck_id, card_id, rating, rated_at, mode, prev_status,
			prev_interval, new_interval, prev_ease, new_ease, duration_ms
		FROM review_logs WHERE card_id = ? ORDER BY rated_at
	`), cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list review logs for card %s: %w", cardID, err)
	}
	return logs, nil
}

// CountNewStudiedSince counts the distinct cards of a deck that were rated
// for the first time at or after since.
func (db *DB) CountNewStudiedSince(ctx context.Context, deckID string, since time.Time) (int, error) {
	var n int
	err := db.conn.GetContext(ctx, &n, db.q(`
		SELECT COUNT(DISTINCT card_id) FROM review_logs
		WHERE deck_id = ? AND prev_status = ? AND rated_at >= ?
	`), deckID, domain.StatusNew, utc(since))
	if err != nil {
		return 0, fmt.Errorf("failed to count new cards studied for deck %s: %w", deckID, err)
	}
	return n, nil
}
