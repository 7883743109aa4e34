// Package study runs study sessions: it builds a working set with the
// queue package, rates cards with the srs package and persists the
// outcome through a Store.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/queue"
	"github.com/conorfennell/recall/internal/srs"
	"github.com/conorfennell/recall/internal/storage"
)

var (
	// ErrRecordFailed wraps every storage failure while recording a rating.
	ErrRecordFailed = errors.New("couldn't record your answer")
	// ErrNoCurrentCard is returned when a finished session is rated.
	ErrNoCurrentCard = errors.New("study: session has no current card")
)

// Store is the persistence used by a Service.
type Store interface {
	GetDeck(ctx context.Context, id string) (domain.Deck, error)
	ListCards(ctx context.Context, deckID string) ([]domain.Card, error)
	GetCard(ctx context.Context, id string) (domain.Card, error)
	UpdateCard(ctx context.Context, id string, patch storage.CardPatch, version int64) (int64, error)
	RecordReview(ctx context.Context, id string, patch storage.CardPatch, version int64, entry *domain.ReviewLog) (int64, error)
	GetDeckConfig(ctx context.Context, deckID string) (*srs.Config, error)
	SaveDeckConfig(ctx context.Context, deckID string, cfg srs.Config) error
	GetStudyState(ctx context.Context, deckID string) (domain.StudyState, error)
	SaveStudyState(ctx context.Context, st domain.StudyState) error
	CountNewStudiedSince(ctx context.Context, deckID string, since time.Time) (int, error)
	ListReviewLogs(ctx context.Context, cardID string) ([]domain.ReviewLog, error)
}

// Options configures a Service.
type Options struct {
	// Defaults is the scheduling config of decks without an override.
	// The zero value means srs.DefaultConfig.
	Defaults srs.Config
	// Queue supplies batch sizes for sessions that leave them zero.
	Queue queue.Options
	// DayStartHour is the local hour a study day begins, used for the
	// daily new-card limit.
	DayStartHour int
	Clock        func() time.Time
	Location     *time.Location
}

// Service is the study session controller.
type Service struct {
	store        Store
	logger       *slog.Logger
	defaults     srs.Config
	queue        queue.Options
	dayStartHour int
	now          func() time.Time
	loc          *time.Location
}

// NewService returns a Service backed by store.
func NewService(store Store, logger *slog.Logger, opts Options) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:        store,
		logger:       logger,
		defaults:     opts.Defaults,
		queue:        opts.Queue,
		dayStartHour: opts.DayStartHour,
		now:          opts.Clock,
		loc:          opts.Location,
	}
	if s.defaults == (srs.Config{}) {
		s.defaults = *srs.DefaultConfig()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	return s
}

func (s *Service) withDefaults(opts queue.Options) queue.Options {
	pick := func(v, def int) int {
		if v > 0 {
			return v
		}
		return def
	}
	opts.NewCap = pick(opts.NewCap, s.queue.NewCap)
	opts.NewBatch = pick(opts.NewBatch, s.queue.NewBatch)
	opts.ReviewBatch = pick(opts.ReviewBatch, s.queue.ReviewBatch)
	opts.BatchSize = pick(opts.BatchSize, s.queue.BatchSize)
	if opts.Rand == nil {
		opts.Rand = s.queue.Rand
	}
	if opts.Location == nil {
		opts.Location = s.loc
	}
	return opts
}

// Start builds the working set of a deck and opens a session over it.
func (s *Service) Start(ctx context.Context, deckID string, opts queue.Options) (*Session, error) {
	mode, err := queue.ParseMode(string(opts.Mode))
	if err != nil {
		return nil, err
	}
	opts = s.withDefaults(opts)
	opts.Mode = mode

	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return nil, err
	}
	cfg, err := s.DeckConfig(ctx, deckID)
	if err != nil {
		return nil, err
	}
	cards, err := s.store.ListCards(ctx, deckID)
	if err != nil {
		return nil, err
	}
	state, err := s.store.GetStudyState(ctx, deckID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch mode {
	case queue.ModeSRS:
		since := srs.DayStart(now.In(s.loc), s.dayStartHour)
		n, err := s.store.CountNewStudiedSince(ctx, deckID, since)
		if err != nil {
			return nil, err
		}
		opts.NewStudiedToday = n
	case queue.ModeByDate:
		if opts.Date.IsZero() {
			opts.Date = now.In(s.loc)
		}
	}

	set, err := queue.Select(cards, opts, state, now)
	if err != nil {
		return nil, err
	}

	active := 0
	for _, c := range cards {
		if c.Status != domain.StatusSuspended {
			active++
		}
	}

	sess := &Session{
		ID:        uuid.NewString(),
		DeckID:    deckID,
		Mode:      mode,
		StartedAt: now,
		now:       s.now,
		cfg:       cfg,
		state:     state,
		deck:      cards,
		deckSize:  active,
	}
	if mode == queue.ModeCramming {
		sess.cram = queue.NewCram(set, opts, now)
	} else {
		sess.walk = queue.NewSession(set)
	}
	s.logger.Info("Study session started",
		"session_id", sess.ID,
		"deck_id", deckID,
		"mode", mode,
		"cards", len(set),
		"new_studied_today", opts.NewStudiedToday,
	)
	return sess, nil
}

// Rate applies rating to the current card of sess, records it and moves
// on. When recording fails the error wraps ErrRecordFailed and the
// session stays on the same card, reloaded if another writer changed it.
// A card that was deleted or suspended meanwhile is skipped.
//
// Cramming sessions only track mastery: Again counts as missed, any other
// rating as got right, and nothing is recorded.
func (s *Service) Rate(ctx context.Context, sess *Session, rating srs.Rating, duration time.Duration) (domain.Card, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	card, ok := sess.current()
	if !ok {
		return domain.Card{}, ErrNoCurrentCard
	}
	if sess.cram != nil {
		return s.rateCram(sess, card, rating)
	}

	now := s.now()
	res, err := srs.Apply(srs.StateOf(card), rating, &sess.cfg, now)
	if err != nil {
		return domain.Card{}, err
	}
	updated := card
	res.ApplyTo(&updated)

	entry := domain.ReviewLog{
		DeckID:       sess.DeckID,
		CardID:       card.ID,
		Rating:       int(rating),
		RatedAt:      now,
		Mode:         string(sess.Mode),
		PrevStatus:   card.Status,
		PrevInterval: card.IntervalDays,
		NewInterval:  res.IntervalDays,
		PrevEase:     card.EaseFactor,
		NewEase:      res.EaseFactor,
		DurationMS:   duration.Milliseconds(),
	}
	version, err := s.store.RecordReview(ctx, card.ID, storage.PatchOf(updated), card.Version, &entry)
	if err != nil {
		s.logger.Error("Failed to record rating", "session_id", sess.ID, "card_id", card.ID, "error", err)
		s.resync(ctx, sess, card.ID, err)
		return domain.Card{}, fmt.Errorf("%w: %w", ErrRecordFailed, err)
	}
	updated.Version = version

	requeued := sess.walk.Advance(updated, rating == srs.Again)
	s.logger.Debug("Card rated",
		"session_id", sess.ID,
		"card_id", card.ID,
		"rating", rating,
		"interval_days", updated.IntervalDays,
		"requeued", requeued,
	)
	return updated, nil
}

// resync brings the current card of sess up to date after a failed write
// so the next rating can succeed.
func (s *Service) resync(ctx context.Context, sess *Session, cardID string, cause error) {
	switch {
	case errors.Is(cause, storage.ErrConflict):
		fresh, err := s.store.GetCard(ctx, cardID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			sess.skip()
		case err != nil:
			s.logger.Warn("Failed to reload card after conflict", "card_id", cardID, "error", err)
		case fresh.Status == domain.StatusSuspended:
			sess.skip()
		default:
			sess.replace(fresh)
		}
	case errors.Is(cause, storage.ErrNotFound):
		sess.skip()
	}
}

func (s *Service) rateCram(sess *Session, card domain.Card, rating srs.Rating) (domain.Card, error) {
	if !rating.IsValid() {
		return domain.Card{}, fmt.Errorf("%w: %d", srs.ErrInvalidRating, int(rating))
	}
	answer := queue.GotIt
	if rating == srs.Again {
		answer = queue.Missed
	}
	sess.cram.Rate(answer)
	s.logger.Debug("Card crammed",
		"session_id", sess.ID,
		"card_id", card.ID,
		"answer", answer,
		"round", sess.cram.Round(),
	)
	return card, nil
}

// Skip moves sess past its current card without rating it.
func (s *Service) Skip(sess *Session) (domain.Card, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	card, ok := sess.current()
	if !ok {
		return domain.Card{}, ErrNoCurrentCard
	}
	sess.skip()
	s.logger.Debug("Card skipped", "session_id", sess.ID, "card_id", card.ID)
	return card, nil
}

// End closes sess and saves the deck positions it advanced. Ending a
// session twice is a no-op.
func (s *Service) End(ctx context.Context, sess *Session) (domain.StudyState, error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.ended {
		return sess.state, nil
	}

	state := sess.state
	now := s.now()
	switch sess.Mode {
	case queue.ModeOrdered:
		state = queue.AdvanceCursor(state, len(sess.walk.Presented()), sess.deckSize, now)
	case queue.ModeSequential:
		state = queue.AdvanceSequential(state, sess.walk.Presented(), sess.deck, now)
	case queue.ModeCramming:
		sess.ended = true
		s.logger.Info("Cramming session ended",
			"session_id", sess.ID,
			"deck_id", sess.DeckID,
			"rounds", sess.cram.Round(),
			"mastery", sess.cram.Mastery(),
			"all_mastered", sess.cram.AllMastered(),
		)
		return state, nil
	default:
		sess.ended = true
		return state, nil
	}

	if err := s.store.SaveStudyState(ctx, state); err != nil {
		return sess.state, err
	}
	sess.state = state
	sess.ended = true
	s.logger.Info("Study session ended",
		"session_id", sess.ID,
		"deck_id", sess.DeckID,
		"studied", sess.walk.Studied(),
		"cursor", state.Cursor,
		"new_start_pos", state.NewStartPos,
		"review_start_pos", state.ReviewStartPos,
	)
	return state, nil
}

// Choice is what one answer button would do to a card.
type Choice struct {
	Rating       srs.Rating `json:"rating"`
	Label        string     `json:"label"`
	IntervalDays float64    `json:"interval_days"`
	DueAt        time.Time  `json:"due_at"`
}

// Preview returns the outcome of every rating for a card, Again first.
func (s *Service) Preview(ctx context.Context, cardID string) ([]Choice, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return nil, err
	}
	cfg, err := s.DeckConfig(ctx, card.DeckID)
	if err != nil {
		return nil, err
	}
	results, err := srs.Preview(srs.StateOf(card), &cfg, s.now())
	if err != nil {
		return nil, err
	}

	out := make([]Choice, 0, len(srs.Ratings))
	for _, r := range srs.Ratings {
		res := results[r]
		out = append(out, Choice{
			Rating:       r,
			Label:        srs.FormatInterval(res.IntervalDays),
			IntervalDays: res.IntervalDays,
			DueAt:        res.DueAt,
		})
	}
	return out, nil
}

// History returns the review log of a card, oldest first.
func (s *Service) History(ctx context.Context, cardID string) ([]domain.ReviewLog, error) {
	if _, err := s.store.GetCard(ctx, cardID); err != nil {
		return nil, err
	}
	logs, err := s.store.ListReviewLogs(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []domain.ReviewLog{}
	}
	return logs, nil
}

// Suspend takes a card out of every queue.
func (s *Service) Suspend(ctx context.Context, cardID string) (domain.Card, error) {
	return s.setStatus(ctx, cardID, func(domain.Card) domain.Status {
		return domain.StatusSuspended
	})
}

// Unsuspend puts a suspended card back: as new when it was never
// reviewed, otherwise as a review card keeping its due date.
func (s *Service) Unsuspend(ctx context.Context, cardID string) (domain.Card, error) {
	return s.setStatus(ctx, cardID, func(c domain.Card) domain.Status {
		if c.Status != domain.StatusSuspended {
			return c.Status
		}
		if c.LastReviewedAt == nil {
			return domain.StatusNew
		}
		return domain.StatusReview
	})
}

func (s *Service) setStatus(ctx context.Context, cardID string, next func(domain.Card) domain.Status) (domain.Card, error) {
	card, err := s.store.GetCard(ctx, cardID)
	if err != nil {
		return card, err
	}
	status := next(card)
	if status == card.Status {
		return card, nil
	}
	card.Status = status
	version, err := s.store.UpdateCard(ctx, card.ID, storage.PatchOf(card), card.Version)
	if err != nil {
		return domain.Card{}, err
	}
	card.Version = version
	s.logger.Info("Card status changed", "card_id", card.ID, "status", status)
	return card, nil
}

// DeckConfig returns the scheduling config of a deck, falling back to the
// service defaults. Stored values out of range are clamped with a warning.
func (s *Service) DeckConfig(ctx context.Context, deckID string) (srs.Config, error) {
	stored, err := s.store.GetDeckConfig(ctx, deckID)
	if errors.Is(err, storage.ErrNotFound) {
		return s.defaults, nil
	}
	if err != nil {
		return srs.Config{}, err
	}
	return s.clamp(deckID, *stored), nil
}

// SaveDeckConfig stores a deck override after clamping it into range, and
// returns what was stored.
func (s *Service) SaveDeckConfig(ctx context.Context, deckID string, cfg srs.Config) (srs.Config, error) {
	if _, err := s.store.GetDeck(ctx, deckID); err != nil {
		return srs.Config{}, err
	}
	cfg = s.clamp(deckID, cfg)
	if err := s.store.SaveDeckConfig(ctx, deckID, cfg); err != nil {
		return srs.Config{}, err
	}
	return cfg, nil
}

func (s *Service) clamp(deckID string, cfg srs.Config) srs.Config {
	if err := cfg.Validate(); err != nil {
		s.logger.Warn("Deck config out of range, clamping", "deck_id", deckID, "error", err)
	}
	return cfg.Clamp()
}
