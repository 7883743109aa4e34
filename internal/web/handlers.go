package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/queue"
	"github.com/conorfennell/recall/internal/srs"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/study"
)

const (
	msgInternal     = "internal error"
	msgRecordFailed = "couldn't record your answer"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("Health check failed", "error", err)
		respondError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListDecks(w http.ResponseWriter, r *http.Request) {
	decks, err := s.store.ListDecks(r.Context())
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	if decks == nil {
		decks = []domain.Deck{}
	}
	respondJSON(w, http.StatusOK, decks)
}

type createDeckRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

func (s *Server) handleCreateDeck(w http.ResponseWriter, r *http.Request) {
	var req createDeckRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	req.Name = strings.TrimSpace(req.Name)

	if _, err := s.store.FindDeckByName(r.Context(), req.Name); err == nil {
		s.handleError(w, r, fmt.Errorf("deck %q %w", req.Name, errDuplicate), msgInternal)
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		s.handleError(w, r, err, msgInternal)
		return
	}

	deck := domain.Deck{Name: req.Name}
	if err := s.store.CreateDeck(r.Context(), &deck); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusCreated, deck)
}

func (s *Server) handleGetDeckConfig(w http.ResponseWriter, r *http.Request) {
	deckID := mux.Vars(r)["deck"]
	if _, err := s.store.GetDeck(r.Context(), deckID); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	cfg, err := s.study.DeckConfig(r.Context(), deckID)
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

// handlePutDeckConfig stores a deck override. Offsets out of range are
// clamped rather than rejected.
func (s *Server) handlePutDeckConfig(w http.ResponseWriter, r *http.Request) {
	var cfg srs.Config
	if err := decode(r, &cfg); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	saved, err := s.study.SaveDeckConfig(r.Context(), mux.Vars(r)["deck"], cfg)
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

type startSessionRequest struct {
	Mode        string `json:"mode"`
	NewCap      int    `json:"new_cap" validate:"min=0"`
	NewBatch    int    `json:"new_batch" validate:"min=0"`
	ReviewBatch int    `json:"review_batch" validate:"min=0"`
	BatchSize   int    `json:"batch_size" validate:"min=0"`
	// Date is the creation day studied in by_date mode.
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`

	Filter           string  `json:"filter" validate:"omitempty,oneof=all weak due_soon"`
	MaxEase          float64 `json:"max_ease" validate:"min=0"`
	WithinDays       int     `json:"within_days" validate:"min=0"`
	Shuffle          bool    `json:"shuffle"`
	TimeLimitMinutes int     `json:"time_limit_minutes" validate:"min=0"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if r.ContentLength != 0 {
		if err := s.decodeValid(r, &req); err != nil {
			s.handleError(w, r, err, msgInternal)
			return
		}
	}

	mode, err := queue.ParseMode(req.Mode)
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	opts := queue.Options{
		Mode:        mode,
		NewCap:      req.NewCap,
		NewBatch:    req.NewBatch,
		ReviewBatch: req.ReviewBatch,
		BatchSize:   req.BatchSize,
		Filter:      queue.CramFilter(req.Filter),
		MaxEase:     req.MaxEase,
		WithinDays:  req.WithinDays,
		Shuffle:     req.Shuffle,
		TimeLimit:   time.Duration(req.TimeLimitMinutes) * time.Minute,
	}
	if req.Date != "" {
		// Already checked by the datetime tag. Only the calendar day is
		// used, in the service's location.
		opts.Date, _ = time.Parse(time.DateOnly, req.Date)
	}

	sess, err := s.study.Start(r.Context(), mux.Vars(r)["deck"], opts)
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	s.putSession(sess)
	respondJSON(w, http.StatusCreated, sess.Progress())
}

func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*study.Session, bool) {
	id := mux.Vars(r)["id"]
	sess, ok := s.session(id)
	if !ok {
		s.handleError(w, r, fmt.Errorf("%w: %s", errNoSession, id), msgInternal)
	}
	return sess, ok
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sess.Progress())
}

type rateRequest struct {
	// Rating is a name ("good") or an ordinal (3), quoted or not.
	Rating     json.RawMessage `json:"rating" validate:"required"`
	DurationMS int64           `json:"duration_ms" validate:"min=0"`
}

type rateResponse struct {
	Card    domain.Card    `json:"card"`
	Session study.Progress `json:"session"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	var req rateRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	rating, err := srs.ParseRating(strings.Trim(string(req.Rating), `"`))
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}

	card, err := s.study.Rate(r.Context(), sess, rating, time.Duration(req.DurationMS)*time.Millisecond)
	if err != nil {
		s.handleError(w, r, err, msgRecordFailed)
		return
	}
	respondJSON(w, http.StatusOK, rateResponse{Card: card, Session: sess.Progress()})
}

type skipResponse struct {
	Skipped domain.Card    `json:"skipped"`
	Session study.Progress `json:"session"`
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	card, err := s.study.Skip(sess)
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, skipResponse{Skipped: card, Session: sess.Progress()})
}

type endResponse struct {
	State   domain.StudyState `json:"state"`
	Session study.Progress    `json:"session"`
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.lookupSession(w, r)
	if !ok {
		return
	}
	state, err := s.study.End(r.Context(), sess)
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	s.dropSession(sess.ID)
	respondJSON(w, http.StatusOK, endResponse{State: state, Session: sess.Progress()})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	choices, err := s.study.Preview(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, choices)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	logs, err := s.study.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	card, err := s.study.Suspend(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (s *Server) handleUnsuspend(w http.ResponseWriter, r *http.Request) {
	card, err := s.study.Unsuspend(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, card)
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.GetAllSources(r.Context())
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	respondJSON(w, http.StatusOK, sources)
}

type addSourceRequest struct {
	DeckID string `json:"deck_id" validate:"required"`
	Path   string `json:"path" validate:"required"`
}

func (s *Server) handleAddSource(w http.ResponseWriter, r *http.Request) {
	var req addSourceRequest
	if err := s.decodeValid(r, &req); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	if _, err := s.store.GetDeck(r.Context(), req.DeckID); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	src, err := s.syncer.AddSource(r.Context(), req.DeckID, req.Path)
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusCreated, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		s.handleError(w, r, fmt.Errorf("%w: invalid source ID", errBadRequest), msgInternal)
		return
	}
	if err := s.store.DeleteSource(r.Context(), id); err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSync runs a sync in the foreground and returns its report.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	report, err := s.syncer.RunSync(r.Context())
	if err != nil {
		s.handleError(w, r, err, msgInternal)
		return
	}
	respondJSON(w, http.StatusOK, report)
}
