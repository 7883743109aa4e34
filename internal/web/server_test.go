package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/study"
	"github.com/conorfennell/recall/internal/sync"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type testServer struct {
	srv  *Server
	db   *storage.DB
	deck domain.Deck
}

func newTestServer(t *testing.T, cards int) testServer {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	deck := domain.Deck{Name: "capitals"}
	require.NoError(t, db.CreateDeck(ctx, &deck))
	for i := 0; i < cards; i++ {
		c := domain.NewCard("", deck.ID, time.Now())
		c.Question = fmt.Sprintf("q%d", i)
		c.Hash = fmt.Sprintf("h%d", i)
		require.NoError(t, db.InsertCard(ctx, &c))
	}

	svc := study.NewService(db, quiet, study.Options{Location: time.UTC})
	syncer := sync.New(db, t.TempDir(), quiet)
	srv := NewServer(db, svc, syncer, quiet, []string{"http://localhost:3000"})
	return testServer{srv: srv, db: db, deck: deck}
}

func (ts testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func errorOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decodeBody[errorResponse](t, rec).Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, 0)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestDecks(t *testing.T) {
	ts := newTestServer(t, 0)

	rec := ts.do(t, http.MethodPost, "/decks", map[string]string{"name": "verbs"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[domain.Deck](t, rec)
	assert.NotEmpty(t, created.ID)

	rec = ts.do(t, http.MethodPost, "/decks", map[string]string{"name": "verbs"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/decks", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/decks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decks := decodeBody[[]domain.Deck](t, rec)
	require.Len(t, decks, 2)
	assert.Equal(t, "capitals", decks[0].Name)
}

func TestDeckConfig(t *testing.T) {
	ts := newTestServer(t, 0)
	path := "/decks/" + ts.deck.ID + "/config"

	rec := ts.do(t, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"again_days":0,"hard_days":1,"good_days":3,"easy_days":7,"variant":"simple"}`, rec.Body.String())

	rec = ts.do(t, http.MethodPut, path, map[string]any{"hard_days": 2, "good_days": 500, "easy_days": 9})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"again_days":0,"hard_days":2,"good_days":365,"easy_days":9,"variant":"simple"}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/decks/missing/config", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPut, "/decks/missing/config", map[string]any{"good_days": 2})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStudySessionFlow(t *testing.T) {
	ts := newTestServer(t, 2)

	rec := ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", map[string]any{"mode": "ordered", "batch_size": 2})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeBody[study.Progress](t, rec)
	require.NotNil(t, started.Card)
	assert.Equal(t, "q0", started.Card.Question)
	assert.Equal(t, 2, started.Remaining)

	sessionPath := "/sessions/" + started.ID

	rec = ts.do(t, http.MethodGet, sessionPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, started.ID, decodeBody[study.Progress](t, rec).ID)

	rec = ts.do(t, http.MethodPost, sessionPath+"/ratings", map[string]any{"rating": "good", "duration_ms": 1500})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rated := decodeBody[rateResponse](t, rec)
	assert.Equal(t, domain.StatusReview, rated.Card.Status)
	require.NotNil(t, rated.Session.Card)
	assert.Equal(t, "q1", rated.Session.Card.Question)

	logs, err := ts.db.ListReviewLogs(context.Background(), rated.Card.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(1500), logs[0].DurationMS)

	rec = ts.do(t, http.MethodPost, sessionPath+"/ratings", map[string]any{"rating": 9})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, sessionPath+"/ratings", map[string]any{"rating": 4})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, decodeBody[rateResponse](t, rec).Session.Done)

	rec = ts.do(t, http.MethodPost, sessionPath+"/ratings", map[string]any{"rating": "good"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, sessionPath+"/end", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ended := decodeBody[endResponse](t, rec)
	assert.Equal(t, 0, ended.State.Cursor, "two of two cards wrap the cursor")

	rec = ts.do(t, http.MethodGet, sessionPath, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRatingConflictIsReported(t *testing.T) {
	ts := newTestServer(t, 1)

	rec := ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeBody[study.Progress](t, rec)
	require.NotNil(t, started.Card)

	card := *started.Card
	_, err := ts.db.UpdateCard(context.Background(), card.ID, storage.PatchOf(card), card.Version)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodPost, "/sessions/"+started.ID+"/ratings", map[string]any{"rating": "good"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodGet, "/sessions/"+started.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, card.ID, decodeBody[study.Progress](t, rec).Card.ID)

	rec = ts.do(t, http.MethodPost, "/sessions/"+started.ID+"/ratings", map[string]any{"rating": "good"})
	require.Equal(t, http.StatusOK, rec.Code, "a retry rates the reloaded card: %s", rec.Body.String())
	assert.Equal(t, card.Version+2, decodeBody[rateResponse](t, rec).Card.Version)
}

func TestRatingSameCardFromTwoSessions(t *testing.T) {
	ts := newTestServer(t, 2)
	start := func() string {
		rec := ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		return decodeBody[study.Progress](t, rec).ID
	}
	a, b := start(), start()

	rec := ts.do(t, http.MethodPost, "/sessions/"+b+"/ratings", map[string]any{"rating": "good"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/sessions/"+a+"/ratings", map[string]any{"rating": "good"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = ts.do(t, http.MethodPost, "/sessions/"+a+"/ratings", map[string]any{"rating": "good"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, decodeBody[rateResponse](t, rec).Session.Card)
}

func TestSkipSessionCard(t *testing.T) {
	ts := newTestServer(t, 2)
	rec := ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", map[string]any{"mode": "ordered"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeBody[study.Progress](t, rec)
	path := "/sessions/" + started.ID + "/skip"

	rec = ts.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	skipped := decodeBody[skipResponse](t, rec)
	assert.Equal(t, "q0", skipped.Skipped.Question)
	require.NotNil(t, skipped.Session.Card)
	assert.Equal(t, "q1", skipped.Session.Card.Question)

	rec = ts.do(t, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sessions/nope/skip", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestByDateSessionWestOfUTC(t *testing.T) {
	ts := newTestServer(t, 0)
	ny := time.FixedZone("EDT", -4*3600)
	svc := study.NewService(ts.db, quiet, study.Options{Location: ny})
	ts.srv = NewServer(ts.db, svc, sync.New(ts.db, t.TempDir(), quiet), quiet, nil)

	ctx := context.Background()
	for _, c := range []struct {
		question string
		created  time.Time
	}{
		{"created-oct-15", time.Date(2026, 10, 15, 12, 0, 0, 0, ny)},
		{"created-oct-16", time.Date(2026, 10, 16, 12, 0, 0, 0, ny)},
	} {
		card := domain.NewCard("", ts.deck.ID, c.created)
		card.Question = c.question
		card.Hash = c.question
		require.NoError(t, ts.db.InsertCard(ctx, &card))
	}

	rec := ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", map[string]any{"mode": "by_date", "date": "2026-10-16"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeBody[study.Progress](t, rec)
	assert.Equal(t, 1, started.Total)
	require.NotNil(t, started.Card)
	assert.Equal(t, "created-oct-16", started.Card.Question)
}

func TestCrammingSessionAPI(t *testing.T) {
	ts := newTestServer(t, 2)
	path := "/decks/" + ts.deck.ID + "/sessions"

	rec := ts.do(t, http.MethodPost, path, map[string]any{"mode": "cramming", "filter": "tags"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, path, map[string]any{"mode": "cramming", "filter": "weak", "time_limit_minutes": 15})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeBody[study.Progress](t, rec)
	assert.Equal(t, 2, started.Total, "new cards are always weak")
	require.NotNil(t, started.Cram)
	require.NotNil(t, started.Cram.TimeLeftMS)
	assert.Positive(t, *started.Cram.TimeLeftMS)

	rate := func(rating string) rateResponse {
		rec := ts.do(t, http.MethodPost, "/sessions/"+started.ID+"/ratings", map[string]any{"rating": rating})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decodeBody[rateResponse](t, rec)
	}
	first := rate("again")
	assert.Equal(t, domain.StatusNew, first.Card.Status)
	rate("good")
	last := rate("good")
	assert.True(t, last.Session.Done)
	assert.Equal(t, 100, last.Session.Cram.Mastery)

	logs, err := ts.db.ListReviewLogs(context.Background(), first.Card.ID)
	require.NoError(t, err)
	assert.Empty(t, logs)
}

func TestCardHistory(t *testing.T) {
	ts := newTestServer(t, 1)
	rec := ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeBody[study.Progress](t, rec)
	id := started.Card.ID

	rec = ts.do(t, http.MethodGet, "/cards/"+id+"/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/sessions/"+started.ID+"/ratings", map[string]any{"rating": "easy", "duration_ms": 800})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/cards/"+id+"/reviews", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	logs := decodeBody[[]domain.ReviewLog](t, rec)
	require.Len(t, logs, 1)
	assert.Equal(t, int64(800), logs[0].DurationMS)

	rec = ts.do(t, http.MethodGet, "/cards/missing/reviews", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestStartSessionErrors(t *testing.T) {
	ts := newTestServer(t, 1)

	rec := ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", map[string]any{"mode": "shuffle"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorOf(t, rec), "unknown mode")

	rec = ts.do(t, http.MethodPost, "/decks/"+ts.deck.ID+"/sessions", map[string]any{"mode": "by_date", "date": "yesterday"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/decks/missing/sessions", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sessions/nope/ratings", map[string]any{"rating": "good"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCardEndpoints(t *testing.T) {
	ts := newTestServer(t, 1)
	cards, err := ts.db.ListCards(context.Background(), ts.deck.ID)
	require.NoError(t, err)
	id := cards[0].ID

	rec := ts.do(t, http.MethodGet, "/cards/"+id+"/preview", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	choices := decodeBody[[]study.Choice](t, rec)
	require.Len(t, choices, 4)
	assert.Equal(t, "3d", choices[2].Label)

	rec = ts.do(t, http.MethodPost, "/cards/"+id+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusSuspended, decodeBody[domain.Card](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/cards/"+id+"/preview", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/cards/"+id+"/suspend", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.StatusNew, decodeBody[domain.Card](t, rec).Status)

	rec = ts.do(t, http.MethodGet, "/cards/missing/preview", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSourcesAndSync(t *testing.T) {
	ts := newTestServer(t, 0)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "deck.md"), []byte("Q: Capital of Chile?\nA: Santiago\n"), 0o600))

	rec := ts.do(t, http.MethodPost, "/sources", map[string]string{"deck_id": ts.deck.ID, "path": dir})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	src := decodeBody[domain.Source](t, rec)

	rec = ts.do(t, http.MethodPost, "/sources", map[string]string{"deck_id": ts.deck.ID, "path": dir})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sources", map[string]string{"deck_id": ts.deck.ID, "path": filepath.Join(dir, "missing")})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sources", map[string]string{"deck_id": ts.deck.ID, "path": "/srv/decks/bare.git"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sources", map[string]string{"deck_id": "missing", "path": dir})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodPost, "/sync", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, sync.Report{Sources: 1, Added: 1}, decodeBody[sync.Report](t, rec))

	rec = ts.do(t, http.MethodGet, "/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]domain.Source](t, rec), 1)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/sources/%d", src.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodDelete, "/sources/abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodDelete, fmt.Sprintf("/sources/%d", src.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, 0)

	req := httptest.NewRequest(http.MethodOptions, "/decks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	ts.srv.ServeHTTP(rec, req)

	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}
