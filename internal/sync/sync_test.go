package sync

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/storage"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func setup(t *testing.T) (*storage.DB, domain.Deck) {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	deck := domain.Deck{Name: "imported"}
	require.NoError(t, db.CreateDeck(context.Background(), &deck))
	return db, deck
}

func write(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func TestReconcileLocalSource(t *testing.T) {
	ctx := context.Background()
	db, deck := setup(t)
	dir := t.TempDir()

	write(t, dir, "geo.md", "Q: Capital of France?\nA: Paris\n---\nQ: Capital of Peru?\nA: Lima\n")
	write(t, dir, "nested/math.csv", "question,answer\n2+2?,4\n")
	write(t, dir, "README.txt", "Q: ignored\nA: not a card file\n")
	write(t, dir, ".git/notes.md", "Q: inside git metadata\nA: skipped\n")

	scanned := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	s := New(db, t.TempDir(), quiet, WithClock(func() time.Time { return scanned }))

	src, err := s.AddSource(ctx, deck.ID, dir)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceLocal, src.Type)

	report, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Sources: 1, Added: 3}, report)

	cards, err := db.ListCards(ctx, deck.ID)
	require.NoError(t, err)
	require.Len(t, cards, 3)
	for _, c := range cards {
		assert.Equal(t, domain.StatusNew, c.Status)
		assert.Equal(t, domain.DefaultEaseFactor, c.EaseFactor)
		assert.NotEmpty(t, c.Hash)
		require.NotNil(t, c.SourceID)
		assert.Equal(t, src.ID, *c.SourceID)
	}

	t.Run("second run is idempotent", func(t *testing.T) {
		report, err := s.RunSync(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, report.Added)
		assert.Equal(t, 0, report.Removed)
	})

	t.Run("removed cards are deleted", func(t *testing.T) {
		write(t, dir, "geo.md", "Q: Capital of France?\nA: Paris\n")
		report, err := s.RunSync(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, report.Removed)

		cards, err := db.ListCards(ctx, deck.ID)
		require.NoError(t, err)
		assert.Len(t, cards, 2)
	})

	t.Run("last scanned is recorded", func(t *testing.T) {
		got, err := db.FindSourceByPath(ctx, src.Path)
		require.NoError(t, err)
		require.NotNil(t, got.LastScanned)
		assert.True(t, scanned.Equal(*got.LastScanned))
	})
}

func TestReconcileKeepsCardsOnParseErrors(t *testing.T) {
	ctx := context.Background()
	db, deck := setup(t)
	dir := t.TempDir()

	write(t, dir, "deck.md", "Q: one\nA: 1\n")
	s := New(db, t.TempDir(), quiet)
	_, err := s.AddSource(ctx, deck.ID, dir)
	require.NoError(t, err)
	_, err = s.RunSync(ctx)
	require.NoError(t, err)

	require.NoError(t, os.Remove(filepath.Join(dir, "deck.md")))
	write(t, dir, "broken.xlsx", "this is not a workbook")

	report, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, report.Errors)
	assert.Equal(t, 0, report.Removed)

	cards, err := db.ListCards(ctx, deck.ID)
	require.NoError(t, err)
	assert.Len(t, cards, 1)
}

func TestGitSourceUsesFetcher(t *testing.T) {
	ctx := context.Background()
	db, deck := setup(t)
	reposDir := t.TempDir()

	var fetched []string
	fetch := func(_ context.Context, repoURL, localPath string) error {
		fetched = append(fetched, repoURL)
		write(t, localPath, "cards.md", "Q: From git?\nA: Yes\n")
		return nil
	}
	s := New(db, reposDir, quiet, WithFetch(fetch))

	src, err := s.AddSource(ctx, deck.ID, "https://github.com/owner/deck.git")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceGit, src.Type)

	report, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	assert.Equal(t, []string{"https://github.com/owner/deck.git"}, fetched)
	assert.DirExists(t, filepath.Join(reposDir, "github.com", "owner", "deck"))
}

func TestFailingSourceDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	db, deck := setup(t)
	dir := t.TempDir()
	write(t, dir, "deck.md", "Q: local\nA: ok\n")

	s := New(db, t.TempDir(), quiet, WithFetch(func(context.Context, string, string) error {
		return errors.New("network down")
	}))
	_, err := s.AddSource(ctx, deck.ID, "https://github.com/owner/broken.git")
	require.NoError(t, err)
	_, err = s.AddSource(ctx, deck.ID, dir)
	require.NoError(t, err)

	report, err := s.RunSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Added)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0], "network down")
}

func TestAddSourceValidation(t *testing.T) {
	ctx := context.Background()
	db, deck := setup(t)
	s := New(db, t.TempDir(), quiet)

	_, err := s.AddSource(ctx, deck.ID, filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrInvalidSource)

	file := filepath.Join(t.TempDir(), "deck.md")
	require.NoError(t, os.WriteFile(file, []byte("Q: a\nA: b\n"), 0o600))
	_, err = s.AddSource(ctx, deck.ID, file)
	assert.ErrorIs(t, err, ErrInvalidSource)

	_, err = s.AddSource(ctx, deck.ID, "/srv/decks/bare.git")
	assert.ErrorIs(t, err, ErrInvalidSource, "a .git path that is not a remote address")

	dir := t.TempDir()
	_, err = s.AddSource(ctx, deck.ID, dir)
	require.NoError(t, err)
	_, err = s.AddSource(ctx, deck.ID, dir)
	assert.ErrorIs(t, err, ErrSourceExists)
}

func TestScheduleDisabled(t *testing.T) {
	db, _ := setup(t)
	s := New(db, t.TempDir(), quiet)

	scheduler, err := s.Schedule(context.Background(), 0)
	require.NoError(t, err)
	assert.Nil(t, scheduler)
}

func TestScheduleRunsPeriodically(t *testing.T) {
	ctx := context.Background()
	db, deck := setup(t)
	dir := t.TempDir()
	write(t, dir, "deck.md", "Q: scheduled\nA: yes\n")

	s := New(db, t.TempDir(), quiet)
	_, err := s.AddSource(ctx, deck.ID, dir)
	require.NoError(t, err)

	scheduler, err := s.Schedule(ctx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, scheduler)
	defer scheduler.Stop()

	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		cards, err := db.ListCards(ctx, deck.ID)
		return err == nil && len(cards) == 1
	}, 5*time.Second, 20*time.Millisecond)
}
