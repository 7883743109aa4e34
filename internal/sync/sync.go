// Package sync imports cards from local directories and git repositories
// into decks and keeps them reconciled with their source files.
package sync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	stdsync "sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/gitsource"
	"github.com/conorfennell/recall/internal/knol"
	"github.com/conorfennell/recall/internal/parser"
	"github.com/conorfennell/recall/internal/storage"
)

var (
	// ErrInvalidSource is returned by AddSource for a path that is neither
	// a directory nor a git URL it can clone.
	ErrInvalidSource = errors.New("invalid source")
	// ErrSourceExists is returned by AddSource for a path already registered.
	ErrSourceExists = errors.New("source already exists")
)

// Store is the persistence used by a Syncer.
type Store interface {
	InsertSource(ctx context.Context, deckID, path string, typ domain.SourceType) (int64, error)
	FindSourceByPath(ctx context.Context, path string) (domain.Source, error)
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error
	FindCardByHash(ctx context.Context, deckID, hash string) (domain.Card, error)
	InsertCard(ctx context.Context, card *domain.Card) error
	GetCardsBySourceID(ctx context.Context, sourceID int64) ([]domain.Card, error)
	DeleteCard(ctx context.Context, id string) error
}

// FetchFunc brings a local checkout of repoURL at localPath up to date.
type FetchFunc func(ctx context.Context, repoURL, localPath string) error

// Report summarises one reconciliation.
type Report struct {
	Sources int      `json:"sources"`
	Added   int      `json:"added"`
	Removed int      `json:"removed"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *Report) add(o Report) {
	r.Sources += o.Sources
	r.Added += o.Added
	r.Removed += o.Removed
	r.Errors = append(r.Errors, o.Errors...)
}

// Syncer reconciles sources with the store. Only one sync runs at a time.
type Syncer struct {
	store    Store
	reposDir string
	logger   *slog.Logger
	fetch    FetchFunc
	now      func() time.Time

	mu stdsync.Mutex
}

// Option customises a Syncer.
type Option func(*Syncer)

// WithFetch replaces the git fetcher.
func WithFetch(f FetchFunc) Option { return func(s *Syncer) { s.fetch = f } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Syncer) { s.now = now } }

// New returns a Syncer that clones git sources under reposDir.
func New(store Store, reposDir string, logger *slog.Logger, opts ...Option) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Syncer{
		store:    store,
		reposDir: reposDir,
		logger:   logger,
		now:      time.Now,
	}
	s.fetch = func(ctx context.Context, repoURL, localPath string) error {
		return gitsource.Sync(ctx, repoURL, localPath, nil, s.logger)
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddSource registers a directory or git URL as a source of deckID. Local
// paths are stored as absolute paths.
func (s *Syncer) AddSource(ctx context.Context, deckID, path string) (domain.Source, error) {
	typ := domain.SourceLocal
	if gitsource.IsURL(path) {
		typ = domain.SourceGit
		if _, err := gitsource.LocalPath(s.reposDir, path); err != nil {
			return domain.Source{}, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
	} else {
		abs, err := filepath.Abs(path)
		if err != nil {
			return domain.Source{}, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return domain.Source{}, fmt.Errorf("%w: %w", ErrInvalidSource, err)
		}
		if !info.IsDir() {
			return domain.Source{}, fmt.Errorf("%w: %s is not a directory", ErrInvalidSource, path)
		}
		path = abs
	}

	if _, err := s.store.FindSourceByPath(ctx, path); err == nil {
		return domain.Source{}, fmt.Errorf("%w: %s", ErrSourceExists, path)
	} else if !errors.Is(err, storage.ErrNotFound) {
		return domain.Source{}, err
	}

	id, err := s.store.InsertSource(ctx, deckID, path, typ)
	if err != nil {
		return domain.Source{}, err
	}
	s.logger.Info("Source added", "id", id, "deck_id", deckID, "type", typ, "path", path)
	return domain.Source{ID: id, DeckID: deckID, Path: path, Type: typ}, nil
}

// RunSync iterates over all sources and reconciles them. A failing source
// is recorded in the report and does not stop the others.
func (s *Syncer) RunSync(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("Starting sync process for all sources...")
	sources, err := s.store.GetAllSources(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to get sources: %w", err)
	}

	var report Report
	if len(sources) == 0 {
		s.logger.Info("No sources configured")
		return report, nil
	}

	for _, source := range sources {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		r, err := s.syncSource(ctx, source)
		if err != nil {
			s.logger.Error("Error syncing source", "id", source.ID, "path", source.Path, "error", err)
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", source.Path, err))
		}
		report.add(r)
	}

	s.logger.Info("Sync process complete.",
		"sources", report.Sources,
		"added", report.Added,
		"removed", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}

func (s *Syncer) syncSource(ctx context.Context, source domain.Source) (Report, error) {
	s.logger.Info("Syncing source", "id", source.ID, "type", source.Type, "path", source.Path)

	dir := source.Path
	if source.Type == domain.SourceGit {
		local, err := gitsource.LocalPath(s.reposDir, source.Path)
		if err != nil {
			return Report{}, err
		}
		if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
			return Report{}, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := s.fetch(ctx, source.Path, local); err != nil {
			return Report{}, err
		}
		dir = local
	}
	return s.reconcile(ctx, source, dir)
}

// reconcile inserts cards whose hash is new to the deck and deletes cards
// of this source whose hash no longer appears in its files. Deletion is
// skipped when any file failed to parse.
func (s *Syncer) reconcile(ctx context.Context, source domain.Source, dir string) (Report, error) {
	report := Report{Sources: 1}
	found := make(map[string]bool)
	var parsed []domain.Card

	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !parser.Supported(d.Name()) {
			return nil
		}
		fileCards, parseErr := parser.ParseFile(path)
		if parseErr != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("parsing %s: %v", path, parseErr))
			return nil
		}
		parsed = append(parsed, fileCards...)
		return nil
	})
	if walkErr != nil {
		return report, fmt.Errorf("error walking directory %s: %w", dir, walkErr)
	}

	for _, card := range knol.Stamp(parsed) {
		found[card.Hash] = true

		_, err := s.store.FindCardByHash(ctx, source.DeckID, card.Hash)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			report.Errors = append(report.Errors, fmt.Sprintf("db check for %s: %v", card.Hash, err))
			continue
		}

		sourceID := source.ID
		c := domain.NewCard("", source.DeckID, s.now())
		c.Question, c.Answer, c.Context, c.Hash = card.Question, card.Answer, card.Context, card.Hash
		c.SourceID = &sourceID
		s.logger.Debug("New card found, inserting...", "hash", c.Hash)
		if err := s.store.InsertCard(ctx, &c); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("db insert for %s: %v", card.Hash, err))
			continue
		}
		report.Added++
	}

	if len(report.Errors) > 0 {
		s.logger.Warn("Skipping orphan cleanup after errors", "source_id", source.ID, "errors", len(report.Errors))
	} else {
		existing, err := s.store.GetCardsBySourceID(ctx, source.ID)
		if err != nil {
			return report, fmt.Errorf("error getting cards for source %d: %w", source.ID, err)
		}
		for _, card := range existing {
			if found[card.Hash] {
				continue
			}
			s.logger.Info("Orphaned card, deleting", "hash", card.Hash)
			if err := s.store.DeleteCard(ctx, card.ID); err != nil {
				s.logger.Warn("Failed to delete orphaned card", "hash", card.Hash, "error", err)
				continue
			}
			report.Removed++
		}
	}

	if err := s.store.UpdateSourceLastScanned(ctx, source.ID, s.now()); err != nil {
		s.logger.Warn("Failed to update last scanned for source", "source_id", source.ID, "error", err)
	}

	s.logger.Info("reconciliation complete",
		"path", dir,
		"parsed_cards", len(parsed),
		"added", report.Added,
		"orphaned_deleted", report.Removed,
		"errors", len(report.Errors),
	)
	return report, nil
}

// Schedule runs RunSync every interval in the background until the
// returned scheduler is stopped. A zero interval disables it and returns
// nil.
func (s *Syncer) Schedule(ctx context.Context, interval time.Duration) (*gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, nil
	}
	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(interval).WaitForSchedule().Do(func() {
		if _, err := s.RunSync(ctx); err != nil {
			s.logger.Error("Periodic sync failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to schedule sync: %w", err)
	}

	scheduler.StartAsync()
	s.logger.Info("Periodic sync scheduled", "interval", interval)
	return scheduler, nil
}
