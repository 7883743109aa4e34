// Package web serves recall's JSON API.
package web

import (
	"context"
	"log/slog"
	"net/http"
	stdsync "sync"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/conorfennell/recall/internal/domain"
	"github.com/conorfennell/recall/internal/study"
	"github.com/conorfennell/recall/internal/sync"
)

// Store is the part of the storage layer the API reads directly.
type Store interface {
	Ping(ctx context.Context) error
	CreateDeck(ctx context.Context, deck *domain.Deck) error
	GetDeck(ctx context.Context, id string) (domain.Deck, error)
	FindDeckByName(ctx context.Context, name string) (domain.Deck, error)
	ListDecks(ctx context.Context) ([]domain.Deck, error)
	GetAllSources(ctx context.Context) ([]domain.Source, error)
	DeleteSource(ctx context.Context, id int64) error
}

// Syncer imports cards from sources.
type Syncer interface {
	AddSource(ctx context.Context, deckID, path string) (domain.Source, error)
	RunSync(ctx context.Context) (sync.Report, error)
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	store    Store
	study    *study.Service
	syncer   Syncer
	logger   *slog.Logger
	validate *validator.Validate
	router   *mux.Router
	handler  http.Handler

	mu       stdsync.Mutex
	sessions map[string]*study.Session
}

// NewServer creates and configures a new server. Requests from
// corsOrigins are allowed cross-origin.
func NewServer(store Store, svc *study.Service, syncer Syncer, logger *slog.Logger, corsOrigins []string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:    store,
		study:    svc,
		syncer:   syncer,
		logger:   logger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		router:   mux.NewRouter(),
		sessions: make(map[string]*study.Session),
	}
	s.routes()

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type"},
	})
	s.handler = c.Handler(s.router)
	return s
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(requestLogger(s.logger))

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.router.HandleFunc("/decks", s.handleListDecks).Methods(http.MethodGet)
	s.router.HandleFunc("/decks", s.handleCreateDeck).Methods(http.MethodPost)
	s.router.HandleFunc("/decks/{deck}/config", s.handleGetDeckConfig).Methods(http.MethodGet)
	s.router.HandleFunc("/decks/{deck}/config", s.handlePutDeckConfig).Methods(http.MethodPut)
	s.router.HandleFunc("/decks/{deck}/sessions", s.handleStartSession).Methods(http.MethodPost)

	s.router.HandleFunc("/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	s.router.HandleFunc("/sessions/{id}/ratings", s.handleRate).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/skip", s.handleSkip).Methods(http.MethodPost)
	s.router.HandleFunc("/sessions/{id}/end", s.handleEndSession).Methods(http.MethodPost)

	s.router.HandleFunc("/cards/{id}/preview", s.handlePreview).Methods(http.MethodGet)
	s.router.HandleFunc("/cards/{id}/reviews", s.handleHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/cards/{id}/suspend", s.handleSuspend).Methods(http.MethodPost)
	s.router.HandleFunc("/cards/{id}/suspend", s.handleUnsuspend).Methods(http.MethodDelete)

	s.router.HandleFunc("/sources", s.handleListSources).Methods(http.MethodGet)
	s.router.HandleFunc("/sources", s.handleAddSource).Methods(http.MethodPost)
	s.router.HandleFunc("/sources/{id}", s.handleDeleteSource).Methods(http.MethodDelete)
	s.router.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) session(id string) (*study.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	return sess, ok
}

func (s *Server) putSession(sess *study.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *Server) dropSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}
