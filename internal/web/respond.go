package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/recall/internal/queue"
	"github.com/conorfennell/recall/internal/srs"
	"github.com/conorfennell/recall/internal/storage"
	"github.com/conorfennell/recall/internal/study"
	"github.com/conorfennell/recall/internal/sync"
)

var (
	errBadRequest = errors.New("bad request")
	errDuplicate  = errors.New("already exists")
	errNoSession  = errors.New("session not found")
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps an application error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case errors.Is(err, srs.ErrInvalidRating),
		errors.Is(err, queue.ErrUnknownMode),
		errors.Is(err, queue.ErrUnknownFilter),
		errors.Is(err, sync.ErrInvalidSource),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, errNoSession):
		return http.StatusNotFound
	case errors.Is(err, srs.ErrSuspended),
		errors.Is(err, storage.ErrConflict),
		errors.Is(err, study.ErrNoCurrentCard),
		errors.Is(err, sync.ErrSourceExists),
		errors.Is(err, errDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err and writes it as a JSON error. Server errors get
// the generic message instead of the error text.
func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error, generic string) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = generic
	}
	respondError(w, code, msg)
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Error marshaling JSON response", "error", err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(body)
}

func respondError(w http.ResponseWriter, code int, msg string) {
	respondJSON(w, code, errorResponse{Error: msg})
}

// decode reads a JSON body into dst.
func decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid JSON body: %v", errBadRequest, err)
	}
	return nil
}

// decodeValid is decode followed by a check of dst's validate tags.
func (s *Server) decodeValid(r *http.Request, dst any) error {
	if err := decode(r, dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed on %q", errBadRequest, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger logs one line per request.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Info("Request handled",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rec.status,
				"duration", time.Since(start),
			)
		})
	}
}
