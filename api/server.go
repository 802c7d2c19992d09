// Package api exposes the feed to the UI layer over HTTP. The swipe UI
// itself lives elsewhere; this is its boundary.
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"homematch/models"
	"homematch/pipeline"
	"homematch/signals"
	"homematch/storage"
)

// Server serves the feed API.
type Server struct {
	pipe   *pipeline.Pipeline
	sig    *signals.Store
	kv     storage.Store
	logger zerolog.Logger
	http   *http.Server
}

// NewServer builds the HTTP server on addr.
func NewServer(addr string, pipe *pipeline.Pipeline, sig *signals.Store, kv storage.Store, logger zerolog.Logger) *Server {
	s := &Server{
		pipe:   pipe,
		sig:    sig,
		kv:     kv,
		logger: logger.With().Str("component", "api").Logger(),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Route("/api", func(r chi.Router) {
		r.Get("/listings", s.handleListings)
		r.Get("/status", s.handleStatus)
		r.Post("/swipe", s.handleSwipe)
		r.Get("/pattern", s.handlePattern)
		r.Post("/quiz", s.handleQuiz)
		r.Put("/filters", s.handleFilters)
		r.Get("/saved", s.handleSaved)
	})
	r.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return s
}

// Start listens until the context is cancelled, then drains.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"listings": s.pipe.Listings(),
		"cursor":   s.pipe.Cursor(),
		"state":    s.pipe.StateNow(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"enrichment": s.pipe.Status(),
		"message":    s.pipe.Message(),
	})
}

func (s *Server) handleSwipe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Direction string `json:"direction"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	var direction models.SwipeDirection
	switch strings.ToLower(req.Direction) {
	case "like", "right":
		direction = models.SwipeLike
	case "dislike", "left":
		direction = models.SwipeDislike
	default:
		s.writeError(w, http.StatusBadRequest, "direction must be like or dislike")
		return
	}

	swiped, err := s.pipe.Swipe(r.Context(), direction)
	if errors.Is(err, pipeline.ErrFeedExhausted) {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"exhausted": true,
			"message":   s.pipe.Message(),
		})
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"swiped":      swiped,
		"totalSwipes": s.sig.TotalSwipes(),
		"summary":     s.sig.PatternSummary(),
	})
}

func (s *Server) handlePattern(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sig.Describe())
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request) {
	var answers models.QuizAnswers
	if err := json.NewDecoder(r.Body).Decode(&answers); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if !s.sig.SetQuizAnswers(r.Context(), answers) {
		s.writeError(w, http.StatusConflict, "quiz already answered")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleFilters swaps the active filter tuple and restarts the
// pipeline. A raw-fetch failure is the one user-visible error in the
// whole flow; 502 tells the UI to offer a retry.
func (s *Server) handleFilters(w http.ResponseWriter, r *http.Request) {
	var filters models.FilterSet
	if err := json.NewDecoder(r.Body).Decode(&filters); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if filters.PriceType != models.PriceRent && filters.PriceType != models.PriceBuy {
		s.writeError(w, http.StatusBadRequest, "priceType must be rent or buy")
		return
	}

	if err := s.pipe.Start(r.Context(), filters); err != nil {
		s.logger.Error().Err(err).Msg("pipeline start failed")
		s.writeError(w, http.StatusBadGateway, "listing fetch failed, retry")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"state":  s.pipe.StateNow(),
		"status": s.pipe.Status(),
	})
}

func (s *Server) handleSaved(w http.ResponseWriter, r *http.Request) {
	stored, err := s.kv.Scan(r.Context(), storage.SavedPrefix)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "could not list saved listings")
		return
	}

	saved := make([]*models.Listing, 0, len(stored))
	for _, raw := range stored {
		var l models.Listing
		if err := json.Unmarshal(raw, &l); err != nil {
			continue // corrupt entry, skip
		}
		saved = append(saved, &l)
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"saved": saved})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn().Err(err).Msg("response encode failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
