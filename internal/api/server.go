// Package api provides the HTTP surface for game access: create, join,
// action submission, the player view, and status. All responses are JSON;
// CORS is permissive so browser clients can talk to any instance.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sashko1391/they-voted-for-this/internal/game"
	"github.com/sashko1391/they-voted-for-this/internal/state"
)

// Server serves the game API.
type Server struct {
	Registry *game.Registry
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	createLimiter := NewRateLimiter(10, time.Hour)

	r := chi.NewRouter()
	r.Use(corsMiddleware)

	r.Get("/", s.handleHealth)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/server/create", createLimiter.Middleware(s.handleCreate))
	r.Post("/server/{id}/join", s.handleJoin)
	r.Get("/server/{id}/view", s.handleView)
	r.Post("/server/{id}/action", s.handleAction)
	r.Get("/server/{id}/status", s.handleStatus)

	return r
}

// corsMiddleware answers preflights with 204 and opens every origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"game":      "they-voted-for-this",
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type joinRequest struct {
	PlayerName string `json:"playerName"`
	PlayerRole string `json:"playerRole"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "playerName and playerRole required")
		return
	}

	g, res, err := s.Registry.Create(req.PlayerName, req.PlayerRole)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"serverId":     g.ID,
		"playerId":     res.PlayerID,
		"playerToken":  res.PlayerToken,
		"tick":         res.Tick,
		"tickDeadline": res.TickDeadline.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	g := s.Registry.Get(chi.URLParam(r, "id"))
	if g == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.PlayerName == "" {
		writeError(w, http.StatusBadRequest, "playerName and playerRole required")
		return
	}

	res, err := g.Join(req.PlayerName, req.PlayerRole)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"playerId":     res.PlayerID,
		"playerToken":  res.PlayerToken,
		"tick":         res.Tick,
		"tickDeadline": res.TickDeadline.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	g := s.Registry.Get(chi.URLParam(r, "id"))
	if g == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	playerID := r.URL.Query().Get("playerId")
	token := r.URL.Query().Get("token")

	view, tick, phase, deadline, err := g.View(playerID, token)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"view":         view,
		"tick":         tick,
		"phase":        phase,
		"tickDeadline": deadline.UTC().Format(time.RFC3339),
	})
}

type actionRequest struct {
	PlayerID    string       `json:"playerId"`
	PlayerToken string       `json:"playerToken"`
	Action      state.Action `json:"action"`
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	g := s.Registry.Get(chi.URLParam(r, "id"))
	if g == nil {
		writeError(w, http.StatusNotFound, "game not found")
		return
	}
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action.Type == "" {
		writeError(w, http.StatusBadRequest, "playerId, playerToken, and action required")
		return
	}

	pending, tick, err := g.SubmitAction(req.PlayerID, req.PlayerToken, req.Action)
	if err != nil {
		writeGameError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"pendingCount": pending,
		"tick":         tick,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	g := s.Registry.Get(chi.URLParam(r, "id"))
	if g == nil {
		writeJSON(w, http.StatusOK, map[string]any{"initialized": false})
		return
	}
	writeJSON(w, http.StatusOK, g.Status())
}

// writeGameError maps game-layer errors onto HTTP statuses.
func writeGameError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, game.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, game.ErrServerFull):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, game.ErrWrongPhase):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, game.ErrWrongRole), errors.Is(err, game.ErrInvalidRole), errors.Is(err, game.ErrPlayerDead):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, game.ErrTooManyQueued):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{"error": msg})
}

func writeJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(data)
}
