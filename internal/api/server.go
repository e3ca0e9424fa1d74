package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"hilo/internal/game"
	"hilo/internal/logging"
	"hilo/internal/room"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit     = 20
	defaultLeaderboardLimit = 50
	maxListLimit            = 500
)

// Options configures a Server.
type Options struct {
	// CORSOrigins lists allowed origins; empty allows all (development).
	CORSOrigins []string
	RateLimit   int
	RateWindow  time.Duration
	// Health reports whether the backing store is reachable.
	Health func(ctx context.Context) error
}

type Server struct {
	svc         *room.Service
	hub         *Hub
	rateLimiter *RateLimiter
	logger      *zap.Logger
	upgrader    websocket.Upgrader
	corsOrigins []string
	health      func(ctx context.Context) error
}

func NewServer(svc *room.Service, hub *Hub, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:         svc,
		hub:         hub,
		rateLimiter: NewRateLimiter(opts.RateLimit, opts.RateWindow),
		logger:      logger,
		corsOrigins: opts.CORSOrigins,
		health:      opts.Health,
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.checkCORSOrigin(r.Header.Get("Origin"))
		},
	}
	return s
}

// checkCORSOrigin checks if an origin is allowed
func (s *Server) checkCORSOrigin(origin string) bool {
	if len(s.corsOrigins) == 0 || origin == "" {
		return true
	}
	for _, allowed := range s.corsOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.RequestLogger(s.logger))
	r.Use(middleware.Recoverer)

	allowedOrigins := s.corsOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimiter.Middleware)

		r.Get("/rooms", s.listRooms)
		r.Post("/rooms", s.createRoom)
		r.Post("/rooms/join", s.joinRoom)
		r.Post("/rooms/leave", s.leaveRoom)
		r.Post("/rooms/disconnect", s.leaveRoom)
		r.Get("/rooms/{id}", s.getRoom)
		r.Get("/rooms/{id}/history", s.getHistory)
		r.Get("/leaderboard", s.getLeaderboard)
	})

	r.Get("/ws", s.handleWebSocket)

	return r
}

type joinRequest struct {
	RoomID   string `json:"room_id"`
	RoomCode string `json:"room_code"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type leaveRequest struct {
	RoomID   string `json:"room_id"`
	Username string `json:"username"`
}

func (s *Server) createRoom(w http.ResponseWriter, r *http.Request) {
	var req room.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("invalid request body"))
		return
	}
	sum, err := s.svc.CreateRoom(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sum)
}

func (s *Server) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.svc.ListRooms(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

func (s *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("invalid request body"))
		return
	}
	target := req.RoomID
	if target == "" {
		target = req.RoomCode
	}
	roster, err := s.svc.Join(r.Context(), target, req.Username, req.Password)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) leaveRoom(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, failure("invalid request body"))
		return
	}
	roster, err := s.svc.Leave(r.Context(), req.RoomID, req.Username)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, roster)
}

func (s *Server) getRoom(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultHistoryLimit)
	recs, err := s.svc.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (s *Server) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := queryLimit(r, defaultLeaderboardLimit)
	entries, err := s.svc.Leaderboard(r.Context(), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.Error("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryLimit(r *http.Request, def int) int {
	limit := def
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return limit
}

// statusFor maps a rejected operation to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, room.ErrInvalidPassword) {
		return http.StatusUnauthorized
	}
	switch game.KindOf(err) {
	case game.KindValidation, game.KindCapacity:
		return http.StatusBadRequest
	case game.KindNotFound:
		return http.StatusNotFound
	case game.KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	writeJSON(w, status, game.OutcomeOf("", err))
}

func failure(msg string) game.Outcome {
	return game.Outcome{Success: false, Message: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Shutdown stops internal goroutines and disconnects WebSocket clients.
func (s *Server) Shutdown() {
	s.rateLimiter.Stop()
	s.hub.Stop()
}
