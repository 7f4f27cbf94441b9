/*
Package api
File: handlers.go
Description:
    HTTP handlers for the REST API.
    These functions decode JSON requests, validate them, drive the session
    through the game/shop/events packages, and return JSON responses.

    Key Responsibilities:
    - Input Validation (Is the JSON valid? Does the activity/item exist?)
    - Session Operations (schedule edits, direct effects, pause/reset, ticks)
    - Error Mapping (package sentinel errors -> HTTP status codes)
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/everforgeworks/quarantine-life/internal/catalog"
	"github.com/everforgeworks/quarantine-life/internal/events"
	"github.com/everforgeworks/quarantine-life/internal/game"
	"github.com/everforgeworks/quarantine-life/internal/shop"
	"github.com/everforgeworks/quarantine-life/internal/sim"
	"github.com/everforgeworks/quarantine-life/internal/store"
)

// Request DTOs

type StatUpdateRequest struct {
	StatType string `json:"stat_type"`
	Value    int    `json:"value"`
	Reason   string `json:"reason"`
}

type AssignRequest struct {
	ActivityID string `json:"activity_id"`
}

type BlocksRequest struct {
	Blocks []sim.Block `json:"blocks"`
}

type PurchaseRequest struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// TickResponse is returned by endpoints that run the simulation.
type TickResponse struct {
	Session  game.Snapshot  `json:"session"`
	Activity sim.ActivityID `json:"activity,omitempty"`
	Warning  string         `json:"warning,omitempty"`
	Skipped  bool           `json:"skipped,omitempty"`
}

// Server holds everything the handlers need. There is no package state.
type Server struct {
	Manager *game.Manager
	Shop    *shop.Shop
	Events  *events.Roller
	Catalog *catalog.Source
	History store.History
	Hub     *Hub
	Logger  *log.Logger
	Origins []string // CORS allow-list; "*" allows all
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/activities", s.handleActivities)
	mux.HandleFunc("GET /api/shop", s.handleShopItems)

	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("GET /api/sessions/{id}", s.withSession(s.handleGetSession))
	mux.HandleFunc("POST /api/sessions/{id}/stats", s.withSession(s.handleUpdateStat))
	mux.HandleFunc("GET /api/sessions/{id}/history", s.withSession(s.handleHistory))
	mux.HandleFunc("GET /api/sessions/{id}/schedule", s.withSession(s.handleGetSchedule))
	mux.HandleFunc("POST /api/sessions/{id}/schedule", s.withSession(s.handleAssignBlocks))
	mux.HandleFunc("PUT /api/sessions/{id}/schedule/{hour}", s.withSession(s.handleAssign))
	mux.HandleFunc("POST /api/sessions/{id}/tick", s.withSession(s.handleTick))
	mux.HandleFunc("POST /api/sessions/{id}/pause", s.withSession(s.handlePause))
	mux.HandleFunc("POST /api/sessions/{id}/resume", s.withSession(s.handleResume))
	mux.HandleFunc("POST /api/sessions/{id}/reset", s.withSession(s.handleReset))
	mux.HandleFunc("POST /api/sessions/{id}/events/{event}", s.withSession(s.handleFireEvent))
	mux.HandleFunc("GET /api/sessions/{id}/inventory", s.withSession(s.handleInventory))
	mux.HandleFunc("POST /api/sessions/{id}/purchase", s.withSession(s.handlePurchase))
	mux.HandleFunc("POST /api/sessions/{id}/use/{item}", s.withSession(s.handleUseItem))
	mux.HandleFunc("GET /api/sessions/{id}/purchases", s.withSession(s.handlePurchases))
	mux.HandleFunc("GET /api/sessions/{id}/item-usage", s.withSession(s.handleItemUsage))

	mux.HandleFunc("GET /ws", s.handleWs)

	return s.corsMiddleware(mux)
}

// corsMiddleware lets the browser client talk to the API across origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case len(s.Origins) == 0 || slices.Contains(s.Origins, "*"):
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.Origins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *game.Session)

// withSession resolves {id} to a live or saved session. Sessions are only
// created by POST /api/sessions.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.Manager.Find(r.Context(), r.PathValue("id"))
		if err != nil {
			s.writeError(w, err)
			return
		}
		h(w, r, sess)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return false
	}
	return true
}

// writeError maps package errors onto status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, game.ErrInvalidSessionID),
		errors.Is(err, sim.ErrInvalidHour),
		errors.Is(err, sim.ErrUnknownActivity),
		errors.Is(err, sim.ErrUnknownStat),
		errors.Is(err, sim.ErrDeltaOutOfRange),
		errors.Is(err, sim.ErrScheduleConflict),
		errors.Is(err, shop.ErrInvalidQuantity):
		status = http.StatusBadRequest
	case errors.Is(err, game.ErrSessionNotFound),
		errors.Is(err, shop.ErrItemNotFound),
		errors.Is(err, shop.ErrNotInInventory),
		errors.Is(err, events.ErrEventNotFound):
		status = http.StatusNotFound
	case errors.Is(err, shop.ErrInsufficientFunds):
		status = http.StatusPaymentRequired
	case errors.Is(err, game.ErrPaused),
		errors.Is(err, shop.ErrGameOver):
		status = http.StatusConflict
	case errors.Is(err, shop.ErrRealMoneyUnsupported):
		status = http.StatusNotImplemented
	}
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed", "err", err)
		http.Error(w, "Internal Server Error", status)
		return
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleActivities returns the effect table.
func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sim.Activities())
}

// handleShopItems lists items, optionally filtered by ?category=.
func (s *Server) handleShopItems(w http.ResponseWriter, r *http.Request) {
	category := catalog.Category(r.URL.Query().Get("category"))
	writeJSON(w, http.StatusOK, s.Catalog.Current().ItemsIn(category))
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Manager.Create(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Snapshot())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	writeJSON(w, http.StatusOK, sess.Snapshot())
}

// handleUpdateStat applies a single-stat delta through the direct applier.
func (s *Server) handleUpdateStat(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	var req StatUpdateRequest
	if !decode(w, r, &req) {
		return
	}
	name, err := sim.ParseStatName(req.StatType)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sim.CheckDelta(name, req.Value); err != nil {
		s.writeError(w, err)
		return
	}
	reason := req.Reason
	if reason == "" {
		reason = "manual update"
	}
	res := s.Manager.Apply(r.Context(), sess, sim.Effect{name: req.Value}, reason)
	writeJSON(w, http.StatusOK, TickResponse{Session: res.Snapshot, Skipped: res.Report.Skipped})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	if s.History == nil {
		writeJSON(w, http.StatusOK, []store.StatChange{})
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.History.ListStatChanges(r.Context(), sess.ID(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// parseLimit reads ?limit=, defaulting to 50. Zero means all rows.
func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 50, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
		return 0, false
	}
	return n, true
}

func (s *Server) handleGetSchedule(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"schedule": sess.Snapshot().Schedule})
}

// handleAssign sets one hour slot; an empty activity_id clears it to idle.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	hour, err := strconv.Atoi(r.PathValue("hour"))
	if err != nil {
		http.Error(w, "hour must be an integer 0-23", http.StatusBadRequest)
		return
	}
	var req AssignRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := sess.Assign(hour, sim.ActivityID(req.ActivityID))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleAssignBlocks applies a planner's multi-hour blocks atomically.
func (s *Server) handleAssignBlocks(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	var req BlocksRequest
	if !decode(w, r, &req) {
		return
	}
	snap, err := sess.AssignBlocks(req.Blocks)
	if err != nil {
		// Block validation failures are all client errors.
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleTick advances one game hour on demand.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	res, err := s.Manager.Tick(r.Context(), sess)
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := TickResponse{Session: res.Snapshot, Activity: res.Report.Activity, Skipped: res.Report.Skipped}
	if res.Report.Warning != nil {
		resp.Warning = res.Report.Warning.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	writeJSON(w, http.StatusOK, sess.Pause())
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	writeJSON(w, http.StatusOK, sess.Resume())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	s.Logger.Info("session reset", "session", sess.ID())
	writeJSON(w, http.StatusOK, sess.Reset())
}

func (s *Server) handleFireEvent(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	res, err := s.Events.Fire(r.Context(), sess, r.PathValue("event"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TickResponse{Session: res.Snapshot, Skipped: res.Report.Skipped})
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	entries, err := s.Shop.List(r.Context(), sess.ID())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	var req PurchaseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	receipt, err := s.Shop.Purchase(r.Context(), sess, req.ItemID, req.Quantity)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleUseItem(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	res, err := s.Shop.Use(r.Context(), sess, r.PathValue("item"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, TickResponse{Session: res.Snapshot})
}

// handleWs subscribes a websocket to ?session=<id>.
func (s *Server) handleWs(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Manager.Find(r.Context(), r.URL.Query().Get("session"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ServeWs(s.Hub, sess.Snapshot(), w, r)
}

func (s *Server) handlePurchases(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.Shop.Purchases(r.Context(), sess.ID(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleItemUsage(w http.ResponseWriter, r *http.Request, sess *game.Session) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	rows, err := s.Shop.Uses(r.Context(), sess.ID(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}
