// Package httpapi implements the dashboard-read HTTP surface: read-only
// endpoints over the trade ledger, predictions, settlements, and the
// approval queue, plus the two mutating endpoints a human reviewer needs
// (approve/reject a pending trade). It is the minimal core-facing contract
// the (out-of-scope) PWA dashboard reads and writes against.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/bozweather/trader/internal/approval"
	"github.com/bozweather/trader/internal/model"
	"github.com/bozweather/trader/internal/store"
)

// Service holds the collaborators dashboard handlers need.
type Service struct {
	Store    store.Store
	Approval *approval.Queue
	WSHub    *WSHub // optional; nil disables broadcast calls
}

// NewService builds a dashboard Service. Pass nil for hub if WebSocket
// broadcasting is not needed (e.g. in tests).
func NewService(st store.Store, approvalQueue *approval.Queue, hub *WSHub) *Service {
	return &Service{Store: st, Approval: approvalQueue, WSHub: hub}
}

// Routes mounts the dashboard API under the given chi router.
func (s *Service) Routes(r chi.Router) {
	r.Get("/ws", s.WSHub.HandleWS)

	r.Get("/predictions/{city}/{targetDate}", s.GetPrediction)
	r.Get("/settlements/{city}/{targetDate}", s.GetSettlement)

	r.Get("/trades/{userID}", s.ListTrades)
	r.Get("/trades/{userID}/open", s.ListOpenTrades)

	r.Get("/pending/{id}", s.GetPendingTrade)
	r.Post("/pending/{id}/approve", s.ApprovePending)
	r.Post("/pending/{id}/reject", s.RejectPending)

	r.Get("/users", s.ListUsers)
	r.Get("/users/{id}", s.GetUser)

	r.Get("/logs", s.ListLogEntries)
}

// GetPrediction handles GET /api/v1/predictions/{city}/{targetDate}
func (s *Service) GetPrediction(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	targetDate := chi.URLParam(r, "targetDate")

	pred, err := s.Store.LatestPrediction(r.Context(), city, targetDate)
	if err != nil {
		writeError(w, "prediction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pred)
}

// GetSettlement handles GET /api/v1/settlements/{city}/{targetDate}
func (s *Service) GetSettlement(w http.ResponseWriter, r *http.Request) {
	city := chi.URLParam(r, "city")
	targetDate := chi.URLParam(r, "targetDate")

	settlement, err := s.Store.GetSettlement(r.Context(), city, targetDate)
	if err != nil {
		writeError(w, "settlement not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

// ListTrades handles GET /api/v1/trades/{userID}
func (s *Service) ListTrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	trades, err := s.Store.TradesForUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// ListOpenTrades handles GET /api/v1/trades/{userID}/open
func (s *Service) ListOpenTrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	trades, err := s.Store.OpenTradesForUser(r.Context(), userID)
	if err != nil {
		writeError(w, "failed to list open trades", http.StatusInternalServerError)
		return
	}
	if trades == nil {
		trades = []model.TradeRecord{}
	}
	writeJSON(w, http.StatusOK, trades)
}

// GetPendingTrade handles GET /api/v1/pending/{id}
func (s *Service) GetPendingTrade(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	pending, err := s.Store.GetPendingTrade(r.Context(), id)
	if err != nil {
		writeError(w, "pending trade not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

// ApprovePending handles POST /api/v1/pending/{id}/approve
func (s *Service) ApprovePending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.Approval.Approve(r.Context(), id); err != nil {
		status, msg := approvalErrorStatus(err)
		writeError(w, msg, status)
		return
	}

	slog.Info("pending trade approved via dashboard", "pending_id", id)
	if s.WSHub != nil {
		s.WSHub.Broadcast(WSMessage{Type: "pending_approved", PendingID: id})
	}
	w.WriteHeader(http.StatusNoContent)
}

// RejectPending handles POST /api/v1/pending/{id}/reject
func (s *Service) RejectPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.Approval.Reject(r.Context(), id); err != nil {
		status, msg := approvalErrorStatus(err)
		writeError(w, msg, status)
		return
	}

	slog.Info("pending trade rejected via dashboard", "pending_id", id)
	if s.WSHub != nil {
		s.WSHub.Broadcast(WSMessage{Type: "pending_rejected", PendingID: id})
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListUsers handles GET /api/v1/users
func (s *Service) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, "failed to list users", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser handles GET /api/v1/users/{id}
func (s *Service) GetUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	user, err := s.Store.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// ListLogEntries handles GET /api/v1/logs?limit=100
func (s *Service) ListLogEntries(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	entries, err := s.Store.RecentLogEntries(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to list log entries", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// approvalErrorStatus maps the approval package's sentinel errors to HTTP
// status codes and messages for writeError below.
func approvalErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, approval.ErrNotFound):
		return http.StatusNotFound, "pending trade not found"
	case errors.Is(err, approval.ErrConflict):
		return http.StatusConflict, "pending trade is no longer pending"
	default:
		return http.StatusInternalServerError, "failed to act on pending trade"
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
