// Package server exposes the ledger over a JSON HTTP API.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tallyhq/tally/internal/auth"
	"github.com/tallyhq/tally/internal/errs"
	"github.com/tallyhq/tally/internal/middleware"
	"github.com/tallyhq/tally/internal/service"
)

// Server holds the services behind the HTTP handlers.
type Server struct {
	ledger *service.LedgerService
	auth   *service.AuthService
}

// New creates a Server over the given services.
func New(ledger *service.LedgerService, authSvc *service.AuthService) *Server {
	return &Server{ledger: ledger, auth: authSvc}
}

// Router builds the full route table. Everything under /api/v1 except the
// auth endpoints requires a valid session token.
func (s *Server) Router(jwtManager *auth.JWTManager) *mux.Router {
	r := mux.NewRouter()
	r.Use(mux.MiddlewareFunc(middleware.Logging), mux.MiddlewareFunc(middleware.Metrics))

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/register", s.handleRegister).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.handleLogin).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(mux.MiddlewareFunc(middleware.RequireAuth(jwtManager)))

	authed.HandleFunc("/friends", s.handleAddFriend).Methods(http.MethodPost)
	authed.HandleFunc("/friends", s.handleListFriends).Methods(http.MethodGet)
	authed.HandleFunc("/friends/{id}/accept", s.handleAcceptFriend).Methods(http.MethodPost)

	authed.HandleFunc("/groups", s.handleCreateGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups", s.handleListGroups).Methods(http.MethodGet)
	authed.HandleFunc("/groups/join", s.handleJoinGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups/{id}", s.handleGetGroup).Methods(http.MethodGet)
	authed.HandleFunc("/groups/{id}/leave", s.handleLeaveGroup).Methods(http.MethodPost)
	authed.HandleFunc("/groups/{id}/settlement", s.handleGroupSettlement).Methods(http.MethodGet)

	authed.HandleFunc("/expenses", s.handleAddExpense).Methods(http.MethodPost)
	authed.HandleFunc("/expenses/{id}", s.handleEditExpense).Methods(http.MethodPut)
	authed.HandleFunc("/expenses/{id}", s.handleDeleteExpense).Methods(http.MethodDelete)

	authed.HandleFunc("/payments", s.handleRecordPayment).Methods(http.MethodPost)

	authed.HandleFunc("/recurrences", s.handleCreateTemplate).Methods(http.MethodPost)
	authed.HandleFunc("/recurrences/run", s.handleRunRecurrences).Methods(http.MethodPost)

	authed.HandleFunc("/balances", s.handleGetBalances).Methods(http.MethodGet)

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy to HTTP status codes: validation 400,
// not-found 404, conflict 409, policy 422, everything else 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.IsValidation(err):
		status = http.StatusBadRequest
	case errs.IsNotFound(err):
		status = http.StatusNotFound
	case errs.IsConflict(err):
		status = http.StatusConflict
	case errs.IsPolicy(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, auth.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, auth.ErrEmailExists):
		status = http.StatusConflict
	case errors.Is(err, auth.ErrWeakPassword):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("internal error", "error", err)
		writeJSON(w, status, errorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}
