package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/app"
	"github.com/ivanValieri/din-cash/internal/domain"
)

const maxRequestBodyBytes = 1 << 20

// Handler holds the application service that handlers will use.
type Handler struct {
	service *app.Service
	logger  *slog.Logger
}

// NewHandler creates a new Handler with the given service.
func NewHandler(service *app.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger.With("component", "api")}
}

type meResponse struct {
	*domain.User
	AvailableBalance int64 `json:"available_balance"`
	MinWithdrawal    int64 `json:"min_withdrawal"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		h.logger.Error("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	user, err := h.service.GetUser(r.Context(), actor, actor.UserID)
	if err != nil {
		h.respondWithError(w, "get_me", err)
		return
	}
	writeJSON(w, http.StatusOK, meResponse{
		User:             user,
		AvailableBalance: user.AvailableBalance(),
		MinWithdrawal:    h.service.MinWithdrawal(),
	})
}

func (h *Handler) handleListMissions(w http.ResponseWriter, r *http.Request) {
	missions, err := h.service.ListMissions(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.respondWithError(w, "list_missions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(missions))
}

func (h *Handler) handleListAvailableMissions(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(r.Context())
	missions, err := h.service.ListAvailableMissions(r.Context(), actor, actor.UserID)
	if err != nil {
		h.respondWithError(w, "list_available_missions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(missions))
}

func (h *Handler) handleSubmitCompletion(w http.ResponseWriter, r *http.Request) {
	missionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	actor := actorFromContext(r.Context())
	completion, err := h.service.SubmitMissionCompletion(r.Context(), actor, actor.UserID, missionID)
	if err != nil {
		h.respondWithError(w, "submit_completion", err)
		return
	}
	writeJSON(w, http.StatusCreated, completion)
}

func (h *Handler) handleListMyCompletions(w http.ResponseWriter, r *http.Request) {
	var status *domain.CompletionStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := domain.CompletionStatus(raw)
		status = &s
	}
	actor := actorFromContext(r.Context())
	completions, err := h.service.ListUserCompletions(r.Context(), actor, actor.UserID, status)
	if err != nil {
		h.respondWithError(w, "list_completions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(completions))
}

func (h *Handler) handleRequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req domain.WithdrawalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	actor := actorFromContext(r.Context())
	withdrawal, err := h.service.RequestWithdrawal(r.Context(), actor, actor.UserID, req.Amount)
	if err != nil {
		h.respondWithError(w, "request_withdrawal", err)
		return
	}
	writeJSON(w, http.StatusCreated, withdrawal)
}

func (h *Handler) handleListMyWithdrawals(w http.ResponseWriter, r *http.Request) {
	var status *domain.WithdrawalStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		s := domain.WithdrawalStatus(raw)
		status = &s
	}
	actor := actorFromContext(r.Context())
	withdrawals, err := h.service.ListUserWithdrawals(r.Context(), actor, actor.UserID, status)
	if err != nil {
		h.respondWithError(w, "list_withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(withdrawals))
}

func (h *Handler) handleProvisionUser(w http.ResponseWriter, r *http.Request) {
	var event domain.UserCreatedEvent
	if !decodeJSON(w, r, &event) {
		return
	}
	user, err := h.service.ProvisionUser(r.Context(), app.IdentityFromEvent(event))
	if err != nil {
		h.respondWithError(w, "provision_user", err)
		return
	}
	writeJSON(w, http.StatusCreated, user)
}

// respondWithError maps a workflow error onto an HTTP status and logs the ones that
// indicate a server-side problem.
func (h *Handler) respondWithError(w http.ResponseWriter, endpoint string, err error) {
	if errors.Is(err, app.ErrStoreUnavailable) {
		h.logger.Error("request failed", "endpoint", endpoint, "error", err)
	} else {
		h.logger.Info("request rejected", "endpoint", endpoint, "error", err)
	}
	respondWithServiceError(w, err)
}

func respondWithServiceError(w http.ResponseWriter, err error) {
	var limited *app.RateLimitError
	switch {
	case errors.As(err, &limited):
		w.Header().Set("Retry-After", strconv.Itoa(limited.RetryAfterSeconds))
		writeError(w, http.StatusTooManyRequests, "Too many requests")
	case errors.Is(err, app.ErrValidation):
		writeError(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, app.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, app.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "Not allowed")
	case errors.Is(err, app.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, app.ErrInvalidState):
		writeError(w, http.StatusConflict, "Request is no longer pending or already exists")
	case errors.Is(err, app.ErrInsufficientBalance):
		writeError(w, http.StatusPaymentRequired, "Insufficient balance")
	case errors.Is(err, app.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, "Service temporarily unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// validationMessage strips the error kind prefix so clients see only the reason.
func validationMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, app.ErrValidation.Error()+": "); idx >= 0 {
		return msg[idx+len(app.ErrValidation.Error())+2:]
	}
	return msg
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// nonNil keeps empty lists serialized as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}

// writeJSON is a helper for writing JSON responses.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
