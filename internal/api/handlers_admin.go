package api

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/ivanValieri/din-cash/internal/domain"
)

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Dashboard(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.respondWithError(w, "admin_dashboard", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.respondWithError(w, "admin_list_users", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(users))
}

func (h *Handler) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateMissionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mission, err := h.service.CreateMission(r.Context(), actorFromContext(r.Context()), req)
	if err != nil {
		h.respondWithError(w, "admin_create_mission", err)
		return
	}
	writeJSON(w, http.StatusCreated, mission)
}

func (h *Handler) handleDeleteMission(w http.ResponseWriter, r *http.Request) {
	missionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteMission(r.Context(), actorFromContext(r.Context()), missionID); err != nil {
		h.respondWithError(w, "admin_delete_mission", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleListPendingCompletions(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPendingCompletions(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.respondWithError(w, "admin_pending_completions", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(views))
}

func (h *Handler) handleApproveCompletion(w http.ResponseWriter, r *http.Request) {
	h.reviewCompletion(w, r, "admin_approve_completion", h.service.ApproveMissionCompletion)
}

func (h *Handler) handleRejectCompletion(w http.ResponseWriter, r *http.Request) {
	h.reviewCompletion(w, r, "admin_reject_completion", h.service.RejectMissionCompletion)
}

type completionReview func(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.MissionCompletion, error)

func (h *Handler) reviewCompletion(w http.ResponseWriter, r *http.Request, endpoint string, review completionReview) {
	completionID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	completion, err := review(r.Context(), actorFromContext(r.Context()), completionID)
	if err != nil {
		h.respondWithError(w, endpoint, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (h *Handler) handleListPendingWithdrawals(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListPendingWithdrawals(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.respondWithError(w, "admin_pending_withdrawals", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(views))
}

func (h *Handler) handleApproveWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.reviewWithdrawal(w, r, "admin_approve_withdrawal", h.service.ApproveWithdrawal)
}

func (h *Handler) handleRejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.reviewWithdrawal(w, r, "admin_reject_withdrawal", h.service.RejectWithdrawal)
}

type withdrawalReview func(ctx context.Context, actor domain.Actor, id uuid.UUID) (*domain.Withdrawal, error)

func (h *Handler) reviewWithdrawal(w http.ResponseWriter, r *http.Request, endpoint string, review withdrawalReview) {
	withdrawalID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	withdrawal, err := review(r.Context(), actorFromContext(r.Context()), withdrawalID)
	if err != nil {
		h.respondWithError(w, endpoint, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ReconcileBalancesAs(r.Context(), actorFromContext(r.Context()))
	if err != nil {
		h.respondWithError(w, "admin_reconcile", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
