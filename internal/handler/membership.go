package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"grocery-backend/internal/auth"
	"grocery-backend/internal/membership"
)

type MembershipStore interface {
	ListPlans(ctx context.Context) ([]membership.Plan, error)
	Current(ctx context.Context, userID uuid.UUID) (*membership.Membership, error)
}

type MembershipHandler struct {
	store MembershipStore
}

func NewMembershipHandler(store MembershipStore) *MembershipHandler {
	return &MembershipHandler{store: store}
}

func (h *MembershipHandler) RegisterRoutes(router chi.Router) {
	router.Get("/membership/plans", h.handleListPlans)
	router.Get("/membership", h.handleCurrent)
}

func (h *MembershipHandler) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.store.ListPlans(r.Context())
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, plans)
}

func (h *MembershipHandler) handleCurrent(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	m, err := h.store.Current(r.Context(), userID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, m)
}
