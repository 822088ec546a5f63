package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"

	"grocery-backend/internal/auth"
	"grocery-backend/internal/pricing"
	"grocery-backend/internal/timeslot"
)

type TimeslotHandler struct {
	svc *timeslot.Service
}

func NewTimeslotHandler(svc *timeslot.Service) *TimeslotHandler {
	return &TimeslotHandler{svc: svc}
}

func (h *TimeslotHandler) RegisterRoutes(router chi.Router) {
	router.Get("/timeslots", h.handleList)
	router.Post("/timeslots/{slotID}/holds", h.handleReserve)
	router.Delete("/timeslots/holds/{holdID}", h.handleRelease)
}

func (h *TimeslotHandler) handleList(w http.ResponseWriter, r *http.Request) {
	method := pricing.Method(r.URL.Query().Get("method"))

	views, err := h.svc.ListAvailable(r.Context(), time.Now().UTC(), method)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, views)
}

func (h *TimeslotHandler) handleReserve(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	slotID, err := strconv.ParseInt(chi.URLParam(r, "slotID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid slot id")
		return
	}

	hold, err := h.svc.Reserve(r.Context(), userID, slotID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, hold)
}

func (h *TimeslotHandler) handleRelease(w http.ResponseWriter, r *http.Request) {
	holdID, err := uuid.FromString(chi.URLParam(r, "holdID"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid hold id")
		return
	}

	if err := h.svc.Release(r.Context(), holdID); err != nil {
		respondFromError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
