package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"grocery-backend/internal/auth"
	"grocery-backend/internal/order"
)

type OrderHandler struct {
	svc *order.Service
}

func NewOrderHandler(svc *order.Service) *OrderHandler {
	return &OrderHandler{svc: svc}
}

func (h *OrderHandler) RegisterRoutes(router chi.Router) {
	router.Get("/orders", h.handleList)
	router.Get("/orders/{orderID}", h.handleGet)
	router.Delete("/orders/{orderID}", h.handleCancel)
}

func (h *OrderHandler) handleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orders, err := h.svc.List(r.Context(), userID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	detail, err := h.svc.Get(r.Context(), userID, orderID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, detail)
}

func (h *OrderHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	orderID, err := strconv.ParseInt(chi.URLParam(r, "orderID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid order id")
		return
	}

	if err := h.svc.Cancel(r.Context(), userID, orderID); err != nil {
		respondFromError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
