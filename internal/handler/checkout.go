package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"

	"grocery-backend/internal/auth"
	"grocery-backend/internal/checkout"
)

type TrolleyCheckoutRequest struct {
	TrolleyID  int64     `json:"trolley_id" validate:"required"`
	HoldID     uuid.UUID `json:"hold_id" validate:"required"`
	ChosenDate time.Time `json:"chosen_date" validate:"required"`
	Address    string    `json:"address"`
	SuccessURL string    `json:"success_url" validate:"required,url"`
	CancelURL  string    `json:"cancel_url" validate:"required,url"`
}

type MembershipCheckoutRequest struct {
	PlanID     int64  `json:"plan_id" validate:"required"`
	SuccessURL string `json:"success_url" validate:"required,url"`
	CancelURL  string `json:"cancel_url" validate:"required,url"`
}

type CheckoutResponse struct {
	SessionID  string `json:"session_id"`
	SessionURL string `json:"session_url"`
}

type CheckoutHandler struct {
	svc      *checkout.Service
	validate *validator.Validate
}

func NewCheckoutHandler(svc *checkout.Service) *CheckoutHandler {
	return &CheckoutHandler{svc: svc, validate: validator.New()}
}

func (h *CheckoutHandler) RegisterRoutes(router chi.Router) {
	router.Post("/trolley/checkout-session", h.handleTrolleySession)
	router.Post("/membership/checkout-session", h.handleMembershipSession)
}

func (h *CheckoutHandler) handleTrolleySession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req TrolleyCheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	session, err := h.svc.CreateTrolleySession(r.Context(), userID, &checkout.TrolleySessionRequest{
		TrolleyID:  req.TrolleyID,
		HoldID:     req.HoldID,
		ChosenDate: req.ChosenDate,
		Address:    req.Address,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, CheckoutResponse{SessionID: session.ID, SessionURL: session.URL})
}

func (h *CheckoutHandler) handleMembershipSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req MembershipCheckoutRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	session, err := h.svc.CreateMembershipSession(r.Context(), userID, req.PlanID, req.SuccessURL, req.CancelURL)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, CheckoutResponse{SessionID: session.ID, SessionURL: session.URL})
}
