package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"grocery-backend/internal/auth"
	"grocery-backend/internal/pricing"
	"grocery-backend/internal/trolley"
)

type AddItemRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	PriceUnit string          `json:"price_unit" validate:"required,oneof=ea kg"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
}

type UpdateItemRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
}

type RemoveItemsRequest struct {
	ItemIDs []int64 `json:"item_ids" validate:"required,min=1"`
}

type SetMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=delivery pickup"`
}

type TrolleyHandler struct {
	svc      *trolley.Service
	validate *validator.Validate
}

func NewTrolleyHandler(svc *trolley.Service) *TrolleyHandler {
	return &TrolleyHandler{svc: svc, validate: validator.New()}
}

func (h *TrolleyHandler) RegisterRoutes(router chi.Router) {
	router.Get("/trolley/count", h.handleCount)
	router.Get("/trolley", h.handleContents)
	router.Post("/trolley", h.handleAddItem)
	router.Put("/trolley/method", h.handleSetMethod)
	router.Put("/trolley/{itemID}", h.handleUpdateItem)
	router.Delete("/trolley/{itemID}", h.handleRemoveItem)
	router.Delete("/trolley", h.handleRemoveItems)
	router.Post("/trolley/validation", h.handleValidate)
}

func (h *TrolleyHandler) handleCount(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	t, err := h.svc.Count(r.Context(), userID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"trolley_id": t.ID,
		"item_count": t.ItemCount,
	})
}

func (h *TrolleyHandler) handleContents(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	contents, err := h.svc.Contents(r.Context(), userID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, contents)
}

func (h *TrolleyHandler) handleAddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req AddItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	item, err := h.svc.AddItem(r.Context(), userID, req.ProductID, pricing.UnitType(req.PriceUnit), req.Quantity)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, item)
}

func (h *TrolleyHandler) handleSetMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req SetMethodRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	t, err := h.svc.SetMethod(r.Context(), userID, pricing.Method(req.Method))
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, t)
}

func (h *TrolleyHandler) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req UpdateItemRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	item, err := h.svc.UpdateItem(r.Context(), userID, itemID, req.Quantity)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *TrolleyHandler) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	item, err := h.svc.RemoveItem(r.Context(), userID, itemID)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, item)
}

func (h *TrolleyHandler) handleRemoveItems(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req RemoveItemsRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	removed, err := h.svc.RemoveItems(r.Context(), userID, req.ItemIDs)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, removed)
}

func (h *TrolleyHandler) handleValidate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "missing user identity")
		return
	}

	var req trolley.ValidationRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	valid, err := h.svc.Validate(r.Context(), userID, &req)
	if err != nil {
		respondFromError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"isValid": valid})
}
