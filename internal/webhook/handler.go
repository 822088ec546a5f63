package webhook

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"grocery-backend/internal/payment"
)

// maxPayloadBytes bounds webhook bodies; gateway events are small.
const maxPayloadBytes = 65536

// Handler receives gateway notifications. Checkout and refund events arrive
// on separate endpoints with separate signing secrets.
type Handler struct {
	reconciler     *Reconciler
	checkoutSecret string
	refundSecret   string
}

func NewHandler(reconciler *Reconciler, checkoutSecret, refundSecret string) *Handler {
	return &Handler{reconciler: reconciler, checkoutSecret: checkoutSecret, refundSecret: refundSecret}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/checkout", h.handleWith(h.checkoutSecret))
	r.Post("/webhooks/refund", h.handleWith(h.refundSecret))
}

func (h *Handler) handleWith(secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			log.Error().Err(err).Msg("webhook: failed to read payload")
			http.Error(w, "failed to read payload", http.StatusBadRequest)
			return
		}

		ev, err := payment.VerifyEvent(payload, r.Header.Get("Stripe-Signature"), secret)
		if err != nil {
			log.Warn().Err(err).Msg("webhook: rejected event")
			http.Error(w, "invalid signature", http.StatusBadRequest)
			return
		}

		if err := h.reconciler.Handle(r.Context(), ev); err != nil {
			log.Error().Err(err).Str("type", string(ev.Type)).Msg("webhook: failed to handle event")
			http.Error(w, "failed to handle event", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}
