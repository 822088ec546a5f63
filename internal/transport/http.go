package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"grocery-backend/internal/auth"
	"grocery-backend/internal/handler"
	"grocery-backend/internal/webhook"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Trolley    *handler.TrolleyHandler
	Timeslot   *handler.TimeslotHandler
	Checkout   *handler.CheckoutHandler
	Membership *handler.MembershipHandler
	Order      *handler.OrderHandler
	Webhook    *webhook.Handler
}

// NewRouter assembles the HTTP surface. Webhooks authenticate by signature
// and stay outside the JWT group; everything else requires a bearer token.
func NewRouter(jwtSecret string, h Handlers) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	h.Webhook.RegisterRoutes(r)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(jwtSecret))
		h.Trolley.RegisterRoutes(r)
		h.Timeslot.RegisterRoutes(r)
		h.Checkout.RegisterRoutes(r)
		h.Membership.RegisterRoutes(r)
		h.Order.RegisterRoutes(r)
	})

	return r
}
