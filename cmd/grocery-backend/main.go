package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"grocery-backend/internal/checkout"
	"grocery-backend/internal/config"
	"grocery-backend/internal/db"
	"grocery-backend/internal/handler"
	"grocery-backend/internal/membership"
	"grocery-backend/internal/order"
	"grocery-backend/internal/payment"
	"grocery-backend/internal/product"
	"grocery-backend/internal/timeslot"
	"grocery-backend/internal/transport"
	"grocery-backend/internal/trolley"
	"grocery-backend/internal/webhook"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "grocery-backend").Logger()

	log.Info().Msg("Grocery backend starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	database, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	gateway := payment.NewStripeGateway(cfg.Stripe.SecretKey)

	productRepo := product.NewRepository(database.Pool)
	trolleyRepo := trolley.NewRepository(database.Pool)
	timeslotRepo := timeslot.NewRepository(database.Pool)
	membershipRepo := membership.NewRepository(database.Pool)
	orderRepo := order.NewRepository(database.Pool)

	trolleySvc := trolley.NewService(trolleyRepo, productRepo, membershipRepo)
	timeslotSvc := timeslot.NewService(timeslotRepo)
	checkoutSvc := checkout.NewService(gateway, trolleyRepo, membershipRepo)
	orderSvc := order.NewService(orderRepo, gateway)
	reconciler := webhook.NewReconciler(gateway, orderRepo, membershipRepo)

	sweeper := timeslot.NewSweeper(timeslotRepo, timeslot.SweepInterval, timeslot.HoldTTL)
	go sweeper.Run(ctx)

	router := transport.NewRouter(cfg.Auth.JWTSecret, transport.Handlers{
		Trolley:    handler.NewTrolleyHandler(trolleySvc),
		Timeslot:   handler.NewTimeslotHandler(timeslotSvc),
		Checkout:   handler.NewCheckoutHandler(checkoutSvc),
		Membership: handler.NewMembershipHandler(membershipRepo),
		Order:      handler.NewOrderHandler(orderSvc),
		Webhook:    webhook.NewHandler(reconciler, cfg.Stripe.CheckoutWebhookSecret, cfg.Stripe.RefundWebhookSecret),
	})

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh

	log.Info().Msg("Shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Grocery backend stopped")
}
