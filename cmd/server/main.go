package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter-engine/internal/api"
	"github.com/ignite/newsletter-engine/internal/bootstrap"
	"github.com/ignite/newsletter-engine/internal/config"
	"github.com/ignite/newsletter-engine/internal/tracking"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	bootstrap.ConfigureLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
		log.Println("Dispatch locks backed by Redis")
	} else {
		log.Println("Dispatch locks backed by PostgreSQL advisory locks")
	}

	delivery, err := bootstrap.NewDelivery(ctx, cfg, db, rdb)
	if err != nil {
		log.Fatalf("Failed to wire delivery: %v", err)
	}

	// Dispatches run under their own context so an HTTP shutdown lets
	// in-flight chunks finish before the process exits.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	defer cancelDispatch()

	handlers := api.NewHandlers(dispatchCtx, delivery.Newsletters, delivery.Dispatcher, delivery.Tracker, cfg.Delivery)
	trackingRoutes := tracking.NewHandler(delivery.Tracker)
	router := api.SetupRoutes(handlers, cfg.Server.AllowedOrigins, func(r chi.Router) {
		trackingRoutes.Mount(r)
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Newsletter engine listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Println("Shutdown timeout reached, cancelling running dispatches")
		cancelDispatch()
		handlers.Wait()
	}
	log.Println("Server stopped")
}
