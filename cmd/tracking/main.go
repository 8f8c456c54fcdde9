package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ignite/newsletter-engine/internal/bootstrap"
	"github.com/ignite/newsletter-engine/internal/config"
	"github.com/ignite/newsletter-engine/internal/repository/postgres"
	"github.com/ignite/newsletter-engine/internal/tracking"
)

// The tracking edge serves pixels and click redirects. With a queue
// configured it only publishes events; otherwise it writes straight to
// the database.
func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	bootstrap.ConfigureLogger(cfg.Log)

	var (
		rec  tracking.Recorder
		wait = func() {}
	)
	if cfg.Tracking.SQSQueueURL != "" {
		sqsClient, err := bootstrap.NewSQSClient(context.Background(), cfg.Tracking.AWSRegion)
		if err != nil {
			log.Fatalf("aws config: %v", err)
		}
		pub := tracking.NewPublisher(sqsClient, cfg.Tracking.SQSQueueURL)
		rec, wait = pub, pub.Wait
	} else {
		db, err := bootstrap.OpenDB(context.Background(), cfg.Database)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer db.Close()
		tracker, err := bootstrap.NewTracker(cfg.Tracking, postgres.NewAnalyticsRepo(db))
		if err != nil {
			log.Fatalf("tracker: %v", err)
		}
		rec = tracker
	}

	srv := &http.Server{
		Addr:         cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.TrackingPort),
		Handler:      tracking.NewHandler(rec).Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("tracking service listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down tracking service...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	wait()
}
