package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/newsletter-engine/internal/bootstrap"
	"github.com/ignite/newsletter-engine/internal/config"
	"github.com/ignite/newsletter-engine/internal/tracking"
	"github.com/ignite/newsletter-engine/internal/worker"
)

func main() {
	log.Println("Starting newsletter worker...")

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

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := bootstrap.OpenDB(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("Connected to database")

	rdb, err := bootstrap.OpenRedis(ctx, cfg.Redis.URL)
	if err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	delivery, err := bootstrap.NewDelivery(ctx, cfg, db, rdb)
	if err != nil {
		log.Fatalf("Failed to wire delivery: %v", err)
	}

	// Tracking events published by the edge service
	var consumer *tracking.Consumer
	if cfg.Tracking.SQSQueueURL != "" {
		sqsClient, err := bootstrap.NewSQSClient(ctx, cfg.Tracking.AWSRegion)
		if err != nil {
			log.Fatalf("Failed to load AWS config: %v", err)
		}
		consumer = tracking.NewConsumer(sqsClient, cfg.Tracking.SQSQueueURL, delivery.Tracker)
		consumer.Start(ctx)
		log.Printf("Tracking consumer started (queue=%s)", cfg.Tracking.SQSQueueURL)
	} else {
		log.Println("No tracking queue configured, consumer disabled")
	}

	recovery := worker.NewRetryRecoveryWorker(delivery.Newsletters, delivery.Dispatcher, cfg.Delivery, worker.DefaultRecoveryInterval)
	recoveryDone := make(chan struct{})
	go func() {
		recovery.Start(ctx)
		close(recoveryDone)
	}()
	log.Println("Retry recovery worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	if consumer != nil {
		consumer.Stop()
	}
	<-recoveryDone
	log.Println("Worker stopped")
}
