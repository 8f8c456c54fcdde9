// Package bootstrap builds the shared components of the binaries from
// configuration.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	appconfig "github.com/ignite/newsletter-engine/internal/config"
	"github.com/ignite/newsletter-engine/internal/pkg/distlock"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
	"github.com/ignite/newsletter-engine/internal/repository/postgres"
	"github.com/ignite/newsletter-engine/internal/service/analytics"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
	"github.com/ignite/newsletter-engine/internal/service/sending"
	"github.com/ignite/newsletter-engine/internal/storage"
)

// ConfigureLogger applies the log section.
func ConfigureLogger(c appconfig.LogConfig) {
	logger.SetLevel(logger.ParseLevel(c.Level))
	logger.SetRedactPII(c.RedactPIIEnabled())
}

// OpenDB connects to PostgreSQL and verifies the connection.
func OpenDB(ctx context.Context, c appconfig.DatabaseConfig) (*sql.DB, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("database url is required")
	}
	db, err := sql.Open("postgres", c.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(c.MaxOpenConns)
	db.SetMaxIdleConns(c.MaxIdleConns)
	db.SetConnMaxLifetime(c.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// OpenRedis connects to Redis. An empty url returns a nil client, which
// makes dispatch locks fall back to Postgres advisory locks.
func OpenRedis(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// NewTracker builds the analytics tracker. Without a tracking base URL the
// tracker records events but leaves outgoing HTML untouched.
func NewTracker(c appconfig.TrackingConfig, repo analytics.Repository) (*analytics.Tracker, error) {
	if c.BaseURL == "" {
		return analytics.NewTracker(repo, nil), nil
	}
	patterns, err := analytics.CompilePatterns(c.LinkPatterns)
	if err != nil {
		return nil, err
	}
	links, err := analytics.NewLinkRewriter(c.BaseURL, c.SiteURL, patterns)
	if err != nil {
		return nil, err
	}
	return analytics.NewTracker(repo, links), nil
}

// NewSQSClient builds an SQS client from the default AWS credential chain.
func NewSQSClient(ctx context.Context, region string) (*sqs.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return sqs.NewFromConfig(cfg), nil
}

// NewDialer builds the relay dialer selected by the transport section.
func NewDialer(ctx context.Context, c appconfig.TransportConfig) (sending.Dialer, error) {
	switch c.Kind {
	case "", appconfig.TransportSMTP:
		return sending.SMTPDialer{HelloName: c.HelloName, InsecureSkipVerify: c.InsecureSkipVerify}, nil
	case appconfig.TransportSES:
		cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(c.SESRegion))
		if err != nil {
			return nil, fmt.Errorf("loading AWS config: %w", err)
		}
		return sending.SESDialer{Client: sesv2.NewFromConfig(cfg), ConfigurationSet: c.SESConfigurationSet}, nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", c.Kind)
	}
}

// Delivery is the wired delivery stack.
type Delivery struct {
	Newsletters *postgres.NewsletterRepo
	Tracker     *analytics.Tracker
	Dispatcher  *newsletter.Dispatcher
	Retries     *newsletter.RetryOrchestrator
	Archive     *storage.ReportArchive
}

// NewDelivery wires repositories, the mail transport, tracking, the admin
// notifier, the report archive and the dispatch lock into a dispatcher.
func NewDelivery(ctx context.Context, cfg *appconfig.Config, db *sql.DB, rdb *redis.Client) (*Delivery, error) {
	newsletters := postgres.NewNewsletterRepo(db)
	tracker, err := NewTracker(cfg.Tracking, postgres.NewAnalyticsRepo(db))
	if err != nil {
		return nil, fmt.Errorf("tracking: %w", err)
	}

	dialer, err := NewDialer(ctx, cfg.Transport)
	if err != nil {
		return nil, err
	}
	transports := sending.NewManager(dialer)
	notifier, err := newsletter.NewAdminNotifier(transports, cfg.Delivery)
	if err != nil {
		return nil, fmt.Errorf("admin notifier: %w", err)
	}

	opts := []newsletter.DispatcherOption{
		newsletter.WithTracking(tracker),
		newsletter.WithNotifier(notifier),
		newsletter.WithLocker(func(key string) distlock.DistLock {
			return distlock.NewLock(rdb, db, key, newsletter.DispatchLockTTL)
		}),
	}

	d := &Delivery{Newsletters: newsletters, Tracker: tracker, Retries: newsletter.NewRetryOrchestrator(newsletters)}
	if cfg.Reports.S3Bucket != "" {
		client, err := storage.NewS3Client(ctx, storage.S3Options{
			Region:    cfg.Reports.S3Region,
			Endpoint:  cfg.Reports.S3Endpoint,
			AccessKey: cfg.Reports.AccessKey,
			SecretKey: cfg.Reports.SecretKey,
		})
		if err != nil {
			return nil, fmt.Errorf("report archive: %w", err)
		}
		d.Archive = storage.NewReportArchive(client, cfg.Reports.S3Bucket)
		opts = append(opts, newsletter.WithArchive(d.Archive))
	}

	d.Dispatcher = newsletter.NewDispatcher(newsletters, sending.NewPipeline(transports), opts...)
	return d, nil
}
