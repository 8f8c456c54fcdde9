// Package worker contains background loops run by the worker binary.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

// DefaultRecoveryInterval is how often stalled retry ladders are checked.
const DefaultRecoveryInterval = 2 * time.Minute

// RetryLister finds newsletters by status.
type RetryLister interface {
	ListByStatus(ctx context.Context, status domain.NewsletterStatus) ([]string, error)
}

// Resumer runs the pending retry waves of a newsletter.
type Resumer interface {
	Resume(ctx context.Context, id string, settings domain.DeliverySettings) (*newsletter.Report, error)
}

// RetryRecoveryWorker picks up newsletters left in the retrying state by a
// process that stopped mid-ladder. Newsletters still held by a live
// dispatch are skipped through the dispatch lock.
type RetryRecoveryWorker struct {
	lister   RetryLister
	resumer  Resumer
	settings domain.DeliverySettings
	interval time.Duration
}

// NewRetryRecoveryWorker creates a recovery worker. A non-positive interval
// uses DefaultRecoveryInterval.
func NewRetryRecoveryWorker(lister RetryLister, resumer Resumer, settings domain.DeliverySettings, interval time.Duration) *RetryRecoveryWorker {
	if interval <= 0 {
		interval = DefaultRecoveryInterval
	}
	return &RetryRecoveryWorker{lister: lister, resumer: resumer, settings: settings, interval: interval}
}

// Start runs a recovery pass immediately and then every interval. It blocks
// until ctx is cancelled.
func (w *RetryRecoveryWorker) Start(ctx context.Context) {
	log.Printf("[RetryRecovery] Starting (interval=%s)", w.interval)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.RecoverOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Println("[RetryRecovery] Stopping")
			return
		case <-ticker.C:
			w.RecoverOnce(ctx)
		}
	}
}

// RecoverOnce resumes every newsletter currently in the retrying state and
// returns how many were driven to a terminal state.
func (w *RetryRecoveryWorker) RecoverOnce(ctx context.Context) int {
	listCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	ids, err := w.lister.ListByStatus(listCtx, domain.StatusRetrying)
	cancel()
	if err != nil {
		log.Printf("[RetryRecovery] list error: %v", err)
		return 0
	}

	resumed := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		report, err := w.resumer.Resume(ctx, id, w.settings)
		switch {
		case errors.Is(err, newsletter.ErrAlreadyDispatching), errors.Is(err, newsletter.ErrNotRetrying):
			continue
		case err != nil:
			log.Printf("[RetryRecovery] resume %s: %v", id, err)
			continue
		}
		resumed++
		log.Printf("[RetryRecovery] %s finished as %s (sent=%d failed=%d)",
			id, report.Status, report.Sent, report.Failed)
	}
	return resumed
}
