// Package api serves the admin endpoints that start dispatches and report
// delivery progress and engagement.
package api

import (
	"context"
	"sync"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

// Newsletters reads stored newsletters.
type Newsletters interface {
	Get(ctx context.Context, id string) (*domain.Newsletter, error)
}

// Dispatcher delivers a newsletter; *newsletter.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req newsletter.Request) (*newsletter.Report, error)
}

// Analytics provisions and summarizes engagement tracking;
// *analytics.Tracker satisfies it.
type Analytics interface {
	CreateAnalytics(ctx context.Context, newsletterID string, totalRecipients int) (*domain.NewsletterAnalytics, error)
	Summary(ctx context.Context, newsletterID string) (*domain.AnalyticsSummary, error)
}

// Handlers contains the admin HTTP handlers.
type Handlers struct {
	newsletters Newsletters
	dispatcher  Dispatcher
	analytics   Analytics
	settings    domain.DeliverySettings

	// base outlives requests; cancelling it stops background dispatches
	// between chunks.
	base     context.Context
	mu       sync.Mutex
	inflight map[string]bool
	wg       sync.WaitGroup
}

// NewHandlers creates the admin handlers. Dispatches started over HTTP run
// under base with settings.
func NewHandlers(base context.Context, n Newsletters, d Dispatcher, a Analytics, settings domain.DeliverySettings) *Handlers {
	return &Handlers{
		newsletters: n,
		dispatcher:  d,
		analytics:   a,
		settings:    settings,
		base:        base,
		inflight:    make(map[string]bool),
	}
}

// Wait blocks until background dispatches have returned.
func (h *Handlers) Wait() {
	h.wg.Wait()
}

func (h *Handlers) claim(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inflight[id] {
		return false
	}
	h.inflight[id] = true
	return true
}

func (h *Handlers) release(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, id)
}
