package analytics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// Click is one hit on a click-tracking URL.
type Click struct {
	Token       string
	URL         string
	LinkType    domain.LinkType
	LinkID      string
	Fingerprint string
}

// Tracker records engagement and provisions analytics records.
type Tracker struct {
	repo  Repository
	links *LinkRewriter
	now   func() time.Time
}

// NewTracker creates a tracker. links may be nil when the process only
// records events and never prepares outgoing HTML.
func NewTracker(repo Repository, links *LinkRewriter) *Tracker {
	return &Tracker{repo: repo, links: links, now: time.Now}
}

// CreateAnalytics creates the analytics record of a send with a fresh
// unguessable pixel token.
func (t *Tracker) CreateAnalytics(ctx context.Context, newsletterID string, totalRecipients int) (*domain.NewsletterAnalytics, error) {
	a := &domain.NewsletterAnalytics{
		ID:              uuid.New().String(),
		NewsletterID:    newsletterID,
		PixelToken:      strings.ReplaceAll(uuid.New().String(), "-", ""),
		TotalRecipients: totalRecipients,
		CreatedAt:       t.now().UTC(),
	}
	if err := t.repo.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("create analytics: %w", err)
	}
	return a, nil
}

// Token returns the pixel token of the newsletter's latest analytics record.
func (t *Tracker) Token(ctx context.Context, newsletterID string) (string, error) {
	a, err := t.repo.GetByNewsletter(ctx, newsletterID)
	if err != nil {
		return "", err
	}
	return a.PixelToken, nil
}

// AddTracking instruments newsletter HTML for the analytics token.
func (t *Tracker) AddTracking(html, token string) string {
	if t.links == nil {
		return html
	}
	return t.links.AddTracking(html, token)
}

// RecordOpen counts a pixel fetch. Every hit increments total opens; a
// fingerprint seen for the first time also increments unique opens.
// Errors are logged, never returned.
func (t *Tracker) RecordOpen(ctx context.Context, pixelToken, fingerprint string) {
	log := logger.With("pixel_token", pixelToken)
	a, ok := t.lookup(ctx, pixelToken, log)
	if !ok {
		return
	}
	if err := t.repo.IncrementTotalOpens(ctx, a.ID); err != nil {
		log.Error("increment total opens failed", "error", err)
	}
	if fingerprint == "" {
		return
	}

	created, err := t.repo.UpsertOpenFingerprint(ctx, a.ID, fingerprint, t.now().UTC())
	if err != nil {
		log.Error("upsert open fingerprint failed", "error", err)
		return
	}
	if !created {
		return
	}
	if err := t.repo.IncrementUniqueOpens(ctx, a.ID); err != nil {
		log.Error("increment unique opens failed", "error", err)
	}
}

// RecordClick counts a click on c.URL with the same first-occurrence rule
// for unique clicks. Errors are logged, never returned.
func (t *Tracker) RecordClick(ctx context.Context, c Click) {
	log := logger.With("analytics_token", c.Token, "link_type", string(c.LinkType))
	a, ok := t.lookup(ctx, c.Token, log)
	if !ok {
		return
	}

	now := t.now().UTC()
	linkID, created, err := t.repo.UpsertLinkClick(ctx, &domain.NewsletterLinkClick{
		ID:          uuid.New().String(),
		AnalyticsID: a.ID,
		URL:         c.URL,
		LinkType:    NormalizeLinkType(string(c.LinkType)),
		LinkID:      c.LinkID,
	}, now)
	if err != nil {
		log.Error("upsert link click failed", "error", err)
		return
	}
	if created {
		log.Debug("first click on link", "link_click_id", linkID)
	}
	if c.Fingerprint == "" {
		return
	}

	fpCreated, err := t.repo.UpsertClickFingerprint(ctx, linkID, c.Fingerprint, now)
	if err != nil {
		log.Error("upsert click fingerprint failed", "error", err)
		return
	}
	if !fpCreated {
		return
	}
	if err := t.repo.IncrementUniqueClicks(ctx, linkID); err != nil {
		log.Error("increment unique clicks failed", "error", err)
	}
}

func (t *Tracker) lookup(ctx context.Context, token string, log *logger.Logger) (*domain.NewsletterAnalytics, bool) {
	if token == "" {
		return nil, false
	}
	a, err := t.repo.GetByToken(ctx, token)
	if errors.Is(err, ErrNotFound) {
		log.Debug("unknown tracking token")
		return nil, false
	}
	if err != nil {
		log.Error("analytics lookup failed", "error", err)
		return nil, false
	}
	return a, true
}

// Summary returns the engagement totals of a newsletter's latest send.
func (t *Tracker) Summary(ctx context.Context, newsletterID string) (*domain.AnalyticsSummary, error) {
	a, err := t.repo.GetByNewsletter(ctx, newsletterID)
	if err != nil {
		return nil, err
	}
	links, err := t.repo.ListLinkClicks(ctx, a.ID)
	if err != nil {
		return nil, fmt.Errorf("list link clicks: %w", err)
	}
	s := &domain.AnalyticsSummary{NewsletterAnalytics: *a, Links: links}
	if a.TotalRecipients > 0 {
		s.OpenRate = float64(a.UniqueOpens) / float64(a.TotalRecipients)
	}
	if s.Links == nil {
		s.Links = []domain.NewsletterLinkClick{}
	}
	return s, nil
}

// NormalizeLinkType maps a type query parameter onto a known link type.
func NormalizeLinkType(s string) domain.LinkType {
	switch lt := domain.LinkType(strings.ToLower(strings.TrimSpace(s))); lt {
	case domain.LinkAppointment, domain.LinkGroup, domain.LinkStatusReport, domain.LinkNewsletter:
		return lt
	default:
		return domain.LinkPage
	}
}
