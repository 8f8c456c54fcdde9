package analytics

import (
	"context"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
)

// Repository defines the data access contract for engagement analytics.
// Every counter change must be a single atomic statement in the store;
// implementations must be safe for concurrent use.
type Repository interface {
	// Create inserts a new analytics record.
	Create(ctx context.Context, a *domain.NewsletterAnalytics) error

	// GetByToken returns the record owning a pixel token. Returns ErrNotFound
	// if no record matches.
	GetByToken(ctx context.Context, token string) (*domain.NewsletterAnalytics, error)

	// GetByNewsletter returns the most recent record of a newsletter.
	GetByNewsletter(ctx context.Context, newsletterID string) (*domain.NewsletterAnalytics, error)

	// IncrementTotalOpens adds one to total_opens.
	IncrementTotalOpens(ctx context.Context, analyticsID string) error

	// UpsertOpenFingerprint inserts the fingerprint row with open_count 1, or
	// bumps open_count and last_open_at. It reports whether the row was created.
	UpsertOpenFingerprint(ctx context.Context, analyticsID, fingerprint string, at time.Time) (bool, error)

	// IncrementUniqueOpens adds one to unique_opens.
	IncrementUniqueOpens(ctx context.Context, analyticsID string) error

	// UpsertLinkClick inserts the (analytics, url) row with click_count 1, or
	// bumps click_count. It returns the row id and whether it was created.
	UpsertLinkClick(ctx context.Context, c *domain.NewsletterLinkClick, at time.Time) (string, bool, error)

	// UpsertClickFingerprint is UpsertOpenFingerprint for one link.
	UpsertClickFingerprint(ctx context.Context, linkClickID, fingerprint string, at time.Time) (bool, error)

	// IncrementUniqueClicks adds one to unique_clicks of a link.
	IncrementUniqueClicks(ctx context.Context, linkClickID string) error

	// ListLinkClicks returns the links of a record, most clicked first.
	ListLinkClicks(ctx context.Context, analyticsID string) ([]domain.NewsletterLinkClick, error)
}
