package newsletter

import (
	"context"

	"github.com/ignite/newsletter-engine/internal/domain"
)

// Repository defines the data access contract for newsletters.
// Implementations must be safe for concurrent use.
type Repository interface {
	// Get returns a newsletter with its state and progress. Returns
	// ErrNotFound if it doesn't exist.
	Get(ctx context.Context, id string) (*domain.Newsletter, error)

	// Create inserts a draft newsletter.
	Create(ctx context.Context, n *domain.Newsletter) error

	// SaveProgress writes state and progress if the stored revision still
	// equals p.Revision, and returns the new revision. Returns
	// ErrRevisionConflict when another writer got there first.
	SaveProgress(ctx context.Context, id string, state domain.NewsletterState, p domain.Progress) (int64, error)
}
