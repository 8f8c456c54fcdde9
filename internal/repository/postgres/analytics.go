package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/analytics"
)

// AnalyticsRepo implements analytics.Repository against PostgreSQL. Counters
// are bumped in single statements; upserts report creation through xmax.
type AnalyticsRepo struct{ db *sql.DB }

// NewAnalyticsRepo creates a Postgres-backed analytics repository.
func NewAnalyticsRepo(db *sql.DB) *AnalyticsRepo { return &AnalyticsRepo{db: db} }

const analyticsColumns = `id, newsletter_id, pixel_token, total_recipients, total_opens, unique_opens, created_at`

func (r *AnalyticsRepo) Create(ctx context.Context, a *domain.NewsletterAnalytics) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO newsletter_analytics (id, newsletter_id, pixel_token, total_recipients, total_opens, unique_opens, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5)
	`, a.ID, a.NewsletterID, a.PixelToken, a.TotalRecipients, a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create analytics: %w", err)
	}
	return nil
}

func (r *AnalyticsRepo) GetByToken(ctx context.Context, token string) (*domain.NewsletterAnalytics, error) {
	return r.getOne(ctx, `SELECT `+analyticsColumns+` FROM newsletter_analytics WHERE pixel_token = $1`, token)
}

func (r *AnalyticsRepo) GetByNewsletter(ctx context.Context, newsletterID string) (*domain.NewsletterAnalytics, error) {
	return r.getOne(ctx, `SELECT `+analyticsColumns+` FROM newsletter_analytics
		WHERE newsletter_id = $1 ORDER BY created_at DESC LIMIT 1`, newsletterID)
}

func (r *AnalyticsRepo) getOne(ctx context.Context, q string, arg string) (*domain.NewsletterAnalytics, error) {
	a := &domain.NewsletterAnalytics{}
	err := r.db.QueryRowContext(ctx, q, arg).Scan(
		&a.ID, &a.NewsletterID, &a.PixelToken, &a.TotalRecipients,
		&a.TotalOpens, &a.UniqueOpens, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, analytics.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analytics: %w", err)
	}
	return a, nil
}

func (r *AnalyticsRepo) IncrementTotalOpens(ctx context.Context, analyticsID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE newsletter_analytics SET total_opens = total_opens + 1 WHERE id = $1`, analyticsID,
	); err != nil {
		return fmt.Errorf("increment total opens: %w", err)
	}
	return nil
}

func (r *AnalyticsRepo) UpsertOpenFingerprint(ctx context.Context, analyticsID, fingerprint string, at time.Time) (bool, error) {
	var created bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO newsletter_fingerprints (analytics_id, fingerprint, open_count, first_open_at, last_open_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (analytics_id, fingerprint) DO UPDATE
		SET open_count = newsletter_fingerprints.open_count + 1, last_open_at = EXCLUDED.last_open_at
		RETURNING (xmax = 0)
	`, analyticsID, fingerprint, at).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert open fingerprint: %w", err)
	}
	return created, nil
}

func (r *AnalyticsRepo) IncrementUniqueOpens(ctx context.Context, analyticsID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE newsletter_analytics SET unique_opens = unique_opens + 1 WHERE id = $1`, analyticsID,
	); err != nil {
		return fmt.Errorf("increment unique opens: %w", err)
	}
	return nil
}

func (r *AnalyticsRepo) UpsertLinkClick(ctx context.Context, c *domain.NewsletterLinkClick, at time.Time) (string, bool, error) {
	var (
		id      string
		created bool
	)
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO newsletter_link_clicks
			(id, analytics_id, url, link_type, link_id, click_count, unique_clicks, first_click_at, last_click_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), 1, 0, $6, $6)
		ON CONFLICT (analytics_id, url) DO UPDATE
		SET click_count = newsletter_link_clicks.click_count + 1, last_click_at = EXCLUDED.last_click_at
		RETURNING id, (xmax = 0)
	`, c.ID, c.AnalyticsID, c.URL, string(c.LinkType), c.LinkID, at).Scan(&id, &created)
	if err != nil {
		return "", false, fmt.Errorf("upsert link click: %w", err)
	}
	return id, created, nil
}

func (r *AnalyticsRepo) UpsertClickFingerprint(ctx context.Context, linkClickID, fingerprint string, at time.Time) (bool, error) {
	var created bool
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO newsletter_link_click_fingerprints (link_click_id, fingerprint, click_count, first_click_at, last_click_at)
		VALUES ($1, $2, 1, $3, $3)
		ON CONFLICT (link_click_id, fingerprint) DO UPDATE
		SET click_count = newsletter_link_click_fingerprints.click_count + 1, last_click_at = EXCLUDED.last_click_at
		RETURNING (xmax = 0)
	`, linkClickID, fingerprint, at).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("upsert click fingerprint: %w", err)
	}
	return created, nil
}

func (r *AnalyticsRepo) IncrementUniqueClicks(ctx context.Context, linkClickID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE newsletter_link_clicks SET unique_clicks = unique_clicks + 1 WHERE id = $1`, linkClickID,
	); err != nil {
		return fmt.Errorf("increment unique clicks: %w", err)
	}
	return nil
}

func (r *AnalyticsRepo) ListLinkClicks(ctx context.Context, analyticsID string) ([]domain.NewsletterLinkClick, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, analytics_id, url, link_type, COALESCE(link_id,''), click_count, unique_clicks,
		       first_click_at, last_click_at
		FROM newsletter_link_clicks
		WHERE analytics_id = $1
		ORDER BY click_count DESC, url
	`, analyticsID)
	if err != nil {
		return nil, fmt.Errorf("list link clicks: %w", err)
	}
	defer rows.Close()

	var out []domain.NewsletterLinkClick
	for rows.Next() {
		var (
			c        domain.NewsletterLinkClick
			linkType string
		)
		if err := rows.Scan(&c.ID, &c.AnalyticsID, &c.URL, &linkType, &c.LinkID,
			&c.ClickCount, &c.UniqueClicks, &c.FirstClickAt, &c.LastClickAt); err != nil {
			return nil, fmt.Errorf("scan link click: %w", err)
		}
		c.LinkType = domain.LinkType(linkType)
		out = append(out, c)
	}
	return out, rows.Err()
}
