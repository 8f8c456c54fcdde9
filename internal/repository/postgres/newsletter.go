package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

// NewsletterRepo implements newsletter.Repository against PostgreSQL.
// The revision column guards progress writes.
type NewsletterRepo struct{ db *sql.DB }

// NewNewsletterRepo creates a Postgres-backed newsletter repository.
func NewNewsletterRepo(db *sql.DB) *NewsletterRepo { return &NewsletterRepo{db: db} }

func (r *NewsletterRepo) Get(ctx context.Context, id string) (*domain.Newsletter, error) {
	var (
		n        domain.Newsletter
		status   string
		state    []byte
		progress []byte
		revision int64
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, subject, COALESCE(html_content,''), status, state, progress,
		       revision, created_at, updated_at
		FROM newsletters
		WHERE id = $1
	`, id).Scan(&n.ID, &n.Subject, &n.HTMLContent, &status, &state, &progress,
		&revision, &n.CreatedAt, &n.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, newsletter.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get newsletter: %w", err)
	}

	n.State, err = domain.DecodeState(domain.NewsletterStatus(status), state)
	if err != nil {
		return nil, fmt.Errorf("get newsletter %s: %w", id, err)
	}
	if len(progress) > 0 {
		if err := json.Unmarshal(progress, &n.Progress); err != nil {
			return nil, fmt.Errorf("decode newsletter progress: %w", err)
		}
	}
	n.Progress.Revision = revision
	return &n, nil
}

func (r *NewsletterRepo) Create(ctx context.Context, n *domain.Newsletter) error {
	status, state, err := domain.EncodeState(n.State)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO newsletters (id, subject, html_content, status, state, progress, revision, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, '{}', 0, NOW(), NOW())
	`, n.ID, n.Subject, n.HTMLContent, string(status), state)
	if err != nil {
		return fmt.Errorf("create newsletter: %w", err)
	}
	return nil
}

func (r *NewsletterRepo) SaveProgress(ctx context.Context, id string, state domain.NewsletterState, p domain.Progress) (int64, error) {
	status, detail, err := domain.EncodeState(state)
	if err != nil {
		return 0, err
	}
	body, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("encode newsletter progress: %w", err)
	}

	var sentAt sql.NullTime
	if s, ok := state.(domain.Sent); ok {
		sentAt = sql.NullTime{Time: s.SentAt, Valid: true}
	}

	var revision int64
	err = r.db.QueryRowContext(ctx, `
		UPDATE newsletters
		SET status = $2, state = $3, progress = $4, sent_at = $5,
		    revision = revision + 1, updated_at = NOW()
		WHERE id = $1 AND revision = $6
		RETURNING revision
	`, id, string(status), detail, body, sentAt, p.Revision).Scan(&revision)
	if err == nil {
		return revision, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("save newsletter progress: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM newsletters WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return 0, fmt.Errorf("check newsletter: %w", err)
	}
	if !exists {
		return 0, newsletter.ErrNotFound
	}
	return 0, newsletter.ErrRevisionConflict
}

// ListByStatus returns the ids of newsletters in status, least recently
// updated first.
func (r *NewsletterRepo) ListByStatus(ctx context.Context, status domain.NewsletterStatus) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM newsletters WHERE status = $1 ORDER BY updated_at`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list newsletters: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan newsletter id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
