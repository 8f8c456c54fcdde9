package newsletter_test

import (
	"context"
	"sync"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

// memRepo is an in-memory newsletter repository with revision checks.
type memRepo struct {
	mu          sync.Mutex
	newsletters map[string]*domain.Newsletter
	saves       int
	// conflicts makes the next N saves fail with ErrRevisionConflict.
	conflicts int
	saveErr   error
}

func newMemRepo(ids ...string) *memRepo {
	r := &memRepo{newsletters: make(map[string]*domain.Newsletter)}
	for _, id := range ids {
		r.newsletters[id] = &domain.Newsletter{ID: id, Subject: "Weekly", HTMLContent: "<p>hi</p>", State: domain.Draft{}}
	}
	return r
}

func (m *memRepo) Get(_ context.Context, id string) (*domain.Newsletter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.newsletters[id]
	if !ok {
		return nil, newsletter.ErrNotFound
	}
	cp := *n
	cp.Progress = n.Progress.Clone()
	return &cp, nil
}

func (m *memRepo) Create(_ context.Context, n *domain.Newsletter) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.newsletters[n.ID] = &cp
	return nil
}

func (m *memRepo) SaveProgress(_ context.Context, id string, state domain.NewsletterState, p domain.Progress) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return 0, m.saveErr
	}
	n, ok := m.newsletters[id]
	if !ok {
		return 0, newsletter.ErrNotFound
	}
	if m.conflicts > 0 {
		m.conflicts--
		n.Progress.Revision++
		return 0, newsletter.ErrRevisionConflict
	}
	if n.Progress.Revision != p.Revision {
		return 0, newsletter.ErrRevisionConflict
	}
	m.saves++
	n.State = state
	n.Progress = p.Clone()
	n.Progress.Revision = p.Revision + 1
	return n.Progress.Revision, nil
}

func (m *memRepo) current(id string) *domain.Newsletter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.newsletters[id]
}

func chunk(results ...domain.EmailSendResult) domain.ChunkResult {
	return domain.NewChunkResult(results, fixedNow)
}

func ok(email string) domain.EmailSendResult { return domain.Delivered(email) }

func fail(email string) domain.EmailSendResult { return domain.Rejected(email, "550 rejected") }
