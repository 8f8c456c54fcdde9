package newsletter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/distlock"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
	"github.com/ignite/newsletter-engine/internal/service/sending"
)

// ChunkSender delivers one chunk and accounts for every submitted address.
// *sending.Pipeline satisfies it.
type ChunkSender interface {
	SendChunk(ctx context.Context, req sending.ChunkRequest) domain.ChunkResult
}

// Notifier reports a finished dispatch to an administrator.
type Notifier interface {
	Notify(ctx context.Context, r *Report)
}

// Archiver stores finished dispatch reports.
type Archiver interface {
	Save(ctx context.Context, r *Report) error
}

// Tracking provisions engagement tracking for a dispatch.
type Tracking interface {
	CreateAnalytics(ctx context.Context, newsletterID string, totalRecipients int) (*domain.NewsletterAnalytics, error)
	// Token returns the pixel token of the newsletter's latest analytics.
	Token(ctx context.Context, newsletterID string) (string, error)
	AddTracking(html, token string) string
}

// Locker returns the distributed lock guarding key.
type Locker func(key string) distlock.DistLock

// DispatchLockTTL is the lease of the dispatch lock. It is renewed every
// third of the lease while the dispatch runs.
const DispatchLockTTL = 5 * time.Minute

// Request is one dispatch of a newsletter to a recipient list. Empty HTML
// and Subject fall back to the stored newsletter.
type Request struct {
	NewsletterID string
	Recipients   []string
	HTML         string
	Subject      string
	Settings     domain.DeliverySettings
}

// Dispatcher sends a newsletter chunk by chunk, strictly in order, then runs
// retry waves until the newsletter reaches a terminal state.
type Dispatcher struct {
	repo       Repository
	chunks     ChunkSender
	aggregator *Aggregator
	locker     Locker
	notifier   Notifier
	archive    Archiver
	tracking   Tracking
	sleep      func(time.Duration)
	now        func() time.Time
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLocker guards each dispatch with a per-newsletter lock.
func WithLocker(l Locker) DispatcherOption { return func(d *Dispatcher) { d.locker = l } }

// WithNotifier sends an admin summary once a dispatch finishes.
func WithNotifier(n Notifier) DispatcherOption { return func(d *Dispatcher) { d.notifier = n } }

// WithArchive stores the final report.
func WithArchive(a Archiver) DispatcherOption { return func(d *Dispatcher) { d.archive = a } }

// WithTracking embeds the open pixel and click tracking into the HTML.
func WithTracking(t Tracking) DispatcherOption { return func(d *Dispatcher) { d.tracking = t } }

// WithSleep replaces time.Sleep for inter-chunk and inter-wave delays.
func WithSleep(fn func(time.Duration)) DispatcherOption { return func(d *Dispatcher) { d.sleep = fn } }

// NewDispatcher creates a dispatcher that records progress in repo.
func NewDispatcher(repo Repository, chunks ChunkSender, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		repo:       repo,
		chunks:     chunks,
		aggregator: NewAggregator(repo),
		sleep:      time.Sleep,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers req and returns the final report. Cancelling ctx stops
// the dispatch between chunks; a chunk that has started always finishes.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Report, error) {
	recipients := uniqueRecipients(req.Recipients)
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	unlock, err := d.lock(ctx, req.NewsletterID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, err := d.repo.Get(ctx, req.NewsletterID)
	if err != nil {
		return nil, storeErr("get newsletter", err)
	}
	html := firstNonEmpty(req.HTML, n.HTMLContent)
	subject := firstNonEmpty(req.Subject, n.Subject)
	html = d.instrument(ctx, req.NewsletterID, html, len(recipients))

	progress := domain.Progress{
		Revision: n.Progress.Revision,
		Ladder:   ParseLadder(req.Settings.RetryChunkSizes),
	}
	if _, err := d.repo.SaveProgress(ctx, req.NewsletterID, domain.Sending{StartedAt: d.now()}, progress); err != nil {
		return nil, storeErr("start dispatch", err)
	}
	logger.Info("dispatch started",
		"newsletter_id", req.NewsletterID, "recipients", len(recipients),
		"chunk_size", req.Settings.EffectiveChunkSize())

	base := sending.ChunkRequest{NewsletterID: req.NewsletterID, HTML: html, Subject: subject, Settings: req.Settings}

	c, err := d.runWave(ctx, base, domain.InitialWave, recipients, req.Settings.EffectiveChunkSize())
	if err == nil {
		c, err = d.runRetries(ctx, base, c)
	}
	if c == nil {
		return nil, err
	}

	report := buildReport(req.NewsletterID, subject, len(recipients), c.State, c.Progress, d.now())
	if err != nil {
		return report, err
	}
	d.finish(ctx, report)
	return report, nil
}

// Resume runs the pending retry waves of a newsletter left in the retrying
// state, for example after RetryOrchestrator.InitializeRetry or a restart.
func (d *Dispatcher) Resume(ctx context.Context, id string, settings domain.DeliverySettings) (*Report, error) {
	unlock, err := d.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	n, err := d.repo.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get newsletter", err)
	}
	if _, ok := n.State.(domain.Retrying); !ok {
		return nil, fmt.Errorf("resume %s in state %s: %w", id, n.Status(), ErrNotRetrying)
	}

	html := n.HTMLContent
	if d.tracking != nil {
		if token, err := d.tracking.Token(ctx, id); err == nil {
			html = d.tracking.AddTracking(html, token)
		} else {
			logger.Warn("no analytics for resumed dispatch, sending untracked", "newsletter_id", id, "error", err)
		}
	}

	base := sending.ChunkRequest{NewsletterID: id, HTML: html, Subject: n.Subject, Settings: settings}
	c, err := d.runRetries(ctx, base, &Completion{State: n.State, Progress: n.Progress})
	if c == nil {
		return nil, err
	}
	recipients := c.Progress.Initial.TotalSent + c.Progress.Initial.TotalFailed
	report := buildReport(id, n.Subject, recipients, c.State, c.Progress, d.now())
	if err != nil {
		return report, err
	}
	d.finish(ctx, report)
	return report, nil
}

// runRetries runs retry waves while c is in the retrying state. It returns
// the last completion, which is c itself when no wave ran.
func (d *Dispatcher) runRetries(ctx context.Context, base sending.ChunkRequest, c *Completion) (*Completion, error) {
	for {
		retrying, ok := c.State.(domain.Retrying)
		if !ok {
			return c, nil
		}
		if err := ctx.Err(); err != nil {
			return c, err
		}
		d.sleep(base.Settings.RetryWaveDelay)
		logger.Info("retry wave starting",
			"newsletter_id", base.NewsletterID, "stage", retrying.Stage, "addresses", len(retrying.FailedEmails))
		next, err := d.runWave(ctx, base, domain.WaveRef(retrying.Stage), retrying.FailedEmails, StageChunkSize(c.Progress))
		if next != nil {
			c = next
		}
		if err != nil {
			return c, err
		}
		if r, ok := c.State.(domain.Retrying); ok && r.Stage == retrying.Stage {
			return c, fmt.Errorf("retry stage %d of %s did not complete", r.Stage, base.NewsletterID)
		}
	}
}

// lock takes the per-newsletter dispatch lock and keeps it alive until the
// returned func is called.
func (d *Dispatcher) lock(ctx context.Context, id string) (func(), error) {
	if d.locker == nil {
		return func() {}, nil
	}
	lock := d.locker("newsletter-dispatch:" + id)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire dispatch lock: %w", err)
	}
	if !ok {
		return nil, ErrAlreadyDispatching
	}
	stop := distlock.Keepalive(lock, DispatchLockTTL/3, DispatchLockTTL)
	return func() {
		stop()
		if err := lock.Release(context.Background()); err != nil {
			logger.Warn("release dispatch lock failed", "newsletter_id", id, "error", err)
		}
	}, nil
}

// runWave sends recipients in chunks of size and records each result into
// wave. It returns the completion of the last recorded chunk.
func (d *Dispatcher) runWave(ctx context.Context, base sending.ChunkRequest, wave domain.WaveRef, recipients []string, size int) (*Completion, error) {
	chunks := Partition(recipients, size)
	var last *Completion
	for i, chunk := range chunks {
		if i > 0 {
			if err := ctx.Err(); err != nil {
				return last, err
			}
			d.sleep(base.Settings.ChunkDelay)
		}
		req := base
		req.Recipients = chunk
		result := d.chunks.SendChunk(ctx, req)

		c, err := d.aggregator.RecordWaveChunk(ctx, base.NewsletterID, wave, i, len(chunks), result)
		if err != nil {
			return last, err
		}
		last = c
	}
	return last, nil
}

func (d *Dispatcher) instrument(ctx context.Context, id, html string, recipients int) string {
	if d.tracking == nil {
		return html
	}
	a, err := d.tracking.CreateAnalytics(ctx, id, recipients)
	if err != nil {
		logger.Error("analytics setup failed, sending untracked", "newsletter_id", id, "error", err)
		return html
	}
	return d.tracking.AddTracking(html, a.PixelToken)
}

func (d *Dispatcher) finish(ctx context.Context, r *Report) {
	logger.Info("dispatch finished",
		"newsletter_id", r.NewsletterID, "status", string(r.Status),
		"sent", r.Sent, "failed", r.Failed, "waves", r.Waves)
	if d.notifier != nil {
		d.notifier.Notify(ctx, r)
	}
	if d.archive != nil {
		if err := d.archive.Save(ctx, r); err != nil {
			logger.Error("archive delivery report failed", "newsletter_id", r.NewsletterID, "error", err)
		}
	}
}

// Partition splits recipients into consecutive chunks of at most size.
func Partition(recipients []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var chunks [][]string
	for start := 0; start < len(recipients); start += size {
		end := start + size
		if end > len(recipients) {
			end = len(recipients)
		}
		chunks = append(chunks, recipients[start:end])
	}
	return chunks
}

func uniqueRecipients(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, r := range in {
		key := strings.ToLower(sending.CleanEmail(r))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, r)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
