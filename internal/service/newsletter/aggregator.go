package newsletter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// ReasonNothingDelivered is the failure reason of a wave without successes.
const ReasonNothingDelivered = "no recipient in the wave was delivered"

const maxSaveAttempts = 5

// Completion is the persisted outcome of recording one chunk.
type Completion struct {
	State      domain.NewsletterState
	Progress   domain.Progress
	IsComplete bool
}

// Aggregator records chunk results and drives the newsletter state machine.
// It is the only writer of newsletter status and progress.
type Aggregator struct {
	repo Repository
	now  func() time.Time
}

// NewAggregator creates an aggregator backed by repo.
func NewAggregator(repo Repository) *Aggregator {
	return &Aggregator{repo: repo, now: time.Now}
}

// RecordChunkCompletion stores result at chunkIndex of the active wave and, if
// that completes the wave, resolves the next state:
//
//	no failures             -> Sent
//	failures and successes  -> Retrying (or Failed once the ladder is used up)
//	no successes            -> Failed
//
// Retry planning happens in the same write. Conflicting writers are resolved
// by re-reading and re-applying, which is safe because totals are recomputed
// from the stored chunk array. Repeating the write that completed a wave is
// recognized and leaves the record untouched.
func (a *Aggregator) RecordChunkCompletion(ctx context.Context, id string, chunkIndex, totalChunks int, result domain.ChunkResult) (*Completion, error) {
	return a.record(ctx, id, nil, chunkIndex, totalChunks, result)
}

// RecordWaveChunk is RecordChunkCompletion for an explicit wave. Results for
// a wave that is complete or no longer active are ignored and the current
// record is returned unchanged.
func (a *Aggregator) RecordWaveChunk(ctx context.Context, id string, wave domain.WaveRef, chunkIndex, totalChunks int, result domain.ChunkResult) (*Completion, error) {
	return a.record(ctx, id, &wave, chunkIndex, totalChunks, result)
}

func (a *Aggregator) record(ctx context.Context, id string, target *domain.WaveRef, chunkIndex, totalChunks int, result domain.ChunkResult) (*Completion, error) {
	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		n, err := a.repo.Get(ctx, id)
		if err != nil {
			return nil, storeErr("get newsletter", err)
		}

		p := n.Progress.Clone()
		active := p.ActiveRef()
		ref := active
		if target != nil {
			ref = *target
		} else {
			ref = repeatedWave(&p, active, chunkIndex, totalChunks, result)
		}

		wave := p.Wave(ref)
		if wave == nil {
			return nil, fmt.Errorf("%w: wave %d of %s", ErrChunkOutOfRange, ref, id)
		}
		if ref != active || wave.Completed {
			logger.Debug("chunk result for a closed wave ignored",
				"newsletter_id", id, "wave", int(ref), "chunk", chunkIndex)
			return &Completion{State: n.State, Progress: n.Progress.Clone()}, nil
		}

		complete, err := recordChunk(wave, chunkIndex, totalChunks, result)
		if err != nil {
			return nil, err
		}
		sent, failed := wave.TotalSent, wave.TotalFailed

		state := n.State
		if _, ok := state.(domain.Draft); ok || state == nil {
			state = domain.Sending{StartedAt: a.now()}
		}
		if complete {
			state = a.resolve(&p)
		}

		rev, err := a.repo.SaveProgress(ctx, id, state, p)
		if errors.Is(err, ErrRevisionConflict) {
			logger.Debug("progress revision conflict, retrying", "newsletter_id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, storeErr("save progress", err)
		}
		p.Revision = rev

		if complete {
			logger.Info("wave complete",
				"newsletter_id", id, "status", string(state.Status()),
				"sent", sent, "failed", failed)
		}
		return &Completion{State: state, Progress: p, IsComplete: complete}, nil
	}
	return nil, fmt.Errorf("record chunk %d for %s: %w", chunkIndex, id, ErrRevisionConflict)
}

// repeatedWave returns the wave a result without an explicit wave belongs
// to. That is the active wave, unless the active wave is a retry stage with
// nothing recorded yet and the result repeats the write that completed the
// wave before it.
func repeatedWave(p *domain.Progress, active domain.WaveRef, index, total int, result domain.ChunkResult) domain.WaveRef {
	if w := p.Wave(active); w == nil || w.TotalChunks > 0 {
		return active
	}
	prev, ok := active.Previous()
	if !ok {
		return active
	}
	w := p.Wave(prev)
	if w == nil || !w.Completed || w.TotalChunks != total || index < 0 || index >= len(w.ChunkResults) {
		return active
	}
	if stored := w.ChunkResults[index]; stored != nil && stored.Same(result) {
		return prev
	}
	return active
}

func (a *Aggregator) resolve(p *domain.Progress) domain.NewsletterState {
	wave := p.ActiveWave()
	failed := CollectFailed(wave.ChunkResults)
	now := a.now()

	switch {
	case wave.TotalFailed == 0 || len(failed) == 0:
		if p.Retry != nil {
			p.Retry.InProgress = false
			p.Retry.FailedEmails = nil
		}
		return domain.Sent{SentAt: now}
	case wave.TotalSent == 0:
		if p.Retry != nil {
			p.Retry.InProgress = false
			p.Retry.FailedEmails = failed
		}
		return domain.Failed{Reason: ReasonNothingDelivered, FailedEmails: failed, FailedAt: now}
	default:
		return planRetry(p, failed, now)
	}
}
