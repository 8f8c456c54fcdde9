package newsletter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// DefaultRetryChunkSizes is the retry ladder used when none is configured.
const DefaultRetryChunkSizes = "10,5,1"

// ReasonLadderExhausted is the failure reason once the last retry wave
// still leaves undelivered addresses.
const ReasonLadderExhausted = "retry ladder exhausted"

// ParseLadder parses a comma-separated list of positive chunk sizes.
// Invalid entries are skipped; an empty result yields the default ladder.
func ParseLadder(s string) []int {
	var sizes []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n <= 0 {
			continue
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return []int{10, 5, 1}
	}
	return sizes
}

// planRetry moves p to the next retry stage for failed and returns the
// resulting state: Retrying while the ladder has stages left, Failed after.
func planRetry(p *domain.Progress, failed []string, now time.Time) domain.NewsletterState {
	ladder := p.Ladder
	if len(ladder) == 0 {
		ladder = ParseLadder(DefaultRetryChunkSizes)
	}

	stage := 0
	if p.Retry != nil && p.Retry.InProgress {
		stage = p.Retry.CurrentStage + 1
	}
	if p.Retry == nil {
		p.Retry = &domain.RetryState{ChunkSizes: append([]int(nil), ladder...)}
	}
	p.Retry.FailedEmails = append([]string(nil), failed...)

	if stage >= len(ladder) {
		p.Retry.InProgress = false
		return domain.Failed{Reason: ReasonLadderExhausted, FailedEmails: failed, FailedAt: now}
	}

	p.Retry.InProgress = true
	p.Retry.CurrentStage = stage
	for len(p.Retry.Stages) <= stage {
		p.Retry.Stages = append(p.Retry.Stages, domain.Wave{})
	}
	return domain.Retrying{FailedEmails: failed, Stage: stage}
}

// StageChunkSize returns the chunk size of the current retry stage.
func StageChunkSize(p domain.Progress) int {
	if p.Retry == nil || len(p.Retry.ChunkSizes) == 0 {
		return 1
	}
	stage := p.Retry.CurrentStage
	if stage >= len(p.Retry.ChunkSizes) {
		stage = len(p.Retry.ChunkSizes) - 1
	}
	return p.Retry.ChunkSizes[stage]
}

// RetryOrchestrator starts retry ladders from recorded chunk results.
type RetryOrchestrator struct {
	repo Repository
	now  func() time.Time
}

// NewRetryOrchestrator creates an orchestrator backed by repo.
func NewRetryOrchestrator(repo Repository) *RetryOrchestrator {
	return &RetryOrchestrator{repo: repo, now: time.Now}
}

// InitializeRetry persists a fresh retry state for the failed addresses in
// chunkResults, restarting the ladder at its first stage. It does nothing
// when no address failed.
func (o *RetryOrchestrator) InitializeRetry(ctx context.Context, id string, chunkResults []*domain.ChunkResult) error {
	failed := CollectFailed(chunkResults)
	if len(failed) == 0 {
		return nil
	}

	for attempt := 1; attempt <= maxSaveAttempts; attempt++ {
		n, err := o.repo.Get(ctx, id)
		if err != nil {
			return storeErr("get newsletter", err)
		}
		p := n.Progress.Clone()
		p.Retry = nil
		state := planRetry(&p, failed, o.now())

		_, err = o.repo.SaveProgress(ctx, id, state, p)
		if errors.Is(err, ErrRevisionConflict) {
			continue
		}
		if err != nil {
			return storeErr("save retry state", err)
		}
		logger.Info("retry initialized",
			"newsletter_id", id, "failed", len(failed), "ladder", fmt.Sprint(p.Retry.ChunkSizes))
		return nil
	}
	return fmt.Errorf("initialize retry for %s: %w", id, ErrRevisionConflict)
}

func storeErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}
