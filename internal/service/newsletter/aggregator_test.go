package newsletter_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

func record(t *testing.T, agg *newsletter.Aggregator, idx, total int, cr domain.ChunkResult) *newsletter.Completion {
	t.Helper()
	c, err := agg.RecordChunkCompletion(context.Background(), "n1", idx, total, cr)
	if err != nil {
		t.Fatalf("record chunk %d: %v", idx, err)
	}
	return c
}

func TestPartialFailureEntersRetry(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)

	c0 := record(t, agg, 0, 3, chunk(ok("a@x.com"), ok("b@x.com")))
	if c0.IsComplete || c0.State.Status() != domain.StatusSending {
		t.Fatalf("after chunk 0: complete=%v status=%s", c0.IsComplete, c0.State.Status())
	}
	record(t, agg, 1, 3, chunk(ok("c@x.com"), fail("d@x.com")))
	c2 := record(t, agg, 2, 3, chunk(ok("e@x.com")))

	if !c2.IsComplete {
		t.Fatal("expected the last chunk to complete the wave")
	}
	if c2.Progress.Initial.TotalSent != 4 || c2.Progress.Initial.TotalFailed != 1 {
		t.Errorf("totals = %d/%d, want 4/1", c2.Progress.Initial.TotalSent, c2.Progress.Initial.TotalFailed)
	}
	retrying, isRetrying := c2.State.(domain.Retrying)
	if !isRetrying {
		t.Fatalf("state = %#v, want Retrying", c2.State)
	}
	if !reflect.DeepEqual(retrying.FailedEmails, []string{"d@x.com"}) || retrying.Stage != 0 {
		t.Errorf("retrying = %+v", retrying)
	}
	rs := c2.Progress.Retry
	if rs == nil || !rs.InProgress || !reflect.DeepEqual(rs.FailedEmails, []string{"d@x.com"}) {
		t.Fatalf("retry state = %+v", rs)
	}
	if !reflect.DeepEqual(rs.ChunkSizes, []int{10, 5, 1}) || rs.CurrentStage != 0 || len(rs.Stages) != 1 {
		t.Errorf("retry ladder = %+v", rs)
	}

	stored := repo.current("n1")
	if stored.Status() != domain.StatusRetrying || stored.Progress.Revision != 3 {
		t.Errorf("stored status=%s revision=%d", stored.Status(), stored.Progress.Revision)
	}
	if stored.SentAt() != nil {
		t.Error("sent_at stamped on a retrying newsletter")
	}
}

func TestRecordingTwiceIsIdempotent(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)
	cr := chunk(ok("a@x.com"), fail("b@x.com"))

	first := record(t, agg, 0, 2, cr)
	second := record(t, agg, 0, 2, cr)

	if first.Progress.Initial.TotalSent != second.Progress.Initial.TotalSent ||
		first.Progress.Initial.TotalFailed != second.Progress.Initial.TotalFailed {
		t.Errorf("totals changed: %+v vs %+v", first.Progress.Initial, second.Progress.Initial)
	}
	if second.Progress.Initial.TotalSent != 1 || second.Progress.Initial.TotalFailed != 1 {
		t.Errorf("totals = %d/%d, want 1/1", second.Progress.Initial.TotalSent, second.Progress.Initial.TotalFailed)
	}
}

func TestRepeatingTheCompletingChunkLeavesRetryAlone(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)

	record(t, agg, 0, 3, chunk(ok("a@x.com"), ok("b@x.com")))
	record(t, agg, 1, 3, chunk(ok("c@x.com"), fail("d@x.com")))
	last := chunk(ok("e@x.com"))
	first := record(t, agg, 2, 3, last)
	saves := repo.saves

	second := record(t, agg, 2, 3, last)

	if second.IsComplete {
		t.Error("repeated write reported a second completion")
	}
	retrying, isRetrying := second.State.(domain.Retrying)
	if !isRetrying || retrying.Stage != 0 || !reflect.DeepEqual(retrying.FailedEmails, []string{"d@x.com"}) {
		t.Fatalf("state = %#v, want retrying stage 0 for d@x.com", second.State)
	}
	if repo.saves != saves {
		t.Errorf("repeated write saved progress (%d saves, want %d)", repo.saves, saves)
	}
	if !reflect.DeepEqual(second.Progress.Initial, first.Progress.Initial) {
		t.Errorf("initial wave changed: %+v", second.Progress.Initial)
	}
	stage := repo.current("n1").Progress.Retry.Stages[0]
	if stage.TotalChunks != 0 || stage.TotalSent != 0 || len(stage.ChunkResults) != 0 {
		t.Errorf("retry stage 0 was written: %+v", stage)
	}
}

func TestRepeatingASingleChunkWaveKeepsTheLadder(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)
	cr := chunk(ok("a@x.com"), fail("b@x.com"))

	record(t, agg, 0, 1, cr)
	c := record(t, agg, 0, 1, cr)

	retrying, isRetrying := c.State.(domain.Retrying)
	if !isRetrying || retrying.Stage != 0 {
		t.Fatalf("state = %#v, want retrying stage 0", c.State)
	}
	if got := repo.current("n1").Progress.Retry.CurrentStage; got != 0 {
		t.Errorf("current stage = %d, want 0", got)
	}
}

func TestRecordWaveChunkIgnoresClosedWaves(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)
	ctx := context.Background()

	record(t, agg, 0, 1, chunk(ok("a@x.com"), fail("b@x.com")))
	saves := repo.saves

	c, err := agg.RecordWaveChunk(ctx, "n1", domain.InitialWave, 0, 1, chunk(ok("a@x.com"), ok("b@x.com")))
	if err != nil {
		t.Fatal(err)
	}
	if c.State.Status() != domain.StatusRetrying || repo.saves != saves {
		t.Errorf("closed initial wave was rewritten: status=%s saves=%d", c.State.Status(), repo.saves)
	}

	if _, err := agg.RecordWaveChunk(ctx, "n1", domain.WaveRef(4), 0, 1, chunk(ok("b@x.com"))); !errors.Is(err, newsletter.ErrChunkOutOfRange) {
		t.Errorf("unknown stage err = %v, want ErrChunkOutOfRange", err)
	}

	c, err = agg.RecordWaveChunk(ctx, "n1", domain.WaveRef(0), 0, 1, chunk(ok("b@x.com")))
	if err != nil {
		t.Fatal(err)
	}
	if !c.IsComplete || c.State.Status() != domain.StatusSent {
		t.Errorf("stage 0: complete=%v status=%s", c.IsComplete, c.State.Status())
	}
}

func TestAllDeliveredIsSent(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)

	record(t, agg, 0, 2, chunk(ok("a@x.com")))
	c := record(t, agg, 1, 2, chunk(ok("b@x.com")))

	if _, isSent := c.State.(domain.Sent); !isSent {
		t.Fatalf("state = %#v, want Sent", c.State)
	}
	if repo.current("n1").SentAt() == nil {
		t.Error("sent_at not stamped")
	}
	if c.Progress.Retry != nil {
		t.Errorf("unexpected retry state %+v", c.Progress.Retry)
	}
}

func TestNothingDeliveredIsFailed(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)

	c := record(t, agg, 0, 1, chunk(fail("a@x.com"), fail("b@x.com")))

	failed, isFailed := c.State.(domain.Failed)
	if !isFailed {
		t.Fatalf("state = %#v, want Failed", c.State)
	}
	if failed.Reason != newsletter.ReasonNothingDelivered || len(failed.FailedEmails) != 2 {
		t.Errorf("failed = %+v", failed)
	}
}

func TestOutOfOrderCompletion(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)

	if c := record(t, agg, 1, 2, chunk(ok("b@x.com"))); c.IsComplete {
		t.Fatal("wave completed with chunk 0 still outstanding")
	}
	c := record(t, agg, 0, 2, chunk(ok("a@x.com")))
	if !c.IsComplete || c.State.Status() != domain.StatusSent {
		t.Errorf("complete=%v status=%s", c.IsComplete, c.State.Status())
	}
}

func TestRetryWavesWalkTheLadder(t *testing.T) {
	repo := newMemRepo("n1")
	agg := newsletter.NewAggregator(repo)
	ctx := context.Background()

	record(t, agg, 0, 1, chunk(ok("a@x.com"), fail("b@x.com"), fail("c@x.com")))

	// Stage 0: b recovers, c still fails.
	c := record(t, agg, 0, 1, chunk(ok("b@x.com"), fail("c@x.com")))
	retrying, isRetrying := c.State.(domain.Retrying)
	if !isRetrying || retrying.Stage != 1 || !reflect.DeepEqual(retrying.FailedEmails, []string{"c@x.com"}) {
		t.Fatalf("after stage 0: %#v", c.State)
	}
	if got := newsletter.StageChunkSize(c.Progress); got != 5 {
		t.Errorf("stage 1 chunk size = %d, want 5", got)
	}
	if c.Progress.Initial.TotalFailed != 2 {
		t.Errorf("initial wave was modified: %+v", c.Progress.Initial)
	}

	// A retry wave with no successes terminates as failed.
	c, err := agg.RecordChunkCompletion(ctx, "n1", 0, 1, chunk(fail("c@x.com")))
	if err != nil {
		t.Fatal(err)
	}
	if c.State.Status() != domain.StatusFailed {
		t.Errorf("status = %s, want failed", c.State.Status())
	}
	if c.Progress.Retry.InProgress {
		t.Error("retry still marked in progress after terminal failure")
	}
}

func TestLadderExhaustion(t *testing.T) {
	repo := newMemRepo("n1")
	repo.newsletters["n1"].Progress.Ladder = []int{2}
	agg := newsletter.NewAggregator(repo)

	record(t, agg, 0, 1, chunk(ok("a@x.com"), fail("b@x.com"), fail("c@x.com")))
	c := record(t, agg, 0, 1, chunk(ok("b@x.com"), fail("c@x.com")))

	failed, isFailed := c.State.(domain.Failed)
	if !isFailed || failed.Reason != newsletter.ReasonLadderExhausted {
		t.Fatalf("state = %#v, want ladder exhaustion", c.State)
	}
	if !reflect.DeepEqual(failed.FailedEmails, []string{"c@x.com"}) {
		t.Errorf("residual = %v", failed.FailedEmails)
	}
}

func TestRevisionConflictIsReapplied(t *testing.T) {
	repo := newMemRepo("n1")
	repo.conflicts = 2
	agg := newsletter.NewAggregator(repo)

	c := record(t, agg, 0, 1, chunk(ok("a@x.com")))
	if c.State.Status() != domain.StatusSent || repo.saves != 1 {
		t.Errorf("status=%s saves=%d", c.State.Status(), repo.saves)
	}
}

func TestPersistentConflictGivesUp(t *testing.T) {
	repo := newMemRepo("n1")
	repo.conflicts = 100
	agg := newsletter.NewAggregator(repo)

	_, err := agg.RecordChunkCompletion(context.Background(), "n1", 0, 1, chunk(ok("a@x.com")))
	if !errors.Is(err, newsletter.ErrRevisionConflict) {
		t.Errorf("err = %v, want ErrRevisionConflict", err)
	}
}

func TestStoreFailureIsTyped(t *testing.T) {
	repo := newMemRepo("n1")
	repo.saveErr = errors.New("connection refused")
	agg := newsletter.NewAggregator(repo)

	_, err := agg.RecordChunkCompletion(context.Background(), "n1", 0, 1, chunk(ok("a@x.com")))
	var storeErr *domain.StoreError
	if !errors.As(err, &storeErr) {
		t.Fatalf("err = %v, want *domain.StoreError", err)
	}

	_, err = agg.RecordChunkCompletion(context.Background(), "missing", 0, 1, chunk(ok("a@x.com")))
	if !errors.Is(err, newsletter.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestInitializeRetry(t *testing.T) {
	repo := newMemRepo("n1")
	o := newsletter.NewRetryOrchestrator(repo)
	ctx := context.Background()

	clean := chunk(ok("a@x.com"))
	if err := o.InitializeRetry(ctx, "n1", []*domain.ChunkResult{&clean}); err != nil {
		t.Fatal(err)
	}
	if repo.saves != 0 {
		t.Fatalf("saves = %d, want no-op without failures", repo.saves)
	}

	a := chunk(ok("a@x.com"), fail("b@x.com"))
	b := chunk(fail("b@x.com"), fail("c@x.com"))
	if err := o.InitializeRetry(ctx, "n1", []*domain.ChunkResult{&a, &b}); err != nil {
		t.Fatal(err)
	}
	n := repo.current("n1")
	if n.Status() != domain.StatusRetrying {
		t.Errorf("status = %s", n.Status())
	}
	rs := n.Progress.Retry
	if rs == nil || !rs.InProgress || rs.CurrentStage != 0 {
		t.Fatalf("retry = %+v", rs)
	}
	if !reflect.DeepEqual(rs.FailedEmails, []string{"b@x.com", "c@x.com"}) {
		t.Errorf("failed = %v", rs.FailedEmails)
	}
}
