package domain

import "time"

// EmailSendResult is the outcome of one attempted address.
type EmailSendResult struct {
	Email   string `json:"email"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Delivered returns a successful result for email.
func Delivered(email string) EmailSendResult {
	return EmailSendResult{Email: email, Success: true}
}

// Rejected returns a failed result for email carrying reason.
func Rejected(email, reason string) EmailSendResult {
	return EmailSendResult{Email: email, Error: reason}
}

// ChunkResult is the outcome of one chunk. SentCount + FailedCount always
// equals len(Results).
type ChunkResult struct {
	SentCount   int               `json:"sent_count"`
	FailedCount int               `json:"failed_count"`
	CompletedAt time.Time         `json:"completed_at"`
	Results     []EmailSendResult `json:"results"`
}

// NewChunkResult counts results and stamps the completion time.
func NewChunkResult(results []EmailSendResult, completedAt time.Time) ChunkResult {
	cr := ChunkResult{CompletedAt: completedAt, Results: results}
	for _, r := range results {
		if r.Success {
			cr.SentCount++
		} else {
			cr.FailedCount++
		}
	}
	return cr
}

// Wave is one pass over a recipient set: the initial send, or one retry stage.
// ChunkResults is indexed by chunk position; unrecorded chunks are nil.
type Wave struct {
	TotalChunks  int            `json:"total_chunks"`
	ChunkResults []*ChunkResult `json:"chunk_results"`
	TotalSent    int            `json:"total_sent"`
	TotalFailed  int            `json:"total_failed"`
	Completed    bool           `json:"completed"`
}

// RetryState tracks re-delivery of failed addresses through the retry ladder.
type RetryState struct {
	InProgress   bool     `json:"retry_in_progress"`
	FailedEmails []string `json:"failed_emails"`
	ChunkSizes   []int    `json:"retry_chunk_sizes"`
	CurrentStage int      `json:"current_retry_stage"`
	Stages       []Wave   `json:"retry_results"`
}

// Progress is the typed, versioned delivery record of a newsletter.
// Revision is the optimistic-concurrency token; it is stored beside the
// JSON document, not inside it.
type Progress struct {
	Revision int64       `json:"-"`
	Ladder   []int       `json:"retry_ladder,omitempty"`
	Initial  Wave        `json:"initial"`
	Retry    *RetryState `json:"retry,omitempty"`
}

// WaveRef names a wave of a progress record: InitialWave or a retry stage
// index.
type WaveRef int

// InitialWave refers to the first send over the full recipient list.
const InitialWave WaveRef = -1

// ActiveRef returns the wave new chunk results belong to.
func (p *Progress) ActiveRef() WaveRef {
	if p.Retry != nil && p.Retry.InProgress && p.Retry.CurrentStage < len(p.Retry.Stages) {
		return WaveRef(p.Retry.CurrentStage)
	}
	return InitialWave
}

// ActiveWave returns the wave new chunk results belong to.
func (p *Progress) ActiveWave() *Wave {
	return p.Wave(p.ActiveRef())
}

// Wave returns the wave ref points at, or nil when it does not exist.
func (p *Progress) Wave(ref WaveRef) *Wave {
	if ref == InitialWave {
		return &p.Initial
	}
	if ref < 0 || p.Retry == nil || int(ref) >= len(p.Retry.Stages) {
		return nil
	}
	return &p.Retry.Stages[ref]
}

// Previous returns the wave before ref; the initial wave has none.
func (ref WaveRef) Previous() (WaveRef, bool) {
	if ref <= InitialWave {
		return InitialWave, false
	}
	return ref - 1, true
}

// Same reports whether c and o record the same outcome. Completion times are
// compared as instants so a stored round trip still matches.
func (c ChunkResult) Same(o ChunkResult) bool {
	if c.SentCount != o.SentCount || c.FailedCount != o.FailedCount ||
		!c.CompletedAt.Equal(o.CompletedAt) || len(c.Results) != len(o.Results) {
		return false
	}
	for i := range c.Results {
		if c.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so a failed write never leaks partial mutations.
func (p Progress) Clone() Progress {
	out := p
	out.Ladder = append([]int(nil), p.Ladder...)
	out.Initial = p.Initial.clone()
	if p.Retry != nil {
		r := *p.Retry
		r.FailedEmails = append([]string(nil), p.Retry.FailedEmails...)
		r.ChunkSizes = append([]int(nil), p.Retry.ChunkSizes...)
		r.Stages = make([]Wave, len(p.Retry.Stages))
		for i, w := range p.Retry.Stages {
			r.Stages[i] = w.clone()
		}
		out.Retry = &r
	}
	return out
}

func (w Wave) clone() Wave {
	out := w
	out.ChunkResults = make([]*ChunkResult, len(w.ChunkResults))
	for i, cr := range w.ChunkResults {
		if cr == nil {
			continue
		}
		c := *cr
		c.Results = append([]EmailSendResult(nil), cr.Results...)
		out.ChunkResults[i] = &c
	}
	return out
}
