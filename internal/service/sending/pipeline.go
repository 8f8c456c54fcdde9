package sending

import (
	"context"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
)

// ReasonConnectionFailed is recorded for every valid address of a chunk whose
// relay connection could not be established.
const ReasonConnectionFailed = "SMTP connection failed"

// Pipeline runs one chunk through validation, connection and delivery.
type Pipeline struct {
	manager *Manager
	sender  *ChunkSender
	now     func() time.Time
}

// NewPipeline creates a pipeline on top of manager.
func NewPipeline(manager *Manager) *Pipeline {
	return &Pipeline{manager: manager, sender: NewChunkSender(manager), now: time.Now}
}

// SendChunk delivers one chunk and returns a result covering every submitted
// address, valid or not. It opens at most one verified connection and always
// closes it. A chunk with no valid addresses never touches the relay.
func (p *Pipeline) SendChunk(ctx context.Context, req ChunkRequest) domain.ChunkResult {
	batch := ProcessBatch(req.Recipients)
	if len(batch.Valid) == 0 {
		return domain.NewChunkResult(batch.Rejected, p.now())
	}

	t := p.manager.CreateAndVerify(ctx, req.Settings)
	if t == nil {
		results := make([]domain.EmailSendResult, 0, len(req.Recipients))
		for _, email := range batch.Valid {
			results = append(results, domain.Rejected(email, ReasonConnectionFailed))
		}
		return domain.NewChunkResult(append(results, batch.Rejected...), p.now())
	}

	req.Recipients = batch.Valid
	outcome, live := p.sender.Send(ctx, t, req)
	p.manager.Close(live)

	result := domain.NewChunkResult(append(outcome.Results, batch.Rejected...), p.now())
	logger.Info("chunk delivered",
		"newsletter_id", req.NewsletterID,
		"sent", result.SentCount,
		"failed", result.FailedCount)
	return result
}
