package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/httputil"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

type dispatchInput struct {
	Recipients []string `json:"recipients"`
	HTML       string   `json:"html"`
	Subject    string   `json:"subject"`
	// Force restarts a newsletter whose stored status is still sending or
	// retrying, e.g. after a crashed dispatch.
	Force bool `json:"force"`
}

// HandleDispatch starts a dispatch in the background and answers 202.
func (h *Handlers) HandleDispatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input dispatchInput
	if !httputil.Decode(w, r, &input) {
		return
	}
	if len(input.Recipients) == 0 {
		httputil.BadRequest(w, "recipients is required")
		return
	}

	n, err := h.newsletters.Get(r.Context(), id)
	if errors.Is(err, newsletter.ErrNotFound) {
		httputil.NotFound(w, "newsletter not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	if s := n.Status(); (s == domain.StatusSending || s == domain.StatusRetrying) && !input.Force {
		httputil.Conflict(w, "newsletter is already being dispatched")
		return
	}
	if !h.claim(id) {
		httputil.Conflict(w, "newsletter is already being dispatched")
		return
	}

	req := newsletter.Request{
		NewsletterID: id,
		Recipients:   input.Recipients,
		HTML:         input.HTML,
		Subject:      input.Subject,
		Settings:     h.settings,
	}
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		defer h.release(id)
		report, err := h.dispatcher.Dispatch(h.base, req)
		if err != nil {
			logger.Error("dispatch failed", "newsletter_id", id, "error", err)
			return
		}
		logger.Info("dispatch completed", "newsletter_id", id, "status", string(report.Status))
	}()

	httputil.Accepted(w, map[string]any{
		"status":        "accepted",
		"newsletter_id": id,
		"recipients":    len(input.Recipients),
	})
}

type waveView struct {
	TotalChunks     int  `json:"total_chunks"`
	CompletedChunks int  `json:"completed_chunks"`
	Sent            int  `json:"sent"`
	Failed          int  `json:"failed"`
	Completed       bool `json:"completed"`
}

type retryView struct {
	InProgress   bool       `json:"in_progress"`
	Stage        int        `json:"stage"`
	ChunkSizes   []int      `json:"chunk_sizes"`
	FailedEmails []string   `json:"failed_emails"`
	Stages       []waveView `json:"stages"`
}

type progressView struct {
	ID       string                  `json:"id"`
	Status   domain.NewsletterStatus `json:"status"`
	Reason   string                  `json:"reason,omitempty"`
	SentAt   *time.Time              `json:"sent_at,omitempty"`
	Initial  waveView                `json:"initial"`
	Retry    *retryView              `json:"retry,omitempty"`
	Revision int64                   `json:"revision"`
}

func viewWave(w domain.Wave) waveView {
	v := waveView{
		TotalChunks: w.TotalChunks,
		Sent:        w.TotalSent,
		Failed:      w.TotalFailed,
		Completed:   w.Completed,
	}
	for _, c := range w.ChunkResults {
		if c != nil {
			v.CompletedChunks++
		}
	}
	return v
}

// HandleProgress returns the delivery state of a newsletter.
func (h *Handlers) HandleProgress(w http.ResponseWriter, r *http.Request) {
	n, err := h.newsletters.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, newsletter.ErrNotFound) {
		httputil.NotFound(w, "newsletter not found")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}

	v := progressView{
		ID:       n.ID,
		Status:   n.Status(),
		Initial:  viewWave(n.Progress.Initial),
		SentAt:   n.SentAt(),
		Revision: n.Progress.Revision,
	}
	if f, ok := n.State.(domain.Failed); ok {
		v.Reason = f.Reason
	}
	if rs := n.Progress.Retry; rs != nil {
		rv := &retryView{
			InProgress:   rs.InProgress,
			Stage:        rs.CurrentStage,
			ChunkSizes:   rs.ChunkSizes,
			FailedEmails: rs.FailedEmails,
		}
		for _, s := range rs.Stages {
			rv.Stages = append(rv.Stages, viewWave(s))
		}
		v.Retry = rv
	}
	httputil.OK(w, v)
}
