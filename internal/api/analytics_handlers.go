package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter-engine/internal/pkg/httputil"
	"github.com/ignite/newsletter-engine/internal/service/analytics"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

// HandleCreateAnalytics provisions tracking for a send prepared outside the
// dispatcher and returns the pixel token.
func (h *Handlers) HandleCreateAnalytics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var input struct {
		TotalRecipients int `json:"total_recipients"`
	}
	if !httputil.Decode(w, r, &input) {
		return
	}
	if input.TotalRecipients < 0 {
		httputil.BadRequest(w, "total_recipients must not be negative")
		return
	}

	if _, err := h.newsletters.Get(r.Context(), id); err != nil {
		if errors.Is(err, newsletter.ErrNotFound) {
			httputil.NotFound(w, "newsletter not found")
			return
		}
		httputil.InternalError(w, err)
		return
	}

	a, err := h.analytics.CreateAnalytics(r.Context(), id, input.TotalRecipients)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, a)
}

// HandleAnalytics returns open and click totals of the latest send.
func (h *Handlers) HandleAnalytics(w http.ResponseWriter, r *http.Request) {
	s, err := h.analytics.Summary(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, analytics.ErrNotFound) {
		httputil.NotFound(w, "no analytics for newsletter")
		return
	}
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, s)
}
