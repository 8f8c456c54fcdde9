package tracking

import (
	"context"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter-engine/internal/service/analytics"
)

// 1x1 transparent GIF (43 bytes)
var pixelGIF = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00,
	0x80, 0x00, 0x00, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x21,
	0xf9, 0x04, 0x01, 0x00, 0x00, 0x00, 0x00, 0x2c, 0x00, 0x00,
	0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3b,
}

// Recorder receives engagement events. *analytics.Tracker records them
// directly; *Publisher forwards them to SQS.
type Recorder interface {
	RecordOpen(ctx context.Context, pixelToken, fingerprint string)
	RecordClick(ctx context.Context, c analytics.Click)
}

type Handler struct {
	rec Recorder
}

func NewHandler(rec Recorder) *Handler {
	return &Handler{rec: rec}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	h.Mount(r)
	return r
}

// Mount registers the tracking routes on an existing router.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/track/pixel/{pixelToken}", h.HandlePixel)
	r.Get("/track/click/{analyticsToken}", h.HandleClick)
	r.Get("/health", h.HandleHealth)
}

// HandlePixel answers with the pixel no matter what happens to the event.
func (h *Handler) HandlePixel(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "pixelToken")
	if token != "" {
		h.rec.RecordOpen(r.Context(), token, fingerprint(r, token))
	}
	h.servePixel(w)
}

func (h *Handler) HandleClick(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "analyticsToken")
	q := r.URL.Query()

	dest, err := analytics.DecodeURL(q.Get("url"))
	if err != nil || dest == "" {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}
	u, err := url.Parse(dest)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		http.Error(w, "bad link", http.StatusBadRequest)
		return
	}

	if token != "" {
		h.rec.RecordClick(r.Context(), analytics.Click{
			Token:       token,
			URL:         dest,
			LinkType:    analytics.NormalizeLinkType(q.Get("type")),
			LinkID:      q.Get("id"),
			Fingerprint: fingerprint(r, token),
		})
	}
	http.Redirect(w, r, dest, http.StatusFound)
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func (h *Handler) servePixel(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "image/gif")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	if _, err := w.Write(pixelGIF); err != nil {
		log.Printf("[tracking] write pixel: %v", err)
	}
}

// fingerprint returns the request's fp parameter when well formed, otherwise
// one derived from the client.
func fingerprint(r *http.Request, token string) string {
	if fp := analytics.NormalizeFingerprint(r.URL.Query().Get("fp")); fp != "" {
		return fp
	}
	return analytics.RequestFingerprint(token, realIP(r), r.UserAgent())
}

func realIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-Ip"); xri != "" {
		return xri
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
