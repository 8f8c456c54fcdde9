package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/analytics"
	"github.com/ignite/newsletter-engine/internal/service/newsletter"
)

type stubNewsletters map[string]*domain.Newsletter

func (s stubNewsletters) Get(_ context.Context, id string) (*domain.Newsletter, error) {
	n, ok := s[id]
	if !ok {
		return nil, newsletter.ErrNotFound
	}
	return n, nil
}

type stubDispatcher struct {
	mu       sync.Mutex
	requests []newsletter.Request
	release  chan struct{}
}

func (d *stubDispatcher) Dispatch(_ context.Context, req newsletter.Request) (*newsletter.Report, error) {
	d.mu.Lock()
	d.requests = append(d.requests, req)
	d.mu.Unlock()
	if d.release != nil {
		<-d.release
	}
	return &newsletter.Report{NewsletterID: req.NewsletterID, Status: domain.StatusSent}, nil
}

type stubAnalytics struct {
	summary *domain.AnalyticsSummary
	created []int
}

func (a *stubAnalytics) CreateAnalytics(_ context.Context, id string, total int) (*domain.NewsletterAnalytics, error) {
	a.created = append(a.created, total)
	return &domain.NewsletterAnalytics{ID: "a1", NewsletterID: id, PixelToken: "tok", TotalRecipients: total}, nil
}

func (a *stubAnalytics) Summary(_ context.Context, id string) (*domain.AnalyticsSummary, error) {
	if a.summary == nil || a.summary.NewsletterID != id {
		return nil, analytics.ErrNotFound
	}
	return a.summary, nil
}

type fixture struct {
	h          *Handlers
	router     http.Handler
	dispatcher *stubDispatcher
	analytics  *stubAnalytics
}

func newFixture(t *testing.T, newsletters stubNewsletters) *fixture {
	t.Helper()
	f := &fixture{dispatcher: &stubDispatcher{}, analytics: &stubAnalytics{}}
	f.h = NewHandlers(context.Background(), newsletters, f.dispatcher, f.analytics,
		domain.DeliverySettings{ChunkSize: 10, RetryChunkSizes: "10,5,1"})
	f.router = SetupRoutes(f.h, []string{"*"})
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func draft(id string) *domain.Newsletter {
	return &domain.Newsletter{ID: id, Subject: "March", State: domain.Draft{}}
}

func TestHandleDispatchAccepted(t *testing.T) {
	f := newFixture(t, stubNewsletters{"n1": draft("n1")})

	w := f.do(http.MethodPost, "/api/newsletters/n1/dispatch",
		`{"recipients":["a@x.com","b@x.com"],"subject":"Hello"}`)
	f.h.Wait()

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"status":"accepted","newsletter_id":"n1","recipients":2}`, w.Body.String())
	require.Len(t, f.dispatcher.requests, 1)
	req := f.dispatcher.requests[0]
	assert.Equal(t, "n1", req.NewsletterID)
	assert.Equal(t, "Hello", req.Subject)
	assert.Equal(t, 10, req.Settings.ChunkSize)
}

func TestHandleDispatchRejectsConcurrentRun(t *testing.T) {
	f := newFixture(t, stubNewsletters{"n1": draft("n1")})
	f.dispatcher.release = make(chan struct{})

	first := f.do(http.MethodPost, "/api/newsletters/n1/dispatch", `{"recipients":["a@x.com"]}`)
	second := f.do(http.MethodPost, "/api/newsletters/n1/dispatch", `{"recipients":["a@x.com"]}`)
	close(f.dispatcher.release)
	f.h.Wait()

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusConflict, second.Code)

	third := f.do(http.MethodPost, "/api/newsletters/n1/dispatch", `{"recipients":["a@x.com"]}`)
	f.h.Wait()
	assert.Equal(t, http.StatusAccepted, third.Code, "slot is freed once the dispatch returns")
}

func TestHandleDispatchStoredSendingStatus(t *testing.T) {
	n := draft("n1")
	n.State = domain.Sending{StartedAt: time.Now()}
	f := newFixture(t, stubNewsletters{"n1": n})

	w := f.do(http.MethodPost, "/api/newsletters/n1/dispatch", `{"recipients":["a@x.com"]}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(http.MethodPost, "/api/newsletters/n1/dispatch", `{"recipients":["a@x.com"],"force":true}`)
	f.h.Wait()
	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestHandleDispatchValidation(t *testing.T) {
	f := newFixture(t, stubNewsletters{"n1": draft("n1")})

	tests := []struct {
		name string
		path string
		body string
		code int
	}{
		{"empty body", "/api/newsletters/n1/dispatch", "", http.StatusBadRequest},
		{"no recipients", "/api/newsletters/n1/dispatch", `{"recipients":[]}`, http.StatusBadRequest},
		{"malformed", "/api/newsletters/n1/dispatch", `{"recipients":`, http.StatusBadRequest},
		{"unknown newsletter", "/api/newsletters/n9/dispatch", `{"recipients":["a@x.com"]}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, w.Code)
		})
	}
	assert.Empty(t, f.dispatcher.requests)
}

func TestHandleProgress(t *testing.T) {
	n := draft("n1")
	n.State = domain.Retrying{FailedEmails: []string{"c@x.com"}, Stage: 0}
	n.Progress = domain.Progress{
		Revision: 4,
		Initial: domain.Wave{
			TotalChunks:  2,
			ChunkResults: []*domain.ChunkResult{{SentCount: 2}, {SentCount: 0, FailedCount: 1}},
			TotalSent:    2,
			TotalFailed:  1,
			Completed:    true,
		},
		Retry: &domain.RetryState{
			InProgress:   true,
			FailedEmails: []string{"c@x.com"},
			ChunkSizes:   []int{10, 5, 1},
			Stages:       []domain.Wave{{TotalChunks: 1, ChunkResults: []*domain.ChunkResult{nil}}},
		},
	}
	f := newFixture(t, stubNewsletters{"n1": n})

	w := f.do(http.MethodGet, "/api/newsletters/n1/progress", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got progressView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, domain.StatusRetrying, got.Status)
	assert.Equal(t, int64(4), got.Revision)
	assert.Equal(t, waveView{TotalChunks: 2, CompletedChunks: 2, Sent: 2, Failed: 1, Completed: true}, got.Initial)
	require.NotNil(t, got.Retry)
	assert.True(t, got.Retry.InProgress)
	assert.Equal(t, []string{"c@x.com"}, got.Retry.FailedEmails)
	require.Len(t, got.Retry.Stages, 1)
	assert.Equal(t, 0, got.Retry.Stages[0].CompletedChunks)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/newsletters/n9/progress", "").Code)
}

func TestHandleAnalytics(t *testing.T) {
	f := newFixture(t, stubNewsletters{"n1": draft("n1")})

	w := f.do(http.MethodPost, "/api/newsletters/n1/analytics", `{"total_recipients":120}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"pixel_token":"tok"`)
	assert.Equal(t, []int{120}, f.analytics.created)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/newsletters/n9/analytics", `{"total_recipients":1}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/newsletters/n1/analytics", "").Code)

	f.analytics.summary = &domain.AnalyticsSummary{
		NewsletterAnalytics: domain.NewsletterAnalytics{NewsletterID: "n1", TotalRecipients: 4, UniqueOpens: 1},
		OpenRate:            0.25,
		Links:               []domain.NewsletterLinkClick{},
	}
	w = f.do(http.MethodGet, "/api/newsletters/n1/analytics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"open_rate":0.25`)
}

func TestSetupRoutesMountsExtraRoutes(t *testing.T) {
	f := newFixture(t, stubNewsletters{})
	router := SetupRoutes(f.h, nil, func(r chi.Router) {
		r.Get("/track/ping", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/track/ping", nil))
	assert.Equal(t, http.StatusTeapot, w.Code)

	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
