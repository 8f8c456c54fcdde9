package sending_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ignite/newsletter-engine/internal/service/sending"
)

func TestRenderSubject(t *testing.T) {
	now := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		tpl, layout, want string
	}{
		{"Newsletter {date}", "", "Newsletter 09.03.2026"},
		{"{date} / {date}", "2006-01-02", "2026-03-09 / 2026-03-09"},
		{"No token", "", "No token"},
	}
	for _, tt := range tests {
		if got := sending.RenderSubject(tt.tpl, now, tt.layout); got != tt.want {
			t.Errorf("RenderSubject(%q) = %q, want %q", tt.tpl, got, tt.want)
		}
	}
}

func TestChunkSenderSingleRecipientSendsIndividually(t *testing.T) {
	relay := &fakeRelay{}
	m, _ := newManager(relay)
	tr := m.CreateAndVerify(context.Background(), testSettings())

	out, live := sending.NewChunkSender(m).Send(context.Background(), tr, sending.ChunkRequest{
		Recipients: []string{"solo@x.com"},
		Subject:    "Hello",
		Settings:   testSettings(),
	})

	if live != tr {
		t.Error("expected the original transporter back")
	}
	if out.SentCount != 1 || out.FailedCount != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	msg := relay.sent[0]
	if msg.To != "solo@x.com" || len(msg.Bcc) != 0 {
		t.Errorf("individual send used To=%q Bcc=%v", msg.To, msg.Bcc)
	}
}

func TestChunkSenderBCC(t *testing.T) {
	relay := &fakeRelay{}
	m, _ := newManager(relay)
	tr := m.CreateAndVerify(context.Background(), testSettings())
	s := testSettings()
	s.SubjectTemplate = "Weekly {date}"

	out, _ := sending.NewChunkSender(m).Send(context.Background(), tr, sending.ChunkRequest{
		Recipients: []string{"a@x.com", "b@x.com", "c@x.com"},
		Settings:   s,
	})

	if out.SentCount != 3 || out.FailedCount != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if len(relay.sent) != 1 {
		t.Fatalf("messages sent = %d, want 1", len(relay.sent))
	}
	msg := relay.sent[0]
	if msg.To != s.FromEmail {
		t.Errorf("visible To = %q, want sender %q", msg.To, s.FromEmail)
	}
	if strings.Join(msg.Envelope(), ",") != "a@x.com,b@x.com,c@x.com" {
		t.Errorf("envelope = %v", msg.Envelope())
	}
	if strings.Contains(msg.Subject, "{date}") {
		t.Errorf("subject %q still carries the date token", msg.Subject)
	}
}

func TestChunkSenderRecoversOnceFromConnectionError(t *testing.T) {
	relay := &fakeRelay{sendErrs: []error{errors.New("read: connection reset by peer")}}
	m, _ := newManager(relay)
	tr := m.CreateAndVerify(context.Background(), testSettings())

	out, live := sending.NewChunkSender(m).Send(context.Background(), tr, sending.ChunkRequest{
		Recipients: []string{"a@x.com", "b@x.com"},
		Settings:   testSettings(),
	})

	if out.SentCount != 2 || out.FailedCount != 0 {
		t.Fatalf("outcome = %+v", out)
	}
	if relay.dials != 2 || relay.closes != 1 {
		t.Errorf("dials = %d closes = %d, want one recreation", relay.dials, relay.closes)
	}
	if live == tr || live == nil {
		t.Error("expected the recreated transporter back")
	}
}

func TestChunkSenderGivesUpAfterOneRecovery(t *testing.T) {
	relay := &fakeRelay{sendErrs: []error{
		errors.New("connection reset"),
		errors.New("connection reset again"),
	}}
	m, _ := newManager(relay)
	tr := m.CreateAndVerify(context.Background(), testSettings())

	out, _ := sending.NewChunkSender(m).Send(context.Background(), tr, sending.ChunkRequest{
		Recipients: []string{"a@x.com", "b@x.com"},
		Settings:   testSettings(),
	})

	if out.SentCount != 0 || out.FailedCount != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	for _, r := range out.Results {
		if r.Error != "connection reset again" {
			t.Errorf("result error = %q, want the last underlying error", r.Error)
		}
	}
	if relay.dials != 2 {
		t.Errorf("dials = %d, want 2", relay.dials)
	}
}

func TestChunkSenderDeliveryErrorIsNotRetried(t *testing.T) {
	relay := &fakeRelay{sendErrs: []error{errors.New("552 message size exceeds limit")}}
	m, _ := newManager(relay)
	tr := m.CreateAndVerify(context.Background(), testSettings())

	out, _ := sending.NewChunkSender(m).Send(context.Background(), tr, sending.ChunkRequest{
		Recipients: []string{"a@x.com", "b@x.com"},
		Settings:   testSettings(),
	})

	if out.FailedCount != 2 || relay.dials != 1 {
		t.Errorf("outcome = %+v dials = %d", out, relay.dials)
	}
}

func TestMessageBytesHidesBcc(t *testing.T) {
	msg := &sending.Message{
		FromEmail: "news@portal.test",
		FromName:  "Portal",
		To:        "news@portal.test",
		Bcc:       []string{"secret@x.com"},
		ReplyTo:   "office@portal.test",
		Subject:   "Grüße",
		HTML:      "<p>hi</p>",
	}
	raw, err := msg.Bytes(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	doc := string(raw)
	if strings.Contains(doc, "secret@x.com") {
		t.Error("Bcc address leaked into the message")
	}
	for _, want := range []string{
		"To: news@portal.test\r\n",
		"Reply-To: office@portal.test\r\n",
		"Subject: =?utf-8?q?Gr=C3=BC=C3=9Fe?=\r\n",
		"Content-Transfer-Encoding: quoted-printable\r\n",
		"<p>hi</p>",
	} {
		if !strings.Contains(doc, want) {
			t.Errorf("message missing %q", want)
		}
	}
}
