package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(DEBUG)
	SetRedactPII(true)
	t.Cleanup(func() {
		SetOutput(os.Stderr)
		SetLevel(INFO)
	})
	return &buf
}

func decode(t *testing.T, buf *bytes.Buffer) map[string]string {
	t.Helper()
	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return entry
}

func TestRedactsAddresses(t *testing.T) {
	buf := capture(t)
	Info("chunk sent", "email", "john.doe@example.com", "note", "cc alice@example.org")

	entry := decode(t, buf)
	if entry["email"] != "jo***@example.com" {
		t.Errorf("email = %q", entry["email"])
	}
	if entry["note"] != "cc al***@example.org" {
		t.Errorf("note = %q", entry["note"])
	}
	if entry["level"] != "INFO" || entry["msg"] != "chunk sent" {
		t.Errorf("unexpected envelope: %v", entry)
	}
}

func TestMasksMalformedAddressFields(t *testing.T) {
	buf := capture(t)
	Warn("rejected", "recipient", "not-an-address")
	if got := decode(t, buf)["recipient"]; got != "***" {
		t.Errorf("recipient = %q, want ***", got)
	}
}

func TestWithAddsFields(t *testing.T) {
	buf := capture(t)
	With("newsletter_id", "n-1").Error("save failed", "error", errors.New("boom"))

	entry := decode(t, buf)
	if entry["newsletter_id"] != "n-1" || entry["error"] != "boom" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t)
	SetLevel(WARN)
	Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("INFO entry written at WARN level: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{"debug": DEBUG, "WARN": WARN, "warning": WARN, "error": ERROR, "": INFO, "bogus": INFO}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestEmailDomain(t *testing.T) {
	tests := map[string]string{"a@Example.COM": "example.com", "nope": "", "trailing@": ""}
	for in, want := range tests {
		if got := EmailDomain(in); got != want {
			t.Errorf("EmailDomain(%q) = %q, want %q", in, got, want)
		}
	}
}
