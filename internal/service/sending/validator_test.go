package sending_test

import (
	"testing"

	"github.com/ignite/newsletter-engine/internal/service/sending"
)

func TestCleanEmail(t *testing.T) {
	tests := []struct {
		raw, want string
	}{
		{"  a@x.com ", "a@x.com"},
		{"a\u200b@x.com", "a@x.com"},
		{"\ufeffa@x.com\u00a0", "a@x.com"},
		{"a\u200c\u200d\u2060@x.com", "a@x.com"},
		{"plain@x.com", "plain@x.com"},
	}
	for _, tt := range tests {
		if got := sending.CleanEmail(tt.raw); got != tt.want {
			t.Errorf("CleanEmail(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestValidateEmail(t *testing.T) {
	valid := []string{"a@x.com", "first.last+tag@sub.example.org", "o'neil@x.co"}
	invalid := []string{"", "bad", "a@x", "@x.com", "a b@x.com", "a@@x.com"}
	for _, e := range valid {
		if !sending.ValidateEmail(e) {
			t.Errorf("ValidateEmail(%q) = false, want true", e)
		}
	}
	for _, e := range invalid {
		if sending.ValidateEmail(e) {
			t.Errorf("ValidateEmail(%q) = true, want false", e)
		}
	}
}

func TestProcessBatch(t *testing.T) {
	b := sending.ProcessBatch([]string{"a@x.com", "bad", " b@x.com\u200b"})

	if len(b.Valid) != 2 || b.Valid[0] != "a@x.com" || b.Valid[1] != "b@x.com" {
		t.Fatalf("Valid = %v", b.Valid)
	}
	if len(b.Rejected) != 1 {
		t.Fatalf("Rejected = %v", b.Rejected)
	}
	r := b.Rejected[0]
	if r.Email != "bad" || r.Success || r.Error != sending.ReasonInvalidAddress {
		t.Errorf("rejected result = %+v", r)
	}
}
