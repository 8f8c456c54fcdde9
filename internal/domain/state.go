package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// NewsletterStatus enumerates the persisted lifecycle states of a newsletter.
type NewsletterStatus string

const (
	StatusDraft    NewsletterStatus = "draft"
	StatusSending  NewsletterStatus = "sending"
	StatusRetrying NewsletterStatus = "retrying"
	StatusSent     NewsletterStatus = "sent"
	StatusFailed   NewsletterStatus = "failed"
)

// IsTerminal returns true if no further delivery work follows this status.
func (s NewsletterStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

// NewsletterState is the lifecycle state of a newsletter. Each variant carries
// only the fields that are meaningful in that state.
type NewsletterState interface {
	Status() NewsletterStatus
	isNewsletterState()
}

// Draft is the state of a newsletter that has never been dispatched.
type Draft struct{}

// Sending is the state while the initial wave of chunks is in flight.
type Sending struct {
	StartedAt time.Time `json:"started_at"`
}

// Retrying is the state while failed addresses are re-delivered in waves.
type Retrying struct {
	FailedEmails []string `json:"failed_emails"`
	Stage        int      `json:"stage"`
}

// Sent is the terminal state once every address has been delivered.
type Sent struct {
	SentAt time.Time `json:"sent_at"`
}

// Failed is the terminal state of a wave that ended without delivering
// its residual addresses.
type Failed struct {
	Reason       string    `json:"reason"`
	FailedEmails []string  `json:"failed_emails,omitempty"`
	FailedAt     time.Time `json:"failed_at"`
}

func (Draft) Status() NewsletterStatus    { return StatusDraft }
func (Sending) Status() NewsletterStatus  { return StatusSending }
func (Retrying) Status() NewsletterStatus { return StatusRetrying }
func (Sent) Status() NewsletterStatus     { return StatusSent }
func (Failed) Status() NewsletterStatus   { return StatusFailed }

func (Draft) isNewsletterState()    {}
func (Sending) isNewsletterState()  {}
func (Retrying) isNewsletterState() {}
func (Sent) isNewsletterState()     {}
func (Failed) isNewsletterState()   {}

// EncodeState splits a state into its status column and a JSON detail blob.
func EncodeState(s NewsletterState) (NewsletterStatus, []byte, error) {
	if s == nil {
		s = Draft{}
	}
	detail, err := json.Marshal(s)
	if err != nil {
		return "", nil, fmt.Errorf("encode %s state: %w", s.Status(), err)
	}
	return s.Status(), detail, nil
}

// DecodeState rebuilds a state from its status column and JSON detail blob.
// An empty detail yields the zero value of the variant.
func DecodeState(status NewsletterStatus, detail []byte) (NewsletterState, error) {
	var dst NewsletterState
	switch status {
	case StatusDraft, "":
		return Draft{}, nil
	case StatusSending:
		var v Sending
		if err := unmarshalDetail(detail, &v); err != nil {
			return nil, err
		}
		dst = v
	case StatusRetrying:
		var v Retrying
		if err := unmarshalDetail(detail, &v); err != nil {
			return nil, err
		}
		dst = v
	case StatusSent:
		var v Sent
		if err := unmarshalDetail(detail, &v); err != nil {
			return nil, err
		}
		dst = v
	case StatusFailed:
		var v Failed
		if err := unmarshalDetail(detail, &v); err != nil {
			return nil, err
		}
		dst = v
	default:
		return nil, fmt.Errorf("unknown newsletter status %q", status)
	}
	return dst, nil
}

func unmarshalDetail(detail []byte, v any) error {
	if len(detail) == 0 || string(detail) == "null" {
		return nil
	}
	if err := json.Unmarshal(detail, v); err != nil {
		return fmt.Errorf("decode state detail: %w", err)
	}
	return nil
}
