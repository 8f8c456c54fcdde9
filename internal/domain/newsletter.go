package domain

import "time"

// Newsletter is one outbound campaign. Status and Progress are owned by the
// progress aggregator; everything else is written by the content collaborator.
type Newsletter struct {
	ID          string          `json:"id" db:"id"`
	Subject     string          `json:"subject" db:"subject"`
	HTMLContent string          `json:"html_content" db:"html_content"`
	State       NewsletterState `json:"-"`
	Progress    Progress        `json:"progress" db:"progress"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
}

// Status returns the persisted status string of the newsletter's state.
func (n *Newsletter) Status() NewsletterStatus {
	if n.State == nil {
		return StatusDraft
	}
	return n.State.Status()
}

// SentAt returns the delivery completion time, set only for sent newsletters.
func (n *Newsletter) SentAt() *time.Time {
	if s, ok := n.State.(Sent); ok {
		t := s.SentAt
		return &t
	}
	return nil
}
