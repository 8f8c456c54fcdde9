package domain

import "time"

// NewsletterAnalytics is the per-campaign engagement record. PixelToken also
// serves as the analytics token on click-tracking URLs.
type NewsletterAnalytics struct {
	ID              string    `json:"id" db:"id"`
	NewsletterID    string    `json:"newsletter_id" db:"newsletter_id"`
	PixelToken      string    `json:"pixel_token" db:"pixel_token"`
	TotalRecipients int       `json:"total_recipients" db:"total_recipients"`
	TotalOpens      int       `json:"total_opens" db:"total_opens"`
	UniqueOpens     int       `json:"unique_opens" db:"unique_opens"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// NewsletterFingerprint is one anonymized opener of a campaign.
type NewsletterFingerprint struct {
	AnalyticsID string    `json:"analytics_id" db:"analytics_id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	OpenCount   int       `json:"open_count" db:"open_count"`
	FirstOpenAt time.Time `json:"first_open_at" db:"first_open_at"`
	LastOpenAt  time.Time `json:"last_open_at" db:"last_open_at"`
}

// LinkType classifies a tracked link by the content it points at.
type LinkType string

const (
	LinkAppointment  LinkType = "appointment"
	LinkGroup        LinkType = "group"
	LinkStatusReport LinkType = "status_report"
	LinkNewsletter   LinkType = "newsletter"
	LinkPage         LinkType = "page"
)

// NewsletterLinkClick aggregates clicks on one distinct URL of a campaign.
type NewsletterLinkClick struct {
	ID           string    `json:"id" db:"id"`
	AnalyticsID  string    `json:"analytics_id" db:"analytics_id"`
	URL          string    `json:"url" db:"url"`
	LinkType     LinkType  `json:"link_type" db:"link_type"`
	LinkID       string    `json:"link_id,omitempty" db:"link_id"`
	ClickCount   int       `json:"click_count" db:"click_count"`
	UniqueClicks int       `json:"unique_clicks" db:"unique_clicks"`
	FirstClickAt time.Time `json:"first_click_at" db:"first_click_at"`
	LastClickAt  time.Time `json:"last_click_at" db:"last_click_at"`
}

// NewsletterLinkClickFingerprint is one anonymized clicker of a link.
type NewsletterLinkClickFingerprint struct {
	LinkClickID  string    `json:"link_click_id" db:"link_click_id"`
	Fingerprint  string    `json:"fingerprint" db:"fingerprint"`
	ClickCount   int       `json:"click_count" db:"click_count"`
	FirstClickAt time.Time `json:"first_click_at" db:"first_click_at"`
	LastClickAt  time.Time `json:"last_click_at" db:"last_click_at"`
}

// AnalyticsSummary is the read model served to the admin surface.
type AnalyticsSummary struct {
	NewsletterAnalytics
	OpenRate float64               `json:"open_rate"`
	Links    []NewsletterLinkClick `json:"links"`
}
