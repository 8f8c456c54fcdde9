package newsletter

import (
	"context"
	"fmt"

	"github.com/osteele/liquid"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/pkg/logger"
	"github.com/ignite/newsletter-engine/internal/service/sending"
)

const failedSampleSize = 10

const adminReportTemplate = `<h2>Newsletter delivery report</h2>
<p><strong>{{ subject | escape }}</strong> finished with status <strong>{{ status }}</strong>.</p>
<ul>
<li>Recipients: {{ recipients }}</li>
<li>Delivered: {{ sent }}</li>
<li>Failed: {{ failed }}</li>
<li>Success rate: {{ success_rate }}%</li>
<li>Waves: {{ waves }}</li>
</ul>
{% if failed_sample.size > 0 %}<p>Failed addresses:</p>
<ul>
{% for email in failed_sample %}<li>{{ email | escape }}</li>
{% endfor %}</ul>
{% if failed_more > 0 %}<p>... and {{ failed_more }} more</p>
{% endif %}{% endif %}`

// AdminNotifier mails a delivery summary to the configured admin address
// through the same transporter manager used for newsletter chunks.
type AdminNotifier struct {
	transports *sending.Manager
	settings   domain.DeliverySettings
	tpl        *liquid.Template
}

// NewAdminNotifier parses the report template once.
func NewAdminNotifier(transports *sending.Manager, settings domain.DeliverySettings) (*AdminNotifier, error) {
	tpl, err := liquid.NewEngine().ParseString(adminReportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse admin report template: %w", err)
	}
	return &AdminNotifier{transports: transports, settings: settings, tpl: tpl}, nil
}

// Render returns the subject and HTML body of the summary for r.
func (n *AdminNotifier) Render(r *Report) (string, string, error) {
	sample := append([]string{}, r.FailedEmails...)
	if len(sample) > failedSampleSize {
		sample = sample[:failedSampleSize]
	}
	body, err := n.tpl.RenderString(liquid.Bindings{
		"subject":       r.Subject,
		"status":        string(r.Status),
		"recipients":    r.Recipients,
		"sent":          r.Sent,
		"failed":        r.Failed,
		"success_rate":  fmt.Sprintf("%.1f", r.SuccessRate),
		"waves":         r.Waves,
		"failed_sample": sample,
		"failed_more":   len(r.FailedEmails) - len(sample),
	})
	if err != nil {
		return "", "", fmt.Errorf("render admin report: %w", err)
	}
	return "Newsletter delivery: " + r.Subject, body, nil
}

// Notify sends the summary. Failures are logged and never affect the send.
func (n *AdminNotifier) Notify(ctx context.Context, r *Report) {
	if n.settings.AdminEmail == "" {
		logger.Debug("admin email not configured, skipping delivery report", "newsletter_id", r.NewsletterID)
		return
	}
	subject, body, err := n.Render(r)
	if err != nil {
		logger.Error("admin report render failed", "newsletter_id", r.NewsletterID, "error", err)
		return
	}

	t := n.transports.CreateAndVerify(ctx, n.settings)
	if t == nil {
		logger.Error("admin report not sent: smtp connection failed", "newsletter_id", r.NewsletterID)
		return
	}
	defer n.transports.Close(t)

	err = t.Send(ctx, &sending.Message{
		FromEmail: n.settings.FromEmail,
		FromName:  n.settings.FromName,
		To:        n.settings.AdminEmail,
		Subject:   subject,
		HTML:      body,
	})
	if err != nil {
		logger.Error("admin report send failed", "newsletter_id", r.NewsletterID, "error", err)
		return
	}
	logger.Info("admin report sent", "newsletter_id", r.NewsletterID)
}
