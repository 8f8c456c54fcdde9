package sending

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/ignite/newsletter-engine/internal/domain"
)

// SESAPI is the part of the SES v2 client used for delivery.
type SESAPI interface {
	GetAccount(ctx context.Context, in *sesv2.GetAccountInput, optFns ...func(*sesv2.Options)) (*sesv2.GetAccountOutput, error)
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// SESDialer relays messages through the SES v2 API instead of an SMTP
// session. The rendered MIME document is sent as a raw message, so both
// delivery modes behave as they do over SMTP.
type SESDialer struct {
	Client           SESAPI
	ConfigurationSet string
}

// Dial returns a transporter bound to the shared SES client.
func (d SESDialer) Dial(_ context.Context, s domain.DeliverySettings) (Transporter, error) {
	if d.Client == nil {
		return nil, fmt.Errorf("ses client not configured")
	}
	return &sesTransport{client: d.Client, configSet: d.ConfigurationSet, settings: s}, nil
}

type sesTransport struct {
	client    SESAPI
	configSet string
	settings  domain.DeliverySettings
}

// Verify checks that the account is allowed to send.
func (t *sesTransport) Verify(ctx context.Context) error {
	out, err := t.client.GetAccount(ctx, &sesv2.GetAccountInput{})
	if err != nil {
		return fmt.Errorf("ses get account: %w", err)
	}
	if !out.SendingEnabled {
		return fmt.Errorf("ses sending is disabled for this account")
	}
	return nil
}

func (t *sesTransport) Send(ctx context.Context, msg *Message) error {
	body, err := msg.Bytes(time.Now())
	if err != nil {
		return err
	}

	dest := &types.Destination{}
	if len(msg.Bcc) > 0 {
		dest.BccAddresses = msg.Bcc
	} else {
		dest.ToAddresses = []string{msg.To}
	}
	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(msg.FromEmail),
		Destination:      dest,
		Content:          &types.EmailContent{Raw: &types.RawMessage{Data: body}},
	}
	if t.configSet != "" {
		in.ConfigurationSetName = aws.String(t.configSet)
	}

	ctx, cancel := context.WithTimeout(ctx, orDefault(t.settings.SocketTimeout, 30*time.Second))
	defer cancel()
	if _, err := t.client.SendEmail(ctx, in); err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

func (t *sesTransport) Close() error { return nil }
