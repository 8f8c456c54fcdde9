package tracking

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/analytics"
)

type EventType string

const (
	EventOpen  EventType = "opened"
	EventClick EventType = "clicked"
)

// Event is the SQS message body of one pixel or click hit.
type Event struct {
	EventType   EventType       `json:"event_type"`
	Token       string          `json:"token"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	URL         string          `json:"url,omitempty"`
	LinkType    domain.LinkType `json:"link_type,omitempty"`
	LinkID      string          `json:"link_id,omitempty"`
	Timestamp   time.Time       `json:"timestamp"`
}

// SQSSender is the subset of *sqs.Client used by Publisher.
type SQSSender interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Publisher forwards events to SQS without blocking the request.
type Publisher struct {
	client   SQSSender
	queueURL string
	wg       sync.WaitGroup
}

func NewPublisher(client SQSSender, queueURL string) *Publisher {
	return &Publisher{client: client, queueURL: queueURL}
}

func (p *Publisher) RecordOpen(ctx context.Context, pixelToken, fingerprint string) {
	p.Publish(ctx, Event{EventType: EventOpen, Token: pixelToken, Fingerprint: fingerprint})
}

func (p *Publisher) RecordClick(ctx context.Context, c analytics.Click) {
	p.Publish(ctx, Event{
		EventType:   EventClick,
		Token:       c.Token,
		Fingerprint: c.Fingerprint,
		URL:         c.URL,
		LinkType:    c.LinkType,
		LinkID:      c.LinkID,
	})
}

func (p *Publisher) Publish(_ context.Context, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	body, err := json.Marshal(evt)
	if err != nil {
		log.Printf("[tracking] ERROR marshal event: %v", err)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		_, err := p.client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(p.queueURL),
			MessageBody: aws.String(string(body)),
		})
		if err != nil {
			log.Printf("[tracking] ERROR publishing %s to SQS: %v", evt.EventType, err)
		}
	}()
}

// Wait blocks until in-flight publishes finish.
func (p *Publisher) Wait() {
	p.wg.Wait()
}
