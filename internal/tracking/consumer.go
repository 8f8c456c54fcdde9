package tracking

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"

	"github.com/ignite/newsletter-engine/internal/service/analytics"
)

// SQSReceiver is the subset of *sqs.Client used by Consumer.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Consumer applies queued events to a Recorder, normally the analytics tracker.
type Consumer struct {
	sqsClient SQSReceiver
	queueURL  string
	rec       Recorder
	done      chan struct{}
	stopped   chan struct{}

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once
}

func NewConsumer(sqsClient SQSReceiver, queueURL string, rec Recorder) *Consumer {
	return &Consumer{
		sqsClient: sqsClient,
		queueURL:  queueURL,
		rec:       rec,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start launches the polling loop. Only the first call has any effect, and a
// Start after Stop does nothing.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	c.started = true
	log.Printf("[tracking] SQS consumer started (queue=%s)", c.queueURL)
	go c.poll(ctx)
}

// Stop ends polling and waits for the current batch to finish. It may be
// called more than once, and before Start.
func (c *Consumer) Stop() {
	c.mu.Lock()
	c.stopOnce.Do(func() { close(c.done) })
	started := c.started
	c.mu.Unlock()
	if started {
		<-c.stopped
	}
}

func (c *Consumer) poll(ctx context.Context) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if err := c.pollOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[tracking] SQS receive error: %v", err)
			select {
			case <-time.After(5 * time.Second):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
		}
	}
}

func (c *Consumer) pollOnce(ctx context.Context) error {
	out, err := c.sqsClient.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     20,
	})
	if err != nil {
		return err
	}
	for _, msg := range out.Messages {
		c.handle(ctx, msg)
	}
	return nil
}

// handle applies one message. Recording never fails from the queue's point
// of view, so every message is deleted once seen.
func (c *Consumer) handle(ctx context.Context, msg types.Message) {
	defer c.deleteMessage(ctx, msg.ReceiptHandle)

	var evt Event
	if err := json.Unmarshal([]byte(aws.ToString(msg.Body)), &evt); err != nil {
		log.Printf("[tracking] SQS bad message: %v", err)
		return
	}
	switch evt.EventType {
	case EventOpen:
		c.rec.RecordOpen(ctx, evt.Token, evt.Fingerprint)
	case EventClick:
		c.rec.RecordClick(ctx, analytics.Click{
			Token:       evt.Token,
			URL:         evt.URL,
			LinkType:    evt.LinkType,
			LinkID:      evt.LinkID,
			Fingerprint: evt.Fingerprint,
		})
	default:
		log.Printf("[tracking] unknown event type: %s", evt.EventType)
	}
}

func (c *Consumer) deleteMessage(ctx context.Context, handle *string) {
	if _, err := c.sqsClient.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	}); err != nil {
		log.Printf("[tracking] SQS delete error: %v", err)
	}
}
