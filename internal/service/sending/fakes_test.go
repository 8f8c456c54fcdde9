package sending_test

import (
	"context"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/ignite/newsletter-engine/internal/domain"
	"github.com/ignite/newsletter-engine/internal/service/sending"
)

var errRefused = &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}

// fakeRelay hands out transporters whose Verify and Send results are popped
// from queues; an exhausted queue means success.
type fakeRelay struct {
	mu         sync.Mutex
	verifyErrs []error
	sendErrs   []error
	closeErr   error

	dials  int
	closes int
	sent   []*sending.Message
}

func (r *fakeRelay) Dial(_ context.Context, _ domain.DeliverySettings) (sending.Transporter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dials++
	return &fakeTransport{relay: r}, nil
}

func pop(q *[]error) error {
	if len(*q) == 0 {
		return nil
	}
	err := (*q)[0]
	*q = (*q)[1:]
	return err
}

type fakeTransport struct{ relay *fakeRelay }

func (t *fakeTransport) Verify(context.Context) error {
	t.relay.mu.Lock()
	defer t.relay.mu.Unlock()
	return pop(&t.relay.verifyErrs)
}

func (t *fakeTransport) Send(_ context.Context, msg *sending.Message) error {
	t.relay.mu.Lock()
	defer t.relay.mu.Unlock()
	if err := pop(&t.relay.sendErrs); err != nil {
		return err
	}
	t.relay.sent = append(t.relay.sent, msg)
	return nil
}

func (t *fakeTransport) Close() error {
	t.relay.mu.Lock()
	defer t.relay.mu.Unlock()
	t.relay.closes++
	return t.relay.closeErr
}

// newManager returns a manager whose backoff waits are recorded, not slept.
func newManager(d sending.Dialer) (*sending.Manager, *[]time.Duration) {
	var waits []time.Duration
	m := sending.NewManager(d, sending.WithSleep(func(d time.Duration) { waits = append(waits, d) }))
	return m, &waits
}

func testSettings() domain.DeliverySettings {
	return domain.DeliverySettings{
		SMTPHost:        "relay.test",
		FromEmail:       "news@portal.test",
		FromName:        "Portal",
		MaxRetries:      3,
		MaxBackoffDelay: 10 * time.Second,
	}
}
