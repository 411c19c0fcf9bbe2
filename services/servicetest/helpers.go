package servicetest

import (
	"context"
	"sync"
	"time"

	"learning-platform/services"
)

// Clock is a settable clock for ledger arithmetic.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{now: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Published is one message captured by RecordingPublisher.
type Published struct {
	Topic string
	Key   string
	Value interface{}
}

// RecordingPublisher captures published events.
type RecordingPublisher struct {
	mu       sync.Mutex
	messages []Published
	Err      error
}

func (p *RecordingPublisher) Publish(_ context.Context, topic, key string, value interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, Published{Topic: topic, Key: key, Value: value})
	return p.Err
}

// Messages returns a copy of everything published so far.
func (p *RecordingPublisher) Messages() []Published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Published(nil), p.messages...)
}

// Count returns how many messages went to topic.
func (p *RecordingPublisher) Count(topic string) int {
	n := 0
	for _, m := range p.Messages() {
		if m.Topic == topic {
			n++
		}
	}
	return n
}

// RecordingMailer captures sent emails.
type RecordingMailer struct {
	mu   sync.Mutex
	sent []services.Email
	Err  error
}

func (m *RecordingMailer) Send(_ context.Context, email services.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, email)
	return nil
}

func (m *RecordingMailer) Sent() []services.Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]services.Email(nil), m.sent...)
}

const (
	PaymentsTopic      = "learning.payments"
	SubscriptionsTopic = "learning.subscriptions"
)

// Env bundles the services wired to one MemStore, a fixed clock and a
// recording publisher.
type Env struct {
	Clock         *Clock
	Store         *MemStore
	Publisher     *RecordingPublisher
	Ledger        *services.Ledger
	Events        *services.EventBus
	Subscriptions *services.SubscriptionService
	Payments      *services.PaymentService
	Access        *services.AccessGate
	Auth          *services.AuthService
	Verifier      *services.Verifier
}

// Epoch is the fixed start time of every Env clock.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

const (
	IPNKey    = "ipn-test-secret"
	JWTSecret = "jwt-test-secret"
)

func NewEnv() *Env {
	clock := NewClock(Epoch)
	store := NewMemStore(clock)
	pub := &RecordingPublisher{}
	ledger := services.NewLedger(clock.Now)
	events := services.NewEventBus(pub, PaymentsTopic, SubscriptionsTopic, clock.Now)
	return &Env{
		Clock:         clock,
		Store:         store,
		Publisher:     pub,
		Ledger:        ledger,
		Events:        events,
		Subscriptions: services.NewSubscriptionService(store, ledger, events, nil),
		Payments:      services.NewPaymentService(store, ledger, events, nil),
		Access:        services.NewAccessGate(store, ledger, nil),
		Auth:          services.NewAuthService(store, JWTSecret, clock.Now),
		Verifier:      services.NewVerifier(IPNKey),
	}
}
