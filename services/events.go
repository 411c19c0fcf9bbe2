package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"learning-platform/logger"
	"learning-platform/models"
)

// Event names carried in the "event" field of every published message.
const (
	EventPaymentStatusChanged  = "payment.status_changed"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionExtended  = "subscription.extended"
	EventSubscriptionCancelled = "subscription.cancelled"
)

const publishTimeout = 10 * time.Second

// Publisher delivers a JSON-encodable value to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value interface{}) error
}

// PaymentEvent is published whenever a notification changes a payment record.
type PaymentEvent struct {
	EventID        string    `json:"event_id"`
	Event          string    `json:"event"`
	PaymentID      string    `json:"payment_id"`
	OrderID        string    `json:"order_id"`
	Status         string    `json:"payment_status"`
	PreviousStatus string    `json:"previous_status"`
	StudentID      int64     `json:"student_id"`
	Timestamp      time.Time `json:"timestamp"`
}

// SubscriptionEvent is published after a committed subscription change.
type SubscriptionEvent struct {
	EventID           string     `json:"event_id"`
	Event             string     `json:"event"`
	StudentID         int64      `json:"student_id"`
	Username          string     `json:"username"`
	Email             string     `json:"email"`
	DurationMonths    int        `json:"duration_months,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	PaymentID         string     `json:"payment_id,omitempty"`
	PriceAmount       string     `json:"price_amount,omitempty"`
	PriceCurrency     string     `json:"price_currency,omitempty"`
	Timestamp         time.Time  `json:"timestamp"`
}

// EventBus publishes domain events after their transaction has committed.
// Delivery is best effort: failures are logged and never reach the caller.
type EventBus struct {
	publisher          Publisher
	paymentsTopic      string
	subscriptionsTopic string
	now                Clock
}

// NewEventBus returns a bus publishing through p. A nil p discards events.
func NewEventBus(p Publisher, paymentsTopic, subscriptionsTopic string, clock Clock) *EventBus {
	if clock == nil {
		clock = time.Now
	}
	return &EventBus{
		publisher:          p,
		paymentsTopic:      paymentsTopic,
		subscriptionsTopic: subscriptionsTopic,
		now:                clock,
	}
}

// PaymentStatusChanged announces a payment record transition.
func (b *EventBus) PaymentStatusChanged(record models.PaymentRecord, previous models.PaymentStatus) {
	if b == nil {
		return
	}
	b.publish(b.paymentsTopic, record.PaymentID, PaymentEvent{
		EventID:        uuid.NewString(),
		Event:          EventPaymentStatusChanged,
		PaymentID:      record.PaymentID,
		OrderID:        record.OrderID,
		Status:         string(record.Status),
		PreviousStatus: string(previous),
		StudentID:      record.StudentID,
		Timestamp:      b.now().UTC(),
	})
}

// SubscriptionChanged announces a ledger operation on student. payment is nil
// when the change was not driven by a payment.
func (b *EventBus) SubscriptionChanged(event string, student *models.Student, months int, payment *models.PaymentRecord) {
	if b == nil || student == nil {
		return
	}
	ev := SubscriptionEvent{
		EventID:           uuid.NewString(),
		Event:             event,
		StudentID:         student.ID,
		Username:          student.Username,
		Email:             student.Email,
		DurationMonths:    months,
		SubscriptionStart: student.SubscriptionStart,
		SubscriptionEnd:   student.SubscriptionEnd,
		Timestamp:         b.now().UTC(),
	}
	if payment != nil {
		ev.PaymentID = payment.PaymentID
		ev.PriceAmount = payment.PriceAmount
		ev.PriceCurrency = payment.PriceCurrency
	}
	b.publish(b.subscriptionsTopic, student.Username, ev)
}

func (b *EventBus) publish(topic, key string, value interface{}) {
	if b.publisher == nil || topic == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := b.publisher.Publish(ctx, topic, key, value); err != nil {
			logger.Warn("Failed to publish event to %s (key=%s): %v", topic, key, err)
		}
	}()
}
