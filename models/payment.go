package models

import "time"

// PaymentStatus is the NOWPayments payment_status value.
type PaymentStatus string

const (
	PaymentStatusWaiting       PaymentStatus = "waiting"
	PaymentStatusConfirming    PaymentStatus = "confirming"
	PaymentStatusConfirmed     PaymentStatus = "confirmed"
	PaymentStatusSending       PaymentStatus = "sending"
	PaymentStatusPartiallyPaid PaymentStatus = "partially_paid"
	PaymentStatusFinished      PaymentStatus = "finished"
	PaymentStatusFailed        PaymentStatus = "failed"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusExpired       PaymentStatus = "expired"
)

var knownPaymentStatuses = map[PaymentStatus]bool{
	PaymentStatusWaiting:       true,
	PaymentStatusConfirming:    true,
	PaymentStatusConfirmed:     true,
	PaymentStatusSending:       true,
	PaymentStatusPartiallyPaid: true,
	PaymentStatusFinished:      true,
	PaymentStatusFailed:        true,
	PaymentStatusRefunded:      true,
	PaymentStatusExpired:       true,
}

// Valid reports whether s is one of the provider's statuses.
func (s PaymentStatus) Valid() bool {
	return knownPaymentStatuses[s]
}

// PaymentRecord is the last known state of a provider payment. An empty
// Status means the record exists but no status has been recorded yet.
type PaymentRecord struct {
	PaymentID        string        `json:"payment_id"`
	OrderID          string        `json:"order_id"`
	Status           PaymentStatus `json:"payment_status"`
	SubscriptionType string        `json:"subscription_type"`
	DurationMonths   int           `json:"duration_months"`
	PriceAmount      string        `json:"price_amount"`
	PriceCurrency    string        `json:"price_currency"`
	PayAmount        string        `json:"pay_amount,omitempty"`
	PayCurrency      string        `json:"pay_currency,omitempty"`
	StudentID        int64         `json:"student_id"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}
