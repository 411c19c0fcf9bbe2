package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	apperrors "learning-platform/errors"
	"learning-platform/logger"
	"learning-platform/metrics"
	"learning-platform/models"
)

const (
	orderIDPrefix   = "user_"
	orderIDInfix    = "_subscribe"
	defaultSubType  = "monthly"
	defaultPrice    = "0"
	defaultCurrency = "usd"
)

// IPN outcomes recorded on the notifications counter.
const (
	OutcomeApplied  = "applied"
	OutcomeRecorded = "recorded"
	OutcomeReplayed = "replayed"
	OutcomeRejected = "rejected"
	OutcomeNotFound = "not_found"
	OutcomeFailed   = "error"
)

// Notification is the subset of an IPN body the reconciler consumes. Every
// field is kept in its textual form; numbers arrive as their JSON literal.
type Notification struct {
	PaymentStatus models.PaymentStatus
	PaymentID     string
	PayAmount     string
	PayCurrency   string
	OrderID       string
	PriceAmount   string
	PriceCurrency string
}

// ParseNotification decodes a verified IPN body.
func ParseNotification(raw []byte) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var body map[string]interface{}
	if err := dec.Decode(&body); err != nil {
		return Notification{}, apperrors.E(apperrors.Invalid, "Malformed notification body", err)
	}

	n := Notification{
		PaymentStatus: models.PaymentStatus(fieldString(body, "payment_status")),
		PaymentID:     fieldString(body, "payment_id"),
		PayAmount:     fieldString(body, "pay_amount"),
		PayCurrency:   fieldString(body, "pay_currency"),
		OrderID:       fieldString(body, "order_id"),
		PriceAmount:   fieldString(body, "price_amount"),
		PriceCurrency: fieldString(body, "price_currency"),
	}
	if n.PaymentID == "" {
		return Notification{}, apperrors.E(apperrors.Invalid, "payment_id is required")
	}
	return n, nil
}

func fieldString(body map[string]interface{}, key string) string {
	switch v := body[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// OrderID builds the order id an invoice is registered under.
func OrderID(username string, months int) string {
	return fmt.Sprintf("%s%s%s%d", orderIDPrefix, username, orderIDInfix, months)
}

// ParseOrderID splits an order id built by OrderID. The username may contain
// underscores; the duration is the digits after the last "_subscribe".
func ParseOrderID(orderID string) (username string, months int, err error) {
	invalid := func(reason string) (string, int, error) {
		return "", 0, apperrors.E(apperrors.Invalid, fmt.Sprintf("Malformed order_id %q: %s", orderID, reason))
	}

	if !strings.HasPrefix(orderID, orderIDPrefix) {
		return invalid("missing user prefix")
	}
	idx := strings.LastIndex(orderID, orderIDInfix)
	if idx < len(orderIDPrefix) {
		return invalid("missing subscription segment")
	}
	username = orderID[len(orderIDPrefix):idx]
	if username == "" {
		return invalid("empty username")
	}

	suffix := orderID[idx+len(orderIDInfix):]
	if suffix == "" {
		return invalid("missing duration")
	}
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return invalid("duration is not numeric")
		}
	}
	months, convErr := strconv.Atoi(suffix)
	if convErr != nil || ValidateDuration(months) != nil {
		return invalid("duration out of range")
	}
	return username, months, nil
}

// ReconcileResult describes what one notification changed.
type ReconcileResult struct {
	Record    models.PaymentRecord
	Previous  models.PaymentStatus
	Created   bool
	Operation string
	Student   *models.Student
	Months    int
}

// Outcome classifies the result for metrics and logs.
func (r ReconcileResult) Outcome() string {
	switch {
	case r.Operation != "":
		return OutcomeApplied
	case r.Record.Status == models.PaymentStatusFinished && r.Previous == models.PaymentStatusFinished:
		return OutcomeReplayed
	default:
		return OutcomeRecorded
	}
}

// SaveInvoiceRequest registers an invoice before the provider reports on it.
type SaveInvoiceRequest struct {
	UserID           int64
	InvoiceID        string
	SubscriptionType string
	DurationMonths   int
	PriceAmount      string
	PriceCurrency    string
}

// PaymentService keeps payment records in step with provider notifications
// and credits finished payments to the subscription ledger.
type PaymentService struct {
	store   Store
	ledger  *Ledger
	events  *EventBus
	metrics *metrics.Metrics
}

func NewPaymentService(store Store, ledger *Ledger, events *EventBus, m *metrics.Metrics) *PaymentService {
	return &PaymentService{store: store, ledger: ledger, events: events, metrics: m}
}

// ProcessNotification applies a verified notification. The record update and
// any ledger change commit together; a finished status already on record is
// not credited again.
func (s *PaymentService) ProcessNotification(ctx context.Context, n Notification) (*ReconcileResult, error) {
	log := logger.WithFields(map[string]interface{}{"payment_id": n.PaymentID, "status": n.PaymentStatus})

	result, err := s.reconcile(ctx, n)
	if err != nil {
		outcome := OutcomeFailed
		switch apperrors.KindOf(err) {
		case apperrors.Invalid:
			outcome = OutcomeRejected
		case apperrors.NotFound:
			outcome = OutcomeNotFound
		}
		s.metrics.IPNProcessed(string(n.PaymentStatus), outcome)
		log.Warn("[IPN] Notification not applied: %v", err)
		return nil, err
	}

	outcome := result.Outcome()
	s.metrics.IPNProcessed(string(n.PaymentStatus), outcome)
	log.Info("[IPN] Payment %s -> %s (%s)", displayStatus(result.Previous), result.Record.Status, outcome)

	s.events.PaymentStatusChanged(result.Record, result.Previous)
	if result.Operation != "" {
		s.metrics.SubscriptionChanged(result.Operation)
		event := EventSubscriptionActivated
		if result.Operation == OpExtend {
			event = EventSubscriptionExtended
		}
		s.events.SubscriptionChanged(event, result.Student, result.Months, &result.Record)
	}
	return result, nil
}

func (s *PaymentService) reconcile(ctx context.Context, n Notification) (*ReconcileResult, error) {
	if !n.PaymentStatus.Valid() {
		return nil, apperrors.E(apperrors.Invalid, fmt.Sprintf("Unhandled payment status %q", n.PaymentStatus))
	}
	if n.PaymentID == "" {
		return nil, apperrors.E(apperrors.Invalid, "payment_id is required")
	}

	username, months, orderErr := ParseOrderID(n.OrderID)
	if n.PaymentStatus == models.PaymentStatusFinished && orderErr != nil {
		return nil, orderErr
	}

	result := &ReconcileResult{}
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		record, err := repo.GetPaymentForUpdate(ctx, n.PaymentID)
		if apperrors.IsKind(err, apperrors.NotFound) {
			if orderErr != nil {
				return apperrors.E(apperrors.NotFound, "Payment not found", orderErr)
			}
			record, err = s.createFromNotification(ctx, repo, n, username, months)
			result.Created = true
		}
		if err != nil {
			return err
		}

		previous := record.Status
		record.Status = n.PaymentStatus
		if n.PayAmount != "" {
			record.PayAmount = n.PayAmount
		}
		if n.PayCurrency != "" {
			record.PayCurrency = n.PayCurrency
		}
		if err := repo.UpdatePaymentStatus(ctx, record); err != nil {
			return err
		}
		result.Record = *record
		result.Previous = previous

		if n.PaymentStatus != models.PaymentStatusFinished || previous == models.PaymentStatusFinished {
			return nil
		}

		student, err := repo.GetStudentForUpdate(ctx, record.StudentID)
		if err != nil {
			return err
		}
		op, err := s.ledger.applyPaidMonths(ctx, repo, student, months)
		if err != nil {
			return err
		}
		result.Operation = op
		result.Student = student
		result.Months = months
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// createFromNotification inserts a record for a payment id first seen through
// a notification and returns it locked. A concurrent insert of the same id is
// absorbed by re-reading.
func (s *PaymentService) createFromNotification(ctx context.Context, repo Repository, n Notification, username string, months int) (*models.PaymentRecord, error) {
	studentID, err := repo.GetStudentIDByUsername(ctx, username)
	if err != nil {
		if apperrors.IsKind(err, apperrors.NotFound) {
			return nil, apperrors.E(apperrors.NotFound, "Payment not found", err)
		}
		return nil, err
	}

	record := &models.PaymentRecord{
		PaymentID:        n.PaymentID,
		OrderID:          n.OrderID,
		SubscriptionType: defaultSubType,
		DurationMonths:   months,
		PriceAmount:      valueOr(n.PriceAmount, defaultPrice),
		PriceCurrency:    strings.ToLower(valueOr(n.PriceCurrency, defaultCurrency)),
		StudentID:        studentID,
	}
	if _, err := repo.InsertPayment(ctx, record); err != nil {
		return nil, err
	}
	return repo.GetPaymentForUpdate(ctx, n.PaymentID)
}

// SaveInvoice records an invoice in the waiting state for the user's student
// profile. Saving the same invoice id twice is a conflict.
func (s *PaymentService) SaveInvoice(ctx context.Context, req SaveInvoiceRequest) (*models.PaymentRecord, error) {
	if strings.TrimSpace(req.InvoiceID) == "" {
		return nil, apperrors.E(apperrors.Invalid, "invoice_id is required")
	}
	if err := ValidateDuration(req.DurationMonths); err != nil {
		return nil, err
	}

	var record *models.PaymentRecord
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		user, err := repo.GetUserByID(ctx, req.UserID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.NotFound) {
				return apperrors.E(apperrors.NotFound, "User not found")
			}
			return err
		}
		student, err := repo.GetStudentByUserID(ctx, user.ID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.NotFound) {
				return apperrors.E(apperrors.NotFound, "Student not found")
			}
			return err
		}

		record = &models.PaymentRecord{
			PaymentID:        strings.TrimSpace(req.InvoiceID),
			OrderID:          OrderID(user.Username, req.DurationMonths),
			Status:           models.PaymentStatusWaiting,
			SubscriptionType: valueOr(req.SubscriptionType, defaultSubType),
			DurationMonths:   req.DurationMonths,
			PriceAmount:      valueOr(req.PriceAmount, defaultPrice),
			PriceCurrency:    strings.ToLower(valueOr(req.PriceCurrency, defaultCurrency)),
			StudentID:        student.ID,
		}
		inserted, err := repo.InsertPayment(ctx, record)
		if err != nil {
			return err
		}
		if !inserted {
			return apperrors.E(apperrors.Conflict, "Invoice already saved")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Invoice %s saved for student %d (order %s)", record.PaymentID, record.StudentID, record.OrderID)
	return record, nil
}

// History lists the caller's payment records, newest first.
func (s *PaymentService) History(ctx context.Context, p models.Principal) ([]models.PaymentRecord, error) {
	sp, ok := models.AsStudent(p)
	if !ok {
		return nil, ErrNotStudent
	}
	var records []models.PaymentRecord
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		var err error
		records, err = repo.ListPaymentsByStudent(ctx, sp.StudentID)
		return err
	})
	return records, err
}

func valueOr(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return strings.TrimSpace(v)
}

func displayStatus(s models.PaymentStatus) string {
	if s == "" {
		return "(none)"
	}
	return string(s)
}
