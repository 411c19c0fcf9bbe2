package services

import (
	"context"
	"fmt"
	"time"

	apperrors "learning-platform/errors"
	"learning-platform/logger"
	"learning-platform/metrics"
	"learning-platform/models"
)

// MonthLength is the fixed length of a subscription month.
const MonthLength = 30 * 24 * time.Hour

// MaxDurationMonths bounds a single purchase so the end date stays
// representable as a time.Duration offset.
const MaxDurationMonths = 1200

// Ledger operations, also used as the metric label.
const (
	OpSubscribe = "subscribe"
	OpExtend    = "extend"
	OpCancel    = "cancel"
	OpPrune     = "prune"
)

// Ledger applies subscription state transitions to a student in memory.
// Callers persist the result.
type Ledger struct {
	now Clock
}

func NewLedger(clock Clock) *Ledger {
	if clock == nil {
		clock = time.Now
	}
	return &Ledger{now: clock}
}

// ValidateDuration rejects month counts outside [1, MaxDurationMonths].
func ValidateDuration(months int) error {
	if months < 1 || months > MaxDurationMonths {
		return apperrors.E(apperrors.Invalid, fmt.Sprintf("duration_months must be between 1 and %d", MaxDurationMonths))
	}
	return nil
}

// HasActiveSubscription reports paid with an end strictly in the future.
func (l *Ledger) HasActiveSubscription(s *models.Student) bool {
	return s.Paid && s.SubscriptionEnd != nil && s.SubscriptionEnd.After(l.now())
}

// Subscribe starts a new subscription window at now, replacing any existing one.
func (l *Ledger) Subscribe(s *models.Student, months int) error {
	if err := ValidateDuration(months); err != nil {
		return err
	}
	start := l.now()
	end := start.Add(time.Duration(months) * MonthLength)
	s.Paid = true
	s.SubscriptionStart = &start
	s.SubscriptionEnd = &end
	return nil
}

// Extend pushes the end of an active subscription out by months. It reports
// false and leaves s untouched when there is nothing active to extend.
func (l *Ledger) Extend(s *models.Student, months int) (bool, error) {
	if err := ValidateDuration(months); err != nil {
		return false, err
	}
	if !l.HasActiveSubscription(s) {
		return false, nil
	}
	end := s.SubscriptionEnd.Add(time.Duration(months) * MonthLength)
	s.SubscriptionEnd = &end
	return true, nil
}

// Cancel clears the subscription and drops every PAID enrollment, returning
// the removed course ids.
func (l *Ledger) Cancel(s *models.Student) []int64 {
	s.Paid = false
	s.SubscriptionStart = nil
	s.SubscriptionEnd = nil
	return removePaidEnrollments(s)
}

// PruneExpiredPaidCourses drops PAID enrollments when the subscription is not
// active. Subscription fields are left as they are.
func (l *Ledger) PruneExpiredPaidCourses(s *models.Student) []int64 {
	if l.HasActiveSubscription(s) {
		return nil
	}
	return removePaidEnrollments(s)
}

func removePaidEnrollments(s *models.Student) []int64 {
	var removed []int64
	for _, id := range s.EnrolledCourseIDs() {
		if s.Enrollments[id] == models.CategoryPaid {
			delete(s.Enrollments, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// SubscriptionService runs ledger operations for the calling student inside a
// transaction and announces committed changes.
type SubscriptionService struct {
	store   Store
	ledger  *Ledger
	events  *EventBus
	metrics *metrics.Metrics
}

func NewSubscriptionService(store Store, ledger *Ledger, events *EventBus, m *metrics.Metrics) *SubscriptionService {
	return &SubscriptionService{store: store, ledger: ledger, events: events, metrics: m}
}

// ErrNotStudent is returned for callers without a student profile.
var ErrNotStudent = apperrors.E(apperrors.NotFound, "User is not a student.")

// Subscribe starts a fresh subscription for the caller.
func (s *SubscriptionService) Subscribe(ctx context.Context, p models.Principal, months int) (*models.Student, error) {
	student, _, err := s.mutate(ctx, p, func(repo Repository, st *models.Student) (string, error) {
		if err := s.ledger.Subscribe(st, months); err != nil {
			return "", err
		}
		return OpSubscribe, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.SubscriptionChanged(EventSubscriptionActivated, student, months, nil)
	return student, nil
}

// Extend lengthens an active subscription. The boolean is false when the
// caller had no active subscription, in which case nothing changed.
func (s *SubscriptionService) Extend(ctx context.Context, p models.Principal, months int) (*models.Student, bool, error) {
	student, op, err := s.mutate(ctx, p, func(repo Repository, st *models.Student) (string, error) {
		extended, err := s.ledger.Extend(st, months)
		if err != nil || !extended {
			return "", err
		}
		return OpExtend, nil
	})
	if err != nil {
		return nil, false, err
	}
	if op == "" {
		return student, false, nil
	}
	s.events.SubscriptionChanged(EventSubscriptionExtended, student, months, nil)
	return student, true, nil
}

// Unsubscribe cancels the caller's subscription and paid enrollments.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, p models.Principal) (*models.Student, error) {
	student, _, err := s.mutate(ctx, p, func(repo Repository, st *models.Student) (string, error) {
		removed := s.ledger.Cancel(st)
		if err := repo.RemoveEnrollments(ctx, st.ID, removed); err != nil {
			return "", err
		}
		return OpCancel, nil
	})
	if err != nil {
		return nil, err
	}
	s.events.SubscriptionChanged(EventSubscriptionCancelled, student, 0, nil)
	return student, nil
}

// Current returns the caller's subscription state after pruning paid
// enrollments that outlived it.
func (s *SubscriptionService) Current(ctx context.Context, p models.Principal) (*models.Student, error) {
	sp, ok := models.AsStudent(p)
	if !ok {
		return nil, ErrNotStudent
	}
	var student *models.Student
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		st, err := repo.GetStudentByUserID(ctx, sp.User.ID)
		if err != nil {
			return err
		}
		if removed := s.ledger.PruneExpiredPaidCourses(st); len(removed) > 0 {
			if err := repo.RemoveEnrollments(ctx, st.ID, removed); err != nil {
				return err
			}
		}
		student = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return student, nil
}

// mutate loads the caller's student row under lock, applies fn and persists
// the subscription fields when fn reports an operation.
func (s *SubscriptionService) mutate(ctx context.Context, p models.Principal, fn func(Repository, *models.Student) (string, error)) (*models.Student, string, error) {
	sp, ok := models.AsStudent(p)
	if !ok {
		return nil, "", ErrNotStudent
	}

	var (
		student *models.Student
		op      string
	)
	err := s.store.WithinTx(ctx, func(repo Repository) error {
		st, err := repo.GetStudentForUpdate(ctx, sp.StudentID)
		if err != nil {
			return err
		}
		if op, err = fn(repo, st); err != nil {
			return err
		}
		if op != "" {
			if err := repo.SaveSubscription(ctx, st); err != nil {
				return err
			}
		}
		student = st
		return nil
	})
	if err != nil {
		return nil, "", err
	}

	if op != "" {
		s.metrics.SubscriptionChanged(op)
		logger.WithFields(map[string]interface{}{"student_id": student.ID, "op": op}).Info("Subscription updated")
	}
	return student, op, nil
}

// applyPaidMonths credits months to student: an active subscription is
// extended, anything else starts a new one. It runs inside the caller's
// transaction and returns the ledger operation applied.
func (l *Ledger) applyPaidMonths(ctx context.Context, repo Repository, student *models.Student, months int) (string, error) {
	op := OpSubscribe
	if l.HasActiveSubscription(student) {
		if _, err := l.Extend(student, months); err != nil {
			return "", err
		}
		op = OpExtend
	} else if err := l.Subscribe(student, months); err != nil {
		return "", err
	}
	if err := repo.SaveSubscription(ctx, student); err != nil {
		return "", err
	}
	return op, nil
}
