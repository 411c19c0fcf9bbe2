package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "learning-platform/errors"
	"learning-platform/models"
	"learning-platform/services"
	"learning-platform/services/servicetest"
)

const day = 24 * time.Hour

func ptr(t time.Time) *time.Time { return &t }

func newStudent(paid bool, end *time.Time, enrollments map[int64]models.CourseCategory) *models.Student {
	if enrollments == nil {
		enrollments = map[int64]models.CourseCategory{}
	}
	return &models.Student{ID: 1, Paid: paid, SubscriptionEnd: end, Enrollments: enrollments}
}

func TestLedger_HasActiveSubscription(t *testing.T) {
	now := servicetest.Epoch
	ledger := services.NewLedger(func() time.Time { return now })

	tests := []struct {
		name string
		s    *models.Student
		want bool
	}{
		{"paid with future end", newStudent(true, ptr(now.Add(time.Second)), nil), true},
		{"paid ending exactly now", newStudent(true, ptr(now), nil), false},
		{"paid with past end", newStudent(true, ptr(now.Add(-day)), nil), false},
		{"paid without end", newStudent(true, nil, nil), false},
		{"unpaid with future end", newStudent(false, ptr(now.Add(day)), nil), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ledger.HasActiveSubscription(tt.s))
		})
	}
}

func TestLedger_SubscribeOneMonthIsThirtyDays(t *testing.T) {
	ledger := services.NewLedger(func() time.Time { return servicetest.Epoch })
	s := newStudent(false, nil, nil)

	require.NoError(t, ledger.Subscribe(s, 1))

	assert.True(t, s.Paid)
	require.NotNil(t, s.SubscriptionStart)
	require.NotNil(t, s.SubscriptionEnd)
	assert.Equal(t, servicetest.Epoch, *s.SubscriptionStart)
	assert.Equal(t, s.SubscriptionStart.Add(30*day), *s.SubscriptionEnd)
}

func TestLedger_SubscribeOverwritesWindow(t *testing.T) {
	ledger := services.NewLedger(func() time.Time { return servicetest.Epoch })
	s := newStudent(true, ptr(servicetest.Epoch.Add(300*day)), nil)

	require.NoError(t, ledger.Subscribe(s, 2))

	assert.Equal(t, servicetest.Epoch.Add(60*day), *s.SubscriptionEnd)
}

func TestLedger_SubscribeRejectsBadDuration(t *testing.T) {
	ledger := services.NewLedger(nil)
	for _, n := range []int{0, -1, services.MaxDurationMonths + 1} {
		s := newStudent(false, nil, nil)
		err := ledger.Subscribe(s, n)
		assert.True(t, apperrors.IsKind(err, apperrors.Invalid), "n=%d", n)
		assert.False(t, s.Paid)
	}
}

func TestLedger_Extend(t *testing.T) {
	now := servicetest.Epoch
	ledger := services.NewLedger(func() time.Time { return now })

	t.Run("active subscription grows by 30n days", func(t *testing.T) {
		end := now.Add(10 * day)
		s := newStudent(true, ptr(end), nil)

		extended, err := ledger.Extend(s, 3)

		require.NoError(t, err)
		assert.True(t, extended)
		assert.Equal(t, end.Add(90*day), *s.SubscriptionEnd)
	})

	t.Run("inactive subscription is untouched", func(t *testing.T) {
		end := now.Add(-day)
		s := newStudent(true, ptr(end), nil)

		extended, err := ledger.Extend(s, 3)

		require.NoError(t, err)
		assert.False(t, extended)
		assert.Equal(t, end, *s.SubscriptionEnd)
		assert.True(t, s.Paid)
	})

	t.Run("unpaid student is untouched", func(t *testing.T) {
		s := newStudent(false, nil, nil)
		extended, err := ledger.Extend(s, 1)
		require.NoError(t, err)
		assert.False(t, extended)
		assert.Nil(t, s.SubscriptionEnd)
	})
}

func TestLedger_CancelRemovesOnlyPaidCourses(t *testing.T) {
	ledger := services.NewLedger(func() time.Time { return servicetest.Epoch })
	s := newStudent(true, ptr(servicetest.Epoch.Add(day)), map[int64]models.CourseCategory{
		1: models.CategoryFree,
		2: models.CategoryPaid,
		3: models.CategoryPaid,
		4: models.CategoryFree,
	})
	s.SubscriptionStart = ptr(servicetest.Epoch)

	removed := ledger.Cancel(s)

	assert.Equal(t, []int64{2, 3}, removed)
	assert.False(t, s.Paid)
	assert.Nil(t, s.SubscriptionStart)
	assert.Nil(t, s.SubscriptionEnd)
	assert.Equal(t, []int64{1, 4}, s.EnrolledCourseIDs())
}

func TestLedger_PruneExpiredPaidCourses(t *testing.T) {
	now := servicetest.Epoch
	ledger := services.NewLedger(func() time.Time { return now })
	enrollments := func() map[int64]models.CourseCategory {
		return map[int64]models.CourseCategory{1: models.CategoryFree, 2: models.CategoryPaid}
	}

	active := newStudent(true, ptr(now.Add(day)), enrollments())
	assert.Empty(t, ledger.PruneExpiredPaidCourses(active))
	assert.Equal(t, []int64{1, 2}, active.EnrolledCourseIDs())

	expired := newStudent(true, ptr(now.Add(-day)), enrollments())
	assert.Equal(t, []int64{2}, ledger.PruneExpiredPaidCourses(expired))
	assert.Equal(t, []int64{1}, expired.EnrolledCourseIDs())
	assert.True(t, expired.Paid, "prune leaves subscription fields alone")
}

func TestSubscriptionService_SubscribeExtendUnsubscribe(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")
	freeCourse, _ := env.Store.AddCourse("Go basics", models.CategoryFree)
	paidCourse, _ := env.Store.AddCourse("Go internals", models.CategoryPaid)

	st, err := env.Subscriptions.Subscribe(ctx, alice, 2)
	require.NoError(t, err)
	assert.True(t, st.Paid)
	assert.Equal(t, servicetest.Epoch.Add(60*day), *env.Store.Student(alice.StudentID).SubscriptionEnd)

	env.Store.Enroll(alice.StudentID, freeCourse)
	env.Store.Enroll(alice.StudentID, paidCourse)

	st, extended, err := env.Subscriptions.Extend(ctx, alice, 1)
	require.NoError(t, err)
	assert.True(t, extended)
	assert.Equal(t, servicetest.Epoch.Add(90*day), *st.SubscriptionEnd)

	st, err = env.Subscriptions.Unsubscribe(ctx, alice)
	require.NoError(t, err)
	assert.False(t, st.Paid)

	stored := env.Store.Student(alice.StudentID)
	assert.False(t, stored.Paid)
	assert.Nil(t, stored.SubscriptionEnd)
	assert.Equal(t, []int64{freeCourse}, stored.EnrolledCourseIDs())

	assert.Eventually(t, func() bool {
		return env.Publisher.Count(servicetest.SubscriptionsTopic) == 3
	}, time.Second, 5*time.Millisecond)
}

func TestSubscriptionService_ExtendInactiveIsNoop(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	bob := env.Store.AddStudent("bob")

	st, extended, err := env.Subscriptions.Extend(ctx, bob, 3)

	require.NoError(t, err)
	assert.False(t, extended)
	assert.False(t, st.Paid)
	assert.Nil(t, env.Store.Student(bob.StudentID).SubscriptionEnd)
}

func TestSubscriptionService_RejectsNonStudents(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	instructor := env.Store.AddInstructor("ines")

	_, err := env.Subscriptions.Subscribe(ctx, instructor, 1)
	assert.True(t, apperrors.IsKind(err, apperrors.NotFound))
	assert.Equal(t, "User is not a student.", err.Error())

	_, _, err = env.Subscriptions.Extend(ctx, instructor, 1)
	assert.ErrorIs(t, err, services.ErrNotStudent)

	_, err = env.Subscriptions.Unsubscribe(ctx, nil)
	assert.ErrorIs(t, err, services.ErrNotStudent)
}

func TestSubscriptionService_InvalidDurationWritesNothing(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")

	_, err := env.Subscriptions.Subscribe(ctx, alice, 0)

	assert.True(t, apperrors.IsKind(err, apperrors.Invalid))
	assert.False(t, env.Store.Student(alice.StudentID).Paid)
}

func TestSubscriptionService_CurrentPrunesExpired(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")
	paidCourse, _ := env.Store.AddCourse("Go internals", models.CategoryPaid)

	_, err := env.Subscriptions.Subscribe(ctx, alice, 1)
	require.NoError(t, err)
	env.Store.Enroll(alice.StudentID, paidCourse)
	env.Clock.Advance(31 * day)

	st, err := env.Subscriptions.Current(ctx, alice)

	require.NoError(t, err)
	assert.Empty(t, st.EnrolledCourseIDs())
	assert.Empty(t, env.Store.Student(alice.StudentID).EnrolledCourseIDs())
}
