package services_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "learning-platform/errors"
	"learning-platform/models"
	"learning-platform/services"
	"learning-platform/services/servicetest"
)

func TestPermits(t *testing.T) {
	free := &models.Lesson{CourseID: 1, CourseCategory: models.CategoryFree}
	paid := &models.Lesson{CourseID: 2, CourseCategory: models.CategoryPaid}

	tests := []struct {
		name    string
		student *models.Student
		lesson  *models.Lesson
		want    bool
	}{
		{"free lesson, unpaid, not enrolled", newStudent(false, nil, nil), free, true},
		{"paid lesson, paid and enrolled", newStudent(true, nil, map[int64]models.CourseCategory{2: models.CategoryPaid}), paid, true},
		{"paid lesson, paid but not enrolled", newStudent(true, nil, nil), paid, false},
		{"paid lesson, enrolled but unpaid", newStudent(false, nil, map[int64]models.CourseCategory{2: models.CategoryPaid}), paid, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, services.Permits(tt.student, tt.lesson))
		})
	}
}

func TestAccessGate_CanAccessLesson(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")
	instructor := env.Store.AddInstructor("ines")
	_, freeLesson := env.Store.AddCourse("Intro", models.CategoryFree)
	paidCourse, paidLesson := env.Store.AddCourse("Advanced", models.CategoryPaid)

	ok, err := env.Access.CanAccessLesson(ctx, alice, freeLesson)
	require.NoError(t, err)
	assert.True(t, ok, "free lessons are open to any student")

	ok, err = env.Access.CanAccessLesson(ctx, alice, paidLesson)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = env.Subscriptions.Subscribe(ctx, alice, 1)
	require.NoError(t, err)
	_, err = env.Access.Enroll(ctx, alice, paidCourse)
	require.NoError(t, err)

	ok, err = env.Access.CanAccessLesson(ctx, alice, paidLesson)
	require.NoError(t, err)
	assert.True(t, ok)

	for _, p := range []models.Principal{instructor, nil} {
		ok, err = env.Access.CanAccessLesson(ctx, p, freeLesson)
		require.NoError(t, err)
		assert.False(t, ok, "non-students are always denied")
	}

	_, err = env.Access.CanAccessLesson(ctx, alice, 424242)
	assert.True(t, apperrors.IsKind(err, apperrors.NotFound))
}

func TestAccessGate_ExpiredSubscriptionLosesPaidLessons(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")
	freeCourse, freeLesson := env.Store.AddCourse("Intro", models.CategoryFree)
	paidCourse, paidLesson := env.Store.AddCourse("Advanced", models.CategoryPaid)

	_, err := env.Subscriptions.Subscribe(ctx, alice, 1)
	require.NoError(t, err)
	_, err = env.Access.Enroll(ctx, alice, paidCourse)
	require.NoError(t, err)
	_, err = env.Access.Enroll(ctx, alice, freeCourse)
	require.NoError(t, err)

	env.Clock.Advance(30 * day)

	// still paid=true, but the window has closed
	ok, err := env.Access.CanAccessLesson(ctx, alice, paidLesson)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, []int64{freeCourse}, env.Store.Student(alice.StudentID).EnrolledCourseIDs())

	ok, err = env.Access.CanAccessLesson(ctx, alice, freeLesson)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAccessGate_GetLesson(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")
	instructor := env.Store.AddInstructor("ines")
	_, freeLesson := env.Store.AddCourse("Intro", models.CategoryFree)
	_, paidLesson := env.Store.AddCourse("Advanced", models.CategoryPaid)

	lesson, err := env.Access.GetLesson(ctx, alice, freeLesson)
	require.NoError(t, err)
	assert.Equal(t, freeLesson, lesson.ID)

	_, err = env.Access.GetLesson(ctx, alice, paidLesson)
	assert.True(t, apperrors.IsKind(err, apperrors.Forbidden))

	_, err = env.Access.GetLesson(ctx, instructor, freeLesson)
	assert.True(t, apperrors.IsKind(err, apperrors.Forbidden))
}

func TestAccessGate_Enroll(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")
	instructor := env.Store.AddInstructor("ines")
	freeCourse, _ := env.Store.AddCourse("Intro", models.CategoryFree)
	paidCourse, _ := env.Store.AddCourse("Advanced", models.CategoryPaid)

	st, err := env.Access.Enroll(ctx, alice, freeCourse)
	require.NoError(t, err)
	assert.True(t, st.IsEnrolled(freeCourse))

	st, err = env.Access.Enroll(ctx, alice, freeCourse)
	require.NoError(t, err, "enrolling twice is a no-op")
	assert.Equal(t, []int64{freeCourse}, st.EnrolledCourseIDs())

	_, err = env.Access.Enroll(ctx, alice, paidCourse)
	assert.True(t, apperrors.IsKind(err, apperrors.Forbidden))
	assert.False(t, env.Store.Student(alice.StudentID).IsEnrolled(paidCourse))

	_, err = env.Access.Enroll(ctx, alice, 999)
	assert.True(t, apperrors.IsKind(err, apperrors.NotFound))

	_, err = env.Access.Enroll(ctx, instructor, freeCourse)
	assert.True(t, apperrors.IsKind(err, apperrors.Forbidden))

	_, err = env.Subscriptions.Subscribe(ctx, alice, 1)
	require.NoError(t, err)
	st, err = env.Access.Enroll(ctx, alice, paidCourse)
	require.NoError(t, err)
	assert.Equal(t, []int64{freeCourse, paidCourse}, st.EnrolledCourseIDs())
}

func TestAccessGate_ListLessons(t *testing.T) {
	ctx := context.Background()
	env := servicetest.NewEnv()
	alice := env.Store.AddStudent("alice")
	freeCourse, freeLesson := env.Store.AddCourse("Intro", models.CategoryFree)
	env.Store.AddCourse("Other", models.CategoryFree)

	lessons, err := env.Access.ListLessons(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, lessons)

	_, err = env.Access.Enroll(ctx, alice, freeCourse)
	require.NoError(t, err)

	lessons, err = env.Access.ListLessons(ctx, alice)
	require.NoError(t, err)
	require.Len(t, lessons, 1)
	assert.Equal(t, freeLesson, lessons[0].ID)

	_, err = env.Access.ListLessons(ctx, env.Store.AddInstructor("instructor"))
	assert.True(t, apperrors.IsKind(err, apperrors.Forbidden))
}
