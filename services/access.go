package services

import (
	"context"

	apperrors "learning-platform/errors"
	"learning-platform/metrics"
	"learning-platform/models"
)

var (
	errLessonsStudentsOnly = apperrors.E(apperrors.Forbidden, "You must be a student to access lessons.")
	errLessonNotEnrolled   = apperrors.E(apperrors.Forbidden, "You must be enrolled in this course to access the lesson.")
	errEnrollStudentsOnly  = apperrors.E(apperrors.Forbidden, "Sign up to enroll in courses.")
	errEnrollUnpaid        = apperrors.E(apperrors.Forbidden, "Payment is required to enroll in this course.")
)

// Permits is the lesson access rule for a student whose enrollments have
// already been pruned.
func Permits(student *models.Student, lesson *models.Lesson) bool {
	if lesson.CourseCategory == models.CategoryFree {
		return true
	}
	return student.Paid && student.IsEnrolled(lesson.CourseID)
}

// AccessGate decides which lessons a principal may read and handles
// enrollment. Expired paid enrollments are pruned before every decision.
type AccessGate struct {
	store   Store
	ledger  *Ledger
	metrics *metrics.Metrics
}

func NewAccessGate(store Store, ledger *Ledger, m *metrics.Metrics) *AccessGate {
	return &AccessGate{store: store, ledger: ledger, metrics: m}
}

// CanAccessLesson reports whether p may read the lesson.
func (g *AccessGate) CanAccessLesson(ctx context.Context, p models.Principal, lessonID int64) (bool, error) {
	_, allowed, err := g.decide(ctx, p, lessonID)
	if err != nil {
		return false, err
	}
	return allowed, nil
}

// GetLesson returns the lesson when p may read it.
func (g *AccessGate) GetLesson(ctx context.Context, p models.Principal, lessonID int64) (*models.Lesson, error) {
	if _, ok := models.AsStudent(p); !ok {
		g.metrics.AccessDecided(false)
		return nil, errLessonsStudentsOnly
	}
	lesson, allowed, err := g.decide(ctx, p, lessonID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errLessonNotEnrolled
	}
	return lesson, nil
}

func (g *AccessGate) decide(ctx context.Context, p models.Principal, lessonID int64) (*models.Lesson, bool, error) {
	sp, ok := models.AsStudent(p)
	if !ok {
		g.metrics.AccessDecided(false)
		return nil, false, nil
	}

	var (
		lesson  *models.Lesson
		allowed bool
	)
	err := g.store.WithinTx(ctx, func(repo Repository) error {
		var err error
		if lesson, err = repo.GetLesson(ctx, lessonID); err != nil {
			return err
		}
		student, err := g.loadPruned(ctx, repo, sp)
		if err != nil {
			return err
		}
		allowed = Permits(student, lesson)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	g.metrics.AccessDecided(allowed)
	return lesson, allowed, nil
}

// ListLessons returns the lessons of the student's enrolled courses.
func (g *AccessGate) ListLessons(ctx context.Context, p models.Principal) ([]models.Lesson, error) {
	sp, ok := models.AsStudent(p)
	if !ok {
		return nil, errLessonsStudentsOnly
	}
	var lessons []models.Lesson
	err := g.store.WithinTx(ctx, func(repo Repository) error {
		student, err := g.loadPruned(ctx, repo, sp)
		if err != nil {
			return err
		}
		ids := student.EnrolledCourseIDs()
		if len(ids) == 0 {
			return nil
		}
		lessons, err = repo.ListLessonsByCourses(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	if lessons == nil {
		lessons = []models.Lesson{}
	}
	return lessons, nil
}

// Enroll adds courseID to the student's enrollments. Paid courses need the
// paid flag; enrolling twice is a no-op.
func (g *AccessGate) Enroll(ctx context.Context, p models.Principal, courseID int64) (*models.Student, error) {
	sp, ok := models.AsStudent(p)
	if !ok {
		return nil, errEnrollStudentsOnly
	}
	var student *models.Student
	err := g.store.WithinTx(ctx, func(repo Repository) error {
		course, err := repo.GetCourse(ctx, courseID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.NotFound) {
				return apperrors.E(apperrors.NotFound, "Course not found.")
			}
			return err
		}
		if student, err = g.loadPruned(ctx, repo, sp); err != nil {
			return err
		}
		if course.Category == models.CategoryPaid && !student.Paid {
			return errEnrollUnpaid
		}
		if student.IsEnrolled(course.ID) {
			return nil
		}
		if err := repo.AddEnrollment(ctx, student.ID, course.ID); err != nil {
			return err
		}
		if student.Enrollments == nil {
			student.Enrollments = make(map[int64]models.CourseCategory)
		}
		student.Enrollments[course.ID] = course.Category
		return nil
	})
	if err != nil {
		return nil, err
	}
	return student, nil
}

// loadPruned reads the student and deletes paid enrollments that outlived the
// subscription.
func (g *AccessGate) loadPruned(ctx context.Context, repo Repository, sp models.StudentPrincipal) (*models.Student, error) {
	student, err := repo.GetStudentByUserID(ctx, sp.User.ID)
	if err != nil {
		return nil, err
	}
	if removed := g.ledger.PruneExpiredPaidCourses(student); len(removed) > 0 {
		if err := repo.RemoveEnrollments(ctx, student.ID, removed); err != nil {
			return nil, err
		}
		g.metrics.SubscriptionChanged(OpPrune)
	}
	return student, nil
}
