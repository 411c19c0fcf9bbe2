package services

import (
	"context"
	"time"

	"learning-platform/models"
)

// Store runs fn inside a single database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type Store interface {
	WithinTx(ctx context.Context, fn func(Repository) error) error
}

// Repository is the transactional view of persisted state. Lookups that find
// nothing return an error of kind errors.NotFound. The ...ForUpdate variants
// hold a row lock until the transaction ends.
type Repository interface {
	CreateUser(ctx context.Context, user *models.User) error
	UserExists(ctx context.Context, email, username string) (emailTaken, usernameTaken bool, err error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)

	CreateStudent(ctx context.Context, userID int64) (int64, error)
	CreateInstructor(ctx context.Context, userID int64) (int64, error)
	GetInstructorByUserID(ctx context.Context, userID int64) (*models.Instructor, error)
	GetStudentByUserID(ctx context.Context, userID int64) (*models.Student, error)
	GetStudentForUpdate(ctx context.Context, studentID int64) (*models.Student, error)
	GetStudentIDByUsername(ctx context.Context, username string) (int64, error)
	SaveSubscription(ctx context.Context, student *models.Student) error
	AddEnrollment(ctx context.Context, studentID, courseID int64) error
	RemoveEnrollments(ctx context.Context, studentID int64, courseIDs []int64) error
	ListExpiredStudentIDs(ctx context.Context, now time.Time, limit int) ([]int64, error)

	GetCourse(ctx context.Context, courseID int64) (*models.Course, error)
	GetLesson(ctx context.Context, lessonID int64) (*models.Lesson, error)
	ListLessonsByCourses(ctx context.Context, courseIDs []int64) ([]models.Lesson, error)

	// InsertPayment stores record unless its payment id exists already and
	// reports whether a row was written.
	InsertPayment(ctx context.Context, record *models.PaymentRecord) (bool, error)
	GetPaymentForUpdate(ctx context.Context, paymentID string) (*models.PaymentRecord, error)
	UpdatePaymentStatus(ctx context.Context, record *models.PaymentRecord) error
	ListPaymentsByStudent(ctx context.Context, studentID int64) ([]models.PaymentRecord, error)
}

// Clock returns the current time. Tests substitute a fixed clock.
type Clock func() time.Time
