package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	apperrors "learning-platform/errors"
	"learning-platform/models"
)

const studentColumns = `
	SELECT s.id, s.user_id, u.username, u.email, s.paid, s.subscription_start, s.subscription_end
	FROM students s
	JOIN users u ON u.id = s.user_id`

func (r *repository) GetStudentByUserID(ctx context.Context, userID int64) (*models.Student, error) {
	return r.loadStudent(ctx, studentColumns+` WHERE s.user_id = $1`, userID)
}

func (r *repository) GetStudentForUpdate(ctx context.Context, studentID int64) (*models.Student, error) {
	return r.loadStudent(ctx, studentColumns+` WHERE s.id = $1 FOR UPDATE OF s`, studentID)
}

func (r *repository) GetStudentIDByUsername(ctx context.Context, username string) (int64, error) {
	var id int64
	err := r.tx.QueryRowContext(ctx, `
		SELECT s.id FROM students s JOIN users u ON u.id = s.user_id
		WHERE u.username = $1`, username,
	).Scan(&id)
	if err != nil {
		return 0, notFound("student", err)
	}
	return id, nil
}

func (r *repository) loadStudent(ctx context.Context, query string, arg int64) (*models.Student, error) {
	var (
		s          models.Student
		start, end sql.NullTime
	)
	err := r.tx.QueryRowContext(ctx, query, arg).
		Scan(&s.ID, &s.UserID, &s.Username, &s.Email, &s.Paid, &start, &end)
	if err != nil {
		return nil, notFound("student", err)
	}
	s.SubscriptionStart = nullTimePtr(start)
	s.SubscriptionEnd = nullTimePtr(end)

	rows, err := r.tx.QueryContext(ctx, `
		SELECT sc.course_id, c.category
		FROM student_courses sc
		JOIN courses c ON c.id = sc.course_id
		WHERE sc.student_id = $1`, s.ID)
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "query enrollments", err)
	}
	defer rows.Close()

	s.Enrollments = make(map[int64]models.CourseCategory)
	for rows.Next() {
		var (
			courseID int64
			category string
		)
		if err := rows.Scan(&courseID, &category); err != nil {
			return nil, apperrors.E(apperrors.Internal, "scan enrollment", err)
		}
		s.Enrollments[courseID] = models.CourseCategory(category)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.E(apperrors.Internal, "read enrollments", err)
	}
	return &s, nil
}

func (r *repository) SaveSubscription(ctx context.Context, s *models.Student) error {
	_, err := r.tx.ExecContext(ctx, `
		UPDATE students SET paid = $2, subscription_start = $3, subscription_end = $4
		WHERE id = $1`,
		s.ID, s.Paid, timePtrValue(s.SubscriptionStart), timePtrValue(s.SubscriptionEnd))
	if err != nil {
		return apperrors.E(apperrors.Internal, "update subscription", err)
	}
	return nil
}

func (r *repository) AddEnrollment(ctx context.Context, studentID, courseID int64) error {
	_, err := r.tx.ExecContext(ctx, `
		INSERT INTO student_courses (student_id, course_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING`, studentID, courseID)
	if err != nil {
		return apperrors.E(apperrors.Internal, "insert enrollment", err)
	}
	return nil
}

func (r *repository) RemoveEnrollments(ctx context.Context, studentID int64, courseIDs []int64) error {
	if len(courseIDs) == 0 {
		return nil
	}
	_, err := r.tx.ExecContext(ctx, `
		DELETE FROM student_courses WHERE student_id = $1 AND course_id = ANY($2)`,
		studentID, pq.Array(courseIDs))
	if err != nil {
		return apperrors.E(apperrors.Internal, "delete enrollments", err)
	}
	return nil
}

func (r *repository) ListExpiredStudentIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	rows, err := r.tx.QueryContext(ctx, `
		SELECT DISTINCT s.id
		FROM students s
		JOIN student_courses sc ON sc.student_id = s.id
		JOIN courses c ON c.id = sc.course_id
		WHERE c.category = 'PAID'
		  AND (NOT s.paid OR s.subscription_end IS NULL OR s.subscription_end <= $1)
		ORDER BY s.id
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "query expired students", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, apperrors.E(apperrors.Internal, "scan expired student", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timePtrValue(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
