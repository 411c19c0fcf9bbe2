package db

import (
	"context"

	"github.com/lib/pq"

	apperrors "learning-platform/errors"
	"learning-platform/models"
)

const lessonColumns = `
	SELECT l.id, l.curriculum_id, cu.course_id, c.category, l.title,
	       l.sequence_number, l.content, l.duration, l.created_at
	FROM lessons l
	JOIN curricula cu ON cu.id = l.curriculum_id
	JOIN courses c ON c.id = cu.course_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLesson(row rowScanner) (*models.Lesson, error) {
	var (
		l        models.Lesson
		category string
	)
	if err := row.Scan(&l.ID, &l.CurriculumID, &l.CourseID, &category, &l.Title,
		&l.SequenceNumber, &l.Content, &l.Duration, &l.CreatedAt); err != nil {
		return nil, err
	}
	l.CourseCategory = models.CourseCategory(category)
	return &l, nil
}

func (r *repository) GetCourse(ctx context.Context, courseID int64) (*models.Course, error) {
	var (
		c        models.Course
		category string
	)
	err := r.tx.QueryRowContext(ctx,
		`SELECT id, title, category FROM courses WHERE id = $1`, courseID,
	).Scan(&c.ID, &c.Title, &category)
	if err != nil {
		return nil, notFound("course", err)
	}
	c.Category = models.CourseCategory(category)
	return &c, nil
}

func (r *repository) GetLesson(ctx context.Context, lessonID int64) (*models.Lesson, error) {
	l, err := scanLesson(r.tx.QueryRowContext(ctx, lessonColumns+` WHERE l.id = $1`, lessonID))
	if err != nil {
		return nil, notFound("lesson", err)
	}
	return l, nil
}

func (r *repository) ListLessonsByCourses(ctx context.Context, courseIDs []int64) ([]models.Lesson, error) {
	rows, err := r.tx.QueryContext(ctx, lessonColumns+`
		WHERE cu.course_id = ANY($1)
		ORDER BY cu.course_id, l.sequence_number, l.id`, pq.Array(courseIDs))
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "query lessons", err)
	}
	defer rows.Close()

	var lessons []models.Lesson
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, apperrors.E(apperrors.Internal, "scan lesson", err)
		}
		lessons = append(lessons, *l)
	}
	return lessons, rows.Err()
}
