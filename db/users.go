package db

import (
	"context"

	apperrors "learning-platform/errors"
	"learning-platform/models"
)

func (r *repository) CreateUser(ctx context.Context, user *models.User) error {
	err := r.tx.QueryRowContext(ctx, `
		INSERT INTO users (email, username, password_hash, user_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		user.Email, user.Username, user.PasswordHash, string(user.Role),
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.E(apperrors.Invalid, "A user with that email or username already exists.")
		}
		return apperrors.E(apperrors.Internal, "insert user", err)
	}
	return nil
}

func (r *repository) UserExists(ctx context.Context, email, username string) (bool, bool, error) {
	var emailTaken, usernameTaken bool
	err := r.tx.QueryRowContext(ctx, `
		SELECT
			EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1)),
			EXISTS (SELECT 1 FROM users WHERE username = $2)`,
		email, username,
	).Scan(&emailTaken, &usernameTaken)
	if err != nil {
		return false, false, apperrors.E(apperrors.Internal, "check user exists", err)
	}
	return emailTaken, usernameTaken, nil
}

func (r *repository) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	var (
		u    models.User
		role string
	)
	err := r.tx.QueryRowContext(ctx, `
		SELECT id, email, username, password_hash, user_type, created_at
		FROM users WHERE id = $1`, userID,
	).Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &role, &u.CreatedAt)
	if err != nil {
		return nil, notFound("user", err)
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (r *repository) CreateStudent(ctx context.Context, userID int64) (int64, error) {
	var id int64
	if err := r.tx.QueryRowContext(ctx,
		`INSERT INTO students (user_id) VALUES ($1) RETURNING id`, userID,
	).Scan(&id); err != nil {
		return 0, apperrors.E(apperrors.Internal, "insert student", err)
	}
	return id, nil
}

func (r *repository) CreateInstructor(ctx context.Context, userID int64) (int64, error) {
	var id int64
	if err := r.tx.QueryRowContext(ctx,
		`INSERT INTO instructors (user_id) VALUES ($1) RETURNING id`, userID,
	).Scan(&id); err != nil {
		return 0, apperrors.E(apperrors.Internal, "insert instructor", err)
	}
	return id, nil
}

func (r *repository) GetInstructorByUserID(ctx context.Context, userID int64) (*models.Instructor, error) {
	var in models.Instructor
	err := r.tx.QueryRowContext(ctx,
		`SELECT id, user_id, courses_taught FROM instructors WHERE user_id = $1`, userID,
	).Scan(&in.ID, &in.UserID, &in.CoursesTaught)
	if err != nil {
		return nil, notFound("instructor", err)
	}
	return &in, nil
}
