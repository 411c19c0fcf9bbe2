package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	apperrors "learning-platform/errors"
	"learning-platform/logger"
	"learning-platform/models"
)

// RegisterRequest is the sign-up payload.
type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Username  string `json:"username" validate:"required,max=150"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	Password2 string `json:"password2" validate:"required,eqfield=Password"`
	UserType  string `json:"user_type" validate:"required,oneof=1 2 student instructor"`
}

// Claims are the access token claims. Tokens are issued elsewhere and only
// verified here.
type Claims struct {
	UserID int64 `json:"user_id"`
	jwt.RegisteredClaims
}

// AuthService registers users and turns bearer tokens into principals.
type AuthService struct {
	store  Store
	secret []byte
	now    Clock
}

func NewAuthService(store Store, jwtSecret string, clock Clock) *AuthService {
	if clock == nil {
		clock = time.Now
	}
	return &AuthService{store: store, secret: []byte(jwtSecret), now: clock}
}

// Register creates the user and its role profile. Duplicate email or
// username is a validation error.
func (a *AuthService) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if req.Password != req.Password2 {
		return nil, apperrors.E(apperrors.Invalid, "Password fields didn't match.")
	}
	role, err := models.ParseRole(req.UserType)
	if err != nil {
		return nil, apperrors.E(apperrors.Invalid, "Invalid user type.", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperrors.E(apperrors.Internal, "hash password", err)
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Username:     strings.TrimSpace(req.Username),
		PasswordHash: string(hash),
		Role:         role,
	}

	err = a.store.WithinTx(ctx, func(repo Repository) error {
		emailTaken, usernameTaken, err := repo.UserExists(ctx, user.Email, user.Username)
		if err != nil {
			return err
		}
		switch {
		case emailTaken:
			return apperrors.E(apperrors.Invalid, "A user with that email already exists.")
		case usernameTaken:
			return apperrors.E(apperrors.Invalid, "A user with that username already exists.")
		}

		if err := repo.CreateUser(ctx, user); err != nil {
			return err
		}
		if role == models.RoleStudent {
			_, err = repo.CreateStudent(ctx, user.ID)
		} else {
			_, err = repo.CreateInstructor(ctx, user.ID)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Registered %s %s (id=%d)", role, user.Username, user.ID)
	return user, nil
}

// CheckPassword reports whether password matches the stored hash.
func CheckPassword(user *models.User, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) == nil
}

// ParseToken validates an HS256 access token and returns its user id.
func (a *AuthService) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return 0, apperrors.E(apperrors.Unauthorized, "Invalid or expired token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID <= 0 {
		return 0, apperrors.E(apperrors.Unauthorized, "Invalid token claims")
	}
	return claims.UserID, nil
}

// ResolvePrincipal loads the user and its profile into a Principal.
func (a *AuthService) ResolvePrincipal(ctx context.Context, userID int64) (models.Principal, error) {
	var principal models.Principal
	err := a.store.WithinTx(ctx, func(repo Repository) error {
		user, err := repo.GetUserByID(ctx, userID)
		if err != nil {
			if apperrors.IsKind(err, apperrors.NotFound) {
				return apperrors.E(apperrors.Unauthorized, "User not found")
			}
			return err
		}

		switch user.Role {
		case models.RoleStudent:
			student, err := repo.GetStudentByUserID(ctx, user.ID)
			if err != nil {
				return err
			}
			principal = models.StudentPrincipal{User: *user, StudentID: student.ID}
		case models.RoleInstructor:
			instructor, err := repo.GetInstructorByUserID(ctx, user.ID)
			if err != nil {
				return err
			}
			principal = models.InstructorPrincipal{User: *user, InstructorID: instructor.ID}
		default:
			return apperrors.E(apperrors.Unauthorized, fmt.Sprintf("unknown role %q", user.Role))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return principal, nil
}

// Authenticate resolves the principal behind a bearer token.
func (a *AuthService) Authenticate(ctx context.Context, tokenString string) (models.Principal, error) {
	userID, err := a.ParseToken(tokenString)
	if err != nil {
		return nil, err
	}
	return a.ResolvePrincipal(ctx, userID)
}
