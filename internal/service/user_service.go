package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/models"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

type studentProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*models.StudentProfile, error)
	AssignTutor(ctx context.Context, studentID, tutorID string) error
}

// UserService manages accounts and student profiles: listings and reads for
// staff, single-account creation, and tutor reassignment.
type UserService struct {
	repo     userRepository
	students studentProfileStore
	logger   *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, students studentProfileStore, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{repo: repo, students: students, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}

	return users, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

// Get returns one user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

// Create adds a single account. Student accounts still go through the bulk
// import so they arrive with a profile and a tutor link; this path covers
// tutors and admins.
func (s *UserService) Create(ctx context.Context, req dto.CreateUserRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	role := models.UserRole(strings.ToUpper(strings.TrimSpace(req.Role)))
	if role != models.RoleTutor && role != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be TUTOR or ADMIN")
	}

	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "email already registered")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check email")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Email:        email,
		PasswordHash: string(hash),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         role,
		Active:       true,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return user, nil
}

// AssignTutor points the student's profile at a new tutor. Future record
// reviews follow the new assignment; already-resolved records keep their
// original approver.
func (s *UserService) AssignTutor(ctx context.Context, studentID, tutorID string) (*models.StudentProfile, error) {
	tutor, err := s.repo.FindByID(ctx, tutorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "tutor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load tutor")
	}
	if tutor.Role != models.RoleTutor || !tutor.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee must be an active tutor")
	}

	if err := s.students.AssignTutor(ctx, studentID, tutorID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign tutor")
	}

	s.logger.Info("tutor assigned", zap.String("student_id", studentID), zap.String("tutor_id", tutorID))
	return s.GetStudentProfile(ctx, studentID)
}

// GetStudentProfile returns the student detail profile for a user.
func (s *UserService) GetStudentProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	profile, err := s.students.GetProfile(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student profile not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student profile")
	}
	return profile, nil
}
