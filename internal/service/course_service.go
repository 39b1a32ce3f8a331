package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/models"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

type courseRepository interface {
	Create(ctx context.Context, course *models.Course) error
	FindByID(ctx context.Context, id string) (*models.Course, error)
	FindByCode(ctx context.Context, code string) (*models.Course, error)
	List(ctx context.Context) ([]models.Course, error)
}

// CourseService manages external courses and answers grade lookups against
// their cut-points.
type CourseService struct {
	repo      courseRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService creates an instance of CourseService.
func NewCourseService(repo courseRepository, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// Create registers a course after checking the cut-points strictly decrease
// and the code is not taken.
func (s *CourseService) Create(ctx context.Context, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}
	thresholds := []float64{req.GradeO, req.GradeAPlus, req.GradeA, req.GradeBPlus, req.GradeB, req.GradeC}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] >= thresholds[i-1] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "grade cut-points must strictly decrease from O to C")
		}
	}

	if _, err := s.repo.FindByCode(ctx, req.Code); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("course code %s already exists", req.Code))
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course code")
	}

	course := &models.Course{
		Code:       req.Code,
		Title:      req.Title,
		Provider:   req.Provider,
		GradeO:     req.GradeO,
		GradeAPlus: req.GradeAPlus,
		GradeA:     req.GradeA,
		GradeBPlus: req.GradeBPlus,
		GradeB:     req.GradeB,
		GradeC:     req.GradeC,
	}
	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}

	s.logger.Info("course registered", zap.String("course_id", course.ID), zap.String("code", course.Code))
	return course, nil
}

// Get returns one course by ID.
func (s *CourseService) Get(ctx context.Context, id string) (*models.Course, error) {
	course, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// List returns all registered courses.
func (s *CourseService) List(ctx context.Context) ([]models.Course, error) {
	courses, err := s.repo.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	return courses, nil
}

// Grade maps a mark to the letter grade under the course's cut-points.
func (s *CourseService) Grade(ctx context.Context, courseID string, marks float64) (string, error) {
	if marks < 0 || marks > 100 {
		return "", appErrors.Clone(appErrors.ErrValidation, "marks must be between 0 and 100")
	}
	course, err := s.Get(ctx, courseID)
	if err != nil {
		return "", err
	}
	return ComputeGrade(marks, BandsForCourse(course)), nil
}
