package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/models"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

type courseRepoStub struct {
	byID   map[string]*models.Course
	byCode map[string]*models.Course
}

func newCourseRepoStub() *courseRepoStub {
	return &courseRepoStub{byID: map[string]*models.Course{}, byCode: map[string]*models.Course{}}
}

func (s *courseRepoStub) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	s.byID[course.ID] = course
	s.byCode[course.Code] = course
	return nil
}

func (s *courseRepoStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := s.byID[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *courseRepoStub) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	if c, ok := s.byCode[code]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

func (s *courseRepoStub) List(ctx context.Context) ([]models.Course, error) {
	var result []models.Course
	for _, c := range s.byID {
		result = append(result, *c)
	}
	return result, nil
}

func validCourseRequest() dto.CreateCourseRequest {
	return dto.CreateCourseRequest{
		Code: "NPTEL101", Title: "Data Structures", Provider: "NPTEL",
		GradeO: 90, GradeAPlus: 80, GradeA: 70, GradeBPlus: 60, GradeB: 50, GradeC: 40,
	}
}

func TestCourseServiceCreate(t *testing.T) {
	repo := newCourseRepoStub()
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), validCourseRequest())
	require.NoError(t, err)
	require.NotEmpty(t, course.ID)
	require.Equal(t, "NPTEL101", course.Code)
}

func TestCourseServiceCreateRejectsNonDecreasingCutPoints(t *testing.T) {
	repo := newCourseRepoStub()
	svc := NewCourseService(repo, nil, nil)

	req := validCourseRequest()
	req.GradeA = 85 // above A+
	_, err := svc.Create(context.Background(), req)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestCourseServiceCreateRejectsDuplicateCode(t *testing.T) {
	repo := newCourseRepoStub()
	svc := NewCourseService(repo, nil, nil)

	_, err := svc.Create(context.Background(), validCourseRequest())
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), validCourseRequest())
	require.True(t, appErrors.Is(err, appErrors.ErrConflict))
}

func TestCourseServiceGrade(t *testing.T) {
	repo := newCourseRepoStub()
	svc := NewCourseService(repo, nil, nil)

	course, err := svc.Create(context.Background(), validCourseRequest())
	require.NoError(t, err)

	grade, err := svc.Grade(context.Background(), course.ID, 80)
	require.NoError(t, err)
	require.Equal(t, "A+", grade)

	_, err = svc.Grade(context.Background(), course.ID, 101)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	_, err = svc.Grade(context.Background(), "missing", 50)
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}
