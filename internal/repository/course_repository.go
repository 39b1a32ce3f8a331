package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-adp/records-api/internal/models"
)

// CourseRepository stores external courses and their grade cut-points.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

const courseColumns = `id, code, title, provider, grade_o, grade_a_plus, grade_a, grade_b_plus, grade_b, grade_c, created_at, updated_at`

// Create inserts a new course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	const query = `INSERT INTO courses (id, code, title, provider, grade_o, grade_a_plus, grade_a, grade_b_plus, grade_b, grade_c, created_at, updated_at)
	VALUES (:id, :code, :title, :provider, :grade_o, :grade_a_plus, :grade_a, :grade_b_plus, :grade_b, :grade_c, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}

// FindByID returns a course by identifier.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE id = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// FindByCode returns a course by its unique code.
func (r *CourseRepository) FindByCode(ctx context.Context, code string) (*models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses WHERE code = $1 LIMIT 1`, courseColumns)
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, code); err != nil {
		return nil, err
	}
	return &course, nil
}

// List returns all courses ordered by code.
func (r *CourseRepository) List(ctx context.Context) ([]models.Course, error) {
	query := fmt.Sprintf(`SELECT %s FROM courses ORDER BY code ASC`, courseColumns)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query); err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	return courses, nil
}
