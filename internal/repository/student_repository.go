package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/campus-adp/records-api/internal/models"
)

// StudentRepository accesses student profiles and tutor assignments.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// GetProfile returns the student profile for a user.
func (r *StudentRepository) GetProfile(ctx context.Context, userID string) (*models.StudentProfile, error) {
	const query = `SELECT user_id, register_no, program, batch_year, tutor_id, created_at, updated_at
	FROM student_profiles WHERE user_id = $1 LIMIT 1`
	var profile models.StudentProfile
	if err := r.db.GetContext(ctx, &profile, query, userID); err != nil {
		return nil, err
	}
	return &profile, nil
}

// ResolveApprover returns the active tutor responsible for the student's
// records. sql.ErrNoRows means no tutor is on file; callers must treat that
// as an explicit failure, never a silent default.
func (r *StudentRepository) ResolveApprover(ctx context.Context, studentID string) (*models.Approver, error) {
	const query = `SELECT u.id, u.email, u.full_name
	FROM student_profiles sp
	JOIN users u ON u.id = sp.tutor_id AND u.active = TRUE
	WHERE sp.user_id = $1 LIMIT 1`
	var approver models.Approver
	if err := r.db.GetContext(ctx, &approver, query, studentID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("resolve approver: %w", err)
	}
	return &approver, nil
}

// AssignTutor sets or replaces the tutor for a student profile.
func (r *StudentRepository) AssignTutor(ctx context.Context, studentID, tutorID string) error {
	const query = `UPDATE student_profiles SET tutor_id = $2, updated_at = $3 WHERE user_id = $1`
	result, err := r.db.ExecContext(ctx, query, studentID, tutorID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign tutor: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check assign rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
