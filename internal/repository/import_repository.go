package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-adp/records-api/internal/models"
)

// ImportTx exposes the statements available inside one import transaction.
// Everything executed through it commits or rolls back as a unit.
type ImportTx interface {
	ExistingEmails(ctx context.Context) (map[string]struct{}, error)
	BulkCreateUsers(ctx context.Context, users []*models.User) error
	FindTutorIDByEmail(ctx context.Context, email string) (string, error)
	CreateStudentProfile(ctx context.Context, profile *models.StudentProfile) error
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ImportRepository owns the transaction boundary of the bulk import.
type ImportRepository struct {
	db *sqlx.DB
}

// NewImportRepository constructs the repository.
func NewImportRepository(db *sqlx.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

// Run executes fn inside a single transaction. Any error (or panic) rolls
// the whole batch back; no partial writes survive.
func (r *ImportRepository) Run(ctx context.Context, fn func(ctx context.Context, tx ImportTx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin import transaction: %w", err)
	}

	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if err := fn(ctx, &importTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		done = true
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import transaction: %w", err)
	}
	done = true
	return nil
}

type importTx struct {
	tx *sqlx.Tx
}

// ExistingEmails snapshots the identifying keys already present, inside the
// same transaction for a consistent view.
func (t *importTx) ExistingEmails(ctx context.Context) (map[string]struct{}, error) {
	var emails []string
	if err := t.tx.SelectContext(ctx, &emails, `SELECT email FROM users`); err != nil {
		return nil, fmt.Errorf("snapshot existing emails: %w", err)
	}
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		set[email] = struct{}{}
	}
	return set, nil
}

// BulkCreateUsers inserts all user rows in one statement.
func (t *importTx) BulkCreateUsers(ctx context.Context, users []*models.User) error {
	if len(users) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, user := range users {
		if user.ID == "" {
			user.ID = uuid.NewString()
		}
		if user.CreatedAt.IsZero() {
			user.CreatedAt = now
		}
		user.UpdatedAt = now
	}
	const query = `INSERT INTO users (id, email, password_hash, full_name, role, active, created_at, updated_at)
	VALUES (:id, :email, :password_hash, :full_name, :role, :active, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, users); err != nil {
		return fmt.Errorf("bulk create users: %w", err)
	}
	return nil
}

// FindTutorIDByEmail resolves a tutor's natural key within the transaction.
func (t *importTx) FindTutorIDByEmail(ctx context.Context, email string) (string, error) {
	var id string
	const query = `SELECT id FROM users WHERE email = $1 AND role = $2 LIMIT 1`
	if err := t.tx.GetContext(ctx, &id, query, email, models.RoleTutor); err != nil {
		return "", err
	}
	return id, nil
}

// CreateStudentProfile inserts the detail row for a student user.
func (t *importTx) CreateStudentProfile(ctx context.Context, profile *models.StudentProfile) error {
	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now
	const query = `INSERT INTO student_profiles (user_id, register_no, program, batch_year, tutor_id, created_at, updated_at)
	VALUES (:user_id, :register_no, :program, :batch_year, :tutor_id, :created_at, :updated_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, profile); err != nil {
		return fmt.Errorf("create student profile: %w", err)
	}
	return nil
}

// CreateAuditLog writes the batch audit entry inside the transaction.
func (t *importTx) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
	VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := t.tx.NamedExecContext(ctx, query, log); err != nil {
		return fmt.Errorf("create import audit log: %w", err)
	}
	return nil
}
