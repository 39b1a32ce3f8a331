package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/campus-adp/records-api/internal/models"
)

// RecordRepository persists workflow records for all kinds in one
// polymorphic table.
type RecordRepository struct {
	db *sqlx.DB
}

// NewRecordRepository constructs the repository.
func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

const recordColumns = `id, student_id, kind, title, payload, pending, approval_status,
       approved_by, approved_at, messages, created_by, updated_by, created_at, updated_at`

// Create inserts a new record in the pending state.
func (r *RecordRepository) Create(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	record.Pending = true
	record.ApprovalStatus = models.StatusUnresolved
	if len(record.Messages) == 0 {
		record.Messages = []byte("[]")
	}
	const query = `INSERT INTO records
	(id, student_id, kind, title, payload, pending, approval_status, approved_by, approved_at, messages, created_by, updated_by, created_at, updated_at)
	VALUES (:id, :student_id, :kind, :title, :payload, :pending, :approval_status, :approved_by, :approved_at, :messages, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create record: %w", err)
	}
	return nil
}

// GetByID fetches a record by identifier.
func (r *RecordRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	query := fmt.Sprintf(`SELECT %s FROM records WHERE id = $1`, recordColumns)
	var record models.Record
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// ResetParams groups the columns rewritten by a resubmission. The approval
// fields are always forced back to the unresolved state by the UPDATE itself.
type ResetParams struct {
	ID        string
	Title     string
	Payload   []byte
	UpdatedBy string
}

// ResetToPending merges the resubmitted payload and clears all four approval
// fields in one statement, so the invariant cannot be observed half-applied.
func (r *RecordRepository) ResetToPending(ctx context.Context, params ResetParams) error {
	const query = `UPDATE records SET
		title = :title,
		payload = :payload,
		pending = TRUE,
		approval_status = :unresolved,
		approved_by = NULL,
		approved_at = NULL,
		updated_by = :updated_by,
		updated_at = :updated_at
	WHERE id = :id`
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":         params.ID,
		"title":      params.Title,
		"payload":    params.Payload,
		"unresolved": models.StatusUnresolved,
		"updated_by": params.UpdatedBy,
		"updated_at": time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("reset record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check reset rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResolveParams groups the columns written by a review decision.
type ResolveParams struct {
	ID         string
	Status     models.ApprovalStatus
	ApprovedBy string
	ApprovedAt time.Time
	Messages   []byte
}

// Resolve records the review outcome. The pending guard makes concurrent
// reviews lose with sql.ErrNoRows instead of overwriting each other.
func (r *RecordRepository) Resolve(ctx context.Context, params ResolveParams) error {
	setParts := []string{
		"pending = FALSE",
		"approval_status = :status",
		"approved_by = :approved_by",
		"approved_at = :approved_at",
		"updated_by = :approved_by",
		"updated_at = :approved_at",
	}
	if len(params.Messages) > 0 {
		setParts = append(setParts, "messages = :messages")
	}
	query := fmt.Sprintf("UPDATE records SET %s WHERE id = :id AND pending = TRUE",
		strings.Join(setParts, ", "))
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":          params.ID,
		"status":      params.Status,
		"approved_by": params.ApprovedBy,
		"approved_at": params.ApprovedAt,
		"messages":    params.Messages,
	})
	if err != nil {
		return fmt.Errorf("resolve record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check resolve rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a record permanently.
func (r *RecordRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns records matching the filter with a total count. Tutor scoping
// joins the student profile table so approvers only see their tutees.
func (r *RecordRepository) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error) {
	baseQuery := `FROM records r`
	var conditions []string
	var args []interface{}

	if filter.TutorID != "" {
		baseQuery += ` JOIN student_profiles sp ON sp.user_id = r.student_id`
		conditions = append(conditions, fmt.Sprintf("sp.tutor_id = $%d", len(args)+1))
		args = append(args, filter.TutorID)
	}
	if filter.Kind != "" {
		conditions = append(conditions, fmt.Sprintf("r.kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("r.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Pending != nil {
		conditions = append(conditions, fmt.Sprintf("r.pending = $%d", len(args)+1))
		args = append(args, *filter.Pending)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("r.approval_status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if len(conditions) > 0 {
		baseQuery += " WHERE " + strings.Join(conditions, " AND ")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	prefixed := make([]string, 0, 14)
	for _, col := range strings.Split(recordColumns, ",") {
		prefixed = append(prefixed, "r."+strings.TrimSpace(col))
	}
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY r.updated_at DESC LIMIT %d OFFSET %d",
		strings.Join(prefixed, ", "), baseQuery, pageSize, offset)

	var records []models.Record
	if err := r.db.SelectContext(ctx, &records, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count records: %w", err)
	}

	return records, total, nil
}
