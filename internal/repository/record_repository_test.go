package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-adp/records-api/internal/models"
)

func newRecordRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRecordRepositoryCreateDefaults(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO records")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.Record{
		StudentID: "student-1",
		Kind:      models.KindInternship,
		Title:     "Summer internship",
		Payload:   []byte(`{"organization":"Acme"}`),
		CreatedBy: "student-1",
		UpdatedBy: "student-1",
	}
	require.NoError(t, repo.Create(context.Background(), record))

	require.NotEmpty(t, record.ID)
	require.True(t, record.Pending)
	require.Equal(t, models.StatusUnresolved, record.ApprovalStatus)
	require.Equal(t, []byte("[]"), []byte(record.Messages))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryGetByID(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "student_id", "kind", "title", "payload", "pending", "approval_status", "approved_by", "approved_at", "messages", "created_by", "updated_by", "created_at", "updated_at"}).
		AddRow("rec-1", "student-1", "internship", "Summer internship", []byte(`{}`), true, "UNRESOLVED", nil, nil, []byte(`[]`), "student-1", "student-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, student_id, kind, title, payload")).
		WithArgs("rec-1").
		WillReturnRows(rows)

	record, err := repo.GetByID(context.Background(), "rec-1")
	require.NoError(t, err)
	require.Equal(t, "rec-1", record.ID)
	require.True(t, record.Pending)
	require.Nil(t, record.ApprovedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryResolveGuardsPending(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	params := ResolveParams{
		ID:         "rec-1",
		Status:     models.StatusApproved,
		ApprovedBy: "tutor-1",
		ApprovedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Resolve(context.Background(), params))

	// already-resolved row matches nothing and surfaces as ErrNoRows
	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.Resolve(context.Background(), params)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryResetToPending(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetToPending(context.Background(), ResetParams{
		ID:        "rec-1",
		Title:     "Summer internship",
		Payload:   []byte(`{"organization":"Acme"}`),
		UpdatedBy: "student-1",
	}))

	mock.ExpectExec(regexp.QuoteMeta("UPDATE records SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.ResetToPending(context.Background(), ResetParams{ID: "missing"})
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryDeleteMissing(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM records WHERE id = $1")).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordRepositoryListTutorScope(t *testing.T) {
	db, mock, cleanup := newRecordRepoMock(t)
	defer cleanup()

	repo := NewRecordRepository(db)
	now := time.Now()
	pending := true

	rows := sqlmock.NewRows([]string{"id", "student_id", "kind", "title", "payload", "pending", "approval_status", "approved_by", "approved_at", "messages", "created_by", "updated_by", "created_at", "updated_at"}).
		AddRow("rec-1", "student-1", "internship", "Summer internship", []byte(`{}`), true, "UNRESOLVED", nil, nil, []byte(`[]`), "student-1", "student-1", now, now)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN student_profiles sp ON sp.user_id = r.student_id")).
		WithArgs("tutor-1", true).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs("tutor-1", true).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.RecordFilter{
		TutorID: "tutor-1",
		Pending: &pending,
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, total)
	require.NoError(t, mock.ExpectationsWereMet())
}
