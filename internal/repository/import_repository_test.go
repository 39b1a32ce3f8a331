package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/campus-adp/records-api/internal/models"
)

func newImportRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestImportRepositoryCommitsOnSuccess(t *testing.T) {
	db, mock, cleanup := newImportRepoMock(t)
	defer cleanup()

	repo := NewImportRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT email FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("old@example.edu"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id FROM users WHERE email = ")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("tutor-1"))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO student_profiles")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_logs")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.Run(context.Background(), func(ctx context.Context, tx ImportTx) error {
		existing, err := tx.ExistingEmails(ctx)
		require.NoError(t, err)
		require.Contains(t, existing, "old@example.edu")

		user := &models.User{Email: "new@example.edu", FullName: "New Student", Role: models.RoleStudent, PasswordHash: "hash", Active: true}
		require.NoError(t, tx.BulkCreateUsers(ctx, []*models.User{user}))
		require.NotEmpty(t, user.ID)

		tutorID, err := tx.FindTutorIDByEmail(ctx, "tutor@example.edu")
		require.NoError(t, err)

		require.NoError(t, tx.CreateStudentProfile(ctx, &models.StudentProfile{
			UserID: user.ID, RegisterNo: "R001", Program: "CSE", BatchYear: 2026, TutorID: &tutorID,
		}))
		return tx.CreateAuditLog(ctx, &models.AuditLog{Action: models.AuditActionBulkImport, Resource: "users"})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRepositoryRollsBackOnError(t *testing.T) {
	db, mock, cleanup := newImportRepoMock(t)
	defer cleanup()

	repo := NewImportRepository(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := repo.Run(context.Background(), func(ctx context.Context, tx ImportTx) error {
		user := &models.User{Email: "new@example.edu", FullName: "New Student", Role: models.RoleStudent}
		require.NoError(t, tx.BulkCreateUsers(ctx, []*models.User{user}))
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestImportRepositoryRollsBackWhenCallbackAborts(t *testing.T) {
	db, mock, cleanup := newImportRepoMock(t)
	defer cleanup()

	repo := NewImportRepository(db)
	abort := errors.New("duplicates")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT email FROM users")).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("dup@example.edu"))
	mock.ExpectRollback()

	err := repo.Run(context.Background(), func(ctx context.Context, tx ImportTx) error {
		existing, err := tx.ExistingEmails(ctx)
		require.NoError(t, err)
		if _, ok := existing["dup@example.edu"]; ok {
			return abort
		}
		return nil
	})
	require.ErrorIs(t, err, abort)
	require.NoError(t, mock.ExpectationsWereMet())
}
