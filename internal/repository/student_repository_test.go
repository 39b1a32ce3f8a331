package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newStudentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestStudentRepositoryAssignTutor(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_profiles SET tutor_id")).
		WithArgs("student-1", "tutor-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.AssignTutor(context.Background(), "student-1", "tutor-2"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryAssignTutorMissingProfile(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE student_profiles SET tutor_id")).
		WithArgs("ghost", "tutor-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AssignTutor(context.Background(), "ghost", "tutor-2")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStudentRepositoryResolveApproverNoTutor(t *testing.T) {
	db, mock, cleanup := newStudentRepoMock(t)
	defer cleanup()

	repo := NewStudentRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("JOIN users u ON u.id = sp.tutor_id")).
		WithArgs("student-1").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.ResolveApprover(context.Background(), "student-1")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
