package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-adp/records-api/internal/models"
	"github.com/campus-adp/records-api/internal/repository"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
	"github.com/campus-adp/records-api/pkg/storage"
)

// importTxStub mimics the transactional unit of work: writes accumulate in
// staging and only land in the store when the callback returns nil.
type importTxStub struct {
	store *importStoreStub

	users    []*models.User
	profiles []*models.StudentProfile
	audits   []*models.AuditLog
}

type importStoreStub struct {
	emails   map[string]string
	tutors   map[string]string
	users    []*models.User
	profiles []*models.StudentProfile
	audits   []*models.AuditLog
	runs     int
}

func newImportStoreStub() *importStoreStub {
	return &importStoreStub{
		emails: map[string]string{},
		tutors: map[string]string{},
	}
}

func (s *importStoreStub) Run(ctx context.Context, fn func(ctx context.Context, tx repository.ImportTx) error) error {
	s.runs++
	tx := &importTxStub{store: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, u := range tx.users {
		s.users = append(s.users, u)
		s.emails[u.Email] = u.ID
	}
	s.profiles = append(s.profiles, tx.profiles...)
	s.audits = append(s.audits, tx.audits...)
	return nil
}

func (t *importTxStub) ExistingEmails(ctx context.Context) (map[string]struct{}, error) {
	set := make(map[string]struct{}, len(t.store.emails))
	for email := range t.store.emails {
		set[email] = struct{}{}
	}
	return set, nil
}

func (t *importTxStub) BulkCreateUsers(ctx context.Context, users []*models.User) error {
	for _, u := range users {
		if u.ID == "" {
			u.ID = uuid.NewString()
		}
	}
	t.users = append(t.users, users...)
	return nil
}

func (t *importTxStub) FindTutorIDByEmail(ctx context.Context, email string) (string, error) {
	if id, ok := t.store.tutors[email]; ok {
		return id, nil
	}
	for _, u := range t.users {
		if u.Email == email && u.Role == models.RoleTutor {
			return u.ID, nil
		}
	}
	return "", sql.ErrNoRows
}

func (t *importTxStub) CreateStudentProfile(ctx context.Context, profile *models.StudentProfile) error {
	t.profiles = append(t.profiles, profile)
	return nil
}

func (t *importTxStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	t.audits = append(t.audits, log)
	return nil
}

// The on-disk artifact store must keep satisfying the cleanup contract.
var _ importArtifacts = (*storage.LocalStorage)(nil)

type artifactStub struct {
	deleted []string
}

func (a *artifactStub) Delete(ctx context.Context, name string) error {
	a.deleted = append(a.deleted, name)
	return nil
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin, FullName: "Admin One"}
}

func validBatch() []models.ImportRow {
	return []models.ImportRow{
		{Email: "tutor.a@example.edu", FullName: "Tutor A", Role: models.RoleTutor},
		{Email: "stud.a@example.edu", FullName: "Student A", Role: models.RoleStudent,
			RegisterNo: "R001", Program: "CSE", BatchYear: 2026, TutorEmail: "tutor.a@example.edu"},
		{Email: "stud.b@example.edu", FullName: "Student B", Role: models.RoleStudent,
			RegisterNo: "R002", Program: "CSE", BatchYear: 2026, TutorEmail: "tutor.a@example.edu"},
	}
}

func TestImportCommitsWholeBatch(t *testing.T) {
	store := newImportStoreStub()
	svc := NewImportService(store, nil, 0, "welcome1", nil)

	result, err := svc.Import(context.Background(), validBatch(), "", adminClaims())
	require.NoError(t, err)
	require.Equal(t, 3, result.TotalRows)
	require.Equal(t, 3, result.Processed)
	require.Empty(t, result.Duplicates)

	require.Len(t, store.users, 3)
	require.Len(t, store.profiles, 2)
	require.Len(t, store.audits, 1)

	// every student is linked to the tutor created in the same batch
	tutorID := store.emails["tutor.a@example.edu"]
	for _, p := range store.profiles {
		require.NotNil(t, p.TutorID)
		require.Equal(t, tutorID, *p.TutorID)
	}

	// all accounts share the batch's hashed initial password
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(store.users[0].PasswordHash), []byte("welcome1")))
}

func TestImportEmptyBatchRejected(t *testing.T) {
	store := newImportStoreStub()
	svc := NewImportService(store, nil, 0, "welcome1", nil)

	_, err := svc.Import(context.Background(), nil, "", adminClaims())
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Zero(t, store.runs)
}

func TestImportAdminOnly(t *testing.T) {
	store := newImportStoreStub()
	svc := NewImportService(store, nil, 0, "welcome1", nil)

	_, err := svc.Import(context.Background(), validBatch(), "", tutorClaims())
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestImportInBatchDuplicatesAbort(t *testing.T) {
	store := newImportStoreStub()
	svc := NewImportService(store, nil, 0, "welcome1", nil)

	rows := validBatch()
	rows = append(rows, models.ImportRow{
		Email: "STUD.A@example.edu", FullName: "Student A again", Role: models.RoleStudent,
		RegisterNo: "R003", Program: "CSE", BatchYear: 2026,
	})

	result, err := svc.Import(context.Background(), rows, "", adminClaims())
	require.NoError(t, err)
	require.Equal(t, []string{"stud.a@example.edu"}, result.Duplicates)
	require.Zero(t, result.Processed)
	require.Zero(t, store.runs)
	require.Empty(t, store.users)
}

func TestImportStoreDuplicatesAbort(t *testing.T) {
	store := newImportStoreStub()
	store.emails["stud.b@example.edu"] = "existing-1"
	svc := NewImportService(store, nil, 0, "welcome1", nil)

	result, err := svc.Import(context.Background(), validBatch(), "", adminClaims())
	require.NoError(t, err)
	require.Equal(t, []string{"stud.b@example.edu"}, result.Duplicates)
	require.Zero(t, result.Processed)
	require.Empty(t, store.users, "a duplicate anywhere rolls back the whole batch")
}

func TestImportMissingTutorRollsBack(t *testing.T) {
	store := newImportStoreStub()
	svc := NewImportService(store, nil, 0, "welcome1", nil)

	rows := []models.ImportRow{
		{Email: "stud.a@example.edu", FullName: "Student A", Role: models.RoleStudent,
			RegisterNo: "R001", Program: "CSE", BatchYear: 2026, TutorEmail: "nobody@example.edu"},
	}
	_, err := svc.Import(context.Background(), rows, "", adminClaims())
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
	require.Empty(t, store.users)
	require.Empty(t, store.profiles)
}

func TestImportRowValidation(t *testing.T) {
	store := newImportStoreStub()
	svc := NewImportService(store, nil, 0, "welcome1", nil)

	cases := []struct {
		name string
		row  models.ImportRow
	}{
		{"missing email", models.ImportRow{FullName: "X", Role: models.RoleTutor}},
		{"bad email", models.ImportRow{Email: "not-an-email", FullName: "X", Role: models.RoleTutor}},
		{"bad role", models.ImportRow{Email: "x@example.edu", FullName: "X", Role: models.UserRole("GHOST")}},
		{"student without register no", models.ImportRow{Email: "x@example.edu", FullName: "X", Role: models.RoleStudent, Program: "CSE", BatchYear: 2026}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Import(context.Background(), []models.ImportRow{tc.row}, "", adminClaims())
			require.True(t, appErrors.Is(err, appErrors.ErrValidation))
			require.Contains(t, err.Error(), "row 1")
		})
	}
}

func TestImportArtifactRemovedOnEveryPath(t *testing.T) {
	store := newImportStoreStub()
	artifacts := &artifactStub{}
	svc := NewImportService(store, artifacts, 0, "welcome1", nil)

	_, err := svc.Import(context.Background(), validBatch(), "batch-1.csv", adminClaims())
	require.NoError(t, err)

	_, err = svc.Import(context.Background(), nil, "batch-2.csv", adminClaims())
	require.Error(t, err)

	require.Equal(t, []string{"batch-1.csv", "batch-2.csv"}, artifacts.deleted)
}

func TestImportBatchSizeLimit(t *testing.T) {
	store := newImportStoreStub()
	svc := NewImportService(store, nil, 2, "welcome1", nil)

	_, err := svc.Import(context.Background(), validBatch(), "", adminClaims())
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Zero(t, store.runs)
}
