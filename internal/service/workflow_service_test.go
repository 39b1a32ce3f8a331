package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/models"
	"github.com/campus-adp/records-api/internal/repository"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

type recordStoreStub struct {
	records map[string]*models.Record
	filter  models.RecordFilter
}

func newRecordStoreStub() *recordStoreStub {
	return &recordStoreStub{records: make(map[string]*models.Record)}
}

func (s *recordStoreStub) Create(ctx context.Context, record *models.Record) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	record.Pending = true
	record.ApprovalStatus = models.StatusUnresolved
	copy := *record
	s.records[record.ID] = &copy
	return nil
}

func (s *recordStoreStub) GetByID(ctx context.Context, id string) (*models.Record, error) {
	if rec, ok := s.records[id]; ok {
		copy := *rec
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (s *recordStoreStub) ResetToPending(ctx context.Context, params repository.ResetParams) error {
	rec, ok := s.records[params.ID]
	if !ok {
		return sql.ErrNoRows
	}
	rec.Title = params.Title
	rec.Payload = params.Payload
	rec.Pending = true
	rec.ApprovalStatus = models.StatusUnresolved
	rec.ApprovedBy = nil
	rec.ApprovedAt = nil
	rec.UpdatedBy = params.UpdatedBy
	return nil
}

func (s *recordStoreStub) Resolve(ctx context.Context, params repository.ResolveParams) error {
	rec, ok := s.records[params.ID]
	if !ok || !rec.Pending {
		return sql.ErrNoRows
	}
	rec.Pending = false
	rec.ApprovalStatus = params.Status
	rec.ApprovedBy = &params.ApprovedBy
	rec.ApprovedAt = &params.ApprovedAt
	if len(params.Messages) > 0 {
		rec.Messages = params.Messages
	}
	return nil
}

func (s *recordStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.records[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.records, id)
	return nil
}

func (s *recordStoreStub) List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error) {
	s.filter = filter
	var result []models.Record
	for _, rec := range s.records {
		if filter.Pending != nil && rec.Pending != *filter.Pending {
			continue
		}
		if filter.StudentID != "" && rec.StudentID != filter.StudentID {
			continue
		}
		result = append(result, *rec)
	}
	return result, len(result), nil
}

type approverStub struct {
	approvers map[string]*models.Approver
}

func (s *approverStub) ResolveApprover(ctx context.Context, studentID string) (*models.Approver, error) {
	if a, ok := s.approvers[studentID]; ok {
		return a, nil
	}
	return nil, sql.ErrNoRows
}

type userReaderStub struct {
	users map[string]*models.User
}

func (s *userReaderStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

type courseReaderStub struct {
	courses map[string]*models.Course
}

func (s *courseReaderStub) FindByID(ctx context.Context, id string) (*models.Course, error) {
	if c, ok := s.courses[id]; ok {
		return c, nil
	}
	return nil, sql.ErrNoRows
}

type auditStub struct {
	logs []*models.AuditLog
}

func (a *auditStub) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type dispatcherStub struct {
	intents []models.Notification
}

func (d *dispatcherStub) Dispatch(intent models.Notification) {
	d.intents = append(d.intents, intent)
}

type workflowFixture struct {
	store      *recordStoreStub
	approvers  *approverStub
	users      *userReaderStub
	courses    *courseReaderStub
	audit      *auditStub
	dispatcher *dispatcherStub
	svc        *WorkflowService
}

func newWorkflowFixture() *workflowFixture {
	f := &workflowFixture{
		store: newRecordStoreStub(),
		approvers: &approverStub{approvers: map[string]*models.Approver{
			"student-1": {ID: "tutor-1", Email: "tutor@example.edu", FullName: "Tutor One"},
		}},
		users: &userReaderStub{users: map[string]*models.User{
			"student-1": {ID: "student-1", Email: "student@example.edu", FullName: "Student One", Role: models.RoleStudent},
		}},
		courses:    &courseReaderStub{courses: map[string]*models.Course{}},
		audit:      &auditStub{},
		dispatcher: &dispatcherStub{},
	}
	f.svc = NewWorkflowService(f.store, f.approvers, f.users, f.courses, f.audit, f.dispatcher, nil, nil)
	return f
}

func studentClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "student-1", Role: models.RoleStudent, Email: "student@example.edu", FullName: "Student One"}
}

func tutorClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "tutor-1", Role: models.RoleTutor, Email: "tutor@example.edu", FullName: "Tutor One"}
}

func submitInternship(t *testing.T, f *workflowFixture) *models.Record {
	t.Helper()
	record, err := f.svc.Submit(context.Background(), dto.SubmitRecordRequest{
		Kind:    models.KindInternship,
		Title:   "Summer internship",
		Payload: json.RawMessage(`{"organization":"Acme","role":"Intern","start_date":"2026-05-01","end_date":"2026-07-31"}`),
	}, studentClaims())
	require.NoError(t, err)
	return record
}

func TestWorkflowSubmitCreatesPendingRecord(t *testing.T) {
	f := newWorkflowFixture()

	record := submitInternship(t, f)

	require.True(t, record.Pending)
	require.Equal(t, models.StatusUnresolved, record.ApprovalStatus)
	require.Nil(t, record.ApprovedBy)
	require.Nil(t, record.ApprovedAt)
	require.Len(t, f.audit.logs, 1)
	require.Len(t, f.dispatcher.intents, 1)
	require.Equal(t, "tutor@example.edu", f.dispatcher.intents[0].Recipient)
	require.Equal(t, models.TemplateRecordSubmitted, f.dispatcher.intents[0].Template)
}

func TestWorkflowSubmitRejectsUnknownKind(t *testing.T) {
	f := newWorkflowFixture()

	_, err := f.svc.Submit(context.Background(), dto.SubmitRecordRequest{
		Kind:    models.RecordKind("mystery"),
		Title:   "Something",
		Payload: json.RawMessage(`{"a":1}`),
	}, studentClaims())

	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestWorkflowSubmitRequiresTutorOnFile(t *testing.T) {
	f := newWorkflowFixture()
	delete(f.approvers.approvers, "student-1")

	_, err := f.svc.Submit(context.Background(), dto.SubmitRecordRequest{
		Kind:    models.KindInternship,
		Title:   "Summer internship",
		Payload: json.RawMessage(`{"organization":"Acme","role":"Intern","start_date":"2026-05-01","end_date":"2026-07-31"}`),
	}, studentClaims())

	require.True(t, appErrors.Is(err, appErrors.ErrApproverNotFound))
	require.Empty(t, f.store.records)
}

func TestWorkflowSubmitRejectsNonStudent(t *testing.T) {
	f := newWorkflowFixture()

	_, err := f.svc.Submit(context.Background(), dto.SubmitRecordRequest{
		Kind:    models.KindInternship,
		Title:   "Summer internship",
		Payload: json.RawMessage(`{"organization":"Acme","role":"Intern","start_date":"2026-05-01","end_date":"2026-07-31"}`),
	}, tutorClaims())

	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestWorkflowSubmitEnrichesNPTELGrade(t *testing.T) {
	f := newWorkflowFixture()
	f.courses.courses["course-1"] = &models.Course{
		ID: "course-1", Code: "NPTEL101",
		GradeO: 90, GradeAPlus: 80, GradeA: 70, GradeBPlus: 60, GradeB: 50, GradeC: 40,
	}

	record, err := f.svc.Submit(context.Background(), dto.SubmitRecordRequest{
		Kind:    models.KindNPTELEnrollment,
		Title:   "NPTEL course",
		Payload: json.RawMessage(`{"course_id":"course-1","marks":82.5}`),
	}, studentClaims())
	require.NoError(t, err)

	payload, err := record.PayloadMap()
	require.NoError(t, err)
	require.Equal(t, "A+", payload["grade"])
}

func TestWorkflowResolveApprove(t *testing.T) {
	f := newWorkflowFixture()
	record := submitInternship(t, f)

	resolved, err := f.svc.Resolve(context.Background(), record.ID, dto.ReviewRecordRequest{
		Decision: models.DecisionApprove,
		Comment:  "verified with organization",
	}, tutorClaims())
	require.NoError(t, err)

	require.False(t, resolved.Pending)
	require.Equal(t, models.StatusApproved, resolved.ApprovalStatus)
	require.NotNil(t, resolved.ApprovedBy)
	require.Equal(t, "tutor-1", *resolved.ApprovedBy)
	require.NotNil(t, resolved.ApprovedAt)

	log, err := resolved.MessageLog()
	require.NoError(t, err)
	require.Len(t, log, 1)
	require.Equal(t, "verified with organization", log[0].Text)

	// student is told the outcome
	last := f.dispatcher.intents[len(f.dispatcher.intents)-1]
	require.Equal(t, "student@example.edu", last.Recipient)
	require.Equal(t, models.TemplateRecordApproved, last.Template)
}

func TestWorkflowResolveTwiceFails(t *testing.T) {
	f := newWorkflowFixture()
	record := submitInternship(t, f)

	_, err := f.svc.Resolve(context.Background(), record.ID, dto.ReviewRecordRequest{Decision: models.DecisionApprove}, tutorClaims())
	require.NoError(t, err)

	_, err = f.svc.Resolve(context.Background(), record.ID, dto.ReviewRecordRequest{Decision: models.DecisionReject}, tutorClaims())
	require.True(t, appErrors.Is(err, appErrors.ErrAlreadyResolved))

	stored := f.store.records[record.ID]
	require.Equal(t, models.StatusApproved, stored.ApprovalStatus)
}

func TestWorkflowResolveRequiresAssignedTutor(t *testing.T) {
	f := newWorkflowFixture()
	record := submitInternship(t, f)

	other := &models.JWTClaims{UserID: "tutor-2", Role: models.RoleTutor, FullName: "Tutor Two"}
	_, err := f.svc.Resolve(context.Background(), record.ID, dto.ReviewRecordRequest{Decision: models.DecisionApprove}, other)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestWorkflowResubmitClearsApproval(t *testing.T) {
	f := newWorkflowFixture()
	record := submitInternship(t, f)

	_, err := f.svc.Resolve(context.Background(), record.ID, dto.ReviewRecordRequest{Decision: models.DecisionReject, Comment: "dates missing"}, tutorClaims())
	require.NoError(t, err)

	updated, err := f.svc.Resubmit(context.Background(), record.ID, dto.ResubmitRecordRequest{
		Payload: json.RawMessage(`{"start_date":"2026-06-01"}`),
	}, studentClaims())
	require.NoError(t, err)

	require.True(t, updated.Pending)
	require.Equal(t, models.StatusUnresolved, updated.ApprovalStatus)
	require.Nil(t, updated.ApprovedBy)
	require.Nil(t, updated.ApprovedAt)

	// untouched fields survive the merge
	payload, err := updated.PayloadMap()
	require.NoError(t, err)
	require.Equal(t, "Acme", payload["organization"])
	require.Equal(t, "2026-06-01", payload["start_date"])
}

func TestWorkflowResubmitIdenticalPayloadStillResets(t *testing.T) {
	f := newWorkflowFixture()
	record := submitInternship(t, f)

	_, err := f.svc.Resolve(context.Background(), record.ID, dto.ReviewRecordRequest{Decision: models.DecisionApprove}, tutorClaims())
	require.NoError(t, err)

	updated, err := f.svc.Resubmit(context.Background(), record.ID, dto.ResubmitRecordRequest{}, studentClaims())
	require.NoError(t, err)
	require.True(t, updated.Pending)
	require.Equal(t, models.StatusUnresolved, updated.ApprovalStatus)
}

func TestWorkflowResubmitOwnerOnly(t *testing.T) {
	f := newWorkflowFixture()
	record := submitInternship(t, f)

	other := &models.JWTClaims{UserID: "student-2", Role: models.RoleStudent}
	_, err := f.svc.Resubmit(context.Background(), record.ID, dto.ResubmitRecordRequest{}, other)
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestWorkflowDeleteNotifiesBothParties(t *testing.T) {
	f := newWorkflowFixture()
	record := submitInternship(t, f)
	f.dispatcher.intents = nil

	err := f.svc.Delete(context.Background(), record.ID, studentClaims())
	require.NoError(t, err)
	require.Empty(t, f.store.records)
	require.Len(t, f.dispatcher.intents, 2)
	require.Equal(t, "student@example.edu", f.dispatcher.intents[0].Recipient)
	require.Equal(t, "tutor@example.edu", f.dispatcher.intents[1].Recipient)
}

func TestWorkflowDeleteMissingRecord(t *testing.T) {
	f := newWorkflowFixture()

	err := f.svc.Delete(context.Background(), "nope", studentClaims())
	require.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestWorkflowListPendingScopedToStudent(t *testing.T) {
	f := newWorkflowFixture()
	submitInternship(t, f)

	records, pagination, err := f.svc.ListPending(context.Background(), dto.RecordQuery{}, studentClaims())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 1, pagination.TotalCount)
	require.Equal(t, "student-1", f.store.filter.StudentID)
	require.NotNil(t, f.store.filter.Pending)
	require.True(t, *f.store.filter.Pending)
}

func TestWorkflowListPendingScopedToTutor(t *testing.T) {
	f := newWorkflowFixture()
	submitInternship(t, f)

	_, _, err := f.svc.ListPending(context.Background(), dto.RecordQuery{}, tutorClaims())
	require.NoError(t, err)
	require.Equal(t, "tutor-1", f.store.filter.TutorID)
	require.Empty(t, f.store.filter.StudentID)
}
