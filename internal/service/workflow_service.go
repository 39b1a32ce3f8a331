package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/models"
	"github.com/campus-adp/records-api/internal/repository"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

type recordStore interface {
	Create(ctx context.Context, record *models.Record) error
	GetByID(ctx context.Context, id string) (*models.Record, error)
	ResetToPending(ctx context.Context, params repository.ResetParams) error
	Resolve(ctx context.Context, params repository.ResolveParams) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.RecordFilter) ([]models.Record, int, error)
}

type approverResolver interface {
	ResolveApprover(ctx context.Context, studentID string) (*models.Approver, error)
}

type workflowUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type notificationDispatcher interface {
	Dispatch(intent models.Notification)
}

// WorkflowService runs the shared approval lifecycle for every record kind:
// submit, resubmit, resolve, delete, plus the scoped listings. State changes
// commit before any notification intent is emitted.
type WorkflowService struct {
	records    recordStore
	students   approverResolver
	users      workflowUserReader
	courses    courseReader
	audit      auditLogger
	dispatcher notificationDispatcher
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewWorkflowService constructs the service.
func NewWorkflowService(
	records recordStore,
	students approverResolver,
	users workflowUserReader,
	courses courseReader,
	audit auditLogger,
	dispatcher notificationDispatcher,
	validate *validator.Validate,
	logger *zap.Logger,
) *WorkflowService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowService{
		records:    records,
		students:   students,
		users:      users,
		courses:    courses,
		audit:      audit,
		dispatcher: dispatcher,
		validator:  validate,
		logger:     logger,
	}
}

// Submit creates a new pending record for the acting student. The tutor is
// resolved before anything is persisted; a student without a tutor cannot
// submit.
func (s *WorkflowService) Submit(ctx context.Context, req dto.SubmitRecordRequest, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleStudent {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students submit records")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid record payload")
	}

	payload, err := decodePayload(req.Payload)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payload must be a JSON object")
	}
	if err := ValidatePayload(req.Kind, payload); err != nil {
		return nil, err
	}
	if err := s.enrichPayload(ctx, req.Kind, payload); err != nil {
		return nil, err
	}

	approver, err := s.resolveApprover(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode payload")
	}

	record := &models.Record{
		StudentID: actor.UserID,
		Kind:      req.Kind,
		Title:     req.Title,
		Payload:   rawPayload,
		CreatedBy: actor.UserID,
		UpdatedBy: actor.UserID,
	}
	if err := s.records.Create(ctx, record); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create record")
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionRecordSubmit, record, nil)
	s.dispatcher.Dispatch(models.Notification{
		Recipient: approver.Email,
		Template:  models.TemplateRecordSubmitted,
		Data: map[string]string{
			"tutor":   approver.FullName,
			"student": actor.FullName,
			"kind":    string(record.Kind),
			"title":   record.Title,
		},
	})

	return record, nil
}

// Resubmit merges the patch over the stored payload and unconditionally
// returns the record to the pending state. Approval never survives an edit.
func (s *WorkflowService) Resubmit(ctx context.Context, recordID string, req dto.ResubmitRecordRequest, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.StudentID != actor.UserID && actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}

	payload, err := record.PayloadMap()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode stored payload")
	}
	if len(req.Payload) > 0 {
		patch, err := decodePayload(req.Payload)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "payload must be a JSON object")
		}
		for key, value := range patch {
			payload[key] = value
		}
	}
	if err := ValidatePayload(record.Kind, payload); err != nil {
		return nil, err
	}
	if err := s.enrichPayload(ctx, record.Kind, payload); err != nil {
		return nil, err
	}

	title := record.Title
	if req.Title != "" {
		title = req.Title
	}
	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode payload")
	}

	oldValues, _ := json.Marshal(map[string]interface{}{
		"title":   record.Title,
		"payload": json.RawMessage(record.Payload),
		"status":  record.ApprovalStatus,
	})

	if err := s.records.ResetToPending(ctx, repository.ResetParams{
		ID:        record.ID,
		Title:     title,
		Payload:   rawPayload,
		UpdatedBy: actor.UserID,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update record")
	}

	record.Title = title
	record.Payload = rawPayload
	record.Pending = true
	record.ApprovalStatus = models.StatusUnresolved
	record.ApprovedBy = nil
	record.ApprovedAt = nil
	record.UpdatedBy = actor.UserID
	record.UpdatedAt = time.Now().UTC()

	s.emitAudit(ctx, actor.UserID, models.AuditActionRecordUpdate, record, oldValues)
	s.notifyApprover(ctx, record, actor.FullName, models.TemplateRecordResubmitted)

	return record, nil
}

// Resolve records the tutor's decision on a pending record. A second resolve
// against the same record fails with AlreadyResolved; the first outcome is
// never overwritten.
func (s *WorkflowService) Resolve(ctx context.Context, recordID string, req dto.ReviewRecordRequest, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}

	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !record.Pending {
		return nil, appErrors.ErrAlreadyResolved
	}
	if err := s.authorizeApprover(ctx, record, actor); err != nil {
		return nil, err
	}

	status := models.StatusApproved
	if req.Decision == models.DecisionReject {
		status = models.StatusRejected
	}

	var messages []byte
	if req.Comment != "" {
		log, err := record.MessageLog()
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decode message log")
		}
		log = append(log, models.Message{
			Author: actor.UserID,
			Text:   req.Comment,
			At:     time.Now().UTC(),
		})
		messages, err = json.Marshal(log)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to encode message log")
		}
	}

	now := time.Now().UTC()
	if err := s.records.Resolve(ctx, repository.ResolveParams{
		ID:         record.ID,
		Status:     status,
		ApprovedBy: actor.UserID,
		ApprovedAt: now,
		Messages:   messages,
	}); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAlreadyResolved
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve record")
	}

	record.Pending = false
	record.ApprovalStatus = status
	record.ApprovedBy = &actor.UserID
	record.ApprovedAt = &now
	record.UpdatedBy = actor.UserID
	record.UpdatedAt = now
	if len(messages) > 0 {
		record.Messages = messages
	}

	s.emitAudit(ctx, actor.UserID, models.AuditActionRecordReview, record, nil)
	s.notifyStudent(ctx, record, actor.FullName, req.Comment, status)

	return record, nil
}

// Delete removes the record from any state. Both the student and the tutor
// receive a best-effort notification describing what was deleted.
func (s *WorkflowService) Delete(ctx context.Context, recordID string, actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if record.StudentID != actor.UserID && actor.Role != models.RoleAdmin {
		if err := s.authorizeApprover(ctx, record, actor); err != nil {
			return err
		}
	}

	if err := s.records.Delete(ctx, record.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete record")
	}

	oldValues, _ := json.Marshal(record)
	s.emitAudit(ctx, actor.UserID, models.AuditActionRecordDelete, record, oldValues)
	s.notifyDeletion(ctx, record, actor)

	return nil
}

// Get loads one record with the caller's visibility applied.
func (s *WorkflowService) Get(ctx context.Context, recordID string, actor *models.JWTClaims) (*models.Record, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	record, err := s.loadRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleStudent:
		if record.StudentID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
	case models.RoleTutor:
		if err := s.authorizeApprover(ctx, record, actor); err != nil {
			return nil, err
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	return record, nil
}

// ListPending returns pending records visible to the actor.
func (s *WorkflowService) ListPending(ctx context.Context, query dto.RecordQuery, actor *models.JWTClaims) ([]models.Record, *models.Pagination, error) {
	pending := true
	return s.list(ctx, query, actor, &pending, "")
}

// ListResolved returns resolved records visible to the actor.
func (s *WorkflowService) ListResolved(ctx context.Context, query dto.RecordQuery, actor *models.JWTClaims) ([]models.Record, *models.Pagination, error) {
	pending := false
	return s.list(ctx, query, actor, &pending, "")
}

func (s *WorkflowService) list(ctx context.Context, query dto.RecordQuery, actor *models.JWTClaims, pending *bool, status models.ApprovalStatus) ([]models.Record, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	filter := models.RecordFilter{
		Kind:     query.Kind,
		Pending:  pending,
		Status:   status,
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	switch actor.Role {
	case models.RoleStudent:
		filter.StudentID = actor.UserID
	case models.RoleTutor:
		filter.TutorID = actor.UserID
	case models.RoleAdmin:
		filter.StudentID = query.StudentID
	default:
		return nil, nil, appErrors.ErrForbidden
	}

	records, total, err := s.records.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list records")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return records, &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}, nil
}

func (s *WorkflowService) loadRecord(ctx context.Context, recordID string) (*models.Record, error) {
	record, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load record")
	}
	return record, nil
}

func (s *WorkflowService) resolveApprover(ctx context.Context, studentID string) (*models.Approver, error) {
	approver, err := s.students.ResolveApprover(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrApproverNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "approver lookup failed")
	}
	return approver, nil
}

// authorizeApprover permits the student's current tutor and admins.
func (s *WorkflowService) authorizeApprover(ctx context.Context, record *models.Record, actor *models.JWTClaims) error {
	if actor.Role == models.RoleAdmin {
		return nil
	}
	if actor.Role != models.RoleTutor {
		return appErrors.ErrForbidden
	}
	approver, err := s.students.ResolveApprover(ctx, record.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrForbidden
		}
		return appErrors.Wrap(err, appErrors.ErrDependency.Code, appErrors.ErrDependency.Status, "approver lookup failed")
	}
	if approver.ID != actor.UserID {
		return appErrors.ErrForbidden
	}
	return nil
}

// enrichPayload derives stored fields from the payload before persistence.
// NPTEL enrollments get their letter grade from the course's cut-points.
func (s *WorkflowService) enrichPayload(ctx context.Context, kind models.RecordKind, payload map[string]interface{}) error {
	if kind != models.KindNPTELEnrollment {
		return nil
	}
	courseID, ok := payloadString(payload, "course_id")
	if !ok || courseID == "" {
		return appErrors.Clone(appErrors.ErrValidation, "course_id must be a string")
	}
	course, err := s.courses.FindByID(ctx, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	if marks, ok := payloadNumber(payload, "marks"); ok {
		payload["grade"] = ComputeGrade(marks, BandsForCourse(course))
	}
	return nil
}

func (s *WorkflowService) notifyApprover(ctx context.Context, record *models.Record, studentName string, template models.NotificationTemplate) {
	approver, err := s.students.ResolveApprover(ctx, record.StudentID)
	if err != nil {
		s.logger.Warn("skipping approver notification", zap.String("record_id", record.ID), zap.Error(err))
		return
	}
	s.dispatcher.Dispatch(models.Notification{
		Recipient: approver.Email,
		Template:  template,
		Data: map[string]string{
			"tutor":   approver.FullName,
			"student": studentName,
			"kind":    string(record.Kind),
			"title":   record.Title,
		},
	})
}

func (s *WorkflowService) notifyStudent(ctx context.Context, record *models.Record, tutorName, comment string, status models.ApprovalStatus) {
	student, err := s.users.FindByID(ctx, record.StudentID)
	if err != nil {
		s.logger.Warn("skipping student notification", zap.String("record_id", record.ID), zap.Error(err))
		return
	}
	template := models.TemplateRecordApproved
	if status == models.StatusRejected {
		template = models.TemplateRecordRejected
	}
	s.dispatcher.Dispatch(models.Notification{
		Recipient: student.Email,
		Template:  template,
		Data: map[string]string{
			"student": student.FullName,
			"tutor":   tutorName,
			"kind":    string(record.Kind),
			"title":   record.Title,
			"comment": comment,
		},
	})
}

func (s *WorkflowService) notifyDeletion(ctx context.Context, record *models.Record, actor *models.JWTClaims) {
	student, err := s.users.FindByID(ctx, record.StudentID)
	if err != nil {
		s.logger.Warn("skipping deletion notification", zap.String("record_id", record.ID), zap.Error(err))
		return
	}
	data := map[string]string{
		"student": student.FullName,
		"actor":   actor.FullName,
		"kind":    string(record.Kind),
		"title":   record.Title,
	}

	studentData := make(map[string]string, len(data)+1)
	for k, v := range data {
		studentData[k] = v
	}
	studentData["recipient_name"] = student.FullName
	s.dispatcher.Dispatch(models.Notification{
		Recipient: student.Email,
		Template:  models.TemplateRecordDeleted,
		Data:      studentData,
	})

	approver, err := s.students.ResolveApprover(ctx, record.StudentID)
	if err != nil {
		s.logger.Warn("skipping tutor deletion notification", zap.String("record_id", record.ID), zap.Error(err))
		return
	}
	tutorData := make(map[string]string, len(data)+1)
	for k, v := range data {
		tutorData[k] = v
	}
	tutorData["recipient_name"] = approver.FullName
	s.dispatcher.Dispatch(models.Notification{
		Recipient: approver.Email,
		Template:  models.TemplateRecordDeleted,
		Data:      tutorData,
	})
}

func (s *WorkflowService) emitAudit(ctx context.Context, actorID, action string, record *models.Record, oldValues []byte) {
	if s.audit == nil {
		return
	}
	newValues, _ := json.Marshal(map[string]interface{}{
		"kind":   record.Kind,
		"title":  record.Title,
		"status": record.ApprovalStatus,
	})
	log := &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   string(record.Kind),
		ResourceID: &record.ID,
		OldValues:  oldValues,
		NewValues:  newValues,
		IPAddress:  "system",
		UserAgent:  "workflow-service",
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}

func decodePayload(raw json.RawMessage) (map[string]interface{}, error) {
	payload := map[string]interface{}{}
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
