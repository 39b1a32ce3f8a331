package models

import (
	"encoding/json"
	"time"
)

// RecordKind tags the payload variant of a submitted record. All kinds share
// one workflow; the payload schema differs per tag.
type RecordKind string

const (
	KindInternship      RecordKind = "internship"
	KindScholarship     RecordKind = "scholarship"
	KindEventOrganized  RecordKind = "event-organized"
	KindEventAttended   RecordKind = "event-attended"
	KindOnlineCourse    RecordKind = "online-course"
	KindLeave           RecordKind = "leave"
	KindAchievement     RecordKind = "achievement"
	KindProject         RecordKind = "project"
	KindEducationRecord RecordKind = "education-record"
	KindNPTELEnrollment RecordKind = "nptel-enrollment"
	KindNonCGPAEntry    RecordKind = "non-cgpa-entry"
	KindPublication     RecordKind = "publication"
)

// ApprovalStatus is the tri-state review outcome of a record.
type ApprovalStatus string

const (
	StatusUnresolved ApprovalStatus = "UNRESOLVED"
	StatusApproved   ApprovalStatus = "APPROVED"
	StatusRejected   ApprovalStatus = "REJECTED"
)

// ReviewDecision enumerates the verdicts an approver may issue.
type ReviewDecision string

const (
	DecisionApprove ReviewDecision = "APPROVE"
	DecisionReject  ReviewDecision = "REJECT"
)

// Message is one note attached to a record during a transition.
type Message struct {
	Author string    `json:"author"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// Record is the shared workflow shape for every record kind, stored in one
// polymorphic table keyed by (kind, id) with a kind-specific JSON payload.
//
// Four fields move together: a record is pending exactly when its status is
// UNRESOLVED and both approver fields are null.
type Record struct {
	ID        string          `db:"id" json:"id"`
	StudentID string          `db:"student_id" json:"student_id"`
	Kind      RecordKind      `db:"kind" json:"kind"`
	Title     string          `db:"title" json:"title"`
	Payload   json.RawMessage `db:"payload" json:"payload"`

	Pending        bool           `db:"pending" json:"pending"`
	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	ApprovedBy     *string        `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time     `db:"approved_at" json:"approved_at,omitempty"`

	Messages  json.RawMessage `db:"messages" json:"messages,omitempty"`
	CreatedBy string          `db:"created_by" json:"created_by"`
	UpdatedBy string          `db:"updated_by" json:"updated_by"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// PayloadMap decodes the payload into a generic map.
func (r *Record) PayloadMap() (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	if len(r.Payload) == 0 {
		return fields, nil
	}
	if err := json.Unmarshal(r.Payload, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// MessageLog decodes the append-only message log.
func (r *Record) MessageLog() ([]Message, error) {
	if len(r.Messages) == 0 {
		return nil, nil
	}
	var log []Message
	if err := json.Unmarshal(r.Messages, &log); err != nil {
		return nil, err
	}
	return log, nil
}

// RecordFilter constrains listing queries.
type RecordFilter struct {
	Kind      RecordKind
	StudentID string
	TutorID   string
	Pending   *bool
	Status    ApprovalStatus
	Page      int
	PageSize  int
}
