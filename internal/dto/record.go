package dto

import (
	"encoding/json"

	"github.com/campus-adp/records-api/internal/models"
)

// SubmitRecordRequest carries a new record submission.
type SubmitRecordRequest struct {
	Kind    models.RecordKind `json:"kind" validate:"required"`
	Title   string            `json:"title" validate:"required"`
	Payload json.RawMessage   `json:"payload" validate:"required"`
}

// ResubmitRecordRequest edits an existing record. Payload fields are merged
// over the stored payload; absent fields are preserved.
type ResubmitRecordRequest struct {
	Title   string          `json:"title,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ReviewRecordRequest resolves a pending record.
type ReviewRecordRequest struct {
	Decision models.ReviewDecision `json:"decision" validate:"required,oneof=APPROVE REJECT"`
	Comment  string                `json:"comment,omitempty"`
}

// RecordQuery filters record listings.
type RecordQuery struct {
	Kind      models.RecordKind `form:"kind"`
	StudentID string            `form:"student_id"`
	Page      int               `form:"page"`
	PageSize  int               `form:"page_size"`
}
