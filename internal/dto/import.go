package dto

import "github.com/campus-adp/records-api/internal/models"

// ImportUsersRequest carries the parsed rows of one bulk import batch plus
// the name of the uploaded artifact to clean up afterwards.
type ImportUsersRequest struct {
	Rows     []models.ImportRow `json:"rows" validate:"required"`
	Artifact string             `json:"artifact,omitempty"`
}
