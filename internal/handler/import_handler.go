package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/service"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
	"github.com/campus-adp/records-api/pkg/response"
)

// ImportHandler wires the bulk user import endpoint.
type ImportHandler struct {
	imports *service.ImportService
	metrics *service.MetricsService
}

// NewImportHandler creates a new handler.
func NewImportHandler(imports *service.ImportService, metrics *service.MetricsService) *ImportHandler {
	return &ImportHandler{imports: imports, metrics: metrics}
}

// ImportUsers godoc
// @Summary Bulk import users
// @Description Import a batch of users atomically; duplicates abort the whole batch
// @Tags Imports
// @Accept json
// @Produce json
// @Param payload body dto.ImportUsersRequest true "Import batch"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /imports/users [post]
func (h *ImportHandler) ImportUsers(c *gin.Context) {
	var req dto.ImportUsersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid import payload"))
		return
	}

	result, err := h.imports.Import(c.Request.Context(), req.Rows, req.Artifact, claimsFromContext(c))
	if err != nil {
		h.metrics.RecordImport("failed", 0)
		response.Error(c, err)
		return
	}

	if len(result.Duplicates) > 0 {
		h.metrics.RecordImport("duplicates", 0)
		response.JSON(c, http.StatusConflict, result, nil)
		return
	}

	h.metrics.RecordImport("committed", result.Processed)
	response.JSON(c, http.StatusOK, result, nil)
}
