package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/middleware"
	"github.com/campus-adp/records-api/internal/models"
	"github.com/campus-adp/records-api/internal/service"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
	"github.com/campus-adp/records-api/pkg/response"
)

// RecordHandler wires the record lifecycle endpoints to the workflow service.
type RecordHandler struct {
	workflow *service.WorkflowService
	cache    *service.CacheService
	metrics  *service.MetricsService
}

// NewRecordHandler creates a new handler.
func NewRecordHandler(workflow *service.WorkflowService, cache *service.CacheService, metrics *service.MetricsService) *RecordHandler {
	return &RecordHandler{workflow: workflow, cache: cache, metrics: metrics}
}

// Submit godoc
// @Summary Submit a record
// @Description Create a new pending record for the authenticated student
// @Tags Records
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRecordRequest true "Record payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /records [post]
func (h *RecordHandler) Submit(c *gin.Context) {
	var req dto.SubmitRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload"))
		return
	}

	record, err := h.workflow.Submit(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordTransition(string(record.Kind), "submitted")
	h.invalidateListings(c)
	response.Created(c, record)
}

// Resubmit godoc
// @Summary Edit a record
// @Description Merge changes into a record and return it to pending
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.ResubmitRecordRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /records/{id} [put]
func (h *RecordHandler) Resubmit(c *gin.Context) {
	var req dto.ResubmitRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid record payload"))
		return
	}

	record, err := h.workflow.Resubmit(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordTransition(string(record.Kind), "resubmitted")
	h.invalidateListings(c)
	response.JSON(c, http.StatusOK, record, nil)
}

// Review godoc
// @Summary Review a pending record
// @Description Approve or reject a pending record
// @Tags Records
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body dto.ReviewRecordRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /records/{id}/review [post]
func (h *RecordHandler) Review(c *gin.Context) {
	var req dto.ReviewRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid review payload"))
		return
	}

	record, err := h.workflow.Resolve(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	h.metrics.RecordTransition(string(record.Kind), string(record.ApprovalStatus))
	h.invalidateListings(c)
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete a record
// @Description Remove a record in any state
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 204 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /records/{id} [delete]
func (h *RecordHandler) Delete(c *gin.Context) {
	if err := h.workflow.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	h.invalidateListings(c)
	response.NoContent(c)
}

// Get godoc
// @Summary Get one record
// @Tags Records
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /records/{id} [get]
func (h *RecordHandler) Get(c *gin.Context) {
	record, err := h.workflow.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

type recordListing struct {
	Records    []models.Record    `json:"records"`
	Pagination *models.Pagination `json:"pagination"`
}

// ListPending godoc
// @Summary List pending records
// @Description Pending records scoped to the caller's role
// @Tags Records
// @Produce json
// @Param kind query string false "Record kind"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /records/pending [get]
func (h *RecordHandler) ListPending(c *gin.Context) {
	h.listRecords(c, "pending", h.workflow.ListPending)
}

// ListResolved godoc
// @Summary List resolved records
// @Description Approved and rejected records scoped to the caller's role
// @Tags Records
// @Produce json
// @Param kind query string false "Record kind"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /records/resolved [get]
func (h *RecordHandler) ListResolved(c *gin.Context) {
	h.listRecords(c, "resolved", h.workflow.ListResolved)
}

func (h *RecordHandler) listRecords(c *gin.Context, bucket string, list func(ctx context.Context, query dto.RecordQuery, actor *models.JWTClaims) ([]models.Record, *models.Pagination, error)) {
	var query dto.RecordQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	cacheKey := fmt.Sprintf("records:%s:%s:%s:%s:%d:%d", bucket, claims.UserID, query.Kind, query.StudentID, query.Page, query.PageSize)
	var cached recordListing
	if hit, _ := h.cache.Get(c.Request.Context(), cacheKey, &cached); hit {
		middleware.SetCacheHit(c, true)
		response.JSON(c, http.StatusOK, cached.Records, cached.Pagination, middleware.ExtractMeta(c))
		return
	}

	records, pagination, err := list(c.Request.Context(), query, claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	_ = h.cache.Set(c.Request.Context(), cacheKey, recordListing{Records: records, Pagination: pagination}, 0)
	middleware.SetCacheHit(c, false)
	response.JSON(c, http.StatusOK, records, pagination, middleware.ExtractMeta(c))
}

// invalidateListings drops cached listings after any state change.
func (h *RecordHandler) invalidateListings(c *gin.Context) {
	_ = h.cache.Invalidate(c.Request.Context(), "records:*")
}
