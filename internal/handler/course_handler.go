package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/campus-adp/records-api/internal/dto"
	"github.com/campus-adp/records-api/internal/service"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
	"github.com/campus-adp/records-api/pkg/response"
)

// CourseHandler wires course registration and grade lookups.
type CourseHandler struct {
	courses *service.CourseService
}

// NewCourseHandler creates a new handler.
func NewCourseHandler(courses *service.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

// Create godoc
// @Summary Register a course
// @Description Register an external course with its grade cut-points
// @Tags Courses
// @Accept json
// @Produce json
// @Param payload body dto.CreateCourseRequest true "Course payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [post]
func (h *CourseHandler) Create(c *gin.Context) {
	var req dto.CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid course payload"))
		return
	}

	course, err := h.courses.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, course)
}

// List godoc
// @Summary List courses
// @Tags Courses
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /courses [get]
func (h *CourseHandler) List(c *gin.Context) {
	courses, err := h.courses.List(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, courses, nil)
}

// Get godoc
// @Summary Get one course
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id} [get]
func (h *CourseHandler) Get(c *gin.Context) {
	course, err := h.courses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, course, nil)
}

// Grade godoc
// @Summary Compute a letter grade
// @Description Map a mark to its letter grade under the course's cut-points
// @Tags Courses
// @Produce json
// @Param id path string true "Course ID"
// @Param marks query number true "Marks out of 100"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /courses/{id}/grade [get]
func (h *CourseHandler) Grade(c *gin.Context) {
	marks, err := strconv.ParseFloat(c.Query("marks"), 64)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "marks must be a number"))
		return
	}

	grade, err := h.courses.Grade(c.Request.Context(), c.Param("id"), marks)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"course_id": c.Param("id"), "marks": marks, "grade": grade}, nil)
}
