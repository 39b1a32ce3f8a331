package dto

// CreateCourseRequest registers an external course with its grade cut-points.
// Thresholds must strictly decrease from O down to C.
type CreateCourseRequest struct {
	Code     string `json:"code" validate:"required"`
	Title    string `json:"title" validate:"required"`
	Provider string `json:"provider"`

	GradeO     float64 `json:"grade_o" validate:"gte=0,lte=100"`
	GradeAPlus float64 `json:"grade_a_plus" validate:"gte=0,lte=100"`
	GradeA     float64 `json:"grade_a" validate:"gte=0,lte=100"`
	GradeBPlus float64 `json:"grade_b_plus" validate:"gte=0,lte=100"`
	GradeB     float64 `json:"grade_b" validate:"gte=0,lte=100"`
	GradeC     float64 `json:"grade_c" validate:"gte=0,lte=100"`
}
