package models

import "time"

// Course describes an external course whose enrollments get letter grades
// from per-course mark thresholds. Each course carries its own six
// cut-points; there is no global grading scale.
type Course struct {
	ID       string `db:"id" json:"id"`
	Code     string `db:"code" json:"code"`
	Title    string `db:"title" json:"title"`
	Provider string `db:"provider" json:"provider"`

	GradeO     float64 `db:"grade_o" json:"grade_o"`
	GradeAPlus float64 `db:"grade_a_plus" json:"grade_a_plus"`
	GradeA     float64 `db:"grade_a" json:"grade_a"`
	GradeBPlus float64 `db:"grade_b_plus" json:"grade_b_plus"`
	GradeB     float64 `db:"grade_b" json:"grade_b"`
	GradeC     float64 `db:"grade_c" json:"grade_c"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// GradeBand pairs a minimum mark threshold with its letter label.
type GradeBand struct {
	Threshold float64 `json:"threshold"`
	Label     string  `json:"label"`
}
