package service

import "github.com/campus-adp/records-api/internal/models"

// FailingGrade is returned when marks fall below every cut-point.
const FailingGrade = "F"

// BandsForCourse builds the ordered threshold list from a course's six
// cut-points, highest first.
func BandsForCourse(course *models.Course) []models.GradeBand {
	return []models.GradeBand{
		{Threshold: course.GradeO, Label: "O"},
		{Threshold: course.GradeAPlus, Label: "A+"},
		{Threshold: course.GradeA, Label: "A"},
		{Threshold: course.GradeBPlus, Label: "B+"},
		{Threshold: course.GradeB, Label: "B"},
		{Threshold: course.GradeC, Label: "C"},
	}
}

// ComputeGrade maps marks to the letter of the first band, evaluated from
// the highest threshold down, whose threshold does not exceed the marks.
// The lower bound is inclusive: marks of exactly 80 against an A+ cut-point
// of 80 yield A+. Marks below every cut-point yield the failing grade.
func ComputeGrade(marks float64, bands []models.GradeBand) string {
	for _, band := range bands {
		if marks >= band.Threshold {
			return band.Label
		}
	}
	return FailingGrade
}
