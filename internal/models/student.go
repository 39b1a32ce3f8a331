package models

import "time"

// StudentProfile holds the academic identity of a student user, including
// the tutor responsible for approving the student's records.
type StudentProfile struct {
	UserID     string    `db:"user_id" json:"user_id"`
	RegisterNo string    `db:"register_no" json:"register_no"`
	Program    string    `db:"program" json:"program"`
	BatchYear  int       `db:"batch_year" json:"batch_year"`
	TutorID    *string   `db:"tutor_id" json:"tutor_id,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Approver is a resolved tutor with a notification address.
type Approver struct {
	ID       string `db:"id" json:"id"`
	Email    string `db:"email" json:"email"`
	FullName string `db:"full_name" json:"full_name"`
}
