package dto

// CreateUserRequest creates a single account outside the bulk import path,
// typically a tutor or another admin.
type CreateUserRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	FullName string `json:"full_name" binding:"required"`
	Role     string `json:"role" binding:"required"`
}

// AssignTutorRequest points a student's profile at a new tutor.
type AssignTutorRequest struct {
	TutorID string `json:"tutor_id" binding:"required"`
}
