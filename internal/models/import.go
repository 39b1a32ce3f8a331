package models

// ImportRow is one parsed row of a bulk user import batch. Student rows
// additionally need a register number and the tutor's email so the detail
// profile can resolve its approver by natural key.
type ImportRow struct {
	Email      string   `json:"email"`
	FullName   string   `json:"full_name"`
	Role       UserRole `json:"role"`
	RegisterNo string   `json:"register_no,omitempty"`
	Program    string   `json:"program,omitempty"`
	BatchYear  int      `json:"batch_year,omitempty"`
	TutorEmail string   `json:"tutor_email,omitempty"`
}

// ImportResult reports the outcome of one import call. Duplicates lists the
// conflicting emails; when non-empty nothing was written.
type ImportResult struct {
	TotalRows  int      `json:"total_rows"`
	Processed  int      `json:"processed"`
	Duplicates []string `json:"duplicates,omitempty"`
}
