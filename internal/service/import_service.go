package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/campus-adp/records-api/internal/models"
	"github.com/campus-adp/records-api/internal/repository"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

type importRunner interface {
	Run(ctx context.Context, fn func(ctx context.Context, tx repository.ImportTx) error) error
}

type importArtifacts interface {
	Delete(ctx context.Context, name string) error
}

// ImportService loads user batches atomically. Either every row lands, with
// student profiles and tutor links in place, or the store is untouched and
// the caller gets the full reason why.
type ImportService struct {
	repo            importRunner
	artifacts       importArtifacts
	maxRows         int
	initialPassword string
	logger          *zap.Logger
}

// NewImportService constructs the service.
func NewImportService(repo importRunner, artifacts importArtifacts, maxRows int, initialPassword string, logger *zap.Logger) *ImportService {
	if maxRows <= 0 {
		maxRows = 5000
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportService{
		repo:            repo,
		artifacts:       artifacts,
		maxRows:         maxRows,
		initialPassword: initialPassword,
		logger:          logger,
	}
}

// Import validates and persists the batch. Rows that duplicate each other or
// an existing account abort the whole batch; the conflicting emails come back
// in the result so the caller can fix the file and retry. The uploaded
// artifact, when named, is removed on every exit path.
func (s *ImportService) Import(ctx context.Context, rows []models.ImportRow, artifact string, actor *models.JWTClaims) (*models.ImportResult, error) {
	if artifact != "" && s.artifacts != nil {
		defer func() {
			if err := s.artifacts.Delete(context.Background(), artifact); err != nil {
				s.logger.Warn("failed to remove import artifact", zap.String("artifact", artifact), zap.Error(err))
			}
		}()
	}

	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if len(rows) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "import batch is empty")
	}
	if len(rows) > s.maxRows {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("import batch exceeds %d rows", s.maxRows))
	}

	normalized := make([]models.ImportRow, len(rows))
	for i, row := range rows {
		row.Email = strings.ToLower(strings.TrimSpace(row.Email))
		row.FullName = strings.TrimSpace(row.FullName)
		row.TutorEmail = strings.ToLower(strings.TrimSpace(row.TutorEmail))
		if err := validateImportRow(i+1, row); err != nil {
			return nil, err
		}
		normalized[i] = row
	}

	result := &models.ImportResult{TotalRows: len(normalized)}

	if dupes := batchDuplicates(normalized); len(dupes) > 0 {
		result.Duplicates = dupes
		return result, nil
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(s.initialPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash initial password")
	}

	err = s.repo.Run(ctx, func(ctx context.Context, tx repository.ImportTx) error {
		existing, err := tx.ExistingEmails(ctx)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to snapshot accounts")
		}
		var dupes []string
		for _, row := range normalized {
			if _, ok := existing[row.Email]; ok {
				dupes = append(dupes, row.Email)
			}
		}
		if len(dupes) > 0 {
			sort.Strings(dupes)
			result.Duplicates = dupes
			return errAbortImport
		}

		users := make([]*models.User, len(normalized))
		for i, row := range normalized {
			users[i] = &models.User{
				Email:        row.Email,
				PasswordHash: string(hash),
				FullName:     row.FullName,
				Role:         row.Role,
				Active:       true,
			}
		}
		if err := tx.BulkCreateUsers(ctx, users); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create users")
		}

		for i, row := range normalized {
			if row.Role != models.RoleStudent {
				continue
			}
			var tutorID *string
			if row.TutorEmail != "" {
				id, err := tx.FindTutorIDByEmail(ctx, row.TutorEmail)
				if err != nil {
					if errors.Is(err, sql.ErrNoRows) {
						return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("row %d: tutor %s not found", i+1, row.TutorEmail))
					}
					return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "tutor lookup failed")
				}
				tutorID = &id
			}
			profile := &models.StudentProfile{
				UserID:     users[i].ID,
				RegisterNo: row.RegisterNo,
				Program:    row.Program,
				BatchYear:  row.BatchYear,
				TutorID:    tutorID,
			}
			if err := tx.CreateStudentProfile(ctx, profile); err != nil {
				return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student profile")
			}
		}

		return tx.CreateAuditLog(ctx, &models.AuditLog{
			UserID:    &actor.UserID,
			Action:    models.AuditActionBulkImport,
			Resource:  "users",
			NewValues: []byte(fmt.Sprintf(`{"rows":%d}`, len(normalized))),
			IPAddress: "system",
			UserAgent: "import-service",
		})
	})
	if err != nil {
		if errors.Is(err, errAbortImport) {
			return result, nil
		}
		return nil, err
	}

	result.Processed = len(normalized)
	s.logger.Info("import committed",
		zap.Int("rows", result.Processed),
		zap.String("actor_id", actor.UserID))
	return result, nil
}

// errAbortImport rolls the transaction back without surfacing as a failure;
// the duplicate list in the result carries the outcome.
var errAbortImport = errors.New("import aborted")

func validateImportRow(n int, row models.ImportRow) error {
	switch {
	case row.Email == "":
		return rowError(n, "email is required")
	case row.FullName == "":
		return rowError(n, "full_name is required")
	}
	if _, err := mail.ParseAddress(row.Email); err != nil {
		return rowError(n, "email is not valid")
	}
	switch row.Role {
	case models.RoleStudent:
		if row.RegisterNo == "" {
			return rowError(n, "register_no is required for students")
		}
		if row.Program == "" {
			return rowError(n, "program is required for students")
		}
		if row.BatchYear < 1900 {
			return rowError(n, "batch_year is not valid")
		}
	case models.RoleTutor, models.RoleAdmin:
	default:
		return rowError(n, "role must be STUDENT, TUTOR or ADMIN")
	}
	return nil
}

func rowError(n int, msg string) error {
	return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("row %d: %s", n, msg))
}

// batchDuplicates returns emails that appear more than once inside the batch
// itself, sorted for stable output.
func batchDuplicates(rows []models.ImportRow) []string {
	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		seen[row.Email]++
	}
	var dupes []string
	for email, count := range seen {
		if count > 1 {
			dupes = append(dupes, email)
		}
	}
	sort.Strings(dupes)
	return dupes
}
