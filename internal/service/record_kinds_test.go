package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campus-adp/records-api/internal/models"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

func TestKnownKind(t *testing.T) {
	require.True(t, KnownKind(models.KindInternship))
	require.True(t, KnownKind(models.KindNPTELEnrollment))
	require.False(t, KnownKind(models.RecordKind("mystery")))
}

func TestValidatePayloadMissingFields(t *testing.T) {
	err := ValidatePayload(models.KindInternship, map[string]interface{}{
		"organization": "Acme",
	})
	require.Error(t, err)
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
	require.Contains(t, err.Error(), "end_date")
	require.Contains(t, err.Error(), "role")
	require.Contains(t, err.Error(), "start_date")
}

func TestValidatePayloadBlankStringCountsAsMissing(t *testing.T) {
	err := ValidatePayload(models.KindAchievement, map[string]interface{}{
		"description": "  ",
		"date":        "2026-01-15",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "description")
}

func TestValidatePayloadNumericFields(t *testing.T) {
	err := ValidatePayload(models.KindNPTELEnrollment, map[string]interface{}{
		"course_id": "course-1",
		"marks":     "eighty",
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "marks")

	err = ValidatePayload(models.KindNPTELEnrollment, map[string]interface{}{
		"course_id": "course-1",
		"marks":     float64(80),
	})
	require.NoError(t, err)
}

func TestValidatePayloadExtraFieldsAllowed(t *testing.T) {
	err := ValidatePayload(models.KindLeave, map[string]interface{}{
		"reason":    "medical",
		"from_date": "2026-02-01",
		"to_date":   "2026-02-05",
		"notes":     "attached certificate",
	})
	require.NoError(t, err)
}

func TestValidatePayloadEveryKindHasSchema(t *testing.T) {
	kinds := []models.RecordKind{
		models.KindInternship, models.KindScholarship, models.KindEventOrganized,
		models.KindEventAttended, models.KindOnlineCourse, models.KindLeave,
		models.KindAchievement, models.KindProject, models.KindEducationRecord,
		models.KindNPTELEnrollment, models.KindNonCGPAEntry, models.KindPublication,
	}
	for _, kind := range kinds {
		require.True(t, KnownKind(kind), "kind %s", kind)
	}
}
