package service

import (
	"fmt"
	"sort"
	"strings"

	"github.com/campus-adp/records-api/internal/models"
	appErrors "github.com/campus-adp/records-api/pkg/errors"
)

// kindSchema declares the payload contract for one record kind. Validation
// is table-driven so every kind shares the same submit/resubmit code path.
type kindSchema struct {
	required []string
	numeric  []string
}

var kindSchemas = map[models.RecordKind]kindSchema{
	models.KindInternship: {
		required: []string{"organization", "role", "start_date", "end_date"},
		numeric:  []string{"stipend"},
	},
	models.KindScholarship: {
		required: []string{"name", "awarded_by", "academic_year"},
		numeric:  []string{"amount"},
	},
	models.KindEventOrganized: {
		required: []string{"event_name", "venue", "event_date"},
	},
	models.KindEventAttended: {
		required: []string{"event_name", "organizer", "event_date"},
	},
	models.KindOnlineCourse: {
		required: []string{"course_name", "platform", "completed_on"},
	},
	models.KindLeave: {
		required: []string{"reason", "from_date", "to_date"},
	},
	models.KindAchievement: {
		required: []string{"description", "date"},
	},
	models.KindProject: {
		required: []string{"project_title", "guide", "start_date"},
	},
	models.KindEducationRecord: {
		required: []string{"institution", "qualification", "year_of_passing"},
		numeric:  []string{"percentage"},
	},
	models.KindNPTELEnrollment: {
		required: []string{"course_id"},
		numeric:  []string{"marks"},
	},
	models.KindNonCGPAEntry: {
		required: []string{"category", "description"},
		numeric:  []string{"points"},
	},
	models.KindPublication: {
		required: []string{"title", "publication", "published_on"},
	},
}

// KnownKind reports whether the tag is registered.
func KnownKind(kind models.RecordKind) bool {
	_, ok := kindSchemas[kind]
	return ok
}

// ValidatePayload checks the decoded payload against the kind's schema.
func ValidatePayload(kind models.RecordKind, payload map[string]interface{}) error {
	schema, ok := kindSchemas[kind]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown record kind: %s", kind))
	}

	var missing []string
	for _, field := range schema.required {
		value, present := payload[field]
		if !present || isEmptyValue(value) {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("missing required fields for %s: %s", kind, strings.Join(missing, ", ")))
	}

	for _, field := range schema.numeric {
		value, present := payload[field]
		if !present || value == nil {
			continue
		}
		if _, ok := value.(float64); !ok {
			return appErrors.Clone(appErrors.ErrValidation,
				fmt.Sprintf("field %s must be numeric", field))
		}
	}

	return nil
}

func isEmptyValue(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// payloadNumber extracts a numeric payload field. JSON numbers decode as
// float64 through encoding/json.
func payloadNumber(payload map[string]interface{}, field string) (float64, bool) {
	value, ok := payload[field]
	if !ok {
		return 0, false
	}
	number, ok := value.(float64)
	return number, ok
}

// payloadString extracts a string payload field.
func payloadString(payload map[string]interface{}, field string) (string, bool) {
	value, ok := payload[field]
	if !ok {
		return "", false
	}
	s, ok := value.(string)
	return s, ok
}
