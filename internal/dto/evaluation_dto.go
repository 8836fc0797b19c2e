package dto

import (
	"encoding/json"
	"strconv"
	"time"

	"gorm.io/datatypes"

	"github.com/noah-isme/certeval-api/internal/models"
)

// SubmitEvaluationRequest is the grader's marking of one template for one user.
// Deductions are keyed by question id; missing questions count as fully correct.
type SubmitEvaluationRequest struct {
	UserID     uint             `json:"user_id" validate:"required,gt=0"`
	TemplateID uint             `json:"template_id" validate:"required,gt=0"`
	Deductions map[uint]float64 `json:"deductions"`
	GradedBy   *uint            `json:"-"`
}

// RegradeEvaluationRequest replaces the deductions of an existing evaluation.
type RegradeEvaluationRequest struct {
	Deductions map[uint]float64 `json:"deductions"`
	GradedBy   *uint            `json:"-"`
}

// EvaluationResponse serializes an evaluation record for charts and feedback cards.
type EvaluationResponse struct {
	ID                  uint                    `json:"id"`
	UserID              uint                    `json:"user_id"`
	TemplateID          uint                    `json:"template_id"`
	TemplateName        string                  `json:"template_name"`
	DepartmentID        *uint                   `json:"department_id"`
	CategoryType        models.CategoryType     `json:"category_type"`
	CategoryReferenceID uint                    `json:"category_reference_id"`
	TotalScore          float64                 `json:"total_score"`
	TotalMaxScore       float64                 `json:"total_max_score"`
	Percentage          float64                 `json:"percentage"`
	ResultStatus        models.ResultStatus     `json:"result_status"`
	EvaluationData      []models.SectionSummary `json:"evaluation_data"`
	Answers             []models.AnswerDetail   `json:"answers"`
	Deductions          map[string]float64      `json:"deductions"`
	CreatedAt           time.Time               `json:"created_at"`
	UpdatedAt           time.Time               `json:"updated_at"`
}

// SubmitEvaluationResponse reports what a submission did.
type SubmitEvaluationResponse struct {
	Evaluation        EvaluationResponse `json:"evaluation"`
	Created           bool               `json:"created"`
	Revision          int                `json:"revision"`
	ExcludedQuestions []uint             `json:"excluded_questions"`
}

// LatestEvaluationsResponse holds the most recent evaluation per category. Either may be null.
type LatestEvaluationsResponse struct {
	Knowledge *EvaluationResponse `json:"knowledge"`
	Skill     *EvaluationResponse `json:"skill"`
}

// EvaluationRevisionResponse serializes one entry of the grading history.
type EvaluationRevisionResponse struct {
	ID           uint                    `json:"id"`
	EvaluationID uint                    `json:"evaluation_id"`
	Revision     int                     `json:"revision"`
	GradedBy     *uint                   `json:"graded_by"`
	TotalScore   float64                 `json:"total_score"`
	MaxScore     float64                 `json:"max_score"`
	Percentage   float64                 `json:"percentage"`
	ResultStatus models.ResultStatus     `json:"result_status"`
	Sections     []models.SectionSummary `json:"sections"`
	Deductions   map[string]float64      `json:"deductions"`
	CreatedAt    time.Time               `json:"created_at"`
}

// NewEvaluationResponse converts an evaluation model into its DTO.
func NewEvaluationResponse(record models.EvaluationRecord) EvaluationResponse {
	sections := make([]models.SectionSummary, len(record.EvaluationData))
	copy(sections, record.EvaluationData)
	answers := make([]models.AnswerDetail, len(record.Answers))
	copy(answers, record.Answers)

	return EvaluationResponse{
		ID:                  record.ID,
		UserID:              record.UserID,
		TemplateID:          record.TemplateID,
		TemplateName:        record.Template.Name,
		DepartmentID:        record.DepartmentID,
		CategoryType:        record.CategoryType,
		CategoryReferenceID: record.CategoryReferenceID,
		TotalScore:          record.TotalScore,
		TotalMaxScore:       record.TotalMaxScore,
		Percentage:          record.Percentage,
		ResultStatus:        record.ResultStatus,
		EvaluationData:      sections,
		Answers:             answers,
		Deductions:          floatMapFromJSON(record.Deductions),
		CreatedAt:           record.CreatedAt,
		UpdatedAt:           record.UpdatedAt,
	}
}

// NewEvaluationResponseSlice converts a list of evaluation models.
func NewEvaluationResponseSlice(records []models.EvaluationRecord) []EvaluationResponse {
	responses := make([]EvaluationResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, NewEvaluationResponse(record))
	}
	return responses
}

// NewEvaluationRevisionResponse converts a revision model into its DTO.
func NewEvaluationRevisionResponse(revision models.EvaluationRevision) EvaluationRevisionResponse {
	sections := make([]models.SectionSummary, len(revision.Sections))
	copy(sections, revision.Sections)

	return EvaluationRevisionResponse{
		ID:           revision.ID,
		EvaluationID: revision.EvaluationID,
		Revision:     revision.Revision,
		GradedBy:     revision.GradedBy,
		TotalScore:   revision.TotalScore,
		MaxScore:     revision.MaxScore,
		Percentage:   revision.Percentage,
		ResultStatus: revision.ResultStatus,
		Sections:     sections,
		Deductions:   floatMapFromJSON(revision.Deductions),
		CreatedAt:    revision.CreatedAt,
	}
}

// DeductionsToJSON stores deductions keyed by the decimal question id.
func DeductionsToJSON(deductions map[uint]float64) datatypes.JSONMap {
	result := make(datatypes.JSONMap, len(deductions))
	for id, value := range deductions {
		result[strconv.FormatUint(uint64(id), 10)] = value
	}
	return result
}

// DeductionsFromJSON restores the deduction map stored on a record. Keys that are not
// question ids are skipped.
func DeductionsFromJSON(data datatypes.JSONMap) map[uint]float64 {
	result := make(map[uint]float64, len(data))
	for key, value := range floatMapFromJSON(data) {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		result[uint(id)] = value
	}
	return result
}

func floatMapFromJSON(data datatypes.JSONMap) map[string]float64 {
	result := make(map[string]float64)
	if data == nil {
		return result
	}
	for key, raw := range data {
		switch value := raw.(type) {
		case float64:
			result[key] = value
		case json.Number:
			// JSONMap.Scan decodes with UseNumber.
			if parsed, err := value.Float64(); err == nil {
				result[key] = parsed
			}
		case int:
			result[key] = float64(value)
		case int64:
			result[key] = float64(value)
		case string:
			if parsed, err := strconv.ParseFloat(value, 64); err == nil {
				result[key] = parsed
			}
		}
	}
	return result
}
