package models

import (
	"time"

	"gorm.io/datatypes"
)

// ResultStatus is the pass/fail outcome of an evaluation.
type ResultStatus string

const (
	// ResultPass marks an evaluation at or above the pass threshold.
	ResultPass ResultStatus = "PASS"
	// ResultFail marks an evaluation below the pass threshold.
	ResultFail ResultStatus = "FAIL"
)

// SectionSummary is the per-section aggregate rendered in feedback cards and radar charts.
type SectionSummary struct {
	Subject      string       `json:"subject"`
	MaxPoints    float64      `json:"max_points"`
	ScoredPoints float64      `json:"scored_points"`
	Rating       float64      `json:"rating"`
	CategoryType CategoryType `json:"category_type"`
}

// AnswerDetail is the per-question audit entry stored on an evaluation.
type AnswerDetail struct {
	QuestionID uint    `json:"question_id"`
	IsCorrect  bool    `json:"is_correct"`
	Weight     float64 `json:"weight"`
}

// EvaluationRecord is the current graded outcome of one template for one user.
// (UserID, TemplateID) is unique; re-grades overwrite the computed columns in place.
type EvaluationRecord struct {
	ID                  uint                                `gorm:"primaryKey" json:"id"`
	UserID              uint                                `gorm:"not null;uniqueIndex:idx_evaluation_user_template,priority:1;index:idx_evaluation_user_category,priority:1" json:"user_id"`
	TemplateID          uint                                `gorm:"not null;uniqueIndex:idx_evaluation_user_template,priority:2" json:"template_id"`
	DepartmentID        *uint                               `json:"department_id"`
	CategoryType        CategoryType                        `gorm:"size:16;not null;index:idx_evaluation_user_category,priority:2" json:"category_type"`
	CategoryReferenceID uint                                `gorm:"not null" json:"category_reference_id"`
	TotalScore          float64                             `gorm:"not null" json:"total_score"`
	TotalMaxScore       float64                             `gorm:"not null" json:"total_max_score"`
	Percentage          float64                             `gorm:"not null" json:"percentage"`
	ResultStatus        ResultStatus                        `gorm:"size:8;not null" json:"result_status"`
	EvaluationData      datatypes.JSONSlice[SectionSummary] `gorm:"type:json" json:"evaluation_data"`
	Answers             datatypes.JSONSlice[AnswerDetail]   `gorm:"type:json" json:"answers"`
	Deductions          datatypes.JSONMap                   `gorm:"type:json" json:"deductions"`
	Template            Template                            `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"template"`
	CreatedAt           time.Time                           `json:"created_at"`
	UpdatedAt           time.Time                           `json:"updated_at"`
}

// CategoryRef returns the typed category reference of the evaluation.
func (e EvaluationRecord) CategoryRef() (CategoryRef, error) {
	return NewCategoryRef(e.CategoryType, e.CategoryReferenceID)
}

// EvaluationRevision is an append-only snapshot written on every submission.
type EvaluationRevision struct {
	ID           uint                                `gorm:"primaryKey" json:"id"`
	EvaluationID uint                                `gorm:"not null;uniqueIndex:idx_revision_evaluation_number,priority:1" json:"evaluation_id"`
	UserID       uint                                `gorm:"not null;index:idx_revision_user_template,priority:1" json:"user_id"`
	TemplateID   uint                                `gorm:"not null;index:idx_revision_user_template,priority:2" json:"template_id"`
	Revision     int                                 `gorm:"not null;uniqueIndex:idx_revision_evaluation_number,priority:2" json:"revision"`
	GradedBy     *uint                               `json:"graded_by"`
	TotalScore   float64                             `gorm:"not null" json:"total_score"`
	MaxScore     float64                             `gorm:"not null" json:"max_score"`
	Percentage   float64                             `gorm:"not null" json:"percentage"`
	ResultStatus ResultStatus                        `gorm:"size:8;not null" json:"result_status"`
	Sections     datatypes.JSONSlice[SectionSummary] `gorm:"type:json" json:"sections"`
	Deductions   datatypes.JSONMap                   `gorm:"type:json" json:"deductions"`
	CreatedAt    time.Time                           `json:"created_at"`
}
