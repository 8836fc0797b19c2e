package models

import "time"

const (
	// DefaultQuestionWeight applies when a question carries no positive weight.
	DefaultQuestionWeight = 1.0
	// DefaultSection is the section label assigned to untagged questions.
	DefaultSection = "General"
	// DefaultTimeLimitMinutes is the template time limit when none is configured.
	DefaultTimeLimitMinutes = 90
)

// Department groups employees and the skills they are certified against.
type Department struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsActive    bool      `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Knowledge is a theory subject that knowledge templates are scoped to.
type Knowledge struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	DepartmentID *uint     `json:"department_id"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName overrides the pluralised default "knowledges".
func (Knowledge) TableName() string {
	return "knowledge_areas"
}

// Skill is a practical competency that skill templates are scoped to.
type Skill struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	DepartmentID uint      `gorm:"not null;index" json:"department_id"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Question is a single gradable item in the question bank.
type Question struct {
	ID                  uint         `gorm:"primaryKey" json:"id"`
	Text                string       `gorm:"type:text;not null" json:"text"`
	Section             string       `gorm:"size:128;not null;default:General" json:"section"`
	Weight              float64      `gorm:"not null;default:1" json:"weight"`
	CategoryType        CategoryType `gorm:"size:16;not null" json:"category_type"`
	CategoryReferenceID uint         `gorm:"not null" json:"category_reference_id"`
	IsActive            bool         `gorm:"not null" json:"is_active"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// EffectiveWeight returns the question weight, falling back to the default for non-positive values.
func (q Question) EffectiveWeight() float64 {
	if q.Weight <= 0 {
		return DefaultQuestionWeight
	}
	return q.Weight
}

// Template is an ordered set of questions scoped to one Knowledge area or Skill.
type Template struct {
	ID                  uint               `gorm:"primaryKey" json:"id"`
	Name                string             `gorm:"size:255;not null" json:"name"`
	CategoryType        CategoryType       `gorm:"size:16;not null" json:"category_type"`
	CategoryReferenceID uint               `gorm:"not null" json:"category_reference_id"`
	TimeLimitMinutes    int                `gorm:"not null;default:90" json:"time_limit_minutes"`
	IsActive            bool               `gorm:"not null" json:"is_active"`
	Questions           []TemplateQuestion `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"questions"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

// CategoryRef returns the typed reference of the template.
func (t Template) CategoryRef() (CategoryRef, error) {
	return NewCategoryRef(t.CategoryType, t.CategoryReferenceID)
}

// TemplateQuestion links a template to a question at a fixed position.
// QuestionID carries no foreign key so removed questions surface as unresolved
// references when the template is graded.
type TemplateQuestion struct {
	TemplateID uint `gorm:"primaryKey" json:"template_id"`
	Position   int  `gorm:"primaryKey" json:"position"`
	QuestionID uint `gorm:"not null;index" json:"question_id"`
}

// User is an employee that takes assessments.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FullName     string    `gorm:"size:255;not null" json:"full_name"`
	Email        string    `gorm:"size:255" json:"email"`
	Role         string    `gorm:"size:32;not null;default:worker" json:"role"`
	DepartmentID *uint     `json:"department_id"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const (
	// UserRoleAdmin identifies graders and administrators.
	UserRoleAdmin = "admin"
	// UserRoleWorker identifies employees taking assessments.
	UserRoleWorker = "worker"
)
