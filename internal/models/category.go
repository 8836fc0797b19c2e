package models

import "fmt"

// CategoryType distinguishes knowledge assessments from skill assessments.
type CategoryType string

const (
	// CategoryKnowledge marks theory assessments backed by a Knowledge area.
	CategoryKnowledge CategoryType = "Knowledge"
	// CategorySkill marks practical assessments backed by a Skill.
	CategorySkill CategoryType = "Skill"
)

// Valid reports whether the category type is one of the known values.
func (c CategoryType) Valid() bool {
	return c == CategoryKnowledge || c == CategorySkill
}

// CategoryRef points at the Knowledge area or Skill a template or question belongs to.
// The only implementations are KnowledgeRef and SkillRef.
type CategoryRef interface {
	Type() CategoryType
	RefID() uint
	isCategoryRef()
}

// KnowledgeRef references a Knowledge area.
type KnowledgeRef struct{ ID uint }

// SkillRef references a Skill.
type SkillRef struct{ ID uint }

func (KnowledgeRef) Type() CategoryType { return CategoryKnowledge }
func (r KnowledgeRef) RefID() uint      { return r.ID }
func (KnowledgeRef) isCategoryRef()     {}

func (SkillRef) Type() CategoryType { return CategorySkill }
func (r SkillRef) RefID() uint      { return r.ID }
func (SkillRef) isCategoryRef()     {}

// NewCategoryRef rebuilds a reference from its persisted columns.
func NewCategoryRef(categoryType CategoryType, id uint) (CategoryRef, error) {
	switch categoryType {
	case CategoryKnowledge:
		return KnowledgeRef{ID: id}, nil
	case CategorySkill:
		return SkillRef{ID: id}, nil
	default:
		return nil, fmt.Errorf("unknown category type %q", categoryType)
	}
}
