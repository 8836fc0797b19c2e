package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/certeval-api/internal/models"
)

// Catalog is a bundle of reference data loaded in one go, typically from a seed file.
type Catalog struct {
	Departments []models.Department
	Knowledge   []models.Knowledge
	Skills      []models.Skill
	Questions   []models.Question
	Templates   []models.Template
	Users       []models.User
}

// CatalogRepository reads the question bank and templates the scoring engine grades against.
type CatalogRepository interface {
	GetTemplate(ctx context.Context, id uint) (models.Template, error)
	FindActiveQuestions(ctx context.Context, ids []uint) ([]models.Question, error)
	CategoryName(ctx context.Context, ref models.CategoryRef) (string, error)
	Upsert(ctx context.Context, catalog Catalog) error
}

type catalogRepository struct {
	db *gorm.DB
}

// NewCatalogRepository constructs the catalog repository.
func NewCatalogRepository(db *gorm.DB) CatalogRepository {
	return &catalogRepository{db: db}
}

func (r *catalogRepository) GetTemplate(ctx context.Context, id uint) (models.Template, error) {
	var template models.Template
	if err := r.db.WithContext(ctx).
		Preload("Questions", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC")
		}).
		First(&template, id).Error; err != nil {
		return models.Template{}, err
	}
	return template, nil
}

func (r *catalogRepository) FindActiveQuestions(ctx context.Context, ids []uint) ([]models.Question, error) {
	if len(ids) == 0 {
		return []models.Question{}, nil
	}

	var questions []models.Question
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active = ?", ids, true).
		Find(&questions).Error; err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *catalogRepository) CategoryName(ctx context.Context, ref models.CategoryRef) (string, error) {
	var name string
	var err error

	switch ref := ref.(type) {
	case models.KnowledgeRef:
		name, err = r.pluckName(ctx, &models.Knowledge{}, ref.ID)
	case models.SkillRef:
		name, err = r.pluckName(ctx, &models.Skill{}, ref.ID)
	default:
		return "", fmt.Errorf("unsupported category reference %T", ref)
	}

	return name, err
}

func (r *catalogRepository) pluckName(ctx context.Context, model interface{}, id uint) (string, error) {
	var names []string
	if err := r.db.WithContext(ctx).Model(model).Where("id = ?", id).Limit(1).Pluck("name", &names).Error; err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", gorm.ErrRecordNotFound
	}
	return names[0], nil
}

// Upsert writes the catalog in one transaction. Template question lists are replaced wholesale.
func (r *catalogRepository) Upsert(ctx context.Context, catalog Catalog) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(catalog.Departments) > 0 {
			if err := upsertAll(tx).Create(&catalog.Departments).Error; err != nil {
				return fmt.Errorf("departments: %w", err)
			}
		}
		if len(catalog.Knowledge) > 0 {
			if err := upsertAll(tx).Create(&catalog.Knowledge).Error; err != nil {
				return fmt.Errorf("knowledge: %w", err)
			}
		}
		if len(catalog.Skills) > 0 {
			if err := upsertAll(tx).Create(&catalog.Skills).Error; err != nil {
				return fmt.Errorf("skills: %w", err)
			}
		}
		if len(catalog.Questions) > 0 {
			if err := upsertAll(tx).Create(&catalog.Questions).Error; err != nil {
				return fmt.Errorf("questions: %w", err)
			}
		}
		if len(catalog.Users) > 0 {
			if err := upsertAll(tx).Create(&catalog.Users).Error; err != nil {
				return fmt.Errorf("users: %w", err)
			}
		}

		for i := range catalog.Templates {
			template := catalog.Templates[i]
			links := template.Questions
			template.Questions = nil

			if err := upsertAll(tx).Omit(clause.Associations).Create(&template).Error; err != nil {
				return fmt.Errorf("template %d: %w", template.ID, err)
			}
			if err := tx.Where("template_id = ?", template.ID).Delete(&models.TemplateQuestion{}).Error; err != nil {
				return fmt.Errorf("template %d questions: %w", template.ID, err)
			}
			for pos := range links {
				links[pos].TemplateID = template.ID
			}
			if len(links) > 0 {
				if err := tx.Create(&links).Error; err != nil {
					return fmt.Errorf("template %d questions: %w", template.ID, err)
				}
			}
		}

		return nil
	})
}

func upsertAll(tx *gorm.DB) *gorm.DB {
	return tx.Clauses(clause.OnConflict{UpdateAll: true})
}
