package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/certeval-api/internal/models"
)

func sampleCatalog() Catalog {
	dept := uint(1)
	return Catalog{
		Departments: []models.Department{{ID: 1, Name: "Fabrication", IsActive: true}},
		Knowledge:   []models.Knowledge{{ID: 1, Name: "Workshop Theory", DepartmentID: &dept, IsActive: true}},
		Skills:      []models.Skill{{ID: 1, Name: "Welding", DepartmentID: 1, IsActive: true}},
		Questions: []models.Question{
			{ID: 10, Text: "PPE check", Section: "Safety", Weight: 2, CategoryType: models.CategorySkill, CategoryReferenceID: 1, IsActive: true},
			{ID: 11, Text: "Bead quality", Weight: 3, CategoryType: models.CategorySkill, CategoryReferenceID: 1, IsActive: true},
			{ID: 12, Text: "Retired", Weight: 1, CategoryType: models.CategorySkill, CategoryReferenceID: 1, IsActive: false},
		},
		Templates: []models.Template{{
			ID:                  1,
			Name:                "Welding L1",
			CategoryType:        models.CategorySkill,
			CategoryReferenceID: 1,
			TimeLimitMinutes:    30,
			IsActive:            true,
			Questions: []models.TemplateQuestion{
				{Position: 1, QuestionID: 11},
				{Position: 2, QuestionID: 10},
			},
		}},
		Users: []models.User{{ID: 1, FullName: "Asha", Role: models.UserRoleWorker, DepartmentID: &dept, IsActive: true}},
	}
}

func TestCatalogRepositoryUpsertAndResolve(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, sampleCatalog()))

	template, err := repo.GetTemplate(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Welding L1", template.Name)
	require.Len(t, template.Questions, 2)
	require.Equal(t, uint(11), template.Questions[0].QuestionID)
	require.Equal(t, uint(10), template.Questions[1].QuestionID)

	questions, err := repo.FindActiveQuestions(ctx, []uint{10, 11, 12, 404})
	require.NoError(t, err)
	require.Len(t, questions, 2)

	var untagged models.Question
	require.NoError(t, db.First(&untagged, 11).Error)
	require.Equal(t, models.DefaultSection, untagged.Section)

	name, err := repo.CategoryName(ctx, models.SkillRef{ID: 1})
	require.NoError(t, err)
	require.Equal(t, "Welding", name)

	name, err = repo.CategoryName(ctx, models.KnowledgeRef{ID: 1})
	require.NoError(t, err)
	require.Equal(t, "Workshop Theory", name)

	_, err = repo.CategoryName(ctx, models.KnowledgeRef{ID: 2})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCatalogRepositoryUpsertReplacesTemplateQuestions(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	catalog := sampleCatalog()
	require.NoError(t, repo.Upsert(ctx, catalog))

	catalog.Templates[0].Name = "Welding L1 (rev)"
	catalog.Templates[0].Questions = []models.TemplateQuestion{{Position: 1, QuestionID: 10}}
	require.NoError(t, repo.Upsert(ctx, catalog))

	template, err := repo.GetTemplate(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Welding L1 (rev)", template.Name)
	require.Len(t, template.Questions, 1)
	require.Equal(t, uint(10), template.Questions[0].QuestionID)

	_, err = repo.GetTemplate(ctx, 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestUserRepositoryGetByID(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, NewCatalogRepository(db).Upsert(context.Background(), sampleCatalog()))

	repo := NewUserRepository(db)
	user, err := repo.GetByID(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, "Asha", user.FullName)
	require.NotNil(t, user.DepartmentID)

	_, err = repo.GetByID(context.Background(), 2)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestActivityLogRepositoryFilters(t *testing.T) {
	db := setupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()

	entity := uint(3)
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, Action: "evaluation.recorded", Severity: models.ActivitySeverityInfo, EntityType: "evaluation", EntityID: &entity}))
	require.NoError(t, repo.Create(ctx, &models.ActivityLog{ActorID: 1, Action: "evaluation.integrity_warning", Severity: models.ActivitySeverityWarning, EntityType: "template", EntityID: &entity}))

	entries, total, err := repo.List(ctx, ActivityLogFilter{Severity: models.ActivitySeverityWarning})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "evaluation.integrity_warning", entries[0].Action)

	entries, total, err = repo.List(ctx, ActivityLogFilter{EntityID: &entity, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, entries, 1)
}
