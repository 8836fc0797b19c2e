package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certeval-api/internal/models"
	"github.com/noah-isme/certeval-api/internal/repository"
)

const sampleCatalogJSON = `{
  "departments": [{"id": 1, "name": "Fabrication"}],
  "knowledge": [{"id": 1, "name": "Workshop <i>Theory</i>", "department_id": 1}],
  "skills": [{"id": 1, "name": "Welding", "department_id": 1}],
  "questions": [
    {"id": 1, "text": "PPE check", "section": "Health & Safety", "weight": 2, "category_type": "Skill", "category_id": 1},
    {"id": 2, "text": "Bead quality", "category_type": "Skill", "category_id": 1},
    {"id": 3, "text": "Retired", "category_type": "Skill", "category_id": 1, "active": false}
  ],
  "templates": [
    {"id": 1, "name": "Welding L1", "category_type": "Skill", "category_id": 1, "question_ids": [2, 1, 7]}
  ],
  "users": [{"id": 1, "full_name": "Asha", "department_id": 1}]
}`

func newSeedEnv(t *testing.T, enabled bool, token string) (SeedService, repository.CatalogRepository) {
	t.Helper()
	db := setupServiceDB(t)
	catalog := repository.NewCatalogRepository(db)
	svc, err := NewSeedService(catalog, enabled, token, testLogger())
	require.NoError(t, err)
	return svc, catalog
}

func TestSeedServiceLoadCatalog(t *testing.T) {
	svc, catalog := newSeedEnv(t, false, "")
	ctx := context.Background()

	summary, err := svc.LoadCatalog(ctx, []byte(sampleCatalogJSON))
	require.NoError(t, err)
	require.Equal(t, 3, summary.Questions)
	require.Equal(t, 1, summary.Templates)
	require.Len(t, summary.Warnings, 1)
	require.Contains(t, summary.Warnings[0], "question 7")

	template, err := catalog.GetTemplate(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, models.DefaultTimeLimitMinutes, template.TimeLimitMinutes)
	require.True(t, template.IsActive)
	require.Len(t, template.Questions, 3)
	require.Equal(t, uint(2), template.Questions[0].QuestionID)

	questions, err := catalog.FindActiveQuestions(ctx, []uint{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, questions, 2)
	for _, q := range questions {
		switch q.ID {
		case 1:
			require.Equal(t, "Health & Safety", q.Section)
			require.Equal(t, 2.0, q.Weight)
		case 2:
			require.Equal(t, models.DefaultSection, q.Section)
			require.Equal(t, models.DefaultQuestionWeight, q.Weight)
		}
	}

	name, err := catalog.CategoryName(ctx, models.KnowledgeRef{ID: 1})
	require.NoError(t, err)
	require.Equal(t, "Workshop Theory", name)

	// Seeding is repeatable.
	_, err = svc.LoadCatalog(ctx, []byte(sampleCatalogJSON))
	require.NoError(t, err)
}

func TestSeedServiceRejectsInvalidDocuments(t *testing.T) {
	svc, _ := newSeedEnv(t, false, "")
	ctx := context.Background()

	cases := map[string]string{
		"not json":           `{"questions": [`,
		"unknown field":      `{"quizzes": []}`,
		"zero weight":        `{"questions": [{"id": 1, "text": "x", "weight": 0, "category_type": "Skill", "category_id": 1}]}`,
		"bad category":       `{"templates": [{"id": 1, "name": "x", "category_type": "Other", "category_id": 1, "question_ids": [1]}]}`,
		"duplicate question": `{"templates": [{"id": 1, "name": "x", "category_type": "Skill", "category_id": 1, "question_ids": [1, 1]}]}`,
		"skill without dept": `{"skills": [{"id": 1, "name": "Welding"}]}`,
	}
	for name, document := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.LoadCatalog(ctx, []byte(document))
			require.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestSeedServiceSeedCatalogGuards(t *testing.T) {
	ctx := context.Background()

	disabled, _ := newSeedEnv(t, false, "token")
	_, err := disabled.SeedCatalog(ctx, "token", []byte(sampleCatalogJSON))
	require.ErrorIs(t, err, ErrSeedDisabled)

	enabled, _ := newSeedEnv(t, true, "token")
	_, err = enabled.SeedCatalog(ctx, "wrong", []byte(sampleCatalogJSON))
	require.ErrorIs(t, err, ErrSeedUnauthorized)

	summary, err := enabled.SeedCatalog(ctx, "token", []byte(sampleCatalogJSON))
	require.NoError(t, err)
	require.Equal(t, 1, summary.Users)
}
