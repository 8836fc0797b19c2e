package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/certeval-api/internal/models"
)

// evaluationComputedColumns are the columns a re-grade overwrites. Identity and
// creation metadata are never touched.
var evaluationComputedColumns = []string{
	"department_id",
	"category_type",
	"category_reference_id",
	"total_score",
	"total_max_score",
	"percentage",
	"result_status",
	"evaluation_data",
	"answers",
	"deductions",
	"updated_at",
}

// UpsertResult describes what an evaluation upsert did.
type UpsertResult struct {
	Record   models.EvaluationRecord
	Created  bool
	Revision int
}

// EvaluationRepository is the result store for evaluation records.
type EvaluationRepository interface {
	Upsert(ctx context.Context, record models.EvaluationRecord, gradedBy *uint) (UpsertResult, error)
	GetByID(ctx context.Context, id uint) (models.EvaluationRecord, error)
	FindByUserAndTemplate(ctx context.Context, userID, templateID uint) (models.EvaluationRecord, error)
	LatestByCategory(ctx context.Context, userID uint, category models.CategoryType) (models.EvaluationRecord, error)
	ListByUser(ctx context.Context, userID uint) ([]models.EvaluationRecord, error)
	ListRevisions(ctx context.Context, userID, templateID uint) ([]models.EvaluationRevision, error)
}

type evaluationRepository struct {
	db *gorm.DB
}

// NewEvaluationRepository constructs the gorm-backed result store.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

// Upsert writes record keyed by (user_id, template_id) and appends a revision,
// all in one transaction. The insert uses ON CONFLICT DO UPDATE against the
// unique index so concurrent writers can never create a duplicate row.
func (r *evaluationRepository) Upsert(ctx context.Context, record models.EvaluationRecord, gradedBy *uint) (UpsertResult, error) {
	var result UpsertResult

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.EvaluationRecord
		err := tx.Select("id").
			Where("user_id = ? AND template_id = ?", record.UserID, record.TemplateID).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			result.Created = true
		case err != nil:
			return err
		}

		record.ID = 0
		record.Template = models.Template{}
		if err := tx.Omit(clause.Associations).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "template_id"}},
			DoUpdates: clause.AssignmentColumns(evaluationComputedColumns),
		}).Create(&record).Error; err != nil {
			return err
		}

		var stored models.EvaluationRecord
		if err := tx.Preload("Template").
			Where("user_id = ? AND template_id = ?", record.UserID, record.TemplateID).
			Take(&stored).Error; err != nil {
			return err
		}

		var previous int64
		if err := tx.Model(&models.EvaluationRevision{}).
			Where("evaluation_id = ?", stored.ID).
			Count(&previous).Error; err != nil {
			return err
		}

		revision := models.EvaluationRevision{
			EvaluationID: stored.ID,
			UserID:       stored.UserID,
			TemplateID:   stored.TemplateID,
			Revision:     int(previous) + 1,
			GradedBy:     gradedBy,
			TotalScore:   stored.TotalScore,
			MaxScore:     stored.TotalMaxScore,
			Percentage:   stored.Percentage,
			ResultStatus: stored.ResultStatus,
			Sections:     stored.EvaluationData,
			Deductions:   stored.Deductions,
			CreatedAt:    stored.UpdatedAt,
		}
		if err := tx.Create(&revision).Error; err != nil {
			return err
		}

		result.Record = stored
		result.Revision = revision.Revision
		return nil
	})
	if err != nil {
		return UpsertResult{}, err
	}

	return result, nil
}

func (r *evaluationRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.EvaluationRecord{}).Preload("Template")
}

func (r *evaluationRepository) GetByID(ctx context.Context, id uint) (models.EvaluationRecord, error) {
	var record models.EvaluationRecord
	if err := r.baseQuery(ctx).First(&record, id).Error; err != nil {
		return models.EvaluationRecord{}, err
	}
	return record, nil
}

func (r *evaluationRepository) FindByUserAndTemplate(ctx context.Context, userID, templateID uint) (models.EvaluationRecord, error) {
	var record models.EvaluationRecord
	if err := r.baseQuery(ctx).
		Where("user_id = ? AND template_id = ?", userID, templateID).
		Take(&record).Error; err != nil {
		return models.EvaluationRecord{}, err
	}
	return record, nil
}

// LatestByCategory returns the most recently written record, by updated_at, for the category.
func (r *evaluationRepository) LatestByCategory(ctx context.Context, userID uint, category models.CategoryType) (models.EvaluationRecord, error) {
	var record models.EvaluationRecord
	if err := r.baseQuery(ctx).
		Where("user_id = ? AND category_type = ?", userID, category).
		Order("updated_at DESC").
		Order("id DESC").
		Take(&record).Error; err != nil {
		return models.EvaluationRecord{}, err
	}
	return record, nil
}

func (r *evaluationRepository) ListByUser(ctx context.Context, userID uint) ([]models.EvaluationRecord, error) {
	var records []models.EvaluationRecord
	if err := r.baseQuery(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *evaluationRepository) ListRevisions(ctx context.Context, userID, templateID uint) ([]models.EvaluationRevision, error) {
	var revisions []models.EvaluationRevision
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND template_id = ?", userID, templateID).
		Order("revision DESC").
		Find(&revisions).Error; err != nil {
		return nil, err
	}
	return revisions, nil
}
