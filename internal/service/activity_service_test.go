package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/certeval-api/internal/dto"
	"github.com/noah-isme/certeval-api/internal/models"
	"github.com/noah-isme/certeval-api/internal/repository"
)

type memoryActivityRepo struct {
	entries []models.ActivityLog
	filters []repository.ActivityLogFilter
}

func (m *memoryActivityRepo) Create(ctx context.Context, entry *models.ActivityLog) error {
	entry.ID = uint(len(m.entries) + 1)
	entry.CreatedAt = time.Now()
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *memoryActivityRepo) List(ctx context.Context, filter repository.ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	m.filters = append(m.filters, filter)
	return append([]models.ActivityLog(nil), m.entries...), int64(len(m.entries)), nil
}

func TestActivityServiceRecordMasksEmail(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	entry, err := svc.Record(context.Background(), ActivityEntry{
		ActorID:    1,
		Action:     " Evaluation.Recorded ",
		EntityType: "Evaluation",
		EntityID:   ptrUint(5),
		Metadata: map[string]interface{}{
			"email":    "worker@example.com",
			"template": "Welding L1",
		},
	})
	require.NoError(t, err)
	require.Equal(t, "***", entry.Metadata["email"])
	require.Equal(t, "Welding L1", entry.Metadata["template"])
	require.Equal(t, ActionEvaluationRecorded, entry.Action)
	require.Equal(t, "evaluation", entry.EntityType)
	require.Equal(t, models.ActivitySeverityInfo, entry.Severity)
}

func TestActivityServiceRecordRequiresAction(t *testing.T) {
	svc := NewActivityService(&memoryActivityRepo{}, testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{EntityType: "template"})
	require.ErrorIs(t, err, ErrValidation)
}

func TestActivityServiceListPassesFilters(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	_, err := svc.Record(context.Background(), ActivityEntry{Action: ActionIntegrityWarning, Severity: "WARNING", EntityType: "template"})
	require.NoError(t, err)

	result, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10, Severity: "warning", EntityID: 3})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, models.ActivitySeverityWarning, result.Items[0].Severity)
	require.Equal(t, 1, result.Pagination.TotalPages)

	require.Len(t, repo.filters, 1)
	require.Equal(t, "warning", repo.filters[0].Severity)
	require.NotNil(t, repo.filters[0].EntityID)
	require.Equal(t, uint(3), *repo.filters[0].EntityID)
	require.Nil(t, repo.filters[0].ActorID)
}

func TestActivityServiceListRejectsInvertedWindow(t *testing.T) {
	repo := &memoryActivityRepo{}
	svc := NewActivityService(repo, testLogger())

	from := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	to := from.Add(-time.Hour)
	_, err := svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10, From: &from, To: &to})
	require.ErrorIs(t, err, ErrValidation)
	require.Empty(t, repo.filters)

	to = from.Add(time.Hour)
	_, err = svc.List(context.Background(), dto.ActivityListRequest{Page: 1, PageSize: 10, From: &from, To: &to})
	require.NoError(t, err)
	require.Equal(t, &from, repo.filters[0].From)
}

func ptrUint(v uint) *uint {
	return &v
}
