package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	// ActivitySeverityInfo marks routine grading actions.
	ActivitySeverityInfo = "info"
	// ActivitySeverityWarning marks data-integrity problems found while grading.
	ActivitySeverityWarning = "warning"
)

// ActivityLog is the audit trail for grading actions and integrity warnings.
type ActivityLog struct {
	ID         uint              `gorm:"primaryKey" json:"id"`
	ActorID    uint              `gorm:"not null;index" json:"actor_id"`
	Action     string            `gorm:"size:64;not null;index" json:"action"`
	Severity   string            `gorm:"size:16;not null" json:"severity"`
	EntityType string            `gorm:"size:64;not null" json:"entity_type"`
	EntityID   *uint             `json:"entity_id"`
	Metadata   datatypes.JSONMap `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}
