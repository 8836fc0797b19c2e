package database

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Probe checks one backing dependency for the health endpoint.
type Probe func(ctx context.Context) error

// SQLProbe pings the pool behind db.
func SQLProbe(db *gorm.DB) Probe {
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("resolve sql pool: %w", err)
		}
		return sqlDB.PingContext(ctx)
	}
}
