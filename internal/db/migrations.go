package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS plate_records (
		id              BIGSERIAL PRIMARY KEY,
		run_id          TEXT NOT NULL,
		track_id        BIGINT NOT NULL,
		image           BYTEA NOT NULL,
		plate_text      TEXT,
		quality_score   DOUBLE PRECISION NOT NULL DEFAULT 0,
		confidence      DOUBLE PRECISION NOT NULL DEFAULT 0,
		rotation_angle  DOUBLE PRECISION NOT NULL DEFAULT 0,
		speed_mps       DOUBLE PRECISION,
		low_quality     BOOLEAN NOT NULL DEFAULT FALSE,
		captured_at     TIMESTAMPTZ NOT NULL,
		track_meta      JSONB,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_plate_records_run_id ON plate_records(run_id);`,
	`CREATE INDEX IF NOT EXISTS idx_plate_records_captured_at ON plate_records(captured_at);`,
	`CREATE INDEX IF NOT EXISTS idx_plate_records_plate_text ON plate_records(plate_text);`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
