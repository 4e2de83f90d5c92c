// Package sizingref looks up the vendor's published sizing reference
// numbers (expected throughput/capacity ranges per appliance model) from
// a local Postgres mirror of that reference table, used to flag a
// measured throughput that falls well outside the vendor's expected
// range. Grounded on the teacher's db package's gorm+postgres models,
// adapted from its entity tables to this single read-mostly reference
// table.
package sizingref

import (
	"context"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Row is one vendor sizing reference entry.
type Row struct {
	ID                  uint   `gorm:"primaryKey"`
	ApplianceModel      string `gorm:"uniqueIndex:idx_model_version"`
	FirmwareVersion     string `gorm:"uniqueIndex:idx_model_version"`
	ExpectedMinMBps     float64
	ExpectedMaxMBps     float64
	ExpectedMaxStreams  int
}

func (Row) TableName() string { return "sizing_reference" }

// Lookup resolves a (model, firmwareVersion) pair to its sizing row.
type Lookup interface {
	Find(ctx context.Context, applianceModel, firmwareVersion string) (*Row, error)
}

type gormLookup struct {
	db *gorm.DB
}

// Open connects to the Postgres sizing reference database at dsn.
func Open(dsn string) (Lookup, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("sizingref: connecting: %w", err)
	}
	return &gormLookup{db: db}, nil
}

func (l *gormLookup) Find(ctx context.Context, applianceModel, firmwareVersion string) (*Row, error) {
	var row Row
	err := l.db.WithContext(ctx).
		Where("appliance_model = ? AND firmware_version = ?", applianceModel, firmwareVersion).
		First(&row).Error
	if err != nil {
		return nil, fmt.Errorf("sizingref: lookup %s/%s: %w", applianceModel, firmwareVersion, err)
	}
	return &row, nil
}

// InRange reports whether observedMBps falls within the row's expected
// throughput band.
func (r *Row) InRange(observedMBps float64) bool {
	return observedMBps >= r.ExpectedMinMBps && observedMBps <= r.ExpectedMaxMBps
}
