package artifact

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Gorm stores artifact records in a database table via GORM. Appends only
// ever INSERT; the table accumulates across runs.
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a GORM-backed artifact log.
func NewGorm(db *gorm.DB) *Gorm {
	return &Gorm{db: db}
}

// Migrate creates the artifact_records table.
func (g *Gorm) Migrate(ctx context.Context) error {
	return g.db.WithContext(ctx).AutoMigrate(&Record{})
}

// Append inserts one record.
func (g *Gorm) Append(ctx context.Context, rec *Record) error {
	if rec.RecordID == "" {
		rec.RecordID = NewRecordID()
	}
	if err := g.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("artifact: insert record: %w", err)
	}
	return nil
}

// ForJob returns the records for one job of one run, oldest first. Reads do
// not violate append-only; this backs the CLI's audit listing.
func (g *Gorm) ForJob(ctx context.Context, runID string, jobID int) ([]Record, error) {
	var recs []Record
	err := g.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Where("job_id = ?", jobID).
		Order("record_id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("artifact: query records: %w", err)
	}
	return recs, nil
}

// Count returns the total number of records in the log.
func (g *Gorm) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := g.db.WithContext(ctx).Model(&Record{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("artifact: count records: %w", err)
	}
	return n, nil
}
