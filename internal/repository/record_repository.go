package repository

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"platetrack/internal/domain/plate"
)

type RecordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

type PlateRecord struct {
	ID            int64  `gorm:"primaryKey"`
	RunID         string `gorm:"not null;index"`
	TrackID       int64  `gorm:"not null"`
	Image         []byte `gorm:"not null"`
	PlateText     *string
	QualityScore  float64
	Confidence    float64
	RotationAngle float64
	SpeedMPS      *float64
	LowQuality    bool
	CapturedAt    time.Time      `gorm:"not null"`
	TrackMeta     datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt     time.Time
}

// trackMeta is the JSONB payload describing the track behind a record.
type trackMeta struct {
	FirstFrame int64     `json:"first_frame"`
	LastFrame  int64     `json:"last_frame"`
	Frames     int64     `json:"frames"`
	LastBox    plate.Box `json:"last_box"`
}

// Insert persists one finalized record. Records are append-only; nothing
// in the core ever updates one.
func (r *RecordRepository) Insert(ctx context.Context, rec *plate.Record) error {
	meta, err := json.Marshal(trackMeta{
		FirstFrame: rec.FirstFrame,
		LastFrame:  rec.LastFrame,
		Frames:     rec.Frames,
		LastBox:    rec.LastBox,
	})
	if err != nil {
		return err
	}

	row := PlateRecord{
		RunID:         rec.RunID.String(),
		TrackID:       rec.TrackID,
		Image:         rec.Image,
		PlateText:     rec.Text,
		QualityScore:  rec.Score,
		Confidence:    rec.Confidence,
		RotationAngle: rec.Rotation,
		SpeedMPS:      rec.Speed,
		LowQuality:    rec.LowQuality,
		CapturedAt:    rec.CapturedAt,
		TrackMeta:     meta,
		CreatedAt:     time.Now(),
	}
	return r.db.WithContext(ctx).Create(&row).Error
}

// FindRecords lists persisted records, most recent capture first. Images
// are omitted from listings; fetch them by id.
func (r *RecordRepository) FindRecords(ctx context.Context, text *string, from, to *time.Time, limit, offset int) ([]PlateRecord, error) {
	query := r.db.WithContext(ctx).Model(&PlateRecord{}).Omit("image")

	if text != nil {
		query = query.Where("plate_text = ?", *text)
	}
	if from != nil {
		query = query.Where("captured_at >= ?", *from)
	}
	if to != nil {
		query = query.Where("captured_at <= ?", *to)
	}

	query = query.Order("captured_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var records []PlateRecord
	err := query.Find(&records).Error
	return records, err
}

func (r *RecordRepository) GetByID(ctx context.Context, id int64) (*PlateRecord, error) {
	var rec PlateRecord
	err := r.db.WithContext(ctx).First(&rec, id).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecordRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&PlateRecord{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
