package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"platetrack/internal/repository"
	"platetrack/internal/track"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
)

// RecordService is the query layer the HTTP API sits on. The pipeline never
// goes through it; records arrive in storage via the async writer.
type RecordService struct {
	repo *repository.RecordRepository
	log  zerolog.Logger
}

func NewRecordService(repo *repository.RecordRepository, log zerolog.Logger) *RecordService {
	return &RecordService{
		repo: repo,
		log:  log,
	}
}

func (s *RecordService) FindRecords(ctx context.Context, textQuery *string, from, to *string, limit, offset int) ([]RecordInfo, error) {
	var text *string
	if textQuery != nil {
		normalized := strings.ToUpper(strings.Join(strings.Fields(*textQuery), ""))
		if normalized != "" {
			text = &normalized
		}
	}

	var fromTime, toTime *time.Time
	if from != nil && *from != "" {
		t, err := time.Parse(time.RFC3339, *from)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid from time format", ErrInvalidInput)
		}
		fromTime = &t
	}
	if to != nil && *to != "" {
		t, err := time.Parse(time.RFC3339, *to)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid to time format", ErrInvalidInput)
		}
		toTime = &t
	}

	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	records, err := s.repo.FindRecords(ctx, text, fromTime, toTime, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to find records: %w", err)
	}

	result := make([]RecordInfo, 0, len(records))
	for _, r := range records {
		info := RecordInfo{
			ID:            r.ID,
			RunID:         r.RunID,
			TrackID:       r.TrackID,
			PlateText:     r.PlateText,
			QualityScore:  r.QualityScore,
			Confidence:    r.Confidence,
			RotationAngle: r.RotationAngle,
			SpeedMPS:      r.SpeedMPS,
			LowQuality:    r.LowQuality,
			CapturedAt:    r.CapturedAt,
		}
		if r.SpeedMPS != nil {
			kmh := track.KMH(*r.SpeedMPS)
			info.SpeedKMH = &kmh
		}
		result = append(result, info)
	}
	return result, nil
}

// GetImage returns the best-sample image bytes for a record.
func (s *RecordService) GetImage(ctx context.Context, id int64) ([]byte, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	rec, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: record %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}
	return rec.Image, nil
}

func (s *RecordService) DeleteRecord(ctx context.Context, id int64) error {
	if id <= 0 {
		return fmt.Errorf("%w: id must be positive", ErrInvalidInput)
	}
	err := s.repo.Delete(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: record %d", ErrNotFound, id)
	}
	if err != nil {
		s.log.Error().Err(err).Int64("record_id", id).Msg("failed to delete record")
		return err
	}
	s.log.Info().Int64("record_id", id).Msg("deleted plate record")
	return nil
}

type RecordInfo struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	TrackID       int64     `json:"track_id"`
	PlateText     *string   `json:"plate_text,omitempty"`
	QualityScore  float64   `json:"quality_score"`
	Confidence    float64   `json:"confidence"`
	RotationAngle float64   `json:"rotation_angle"`
	SpeedMPS      *float64  `json:"speed_mps,omitempty"`
	SpeedKMH      *float64  `json:"speed_kmh,omitempty"`
	LowQuality    bool      `json:"low_quality"`
	CapturedAt    time.Time `json:"captured_at"`
}
