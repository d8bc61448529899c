package history

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gorm.io/gorm"

	"github.com/trialforge/protocol-agent/internal/domain"
)

var ErrRecordNotFound = errors.New("generation record not found")

const defaultListLimit = 50
const maxListLimit = 200

type gormHistoryRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryRepository {
	return &gormHistoryRepository{db: db}
}

func (r *gormHistoryRepository) Create(ctx context.Context, record *domain.GenerationRecord) (*domain.GenerationRecord, error) {
	if err := r.validateRecord(record); err != nil {
		log.Printf("[HistoryRepository] Validation failed: %v", err)
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		log.Printf("[HistoryRepository] Database error creating record for run %s: %v", record.RunID, err)
		return nil, errors.New("database error creating generation record")
	}
	return record, nil
}

func (r *gormHistoryRepository) List(ctx context.Context, limit, offset int) ([]domain.GenerationRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}

	var records []domain.GenerationRecord
	err := r.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Offset(offset).
		Find(&records).Error
	if err != nil {
		log.Printf("[HistoryRepository] Database error listing records: %v", err)
		return nil, errors.New("database error fetching generation history")
	}
	return records, nil
}

func (r *gormHistoryRepository) FindByRunID(ctx context.Context, runID string) (*domain.GenerationRecord, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, errors.New("invalid run ID")
	}

	var record domain.GenerationRecord
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		log.Printf("[HistoryRepository] Database error finding run %s: %v", runID, err)
		return nil, errors.New("database error fetching generation record")
	}
	return &record, nil
}

func (r *gormHistoryRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.GenerationRecord{}).Count(&count).Error
	if err != nil {
		log.Printf("[HistoryRepository] Database error counting records: %v", err)
		return 0, errors.New("database error counting generation records")
	}
	return count, nil
}

func (r *gormHistoryRepository) validateRecord(record *domain.GenerationRecord) error {
	if record == nil {
		return errors.New("record is nil")
	}
	if strings.TrimSpace(record.RunID) == "" {
		return errors.New("run ID is required")
	}
	if record.SectionCount < 0 {
		return errors.New("section count cannot be negative")
	}
	return nil
}
