package history

import (
	"context"

	"github.com/trialforge/protocol-agent/internal/domain"
)

// HistoryRepository persists finished generation runs.
type HistoryRepository interface {
	Create(ctx context.Context, record *domain.GenerationRecord) (*domain.GenerationRecord, error)
	List(ctx context.Context, limit, offset int) ([]domain.GenerationRecord, error)
	FindByRunID(ctx context.Context, runID string) (*domain.GenerationRecord, error)
	Count(ctx context.Context) (int64, error)
}
