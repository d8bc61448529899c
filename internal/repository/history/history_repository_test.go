package history

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/trialforge/protocol-agent/internal/domain"
)

func newTestRepository(t *testing.T) HistoryRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.GenerationRecord{}))
	return NewHistoryRepository(db)
}

func testRecord(runID string) *domain.GenerationRecord {
	return &domain.GenerationRecord{
		RunID:        runID,
		Requirement:  "CAR-T治疗复发难治性淋巴瘤的I期研究",
		DrugType:     "CAR-T细胞",
		Indication:   "淋巴瘤",
		StudyPhase:   "I期",
		SectionCount: 10,
		TotalLength:  25000,
		QualityScore: 84.5,
	}
}

func TestHistoryRepository_CreateAndFind(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, testRecord("run-1"))
	require.NoError(t, err)
	assert.NotZero(t, created.ID)

	found, err := repo.FindByRunID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "CAR-T细胞", found.DrugType)
	assert.Equal(t, 84.5, found.QualityScore)
}

func TestHistoryRepository_CreateRejectsMissingRunID(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Create(context.Background(), &domain.GenerationRecord{RunID: "   "})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run ID is required")
}

func TestHistoryRepository_CreateRejectsNilRecord(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.Create(context.Background(), nil)
	require.Error(t, err)
}

func TestHistoryRepository_FindByRunIDNotFound(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.FindByRunID(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRecordNotFound)
}

func TestHistoryRepository_FindByRunIDRejectsBlankID(t *testing.T) {
	repo := newTestRepository(t)

	_, err := repo.FindByRunID(context.Background(), "  ")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRecordNotFound)
}

func TestHistoryRepository_ListNewestFirst(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	older := testRecord("run-old")
	older.CreatedAt = time.Now().Add(-time.Hour)
	_, err := repo.Create(ctx, older)
	require.NoError(t, err)

	newer := testRecord("run-new")
	newer.CreatedAt = time.Now()
	_, err = repo.Create(ctx, newer)
	require.NoError(t, err)

	records, err := repo.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "run-new", records[0].RunID)
	assert.Equal(t, "run-old", records[1].RunID)
}

func TestHistoryRepository_ListPagination(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	for _, runID := range []string{"run-1", "run-2", "run-3"} {
		_, err := repo.Create(ctx, testRecord(runID))
		require.NoError(t, err)
	}

	page, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, page, 2)

	rest, err := repo.List(ctx, 2, 2)
	require.NoError(t, err)
	assert.Len(t, rest, 1)
}

func TestHistoryRepository_Count(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	_, err = repo.Create(ctx, testRecord("run-1"))
	require.NoError(t, err)

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}
