package cache

import (
	"context"
	"testing"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/lucametrics/attribution-core/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, maxAge time.Duration) (*Service, *storage.MemoryMetricsRepo) {
	t.Helper()
	repo := storage.NewMemoryMetricsRepo()
	return NewService(repo, nil, maxAge, zap.NewNop(), nil), repo
}

func TestIsStaleWithNoCachedRows(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)

	stale, err := svc.IsStale(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, stale, "an organization with no cached metrics is always stale")
}

func TestIsStaleThresholds(t *testing.T) {
	svc, repo := newTestService(t, 15*time.Minute)

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(context.Background(), &models.DailyMetrics{
		OrganizationID: "org-1",
		Date:           base,
		LastSyncAt:     base,
	}))

	svc.now = func() time.Time { return base.Add(10 * time.Minute) }
	stale, err := svc.IsStale(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, stale)

	svc.now = func() time.Time { return base.Add(16 * time.Minute) }
	stale, err = svc.IsStale(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, stale)
}

func TestSaveDailyRecomputesAndStamps(t *testing.T) {
	svc, repo := newTestService(t, 15*time.Minute)

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	rows := []*models.DailyMetrics{
		{
			OrganizationID: "org-1",
			Date:           time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
			Revenue:        200,
			OrdersCount:    4,
			TotalSpend:     50,
			// Stale derived value that must be recomputed on save.
			ROAS: 99,
		},
	}
	require.NoError(t, svc.SaveDaily(context.Background(), rows))

	got, err := repo.Get(context.Background(), "org-1", rows[0].Date, "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 4.0, got.ROAS)
	assert.Equal(t, 150.0, got.NetProfit)
	assert.Equal(t, 50.0, got.AverageOrderValue)
	assert.Equal(t, now, got.LastSyncAt)
}

func TestSaveDailyIdempotent(t *testing.T) {
	svc, repo := newTestService(t, 15*time.Minute)

	row := func() *models.DailyMetrics {
		return &models.DailyMetrics{
			OrganizationID: "org-1",
			Date:           time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC),
			Revenue:        100,
			OrdersCount:    1,
		}
	}
	require.NoError(t, svc.SaveDaily(context.Background(), []*models.DailyMetrics{row()}))
	require.NoError(t, svc.SaveDaily(context.Background(), []*models.DailyMetrics{row()}))

	assert.Equal(t, 1, repo.Count(), "same day upserted twice stays one row")
}

func TestSaveDailyEmptyBatch(t *testing.T) {
	svc, _ := newTestService(t, 15*time.Minute)
	require.NoError(t, svc.SaveDaily(context.Background(), nil))
}

func TestAge(t *testing.T) {
	svc, repo := newTestService(t, 15*time.Minute)

	_, found, err := svc.Age(context.Background(), "org-1")
	require.NoError(t, err)
	assert.False(t, found)

	base := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(context.Background(), &models.DailyMetrics{
		OrganizationID: "org-1",
		Date:           base,
		LastSyncAt:     base,
	}))

	svc.now = func() time.Time { return base.Add(5 * time.Minute) }
	age, found, err := svc.Age(context.Background(), "org-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5*time.Minute, age)
}
