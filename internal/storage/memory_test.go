package storage

import (
	"context"
	"testing"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOrderRepoUpsertReplaces(t *testing.T) {
	repo := NewMemoryOrderRepo()
	ctx := context.Background()

	order := &models.Order{
		ExternalID:     "ord-1",
		OrganizationID: "org-1",
		Source:         models.SourceShopify,
		OrderDate:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
		TotalAmount:    100,
		Status:         "pending",
	}
	require.NoError(t, repo.Upsert(ctx, order))

	order.Status = "completed"
	order.TotalAmount = 120
	require.NoError(t, repo.Upsert(ctx, order))

	assert.Equal(t, 1, repo.Count(), "same natural key replaces, never duplicates")

	got, err := repo.Get(ctx, "org-1", models.SourceShopify, "ord-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, 120.0, got.TotalAmount)
}

func TestMemoryOrderRepoGetMissing(t *testing.T) {
	repo := NewMemoryOrderRepo()

	got, err := repo.Get(context.Background(), "org-1", models.SourceSalla, "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryOrderRepoListByDateRange(t *testing.T) {
	repo := NewMemoryOrderRepo()
	ctx := context.Background()

	for i, d := range []string{"2024-03-01", "2024-03-05", "2024-03-10"} {
		day, _ := time.Parse("2006-01-02", d)
		require.NoError(t, repo.Upsert(ctx, &models.Order{
			ExternalID:     "ord-" + d,
			OrganizationID: "org-1",
			Source:         models.SourceSalla,
			OrderDate:      day,
			TotalAmount:    float64(i),
		}))
	}
	require.NoError(t, repo.Upsert(ctx, &models.Order{
		ExternalID:     "other",
		OrganizationID: "org-2",
		Source:         models.SourceSalla,
		OrderDate:      time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
	}))

	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	got, err := repo.ListByDateRange(ctx, "org-1", start, end)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].OrderDate.Before(got[1].OrderDate))
}

func TestMemorySpendRepoKeyedByAccountAndDay(t *testing.T) {
	repo := NewMemorySpendRepo()
	ctx := context.Background()

	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Upsert(ctx, &models.DailySpend{
		OrganizationID: "org-1", AccountID: "a1", Platform: "meta", Date: day, Spend: 10,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.DailySpend{
		OrganizationID: "org-1", AccountID: "a1", Platform: "meta", Date: day, Spend: 25,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.DailySpend{
		OrganizationID: "org-1", AccountID: "a2", Platform: "google", Date: day, Spend: 5,
	}))

	assert.Equal(t, 2, repo.Count())

	rows, err := repo.ListByDateRange(ctx, "org-1", day, day)
	require.NoError(t, err)
	require.Len(t, rows, 2)
}

func TestMemoryMetricsRepoLatest(t *testing.T) {
	repo := NewMemoryMetricsRepo()
	ctx := context.Background()

	latest, err := repo.Latest(ctx, "org-1")
	require.NoError(t, err)
	assert.Nil(t, latest)

	older := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(time.Hour)
	require.NoError(t, repo.Upsert(ctx, &models.DailyMetrics{
		OrganizationID: "org-1", Date: older, LastSyncAt: older,
	}))
	require.NoError(t, repo.Upsert(ctx, &models.DailyMetrics{
		OrganizationID: "org-1", Date: newer, LastSyncAt: newer,
	}))

	latest, err = repo.Latest(ctx, "org-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer, latest.LastSyncAt)
}

func TestMemoryEventStoreMarkClickConvertedIdempotent(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	click := &models.Click{
		ID:             "c1",
		OrganizationID: "org-1",
		ClickID:        "fbclid-1",
		Platform:       "meta",
		Timestamp:      time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveClick(ctx, click))

	first := time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkClickConverted(ctx, "fbclid-1", "ord-1", first, 100))

	// Second conversion attempt for the same click is a no-op.
	second := first.Add(time.Hour)
	require.NoError(t, store.MarkClickConverted(ctx, "fbclid-1", "ord-2", second, 999))

	got, err := store.GetClick(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Converted)
	assert.Equal(t, "ord-1", got.ConversionOrderID)
	assert.Equal(t, 100.0, got.ConversionValue)
	require.NotNil(t, got.ConversionTimestamp)
	assert.Equal(t, first, *got.ConversionTimestamp)
}

func TestMemoryEventStoreClickWindow(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	base := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	for i, offset := range []time.Duration{-10 * 24 * time.Hour, -3 * 24 * time.Hour, -time.Hour} {
		require.NoError(t, store.SaveClick(ctx, &models.Click{
			ID:             string(rune('a' + i)),
			OrganizationID: "org-1",
			Timestamp:      base.Add(offset),
		}))
	}

	got, err := store.ListClicksInWindow(ctx, "org-1", base.Add(-7*24*time.Hour), base)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestMemoryEventStorePendingPurchases(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	events := []*models.PixelEvent{
		{ID: "e1", OrganizationID: "org-1", EventType: models.EventPurchase, OrderID: "ord-1", AttributionStatus: models.AttributionPending},
		{ID: "e2", OrganizationID: "org-1", EventType: models.EventPurchase, OrderID: "ord-2", AttributionStatus: models.AttributionMatched},
		{ID: "e3", OrganizationID: "org-1", EventType: models.EventPageView},
		{ID: "e4", OrganizationID: "org-2", EventType: models.EventPurchase, AttributionStatus: models.AttributionPending},
		// No status at all still counts as pending, matching the SQL
		// backend's IN ('', 'pending') predicate.
		{ID: "e5", OrganizationID: "org-1", EventType: models.EventPurchase, OrderID: "ord-3"},
	}
	for _, ev := range events {
		require.NoError(t, store.SavePixelEvent(ctx, ev))
	}

	pending, err := store.ListPendingPurchases(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	ids := map[string]bool{}
	for _, ev := range pending {
		ids[ev.ID] = true
	}
	assert.True(t, ids["e1"])
	assert.True(t, ids["e5"])
}

func TestMemoryEventStoreSetAttributionOutcome(t *testing.T) {
	store := NewMemoryEventStore()
	ctx := context.Background()

	ev := &models.PixelEvent{
		ID:                "e1",
		OrganizationID:    "org-1",
		EventType:         models.EventPurchase,
		OrderID:           "ord-1",
		AttributionStatus: models.AttributionPending,
	}
	require.NoError(t, store.SavePixelEvent(ctx, ev))

	err := store.SetAttributionOutcome(ctx, "e1", models.AttributionMatched, models.MethodClickID, "ord-1", 0.95)
	require.NoError(t, err)

	got, err := store.GetPixelEvent(ctx, "e1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.AttributionMatched, got.AttributionStatus)
	assert.Equal(t, models.MethodClickID, got.AttributionMethod)
	assert.Equal(t, 0.95, got.MatchConfidence)

	byOrder, err := store.ListPixelEventsByOrder(ctx, "org-1", "ord-1")
	require.NoError(t, err)
	require.Len(t, byOrder, 1)
}
