package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lucametrics/attribution-core/internal/analytics"
	"github.com/lucametrics/attribution-core/internal/attribution"
	"github.com/lucametrics/attribution-core/internal/cache"
	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/lucametrics/attribution-core/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubOrderClient struct {
	orders []*models.Order
	err    error
}

func (c *stubOrderClient) FetchOrders(ctx context.Context, in *models.Integration, start, end time.Time) ([]*models.Order, error) {
	return c.orders, c.err
}

type stubSpendClient struct {
	result *SpendResult
	err    error
}

func (c *stubSpendClient) FetchSpend(ctx context.Context, in *models.Integration, start, end time.Time) (*SpendResult, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.result == nil {
		return &SpendResult{}, nil
	}
	return c.result, nil
}

type fixture struct {
	orch    *Orchestrator
	orders  *storage.MemoryOrderRepo
	spend   *storage.MemorySpendRepo
	metrics *storage.MemoryMetricsRepo
	logs    *storage.MemorySyncLogRepo
	events  *storage.MemoryEventStore
	ints    *storage.MemoryIntegrationRepo
}

func newFixture(t *testing.T, registry *ClientRegistry, seed ...*models.Integration) *fixture {
	t.Helper()

	f := &fixture{
		orders:  storage.NewMemoryOrderRepo(),
		spend:   storage.NewMemorySpendRepo(),
		metrics: storage.NewMemoryMetricsRepo(),
		logs:    storage.NewMemorySyncLogRepo(),
		events:  storage.NewMemoryEventStore(),
		ints:    storage.NewMemoryIntegrationRepo(seed...),
	}

	logger := zap.NewNop()
	cacheSvc := cache.NewService(f.metrics, nil, 15*time.Minute, logger, nil)
	engine := attribution.NewEngine(attribution.DefaultConfig())
	reconciler := attribution.NewReconciler(f.events, logger, nil)

	f.orch = NewOrchestrator(
		registry,
		f.orders, f.spend, storage.NewMemoryCampaignRepo(), f.ints, f.logs, f.events,
		analytics.NewAggregator(), cacheSvc, engine, reconciler,
		Options{Lookback: 7 * 24 * time.Hour, Concurrency: 2},
		logger, nil,
	)
	return f
}

func commerceIntegration(id, orgID string) *models.Integration {
	return &models.Integration{
		ID: id, OrganizationID: orgID, Platform: "shopify",
		Kind: models.IntegrationCommerce, IsConnected: true,
	}
}

func adsIntegration(id, orgID string) *models.Integration {
	return &models.Integration{
		ID: id, OrganizationID: orgID, Platform: "meta",
		Kind: models.IntegrationAds, IsConnected: true,
	}
}

func TestSyncOrganizationHappyPath(t *testing.T) {
	now := time.Now().UTC()
	registry := NewClientRegistry()
	registry.RegisterOrderClient("shopify", &stubOrderClient{orders: []*models.Order{
		{
			ExternalID: "ord-1", OrganizationID: "org-1", Source: models.SourceShopify,
			OrderDate: now.Add(-24 * time.Hour), TotalAmount: 250, Status: "completed",
		},
	}})
	registry.RegisterSpendClient("meta", &stubSpendClient{result: &SpendResult{
		Daily: []*models.DailySpend{
			{OrganizationID: "org-1", AccountID: "a1", Platform: "meta", Date: now.Add(-24 * time.Hour), Spend: 50},
		},
	}})

	ins := []*models.Integration{commerceIntegration("i1", "org-1"), adsIntegration("i2", "org-1")}
	f := newFixture(t, registry, ins...)

	require.NoError(t, f.orch.SyncOrganization(context.Background(), "org-1", ins))

	assert.Equal(t, 1, f.orders.Count())
	assert.Equal(t, 1, f.spend.Count())

	rows, err := f.metrics.ListByDateRange(context.Background(), "org-1", now.Add(-7*24*time.Hour), now)
	require.NoError(t, err)
	require.NotEmpty(t, rows)

	var dayRow *models.DailyMetrics
	for _, row := range rows {
		if models.DayKey(row.Date) == models.DayKey(now.Add(-24*time.Hour)) {
			dayRow = row
		}
	}
	require.NotNil(t, dayRow)
	assert.Equal(t, 250.0, dayRow.Revenue)
	assert.Equal(t, 50.0, dayRow.TotalSpend)
	assert.Equal(t, 5.0, dayRow.ROAS)
	assert.False(t, dayRow.LastSyncAt.IsZero())

	logs, err := f.logs.ListByOrganization(context.Background(), "org-1", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	for _, l := range logs {
		assert.Equal(t, models.SyncSuccess, l.Status)
	}
}

func TestSyncOrganizationFailureLeavesCacheStale(t *testing.T) {
	registry := NewClientRegistry()
	registry.RegisterOrderClient("shopify", &stubOrderClient{err: errors.New("shopify is down")})

	ins := []*models.Integration{commerceIntegration("i1", "org-1")}
	f := newFixture(t, registry, ins...)

	err := f.orch.SyncOrganization(context.Background(), "org-1", ins)
	require.Error(t, err)

	latest, lerr := f.metrics.Latest(context.Background(), "org-1")
	require.NoError(t, lerr)
	assert.Nil(t, latest, "a failed pass must not produce fresh cached metrics")

	logs, err2 := f.logs.ListByOrganization(context.Background(), "org-1", 10)
	require.NoError(t, err2)
	require.Len(t, logs, 1)
	assert.Equal(t, models.SyncFailed, logs[0].Status)
	assert.Contains(t, logs[0].Error, "shopify is down")
}

func TestSyncOrganizationRunsAttribution(t *testing.T) {
	now := time.Now().UTC()
	registry := NewClientRegistry()
	registry.RegisterOrderClient("shopify", &stubOrderClient{})

	ins := []*models.Integration{commerceIntegration("i1", "org-1")}
	f := newFixture(t, registry, ins...)

	clickAt := now.Add(-2 * time.Hour)
	require.NoError(t, f.events.SavePixelEvent(context.Background(), &models.PixelEvent{
		ID:                "e1",
		OrganizationID:    "org-1",
		EventType:         models.EventPurchase,
		OrderID:           "ord-1",
		Platform:          "meta",
		ClickID:           "fbclid-7",
		ClickTimestamp:    &clickAt,
		Timestamp:         now.Add(-time.Hour),
		AttributionStatus: models.AttributionPending,
	}))
	require.NoError(t, f.events.SaveClick(context.Background(), &models.Click{
		ID: "c1", OrganizationID: "org-1", ClickID: "fbclid-7", Platform: "meta", Timestamp: clickAt,
	}))

	require.NoError(t, f.orch.SyncOrganization(context.Background(), "org-1", ins))

	ev, err := f.events.GetPixelEvent(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, models.AttributionMatched, ev.AttributionStatus)
	assert.Equal(t, models.MethodClickID, ev.AttributionMethod)
	assert.Equal(t, 0.95, ev.MatchConfidence)

	click, err := f.events.GetClick(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, click.Converted)
	assert.Equal(t, "ord-1", click.ConversionOrderID)
}

func TestSyncOrganizationAttributesOrdersFromClickWindow(t *testing.T) {
	now := time.Now().UTC()
	orderDate := now.Add(-24 * time.Hour)
	registry := NewClientRegistry()
	registry.RegisterOrderClient("shopify", &stubOrderClient{orders: []*models.Order{
		{
			ExternalID: "ord-1", OrganizationID: "org-1", Source: models.SourceShopify,
			OrderDate: orderDate, TotalAmount: 420, Status: "completed",
		},
	}})

	ins := []*models.Integration{commerceIntegration("i1", "org-1")}
	f := newFixture(t, registry, ins...)

	// Two in-window candidates; last-click credit goes to the newer one.
	require.NoError(t, f.events.SaveClick(context.Background(), &models.Click{
		ID: "c-old", OrganizationID: "org-1", ClickID: "gclid-1", Platform: "google",
		Timestamp: orderDate.Add(-5 * time.Hour),
	}))
	require.NoError(t, f.events.SaveClick(context.Background(), &models.Click{
		ID: "c-new", OrganizationID: "org-1", ClickID: "gclid-2", Platform: "google",
		Timestamp: orderDate.Add(-3 * time.Hour),
	}))

	require.NoError(t, f.orch.SyncOrganization(context.Background(), "org-1", ins))

	newer, err := f.events.GetClick(context.Background(), "c-new")
	require.NoError(t, err)
	assert.True(t, newer.Converted, "synced orders attribute through the click window")
	assert.Equal(t, "ord-1", newer.ConversionOrderID)
	assert.Equal(t, 420.0, newer.ConversionValue)

	// A second pass must not hand the same order to the remaining click.
	require.NoError(t, f.orch.SyncOrganization(context.Background(), "org-1", ins))

	older, err := f.events.GetClick(context.Background(), "c-old")
	require.NoError(t, err)
	assert.False(t, older.Converted)
}

func TestSyncAllIsolatesFailingOrganization(t *testing.T) {
	now := time.Now().UTC()
	registry := NewClientRegistry()
	registry.RegisterOrderClient("shopify", &stubOrderClient{orders: []*models.Order{
		{
			ExternalID: "ord-1", OrganizationID: "org-good", Source: models.SourceShopify,
			OrderDate: now.Add(-24 * time.Hour), TotalAmount: 100, Status: "completed",
		},
	}})
	registry.RegisterSpendClient("meta", &stubSpendClient{err: errors.New("token expired")})

	good := commerceIntegration("i1", "org-good")
	bad := adsIntegration("i2", "org-bad")
	f := newFixture(t, registry, good, bad)

	require.NoError(t, f.orch.SyncAll(context.Background()))

	goodRows, err := f.metrics.Latest(context.Background(), "org-good")
	require.NoError(t, err)
	assert.NotNil(t, goodRows, "healthy organization still syncs")

	badRows, err := f.metrics.Latest(context.Background(), "org-bad")
	require.NoError(t, err)
	assert.Nil(t, badRows)
}

func TestSyncOrganizationEstimatedSpend(t *testing.T) {
	now := time.Now().UTC()
	registry := NewClientRegistry()
	registry.RegisterOrderClient("shopify", &stubOrderClient{orders: []*models.Order{
		{
			ExternalID: "ord-1", OrganizationID: "org-1", Source: models.SourceShopify,
			OrderDate: now.Add(-24 * time.Hour), TotalAmount: 100, Status: "completed",
		},
	}})
	registry.RegisterSpendClient("meta", &stubSpendClient{result: &SpendResult{RangeTotal: 80}})

	ins := []*models.Integration{commerceIntegration("i1", "org-1"), adsIntegration("i2", "org-1")}
	f := newFixture(t, registry, ins...)

	require.NoError(t, f.orch.SyncOrganization(context.Background(), "org-1", ins))

	rows, err := f.metrics.ListByDateRange(context.Background(), "org-1", now.Add(-7*24*time.Hour), now)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		assert.True(t, row.SpendEstimated)
		assert.Greater(t, row.SpendByPlatform["meta"], 0.0)
	}
}
