package analytics

import (
	"testing"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestBuildDailyBucketsByDay(t *testing.T) {
	agg := NewAggregator()

	in := Input{
		Orders: []*models.Order{
			{ExternalID: "o1", Source: models.SourceShopify, OrderDate: day("2024-03-01").Add(9 * time.Hour), TotalAmount: 100, Status: "completed", IsNewCustomer: true},
			{ExternalID: "o2", Source: models.SourceSalla, OrderDate: day("2024-03-01").Add(20 * time.Hour), TotalAmount: 50, Status: "completed"},
			{ExternalID: "o3", Source: models.SourceShopify, OrderDate: day("2024-03-03").Add(time.Hour), TotalAmount: 200, Status: "completed"},
		},
		Spend: []*models.DailySpend{
			{Date: day("2024-03-01"), Platform: "meta", AccountID: "a1", Spend: 30},
			{Date: day("2024-03-01"), Platform: "google", AccountID: "a2", Spend: 20},
			{Date: day("2024-03-02"), Platform: "meta", AccountID: "a1", Spend: 10},
		},
	}

	rows, err := agg.BuildDaily("org-1", day("2024-03-01"), day("2024-03-03"), in)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	d1 := rows[0]
	assert.Equal(t, 150.0, d1.Revenue)
	assert.Equal(t, 100.0, d1.RevenueBySource["shopify"])
	assert.Equal(t, 50.0, d1.RevenueBySource["salla"])
	assert.Equal(t, int64(2), d1.OrdersCount)
	assert.Equal(t, int64(1), d1.NewCustomersCount)
	assert.Equal(t, 50.0, d1.TotalSpend)
	assert.Equal(t, 30.0, d1.SpendByPlatform["meta"])
	assert.Equal(t, 3.0, d1.ROAS)
	assert.Equal(t, 100.0, d1.NetProfit)
	assert.Equal(t, 75.0, d1.AverageOrderValue)

	// Sparse day inside a populated range still gets a row.
	d2 := rows[1]
	assert.Equal(t, 0.0, d2.Revenue)
	assert.Equal(t, 10.0, d2.TotalSpend)
	assert.Equal(t, 0.0, d2.ROAS)

	d3 := rows[2]
	assert.Equal(t, 200.0, d3.Revenue)
	assert.Equal(t, 0.0, d3.TotalSpend)
}

func TestBuildDailyZeroSpendGuards(t *testing.T) {
	agg := NewAggregator()

	in := Input{
		Orders: []*models.Order{
			{ExternalID: "o1", OrderDate: day("2024-03-01"), TotalAmount: 10000, Status: "completed"},
		},
	}

	rows, err := agg.BuildDaily("org-1", day("2024-03-01"), day("2024-03-01"), in)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, 10000.0, row.Revenue)
	assert.Equal(t, 0.0, row.ROAS)
	assert.Equal(t, 0.0, row.MER)
	assert.Equal(t, 0.0, row.NCPA)
	assert.Equal(t, 10000.0, row.NetProfit)
	assert.Equal(t, 100.0, row.NetMargin)
}

func TestBuildDailyExcludedStatuses(t *testing.T) {
	agg := NewAggregator()

	in := Input{
		Orders: []*models.Order{
			{ExternalID: "o1", OrderDate: day("2024-03-01"), TotalAmount: 100, Status: "completed"},
			{ExternalID: "o2", OrderDate: day("2024-03-01"), TotalAmount: 40, Status: "cancelled"},
			{ExternalID: "o3", OrderDate: day("2024-03-01"), TotalAmount: 40, Status: "Refunded"},
			{ExternalID: "o4", OrderDate: day("2024-03-01"), TotalAmount: 40, Status: "voided"},
			{ExternalID: "o5", OrderDate: day("2024-03-01"), TotalAmount: 40, Status: "failed"},
		},
	}

	rows, err := agg.BuildDaily("org-1", day("2024-03-01"), day("2024-03-01"), in)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 100.0, rows[0].Revenue)
	assert.Equal(t, int64(1), rows[0].OrdersCount)
}

func TestBuildDailyEstimatedSpend(t *testing.T) {
	agg := NewAggregator()

	in := Input{
		Orders: []*models.Order{
			{ExternalID: "o1", OrderDate: day("2024-03-02"), TotalAmount: 100, Status: "completed"},
		},
		RangeSpendTotals: map[string]float64{"snapchat": 120},
	}

	rows, err := agg.BuildDaily("org-1", day("2024-03-01"), day("2024-03-04"), in)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	for _, row := range rows {
		assert.True(t, row.SpendEstimated)
		assert.InDelta(t, 30.0, row.TotalSpend, 1e-9)
		assert.InDelta(t, 30.0, row.SpendByPlatform["snapchat"], 1e-9)
	}
}

func TestBuildDailyReversedRange(t *testing.T) {
	agg := NewAggregator()

	_, err := agg.BuildDaily("org-1", day("2024-03-05"), day("2024-03-01"), Input{
		Orders: []*models.Order{{ExternalID: "o1", OrderDate: day("2024-03-03"), TotalAmount: 1}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date range")
}

func TestBuildDailyEmptyInput(t *testing.T) {
	agg := NewAggregator()

	rows, err := agg.BuildDaily("org-1", day("2024-03-01"), day("2024-03-05"), Input{})
	require.NoError(t, err)
	assert.Nil(t, rows)
}

func TestSummarizeRecomputesRatiosFromTotals(t *testing.T) {
	agg := NewAggregator()

	in := Input{
		Orders: []*models.Order{
			{ExternalID: "o1", Source: models.SourceShopify, OrderDate: day("2024-03-01"), TotalAmount: 100, Status: "completed"},
			{ExternalID: "o2", Source: models.SourceShopify, OrderDate: day("2024-03-02"), TotalAmount: 300, Status: "completed"},
		},
		Spend: []*models.DailySpend{
			{Date: day("2024-03-01"), Platform: "meta", AccountID: "a1", Spend: 100},
			{Date: day("2024-03-02"), Platform: "meta", AccountID: "a1", Spend: 50},
		},
	}

	rows, err := agg.BuildDaily("org-1", day("2024-03-01"), day("2024-03-02"), in)
	require.NoError(t, err)

	s := agg.Summarize(rows)
	require.NotNil(t, s)
	assert.Equal(t, 400.0, s.Revenue)
	assert.Equal(t, 400.0, s.RevenueBySource["shopify"])
	assert.Equal(t, 150.0, s.TotalSpend)

	// Range ROAS comes from the totals, not the average of per-day
	// ratios: 400/150, not mean(1.0, 6.0).
	assert.InDelta(t, 400.0/150.0, s.ROAS, 1e-9)
	dailyAvg := (rows[0].ROAS + rows[1].ROAS) / 2
	assert.NotEqual(t, dailyAvg, s.ROAS)

	assert.InDelta(t, 150.0/400.0*100, s.MER, 1e-9)
	assert.Equal(t, 2, s.Days)
	assert.Equal(t, rows[0].Date, s.StartDate)
	assert.Equal(t, rows[1].Date, s.EndDate)
}

func TestSummarizeEmpty(t *testing.T) {
	agg := NewAggregator()
	assert.Nil(t, agg.Summarize(nil))
}
