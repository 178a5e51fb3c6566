package analytics

import (
	"fmt"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
)

// Input is the data an aggregation pass folds over, already restricted to
// the requested date range by the caller.
type Input struct {
	Orders []*models.Order
	Spend  []*models.DailySpend

	// RangeSpendTotals carries platform totals for sources that cannot
	// report per-day spend. Each total is distributed uniformly across
	// the range and the resulting rows are flagged as estimated so
	// downstream consumers can tell estimated from measured spend.
	RangeSpendTotals map[string]float64
}

// Aggregator folds orders and daily spend into per-day financial metrics.
// Pure computation over in-memory collections; persistence is the cache
// layer's job.
type Aggregator struct{}

// NewAggregator creates an aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// BuildDaily produces one DailyMetrics row per calendar day in
// [start, end] inclusive. Days with no orders or spend inside a populated
// range still produce a zeroed row. When the whole range is empty the
// result is nil: no cached data, nothing to show.
func (a *Aggregator) BuildDaily(orgID string, start, end time.Time, in Input) ([]*models.DailyMetrics, error) {
	startDay := models.Day(start)
	endDay := models.Day(end)
	if endDay.Before(startDay) {
		return nil, fmt.Errorf("invalid date range: start %s after end %s",
			startDay.Format("2006-01-02"), endDay.Format("2006-01-02"))
	}

	if len(in.Orders) == 0 && len(in.Spend) == 0 && len(in.RangeSpendTotals) == 0 {
		return nil, nil
	}

	numDays := int(endDay.Sub(startDay)/(24*time.Hour)) + 1

	// Bucket orders by day and spend by day+platform.
	ordersByDay := make(map[string][]*models.Order)
	for _, o := range in.Orders {
		if !o.CountsTowardRevenue() {
			continue
		}
		key := models.DayKey(o.OrderDate)
		ordersByDay[key] = append(ordersByDay[key], o)
	}

	spendByDay := make(map[string]map[string]float64)
	for _, s := range in.Spend {
		key := models.DayKey(s.Date)
		if spendByDay[key] == nil {
			spendByDay[key] = make(map[string]float64)
		}
		spendByDay[key][s.Platform] += s.Spend
	}

	rows := make([]*models.DailyMetrics, 0, numDays)
	for day := startDay; !day.After(endDay); day = day.AddDate(0, 0, 1) {
		key := models.DayKey(day)

		row := &models.DailyMetrics{
			OrganizationID: orgID,
			Date:           day,
		}

		for _, o := range ordersByDay[key] {
			row.Revenue += o.TotalAmount
			row.OrdersCount++
			if o.IsNewCustomer {
				row.NewCustomersCount++
			}
			if o.Source != "" {
				if row.RevenueBySource == nil {
					row.RevenueBySource = make(map[string]float64)
				}
				row.RevenueBySource[string(o.Source)] += o.TotalAmount
			}
		}

		if platforms := spendByDay[key]; len(platforms) > 0 {
			row.SpendByPlatform = make(map[string]float64, len(platforms))
			for platform, spend := range platforms {
				row.SpendByPlatform[platform] = spend
				row.TotalSpend += spend
			}
		}

		// Uniform estimate for platforms with only range-level totals.
		for platform, total := range in.RangeSpendTotals {
			if total <= 0 {
				continue
			}
			daily := total / float64(numDays)
			if row.SpendByPlatform == nil {
				row.SpendByPlatform = make(map[string]float64)
			}
			row.SpendByPlatform[platform] += daily
			row.TotalSpend += daily
			row.SpendEstimated = true
		}

		row.Recompute()
		rows = append(rows, row)
	}

	return rows, nil
}

// Summarize folds per-day rows into a single range aggregate. Base fields
// are summed and the ratios recomputed once from the totals; averaging
// per-day ratios would be wrong because ratios are not additive. Returns
// nil for an empty input.
func (a *Aggregator) Summarize(rows []*models.DailyMetrics) *models.RangeSummary {
	if len(rows) == 0 {
		return nil
	}

	s := &models.RangeSummary{
		OrganizationID: rows[0].OrganizationID,
		StartDate:      rows[0].Date,
		EndDate:        rows[0].Date,
		Days:           len(rows),
	}
	for _, row := range rows {
		if row.Date.Before(s.StartDate) {
			s.StartDate = row.Date
		}
		if row.Date.After(s.EndDate) {
			s.EndDate = row.Date
		}
		s.Revenue += row.Revenue
		s.OrdersCount += row.OrdersCount
		s.NewCustomersCount += row.NewCustomersCount
		s.TotalSpend += row.TotalSpend
		if row.SpendEstimated {
			s.SpendEstimated = true
		}
		for platform, spend := range row.SpendByPlatform {
			if s.SpendByPlatform == nil {
				s.SpendByPlatform = make(map[string]float64)
			}
			s.SpendByPlatform[platform] += spend
		}
		for source, revenue := range row.RevenueBySource {
			if s.RevenueBySource == nil {
				s.RevenueBySource = make(map[string]float64)
			}
			s.RevenueBySource[source] += revenue
		}
	}
	s.Recompute()
	return s
}
