package models

import "time"

// ===========================================
// DAILY METRICS (aggregation cache entity)
// ===========================================

// DailyMetrics is the cached per-day financial rollup for an organization.
// One row per (organization_id, date, store_id); every upsert replaces the
// whole row so it always reflects the full current order/spend set.
type DailyMetrics struct {
	OrganizationID string    `json:"organization_id"`
	Date           time.Time `json:"date"`
	StoreID        string    `json:"store_id,omitempty"`

	// Base fields (from e-commerce orders)
	Revenue           float64            `json:"revenue"`
	RevenueBySource   map[string]float64 `json:"revenue_by_source,omitempty"`
	OrdersCount       int64              `json:"orders_count"`
	AverageOrderValue float64            `json:"average_order_value"`
	NewCustomersCount int64              `json:"new_customers_count"`

	// Base fields (from ad platforms)
	TotalSpend      float64            `json:"total_spend"`
	SpendByPlatform map[string]float64 `json:"spend_by_platform,omitempty"`

	// SpendEstimated is set when any of the day's spend came from a
	// range-average estimate rather than measured per-day data.
	SpendEstimated bool `json:"spend_estimated,omitempty"`

	// Derived fields. Pure functions of the base fields above; never
	// patched independently. Recompute() refreshes all five.
	NetProfit float64 `json:"net_profit"`
	ROAS      float64 `json:"roas"`
	MER       float64 `json:"mer"`
	NetMargin float64 `json:"net_margin"`
	NCPA      float64 `json:"ncpa"`

	LastSyncAt time.Time `json:"last_sync_at"`
}

// Recompute derives net profit, ROAS, MER, net margin and NCPA from the
// base fields. Division guards return 0, never NaN.
func (m *DailyMetrics) Recompute() {
	m.AverageOrderValue = 0
	if m.OrdersCount > 0 {
		m.AverageOrderValue = m.Revenue / float64(m.OrdersCount)
	}
	m.NetProfit = m.Revenue - m.TotalSpend
	m.ROAS = 0
	if m.TotalSpend > 0 {
		m.ROAS = m.Revenue / m.TotalSpend
	}
	m.MER = 0
	m.NetMargin = 0
	if m.Revenue > 0 {
		m.MER = m.TotalSpend / m.Revenue * 100
		m.NetMargin = m.NetProfit / m.Revenue * 100
	}
	m.NCPA = 0
	if m.NewCustomersCount > 0 {
		m.NCPA = m.TotalSpend / float64(m.NewCustomersCount)
	}
}

// Key returns the natural upsert key for the metrics row.
func (m *DailyMetrics) Key() string {
	return m.OrganizationID + "|" + DayKey(m.Date) + "|" + m.StoreID
}

// ===========================================
// RANGE SUMMARY
// ===========================================

// RangeSummary aggregates a date range into a single set of totals with
// the ratios recomputed from those totals. Ratios are not additive, so a
// summary is never built by averaging per-day ratios.
type RangeSummary struct {
	OrganizationID string    `json:"organization_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	Days           int       `json:"days"`

	Revenue           float64            `json:"revenue"`
	RevenueBySource   map[string]float64 `json:"revenue_by_source,omitempty"`
	OrdersCount       int64              `json:"orders_count"`
	AverageOrderValue float64            `json:"average_order_value"`
	NewCustomersCount int64              `json:"new_customers_count"`
	TotalSpend        float64            `json:"total_spend"`
	SpendByPlatform   map[string]float64 `json:"spend_by_platform,omitempty"`
	SpendEstimated    bool               `json:"spend_estimated,omitempty"`

	NetProfit float64 `json:"net_profit"`
	ROAS      float64 `json:"roas"`
	MER       float64 `json:"mer"`
	NetMargin float64 `json:"net_margin"`
	NCPA      float64 `json:"ncpa"`
}

// Recompute derives the summary ratios from the summed totals.
func (s *RangeSummary) Recompute() {
	s.AverageOrderValue = 0
	if s.OrdersCount > 0 {
		s.AverageOrderValue = s.Revenue / float64(s.OrdersCount)
	}
	s.NetProfit = s.Revenue - s.TotalSpend
	s.ROAS = 0
	if s.TotalSpend > 0 {
		s.ROAS = s.Revenue / s.TotalSpend
	}
	s.MER = 0
	s.NetMargin = 0
	if s.Revenue > 0 {
		s.MER = s.TotalSpend / s.Revenue * 100
		s.NetMargin = s.NetProfit / s.Revenue * 100
	}
	s.NCPA = 0
	if s.NewCustomersCount > 0 {
		s.NCPA = s.TotalSpend / float64(s.NewCustomersCount)
	}
}
