package models

import "time"

// ===========================================
// DAILY AD SPEND
// ===========================================

// DailySpend is one day of spend for one ad account on one platform.
// Unique per (organization_id, account_id, date); syncs upsert by that key.
type DailySpend struct {
	OrganizationID string    `json:"organization_id"`
	Date           time.Time `json:"date"` // truncated to calendar day
	Platform       string    `json:"platform"`
	AccountID      string    `json:"account_id"`

	Spend    float64 `json:"spend"`
	Currency string  `json:"currency"`

	Impressions int64 `json:"impressions,omitempty"`
	Clicks      int64 `json:"clicks,omitempty"`
	Conversions int64 `json:"conversions,omitempty"`

	// Estimated marks rows produced by dividing a range total across
	// days because the platform could not report true per-day spend.
	Estimated bool `json:"estimated,omitempty"`

	SyncedAt time.Time `json:"synced_at"`
}

// Key returns the natural upsert key for the spend row.
func (s *DailySpend) Key() string {
	return s.OrganizationID + "|" + s.AccountID + "|" + DayKey(s.Date)
}

// DayKey truncates an instant to its UTC calendar day string.
func DayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// Day truncates an instant to midnight UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
