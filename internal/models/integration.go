package models

import "time"

// ===========================================
// INTEGRATION
// ===========================================

// IntegrationKind distinguishes order sources from ad platforms.
type IntegrationKind string

const (
	IntegrationCommerce IntegrationKind = "commerce"
	IntegrationAds      IntegrationKind = "ads"
)

// Integration is a connected platform account for one organization. Token
// storage and OAuth live outside the core; by the time data reaches this
// service the credentials were already used to fetch it.
type Integration struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organization_id"`
	Platform       string          `json:"platform"` // salla, shopify, zid, meta, google, tiktok, snapchat
	Kind           IntegrationKind `json:"kind"`
	AccountID      string          `json:"account_id,omitempty"`
	IsConnected    bool            `json:"is_connected"`
	LastSyncAt     *time.Time      `json:"last_sync_at,omitempty"`
}

// ===========================================
// CAMPAIGN
// ===========================================

// Campaign is an ad campaign synced from a platform. Unique per
// (organization_id, platform, external_id).
type Campaign struct {
	ExternalID     string    `json:"external_id"`
	OrganizationID string    `json:"organization_id"`
	Platform       string    `json:"platform"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	Spend          float64   `json:"spend"`
	Impressions    int64     `json:"impressions"`
	Clicks         int64     `json:"clicks"`
	Conversions    int64     `json:"conversions"`
	LastSyncAt     time.Time `json:"last_sync_at"`
}

// Key returns the natural upsert key for the campaign.
func (c *Campaign) Key() string {
	return c.OrganizationID + "|" + c.Platform + "|" + c.ExternalID
}

// ===========================================
// SYNC LOG
// ===========================================

// SyncType names what a sync pass fetched.
type SyncType string

const (
	SyncOrders    SyncType = "orders"
	SyncSpend     SyncType = "spend"
	SyncCampaigns SyncType = "campaigns"
	SyncMetrics   SyncType = "metrics"
)

// SyncStatus is the lifecycle state of a sync pass.
type SyncStatus string

const (
	SyncInProgress SyncStatus = "in_progress"
	SyncSuccess    SyncStatus = "success"
	SyncFailed     SyncStatus = "failed"
)

// SyncLog records one orchestrated sync pass for one integration. A
// failed pass must not mark the organization's data fresh.
type SyncLog struct {
	ID               string     `json:"id"`
	OrganizationID   string     `json:"organization_id"`
	IntegrationID    string     `json:"integration_id"`
	Type             SyncType   `json:"type"`
	Status           SyncStatus `json:"status"`
	RecordsProcessed int64      `json:"records_processed"`
	Error            string     `json:"error,omitempty"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// MarkSuccess completes the pass with a processed-record count.
func (l *SyncLog) MarkSuccess(records int64, now time.Time) {
	l.Status = SyncSuccess
	l.RecordsProcessed = records
	l.CompletedAt = &now
}

// MarkFailed completes the pass with an error message.
func (l *SyncLog) MarkFailed(msg string, now time.Time) {
	l.Status = SyncFailed
	l.Error = msg
	l.CompletedAt = &now
}
