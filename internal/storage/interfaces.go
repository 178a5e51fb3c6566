package storage

import (
	"context"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
)

// =============================================
// ORDER REPOSITORY
// =============================================

// OrderRepo defines operations for normalized order storage. Upsert keys
// on (organization_id, source, external_id): same key replaces the row,
// never duplicates it.
type OrderRepo interface {
	Upsert(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, orgID string, source models.OrderSource, externalID string) (*models.Order, error)
	ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.Order, error)
	DeleteByOrganization(ctx context.Context, orgID string) error
}

// =============================================
// SPEND REPOSITORY
// =============================================

// SpendRepo defines operations for daily ad spend rows, keyed by
// (organization_id, account_id, date).
type SpendRepo interface {
	Upsert(ctx context.Context, s *models.DailySpend) error
	ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.DailySpend, error)
}

// =============================================
// METRICS REPOSITORY
// =============================================

// MetricsRepo defines operations for the daily metrics cache, keyed by
// (organization_id, date, store_id). Upsert replaces the full row.
type MetricsRepo interface {
	Upsert(ctx context.Context, m *models.DailyMetrics) error
	Get(ctx context.Context, orgID string, date time.Time, storeID string) (*models.DailyMetrics, error)
	ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.DailyMetrics, error)
	// Latest returns the most recently synced row for the organization,
	// or nil when the organization has no cached metrics at all.
	Latest(ctx context.Context, orgID string) (*models.DailyMetrics, error)
}

// =============================================
// CAMPAIGN REPOSITORY
// =============================================

// CampaignRepo defines operations for synced ad campaigns, keyed by
// (organization_id, platform, external_id).
type CampaignRepo interface {
	Upsert(ctx context.Context, c *models.Campaign) error
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Campaign, error)
}

// =============================================
// INTEGRATION REPOSITORY
// =============================================

// IntegrationRepo defines read/update operations over connected platform
// accounts. Creation and OAuth flows live outside the core.
type IntegrationRepo interface {
	ListConnected(ctx context.Context) ([]*models.Integration, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*models.Integration, error)
	SetLastSyncAt(ctx context.Context, integrationID string, at time.Time) error
}

// =============================================
// SYNC LOG REPOSITORY
// =============================================

// SyncLogRepo records orchestrated sync passes.
type SyncLogRepo interface {
	Create(ctx context.Context, l *models.SyncLog) error
	Update(ctx context.Context, l *models.SyncLog) error
	ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.SyncLog, error)
}

// =============================================
// EVENT STORE
// =============================================

// EventStore defines operations for first-party tracking data: clicks and
// pixel events scoped to one organization/store.
type EventStore interface {
	// Clicks
	SaveClick(ctx context.Context, c *models.Click) error
	GetClick(ctx context.Context, id string) (*models.Click, error)
	ListClicksInWindow(ctx context.Context, orgID string, start, end time.Time) ([]*models.Click, error)
	// MarkClickConverted flips a click to converted exactly once.
	// Re-invoking for an already-converted click is a no-op, so retried
	// reconciliation passes never double count.
	MarkClickConverted(ctx context.Context, clickID, orderID string, at time.Time, value float64) error

	// Pixel events
	SavePixelEvent(ctx context.Context, ev *models.PixelEvent) error
	GetPixelEvent(ctx context.Context, id string) (*models.PixelEvent, error)
	ListPixelEventsByOrder(ctx context.Context, orgID, orderID string) ([]*models.PixelEvent, error)
	ListPixelEventsInWindow(ctx context.Context, orgID string, start, end time.Time) ([]*models.PixelEvent, error)
	ListPendingPurchases(ctx context.Context, orgID string) ([]*models.PixelEvent, error)
	// SetAttributionOutcome records the reconciliation result for a
	// pixel event: matched with method/confidence, or unmatched.
	SetAttributionOutcome(ctx context.Context, eventID string, status models.AttributionStatus, method models.AttributionMethod, orderID string, confidence float64) error
}

// =============================================
// EVENT ARCHIVE
// =============================================

// EventArchive is an append-only sink for raw pixel events, kept for
// audit and replay. Separate from EventStore because archives are
// write-heavy and never consulted by the attribution path.
type EventArchive interface {
	ArchivePixelEvents(ctx context.Context, events []*models.PixelEvent) error
}
