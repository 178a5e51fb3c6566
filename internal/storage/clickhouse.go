package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/lucametrics/attribution-core/internal/models"
)

// ClickHouseArchive implements EventArchive on ClickHouse. Pixel events are
// append-only there; the operational store keeps the mutable copy and the
// archive keeps everything for audit and replay.
type ClickHouseArchive struct {
	conn driver.Conn
}

func NewClickHouseArchive(conn driver.Conn) *ClickHouseArchive {
	return &ClickHouseArchive{conn: conn}
}

func (a *ClickHouseArchive) ArchivePixelEvents(ctx context.Context, events []*models.PixelEvent) error {
	if len(events) == 0 {
		return nil
	}

	batch, err := a.conn.PrepareBatch(ctx, `
		INSERT INTO pixel_events_archive (
			id, organization_id, store_id, event_type, timestamp,
			session_id, platform, click_id, landing_page,
			utm_source, utm_medium, utm_campaign,
			page_url, page_path, page_referrer,
			order_id, order_value, is_new_customer,
			pixel_version, user_agent, ip, geo_country, geo_region, geo_city
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare archive batch: %w", err)
	}

	for _, ev := range events {
		err := batch.Append(
			ev.ID, ev.OrganizationID, ev.StoreID, string(ev.EventType), ev.Timestamp,
			ev.SessionID, ev.Platform, ev.ClickID, ev.LandingPage,
			ev.UTMSource, ev.UTMMedium, ev.UTMCampaign,
			ev.PageURL, ev.PagePath, ev.PageReferrer,
			ev.OrderID, ev.OrderValue, ev.IsNewCustomer,
			ev.PixelVersion, ev.UserAgent, ev.IP, ev.GeoCountry, ev.GeoRegion, ev.GeoCity,
		)
		if err != nil {
			return fmt.Errorf("failed to append event to archive batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send archive batch: %w", err)
	}
	return nil
}
