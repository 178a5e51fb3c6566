package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lucametrics/attribution-core/internal/models"
)

// PostgresEventStore implements EventStore using PostgreSQL.
type PostgresEventStore struct {
	pool *pgxpool.Pool
}

func NewPostgresEventStore(pool *pgxpool.Pool) *PostgresEventStore {
	return &PostgresEventStore{pool: pool}
}

func (s *PostgresEventStore) SaveClick(ctx context.Context, c *models.Click) error {
	if c == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO clicks (
			id, organization_id, store_id, platform, click_id, timestamp,
			landing_page, referrer, utm_source, utm_medium, utm_campaign,
			utm_content, utm_term, session_id, converted, conversion_order_id,
			conversion_timestamp, conversion_value, user_agent, ip
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
		ON CONFLICT (id) DO NOTHING
	`, c.ID, c.OrganizationID, c.StoreID, c.Platform, nullString(c.ClickID), c.Timestamp,
		nullString(c.LandingPage), nullString(c.Referrer), nullString(c.UTMSource), nullString(c.UTMMedium),
		nullString(c.UTMCampaign), nullString(c.UTMContent), nullString(c.UTMTerm), nullString(c.SessionID),
		c.Converted, nullString(c.ConversionOrderID), c.ConversionTimestamp, c.ConversionValue,
		nullString(c.UserAgent), nullString(c.IP))

	if err != nil {
		return fmt.Errorf("failed to save click: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) GetClick(ctx context.Context, id string) (*models.Click, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, organization_id, store_id, platform, click_id, timestamp,
			   landing_page, referrer, utm_source, utm_medium, utm_campaign,
			   utm_content, utm_term, session_id, converted, conversion_order_id,
			   conversion_timestamp, conversion_value, user_agent, ip
		FROM clicks WHERE id = $1
	`, id)

	c, err := scanClick(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get click: %w", err)
	}
	return c, nil
}

func (s *PostgresEventStore) ListClicksInWindow(ctx context.Context, orgID string, start, end time.Time) ([]*models.Click, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, organization_id, store_id, platform, click_id, timestamp,
			   landing_page, referrer, utm_source, utm_medium, utm_campaign,
			   utm_content, utm_term, session_id, converted, conversion_order_id,
			   conversion_timestamp, conversion_value, user_agent, ip
		FROM clicks
		WHERE organization_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}
	defer rows.Close()

	var clicks []*models.Click
	for rows.Next() {
		c, err := scanClick(rows)
		if err != nil {
			return nil, err
		}
		clicks = append(clicks, c)
	}

	return clicks, rows.Err()
}

func (s *PostgresEventStore) MarkClickConverted(ctx context.Context, clickID, orderID string, at time.Time, value float64) error {
	// converted = false in the predicate makes the flip at-most-once;
	// a retried pass matches zero rows.
	_, err := s.pool.Exec(ctx, `
		UPDATE clicks SET
			converted = true,
			conversion_order_id = $2,
			conversion_timestamp = $3,
			conversion_value = $4
		WHERE (id = $1 OR click_id = $1) AND converted = false
	`, clickID, orderID, at, value)

	if err != nil {
		return fmt.Errorf("failed to mark click converted: %w", err)
	}
	return nil
}

func scanClick(row pgx.Row) (*models.Click, error) {
	var c models.Click
	var clickID, landingPage, referrer, utmSource, utmMedium, utmCampaign *string
	var utmContent, utmTerm, sessionID, conversionOrderID, userAgent, ip *string

	err := row.Scan(&c.ID, &c.OrganizationID, &c.StoreID, &c.Platform, &clickID, &c.Timestamp,
		&landingPage, &referrer, &utmSource, &utmMedium, &utmCampaign,
		&utmContent, &utmTerm, &sessionID, &c.Converted, &conversionOrderID,
		&c.ConversionTimestamp, &c.ConversionValue, &userAgent, &ip)
	if err != nil {
		return nil, err
	}

	c.ClickID = deref(clickID)
	c.LandingPage = deref(landingPage)
	c.Referrer = deref(referrer)
	c.UTMSource = deref(utmSource)
	c.UTMMedium = deref(utmMedium)
	c.UTMCampaign = deref(utmCampaign)
	c.UTMContent = deref(utmContent)
	c.UTMTerm = deref(utmTerm)
	c.SessionID = deref(sessionID)
	c.ConversionOrderID = deref(conversionOrderID)
	c.UserAgent = deref(userAgent)
	c.IP = deref(ip)

	return &c, nil
}

func (s *PostgresEventStore) SavePixelEvent(ctx context.Context, ev *models.PixelEvent) error {
	if ev == nil {
		return nil
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO pixel_events (
			id, organization_id, store_id, event_type, timestamp,
			session_id, session_started_at, session_page_views,
			platform, click_id, click_timestamp, landing_page,
			utm_source, utm_medium, utm_campaign,
			page_url, page_path, page_referrer, page_title,
			order_id, order_value, customer_email, is_new_customer,
			pixel_version, user_agent, ip, geo_country, geo_region, geo_city,
			attribution_status, attribution_method, matched_order_id, match_confidence
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
				  $16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29,
				  $30, $31, $32, $33)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, ev.OrganizationID, ev.StoreID, ev.EventType, ev.Timestamp,
		nullString(ev.SessionID), ev.SessionStartedAt, ev.SessionPageViews,
		nullString(ev.Platform), nullString(ev.ClickID), ev.ClickTimestamp, nullString(ev.LandingPage),
		nullString(ev.UTMSource), nullString(ev.UTMMedium), nullString(ev.UTMCampaign),
		nullString(ev.PageURL), nullString(ev.PagePath), nullString(ev.PageReferrer), nullString(ev.PageTitle),
		nullString(ev.OrderID), ev.OrderValue, nullString(ev.CustomerEmail), ev.IsNewCustomer,
		nullString(ev.PixelVersion), nullString(ev.UserAgent), nullString(ev.IP),
		nullString(ev.GeoCountry), nullString(ev.GeoRegion), nullString(ev.GeoCity),
		ev.AttributionStatus, nullString(string(ev.AttributionMethod)), nullString(ev.MatchedOrderID), ev.MatchConfidence)

	if err != nil {
		return fmt.Errorf("failed to save pixel event: %w", err)
	}
	return nil
}

func (s *PostgresEventStore) GetPixelEvent(ctx context.Context, id string) (*models.PixelEvent, error) {
	row := s.pool.QueryRow(ctx, pixelEventSelect+` WHERE id = $1`, id)

	ev, err := scanPixelEvent(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pixel event: %w", err)
	}
	return ev, nil
}

func (s *PostgresEventStore) ListPixelEventsByOrder(ctx context.Context, orgID, orderID string) ([]*models.PixelEvent, error) {
	rows, err := s.pool.Query(ctx, pixelEventSelect+`
		WHERE organization_id = $1 AND order_id = $2
		ORDER BY timestamp
	`, orgID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pixel events by order: %w", err)
	}
	defer rows.Close()

	return collectPixelEvents(rows)
}

func (s *PostgresEventStore) ListPixelEventsInWindow(ctx context.Context, orgID string, start, end time.Time) ([]*models.PixelEvent, error) {
	rows, err := s.pool.Query(ctx, pixelEventSelect+`
		WHERE organization_id = $1 AND timestamp >= $2 AND timestamp <= $3
		ORDER BY timestamp
	`, orgID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to list pixel events: %w", err)
	}
	defer rows.Close()

	return collectPixelEvents(rows)
}

func (s *PostgresEventStore) ListPendingPurchases(ctx context.Context, orgID string) ([]*models.PixelEvent, error) {
	// Empty status counts as pending: events written before ingest
	// started defaulting the status must still get reconciled.
	rows, err := s.pool.Query(ctx, pixelEventSelect+`
		WHERE organization_id = $1 AND event_type = 'purchase' AND attribution_status IN ('', 'pending')
		ORDER BY timestamp
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending purchases: %w", err)
	}
	defer rows.Close()

	return collectPixelEvents(rows)
}

func (s *PostgresEventStore) SetAttributionOutcome(ctx context.Context, eventID string, status models.AttributionStatus, method models.AttributionMethod, orderID string, confidence float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE pixel_events SET
			attribution_status = $2,
			attribution_method = $3,
			matched_order_id = $4,
			match_confidence = $5
		WHERE id = $1
	`, eventID, status, nullString(string(method)), nullString(orderID), confidence)

	if err != nil {
		return fmt.Errorf("failed to set attribution outcome: %w", err)
	}
	return nil
}

const pixelEventSelect = `
	SELECT id, organization_id, store_id, event_type, timestamp,
		   session_id, session_started_at, session_page_views,
		   platform, click_id, click_timestamp, landing_page,
		   utm_source, utm_medium, utm_campaign,
		   page_url, page_path, page_referrer, page_title,
		   order_id, order_value, customer_email, is_new_customer,
		   pixel_version, user_agent, ip, geo_country, geo_region, geo_city,
		   attribution_status, attribution_method, matched_order_id, match_confidence
	FROM pixel_events`

func scanPixelEvent(row pgx.Row) (*models.PixelEvent, error) {
	var ev models.PixelEvent
	var sessionID, platform, clickID, landingPage, utmSource, utmMedium, utmCampaign *string
	var pageURL, pagePath, pageReferrer, pageTitle, orderID, customerEmail *string
	var pixelVersion, userAgent, ip, geoCountry, geoRegion, geoCity *string
	var method, matchedOrderID *string

	err := row.Scan(&ev.ID, &ev.OrganizationID, &ev.StoreID, &ev.EventType, &ev.Timestamp,
		&sessionID, &ev.SessionStartedAt, &ev.SessionPageViews,
		&platform, &clickID, &ev.ClickTimestamp, &landingPage,
		&utmSource, &utmMedium, &utmCampaign,
		&pageURL, &pagePath, &pageReferrer, &pageTitle,
		&orderID, &ev.OrderValue, &customerEmail, &ev.IsNewCustomer,
		&pixelVersion, &userAgent, &ip, &geoCountry, &geoRegion, &geoCity,
		&ev.AttributionStatus, &method, &matchedOrderID, &ev.MatchConfidence)
	if err != nil {
		return nil, err
	}

	ev.SessionID = deref(sessionID)
	ev.Platform = deref(platform)
	ev.ClickID = deref(clickID)
	ev.LandingPage = deref(landingPage)
	ev.UTMSource = deref(utmSource)
	ev.UTMMedium = deref(utmMedium)
	ev.UTMCampaign = deref(utmCampaign)
	ev.PageURL = deref(pageURL)
	ev.PagePath = deref(pagePath)
	ev.PageReferrer = deref(pageReferrer)
	ev.PageTitle = deref(pageTitle)
	ev.OrderID = deref(orderID)
	ev.CustomerEmail = deref(customerEmail)
	ev.PixelVersion = deref(pixelVersion)
	ev.UserAgent = deref(userAgent)
	ev.IP = deref(ip)
	ev.GeoCountry = deref(geoCountry)
	ev.GeoRegion = deref(geoRegion)
	ev.GeoCity = deref(geoCity)
	ev.AttributionMethod = models.AttributionMethod(deref(method))
	ev.MatchedOrderID = deref(matchedOrderID)

	return &ev, nil
}

func collectPixelEvents(rows pgx.Rows) ([]*models.PixelEvent, error) {
	var events []*models.PixelEvent
	for rows.Next() {
		ev, err := scanPixelEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
