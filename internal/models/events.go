package models

import "time"

// ===========================================
// CLICK TRACKING
// ===========================================

// Click is an ad click captured for attribution-window matching.
// fbclid/gclid/ttclid/sccid style identifiers land in ClickID.
type Click struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	StoreID        string    `json:"store_id"`
	Platform       string    `json:"platform"` // meta, snapchat, tiktok, google
	ClickID        string    `json:"click_id"`
	Timestamp      time.Time `json:"timestamp"`
	LandingPage    string    `json:"landing_page,omitempty"`
	Referrer       string    `json:"referrer,omitempty"`

	// UTM parameters
	UTMSource   string `json:"utm_source,omitempty"`
	UTMMedium   string `json:"utm_medium,omitempty"`
	UTMCampaign string `json:"utm_campaign,omitempty"`
	UTMContent  string `json:"utm_content,omitempty"`
	UTMTerm     string `json:"utm_term,omitempty"`

	SessionID string `json:"session_id,omitempty"`

	// Conversion state. A click converts at most once; MarkClickConverted
	// on the event store is the single mutation point.
	Converted           bool       `json:"converted"`
	ConversionOrderID   string     `json:"conversion_order_id,omitempty"`
	ConversionTimestamp *time.Time `json:"conversion_timestamp,omitempty"`
	ConversionValue     float64    `json:"conversion_value,omitempty"`

	UserAgent string `json:"user_agent,omitempty"`
	IP        string `json:"ip,omitempty"`
}

// ===========================================
// PIXEL EVENT (first-party tracking)
// ===========================================

// PixelEventType enumerates browser pixel event kinds.
type PixelEventType string

const (
	EventPageView      PixelEventType = "page_view"
	EventAddToCart     PixelEventType = "add_to_cart"
	EventBeginCheckout PixelEventType = "begin_checkout"
	EventPurchase      PixelEventType = "purchase"
)

// AttributionStatus tracks whether a purchase event has been reconciled.
// Pending means not yet attempted; unmatched means the engine was
// exhausted without a match.
type AttributionStatus string

const (
	AttributionPending   AttributionStatus = "pending"
	AttributionMatched   AttributionStatus = "matched"
	AttributionUnmatched AttributionStatus = "unmatched"
)

// PixelEvent is a browser-originated first-party tracking event. The core
// consumes these as already-parsed records; the capture script is an
// external collaborator.
type PixelEvent struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organization_id"`
	StoreID        string         `json:"store_id"`
	EventType      PixelEventType `json:"event_type"`
	Timestamp      time.Time      `json:"timestamp"`

	// Session data
	SessionID        string     `json:"session_id,omitempty"`
	SessionStartedAt *time.Time `json:"session_started_at,omitempty"`
	SessionPageViews int        `json:"session_page_views,omitempty"`

	// Attribution data carried in from click tracking
	Platform       string     `json:"platform,omitempty"`
	ClickID        string     `json:"click_id,omitempty"`
	ClickTimestamp *time.Time `json:"click_timestamp,omitempty"`
	LandingPage    string     `json:"landing_page,omitempty"`
	UTMSource      string     `json:"utm_source,omitempty"`
	UTMMedium      string     `json:"utm_medium,omitempty"`
	UTMCampaign    string     `json:"utm_campaign,omitempty"`

	// Page data
	PageURL      string `json:"page_url,omitempty"`
	PagePath     string `json:"page_path,omitempty"`
	PageReferrer string `json:"page_referrer,omitempty"`
	PageTitle    string `json:"page_title,omitempty"`

	// Purchase fields
	OrderID       string  `json:"order_id,omitempty"`
	OrderValue    float64 `json:"order_value,omitempty"`
	CustomerEmail string  `json:"customer_email,omitempty"`
	IsNewCustomer bool    `json:"is_new_customer,omitempty"`

	// Metadata
	PixelVersion string `json:"pixel_version,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	IP           string `json:"ip,omitempty"`
	GeoCountry   string `json:"geo_country,omitempty"`
	GeoRegion    string `json:"geo_region,omitempty"`
	GeoCity      string `json:"geo_city,omitempty"`

	// Attribution outcome
	AttributionStatus AttributionStatus `json:"attribution_status"`
	AttributionMethod AttributionMethod `json:"attribution_method,omitempty"`
	MatchedOrderID    string            `json:"matched_order_id,omitempty"`
	MatchConfidence   float64           `json:"match_confidence,omitempty"`
}

// IsPurchase reports whether the event is a purchase signal.
func (e *PixelEvent) IsPurchase() bool {
	return e.EventType == EventPurchase
}

// ===========================================
// ATTRIBUTION MATCH
// ===========================================

// AttributionMethod names the rule that produced a match, in descending
// confidence order.
type AttributionMethod string

const (
	MethodClickID   AttributionMethod = "click_id"
	MethodUTM       AttributionMethod = "utm"
	MethodReferrer  AttributionMethod = "referrer"
	MethodTimeDecay AttributionMethod = "time_decay"
)

// AttributionWindow names a maximum click-to-conversion delay.
type AttributionWindow string

const (
	Window1DClick  AttributionWindow = "1d_click"
	Window7DClick  AttributionWindow = "7d_click"
	Window28DClick AttributionWindow = "28d_click"
	Window1DView   AttributionWindow = "1d_view"
	Window7DView   AttributionWindow = "7d_view"
)

// Duration returns the window length. Unknown windows fall back to the
// 7-day click window.
func (w AttributionWindow) Duration() time.Duration {
	switch w {
	case Window1DClick, Window1DView:
		return 24 * time.Hour
	case Window7DClick, Window7DView:
		return 7 * 24 * time.Hour
	case Window28DClick:
		return 28 * 24 * time.Hour
	}
	return 7 * 24 * time.Hour
}

// AttributionModel selects which candidate click gets credit.
type AttributionModel string

const (
	ModelLastClick  AttributionModel = "last_click"
	ModelFirstClick AttributionModel = "first_click"
	// Reserved policy names; both currently evaluate with the
	// time-decay confidence formula over the last-click selection.
	ModelLinear    AttributionModel = "linear"
	ModelTimeDecay AttributionModel = "time_decay"
)

// AttributionMatch is the engine output for one purchase signal. It is
// not persisted directly; the reconciler applies it to the pixel event
// and click state.
type AttributionMatch struct {
	OrderID             string            `json:"order_id"`
	Platform            string            `json:"platform"`
	ClickID             string            `json:"click_id,omitempty"`
	ClickTimestamp      time.Time         `json:"click_timestamp"`
	ConversionTimestamp time.Time         `json:"conversion_timestamp"`
	Window              AttributionWindow `json:"attribution_window"`
	Confidence          float64           `json:"confidence"`
	Method              AttributionMethod `json:"attribution_method"`
}
