package models

import (
	"strings"
	"time"
)

// ===========================================
// ORDER
// ===========================================

// OrderSource identifies the e-commerce platform an order came from.
type OrderSource string

const (
	SourceSalla   OrderSource = "salla"
	SourceShopify OrderSource = "shopify"
	SourceZid     OrderSource = "zid"
)

// ValidOrderSource reports whether s is a known e-commerce source.
func ValidOrderSource(s OrderSource) bool {
	switch s {
	case SourceSalla, SourceShopify, SourceZid:
		return true
	}
	return false
}

// Order is a normalized e-commerce order. One row per
// (organization_id, source, external_id); syncs upsert by that key.
type Order struct {
	ExternalID     string      `json:"external_id"`
	OrganizationID string      `json:"organization_id"`
	StoreID        string      `json:"store_id"`
	Source         OrderSource `json:"source"`
	OrderDate      time.Time   `json:"order_date"`
	TotalAmount    float64     `json:"total_amount"`
	Currency       string      `json:"currency"`
	Status         string      `json:"status"`

	// Customer info
	CustomerID    string `json:"customer_id,omitempty"`
	CustomerEmail string `json:"customer_email,omitempty"`
	IsNewCustomer bool   `json:"is_new_customer"`

	// Opaque platform payload kept for audit.
	RawData map[string]interface{} `json:"raw_data,omitempty"`

	SyncedAt time.Time `json:"synced_at"`
}

// excludedStatuses are order states that carry no revenue. Shopify reports
// "voided"/"refunded", Salla "cancelled"; both spellings of cancelled show
// up in the wild.
var excludedStatuses = map[string]struct{}{
	"cancelled": {},
	"canceled":  {},
	"refunded":  {},
	"voided":    {},
	"failed":    {},
}

// CountsTowardRevenue reports whether the order contributes to revenue
// aggregation.
func (o *Order) CountsTowardRevenue() bool {
	_, excluded := excludedStatuses[NormalizeStatus(o.Status)]
	return !excluded
}

// NormalizeStatus lower-cases and trims a platform status string.
func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// Key returns the natural upsert key for the order.
func (o *Order) Key() string {
	return o.OrganizationID + "|" + string(o.Source) + "|" + o.ExternalID
}
