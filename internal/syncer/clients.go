package syncer

import (
	"context"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
)

// OrderClient fetches normalized orders from one e-commerce platform. The
// concrete HTTP clients live outside the core; the orchestrator only needs
// already-normalized records.
type OrderClient interface {
	// FetchOrders returns all orders for the integration whose order date
	// falls inside [start, end].
	FetchOrders(ctx context.Context, integration *models.Integration, start, end time.Time) ([]*models.Order, error)
}

// SpendResult is one ad platform fetch. Platforms that cannot break spend
// down per day report a range total instead, which the aggregator spreads
// uniformly and flags as estimated.
type SpendResult struct {
	Daily      []*models.DailySpend
	RangeTotal float64
}

// SpendClient fetches ad spend from one ad platform.
type SpendClient interface {
	FetchSpend(ctx context.Context, integration *models.Integration, start, end time.Time) (*SpendResult, error)
}

// CampaignClient fetches campaign rollups from one ad platform.
type CampaignClient interface {
	FetchCampaigns(ctx context.Context, integration *models.Integration) ([]*models.Campaign, error)
}

// ClientRegistry resolves platform names to fetch clients. Missing
// platforms return nil; the orchestrator skips what it cannot fetch.
type ClientRegistry struct {
	orders    map[string]OrderClient
	spend     map[string]SpendClient
	campaigns map[string]CampaignClient
}

func NewClientRegistry() *ClientRegistry {
	return &ClientRegistry{
		orders:    make(map[string]OrderClient),
		spend:     make(map[string]SpendClient),
		campaigns: make(map[string]CampaignClient),
	}
}

func (r *ClientRegistry) RegisterOrderClient(platform string, c OrderClient) {
	r.orders[platform] = c
}

func (r *ClientRegistry) RegisterSpendClient(platform string, c SpendClient) {
	r.spend[platform] = c
}

func (r *ClientRegistry) RegisterCampaignClient(platform string, c CampaignClient) {
	r.campaigns[platform] = c
}

func (r *ClientRegistry) OrderClient(platform string) OrderClient {
	return r.orders[platform]
}

func (r *ClientRegistry) SpendClient(platform string) SpendClient {
	return r.spend[platform]
}

func (r *ClientRegistry) CampaignClient(platform string) CampaignClient {
	return r.campaigns[platform]
}
