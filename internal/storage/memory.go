package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
)

// =============================================
// IN-MEMORY ORDER REPO
// =============================================

// MemoryOrderRepo keeps orders in a map keyed by their natural key.
type MemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[string]*models.Order
}

func NewMemoryOrderRepo() *MemoryOrderRepo {
	return &MemoryOrderRepo{orders: make(map[string]*models.Order)}
}

func (r *MemoryOrderRepo) Upsert(ctx context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *o
	r.orders[o.Key()] = &cp
	return nil
}

func (r *MemoryOrderRepo) Get(ctx context.Context, orgID string, source models.OrderSource, externalID string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[orgID+"|"+string(source)+"|"+externalID]
	if !ok {
		return nil, nil
	}
	cp := *o
	return &cp, nil
}

func (r *MemoryOrderRepo) ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Order
	for _, o := range r.orders {
		if o.OrganizationID != orgID {
			continue
		}
		if o.OrderDate.Before(start) || o.OrderDate.After(end) {
			continue
		}
		cp := *o
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].OrderDate.Before(result[j].OrderDate) })
	return result, nil
}

func (r *MemoryOrderRepo) DeleteByOrganization(ctx context.Context, orgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, o := range r.orders {
		if o.OrganizationID == orgID {
			delete(r.orders, key)
		}
	}
	return nil
}

// Count returns the number of stored orders.
func (r *MemoryOrderRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.orders)
}

// =============================================
// IN-MEMORY SPEND REPO
// =============================================

type MemorySpendRepo struct {
	mu   sync.RWMutex
	rows map[string]*models.DailySpend
}

func NewMemorySpendRepo() *MemorySpendRepo {
	return &MemorySpendRepo{rows: make(map[string]*models.DailySpend)}
}

func (r *MemorySpendRepo) Upsert(ctx context.Context, s *models.DailySpend) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.rows[s.Key()] = &cp
	return nil
}

func (r *MemorySpendRepo) ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.DailySpend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	startDay := models.Day(start)
	endDay := models.Day(end)

	var result []*models.DailySpend
	for _, s := range r.rows {
		if s.OrganizationID != orgID {
			continue
		}
		day := models.Day(s.Date)
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		cp := *s
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

// Count returns the number of stored spend rows.
func (r *MemorySpendRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// =============================================
// IN-MEMORY METRICS REPO
// =============================================

type MemoryMetricsRepo struct {
	mu   sync.RWMutex
	rows map[string]*models.DailyMetrics
}

func NewMemoryMetricsRepo() *MemoryMetricsRepo {
	return &MemoryMetricsRepo{rows: make(map[string]*models.DailyMetrics)}
}

func (r *MemoryMetricsRepo) Upsert(ctx context.Context, m *models.DailyMetrics) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *m
	if m.SpendByPlatform != nil {
		cp.SpendByPlatform = make(map[string]float64, len(m.SpendByPlatform))
		for k, v := range m.SpendByPlatform {
			cp.SpendByPlatform[k] = v
		}
	}
	if m.RevenueBySource != nil {
		cp.RevenueBySource = make(map[string]float64, len(m.RevenueBySource))
		for k, v := range m.RevenueBySource {
			cp.RevenueBySource[k] = v
		}
	}
	r.rows[m.Key()] = &cp
	return nil
}

func (r *MemoryMetricsRepo) Get(ctx context.Context, orgID string, date time.Time, storeID string) (*models.DailyMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.rows[orgID+"|"+models.DayKey(date)+"|"+storeID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (r *MemoryMetricsRepo) ListByDateRange(ctx context.Context, orgID string, start, end time.Time) ([]*models.DailyMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	startDay := models.Day(start)
	endDay := models.Day(end)

	var result []*models.DailyMetrics
	for _, m := range r.rows {
		if m.OrganizationID != orgID {
			continue
		}
		day := models.Day(m.Date)
		if day.Before(startDay) || day.After(endDay) {
			continue
		}
		cp := *m
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Date.Before(result[j].Date) })
	return result, nil
}

func (r *MemoryMetricsRepo) Latest(ctx context.Context, orgID string) (*models.DailyMetrics, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.DailyMetrics
	for _, m := range r.rows {
		if m.OrganizationID != orgID {
			continue
		}
		if latest == nil || m.LastSyncAt.After(latest.LastSyncAt) {
			latest = m
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// Count returns the number of stored metrics rows.
func (r *MemoryMetricsRepo) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rows)
}

// =============================================
// IN-MEMORY CAMPAIGN REPO
// =============================================

type MemoryCampaignRepo struct {
	mu        sync.RWMutex
	campaigns map[string]*models.Campaign
}

func NewMemoryCampaignRepo() *MemoryCampaignRepo {
	return &MemoryCampaignRepo{campaigns: make(map[string]*models.Campaign)}
}

func (r *MemoryCampaignRepo) Upsert(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *c
	r.campaigns[c.Key()] = &cp
	return nil
}

func (r *MemoryCampaignRepo) ListByOrganization(ctx context.Context, orgID string) ([]*models.Campaign, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Campaign
	for _, c := range r.campaigns {
		if c.OrganizationID == orgID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExternalID < result[j].ExternalID })
	return result, nil
}

// =============================================
// IN-MEMORY INTEGRATION REPO
// =============================================

type MemoryIntegrationRepo struct {
	mu           sync.RWMutex
	integrations map[string]*models.Integration
}

func NewMemoryIntegrationRepo(seed ...*models.Integration) *MemoryIntegrationRepo {
	r := &MemoryIntegrationRepo{integrations: make(map[string]*models.Integration)}
	for _, in := range seed {
		cp := *in
		r.integrations[in.ID] = &cp
	}
	return r
}

func (r *MemoryIntegrationRepo) ListConnected(ctx context.Context) ([]*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Integration
	for _, in := range r.integrations {
		if in.IsConnected {
			cp := *in
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryIntegrationRepo) ListByOrganization(ctx context.Context, orgID string) ([]*models.Integration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.Integration
	for _, in := range r.integrations {
		if in.OrganizationID == orgID {
			cp := *in
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (r *MemoryIntegrationRepo) SetLastSyncAt(ctx context.Context, integrationID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if in, ok := r.integrations[integrationID]; ok {
		stamp := at
		in.LastSyncAt = &stamp
	}
	return nil
}

// =============================================
// IN-MEMORY SYNC LOG REPO
// =============================================

type MemorySyncLogRepo struct {
	mu   sync.RWMutex
	logs []*models.SyncLog
}

func NewMemorySyncLogRepo() *MemorySyncLogRepo {
	return &MemorySyncLogRepo{}
}

func (r *MemorySyncLogRepo) Create(ctx context.Context, l *models.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *l
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *MemorySyncLogRepo) Update(ctx context.Context, l *models.SyncLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, existing := range r.logs {
		if existing.ID == l.ID {
			cp := *l
			r.logs[i] = &cp
			return nil
		}
	}
	cp := *l
	r.logs = append(r.logs, &cp)
	return nil
}

func (r *MemorySyncLogRepo) ListByOrganization(ctx context.Context, orgID string, limit int) ([]*models.SyncLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*models.SyncLog
	for i := len(r.logs) - 1; i >= 0; i-- {
		if r.logs[i].OrganizationID != orgID {
			continue
		}
		cp := *r.logs[i]
		result = append(result, &cp)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// =============================================
// IN-MEMORY EVENT STORE
// =============================================

// MemoryEventStore keeps clicks and pixel events in maps with secondary
// indexes for the attribution lookups.
type MemoryEventStore struct {
	mu     sync.RWMutex
	clicks map[string]*models.Click
	events map[string]*models.PixelEvent

	eventsByOrder map[string][]string // orgID|orderID -> []event_id
}

func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{
		clicks:        make(map[string]*models.Click),
		events:        make(map[string]*models.PixelEvent),
		eventsByOrder: make(map[string][]string),
	}
}

func (s *MemoryEventStore) SaveClick(ctx context.Context, c *models.Click) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *c
	s.clicks[c.ID] = &cp
	return nil
}

func (s *MemoryEventStore) GetClick(ctx context.Context, id string) (*models.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clicks[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryEventStore) ListClicksInWindow(ctx context.Context, orgID string, start, end time.Time) ([]*models.Click, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.Click
	for _, c := range s.clicks {
		if c.OrganizationID != orgID {
			continue
		}
		if c.Timestamp.Before(start) || c.Timestamp.After(end) {
			continue
		}
		cp := *c
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (s *MemoryEventStore) MarkClickConverted(ctx context.Context, clickID, orderID string, at time.Time, value float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.clicks {
		if c.ID != clickID && c.ClickID != clickID {
			continue
		}
		if c.Converted {
			return nil // at most once
		}
		stamp := at
		c.Converted = true
		c.ConversionOrderID = orderID
		c.ConversionTimestamp = &stamp
		c.ConversionValue = value
		return nil
	}
	return nil
}

func (s *MemoryEventStore) SavePixelEvent(ctx context.Context, ev *models.PixelEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *ev
	s.events[ev.ID] = &cp
	if ev.OrderID != "" {
		key := ev.OrganizationID + "|" + ev.OrderID
		s.eventsByOrder[key] = append(s.eventsByOrder[key], ev.ID)
	}
	return nil
}

func (s *MemoryEventStore) GetPixelEvent(ctx context.Context, id string) (*models.PixelEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return nil, nil
	}
	cp := *ev
	return &cp, nil
}

func (s *MemoryEventStore) ListPixelEventsByOrder(ctx context.Context, orgID, orderID string) ([]*models.PixelEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.eventsByOrder[orgID+"|"+orderID]
	result := make([]*models.PixelEvent, 0, len(ids))
	for _, id := range ids {
		if ev, ok := s.events[id]; ok {
			cp := *ev
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (s *MemoryEventStore) ListPixelEventsInWindow(ctx context.Context, orgID string, start, end time.Time) ([]*models.PixelEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.PixelEvent
	for _, ev := range s.events {
		if ev.OrganizationID != orgID {
			continue
		}
		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}
		cp := *ev
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (s *MemoryEventStore) ListPendingPurchases(ctx context.Context, orgID string) ([]*models.PixelEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*models.PixelEvent
	for _, ev := range s.events {
		if ev.OrganizationID != orgID || !ev.IsPurchase() {
			continue
		}
		if ev.AttributionStatus != "" && ev.AttributionStatus != models.AttributionPending {
			continue
		}
		cp := *ev
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp.Before(result[j].Timestamp) })
	return result, nil
}

func (s *MemoryEventStore) SetAttributionOutcome(ctx context.Context, eventID string, status models.AttributionStatus, method models.AttributionMethod, orderID string, confidence float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[eventID]
	if !ok {
		return nil
	}
	ev.AttributionStatus = status
	ev.AttributionMethod = method
	ev.MatchedOrderID = orderID
	ev.MatchConfidence = confidence
	return nil
}
