package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lucametrics/attribution-core/internal/analytics"
	"github.com/lucametrics/attribution-core/internal/attribution"
	"github.com/lucametrics/attribution-core/internal/cache"
	"github.com/lucametrics/attribution-core/internal/metrics"
	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/lucametrics/attribution-core/internal/storage"
	"go.uber.org/zap"
)

// Options tunes the orchestrator.
type Options struct {
	// Lookback is how far back each pass re-fetches and re-aggregates.
	// Re-syncing a window is safe because every write is a natural-key
	// upsert.
	Lookback time.Duration

	// Concurrency bounds how many organizations sync at once.
	Concurrency int
}

// Orchestrator drives the periodic data pipeline: per organization it
// fetches orders and ad spend, rebuilds the daily metrics cache, and runs
// attribution over pending purchases. Organizations are isolated; one
// failing pipeline never stops the others.
type Orchestrator struct {
	registry     *ClientRegistry
	orders       storage.OrderRepo
	spend        storage.SpendRepo
	campaigns    storage.CampaignRepo
	integrations storage.IntegrationRepo
	syncLogs     storage.SyncLogRepo
	events       storage.EventStore

	aggregator *analytics.Aggregator
	cache      *cache.Service
	engine     *attribution.Engine
	reconciler *attribution.Reconciler

	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewOrchestrator wires the pipeline together. Lookback <= 0 defaults to
// 30 days, Concurrency <= 0 to 4.
func NewOrchestrator(
	registry *ClientRegistry,
	orders storage.OrderRepo,
	spend storage.SpendRepo,
	campaigns storage.CampaignRepo,
	integrations storage.IntegrationRepo,
	syncLogs storage.SyncLogRepo,
	events storage.EventStore,
	aggregator *analytics.Aggregator,
	cacheSvc *cache.Service,
	engine *attribution.Engine,
	reconciler *attribution.Reconciler,
	opts Options,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Orchestrator {
	if opts.Lookback <= 0 {
		opts.Lookback = 30 * 24 * time.Hour
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Orchestrator{
		registry:     registry,
		orders:       orders,
		spend:        spend,
		campaigns:    campaigns,
		integrations: integrations,
		syncLogs:     syncLogs,
		events:       events,
		aggregator:   aggregator,
		cache:        cacheSvc,
		engine:       engine,
		reconciler:   reconciler,
		opts:         opts,
		logger:       logger,
		metrics:      m,
		now:          time.Now,
	}
}

// SyncAll runs one pipeline pass for every organization with a connected
// integration. Organizations run concurrently under the configured bound.
func (o *Orchestrator) SyncAll(ctx context.Context) error {
	connected, err := o.integrations.ListConnected(ctx)
	if err != nil {
		return fmt.Errorf("failed to list connected integrations: %w", err)
	}

	byOrg := make(map[string][]*models.Integration)
	for _, in := range connected {
		byOrg[in.OrganizationID] = append(byOrg[in.OrganizationID], in)
	}

	if len(byOrg) == 0 {
		return nil
	}

	sem := make(chan struct{}, o.opts.Concurrency)
	var wg sync.WaitGroup
	for orgID, ins := range byOrg {
		wg.Add(1)
		sem <- struct{}{}
		go func(orgID string, ins []*models.Integration) {
			defer wg.Done()
			defer func() { <-sem }()

			if o.metrics != nil {
				o.metrics.OrgsInFlight.Inc()
				defer o.metrics.OrgsInFlight.Dec()
			}
			if err := o.SyncOrganization(ctx, orgID, ins); err != nil {
				o.logger.Error("organization pipeline failed",
					zap.String("organization_id", orgID),
					zap.Error(err),
				)
			}
		}(orgID, ins)
	}
	wg.Wait()

	return nil
}

// SyncOrganization runs the full pipeline for one organization: order and
// spend fetches run concurrently, then the metrics cache is rebuilt from
// what landed, then attribution runs over pending purchases. When any
// fetch failed the cache rebuild is skipped so the data is not stamped
// fresh; the next pass retries the whole window.
func (o *Orchestrator) SyncOrganization(ctx context.Context, orgID string, ins []*models.Integration) error {
	end := o.now()
	start := end.Add(-o.opts.Lookback)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures int
	rangeTotals := make(map[string]float64)

	for _, in := range ins {
		in := in
		wg.Add(1)
		go func() {
			defer wg.Done()

			var err error
			var total float64
			switch in.Kind {
			case models.IntegrationCommerce:
				err = o.syncOrders(ctx, in, start, end)
			case models.IntegrationAds:
				total, err = o.syncSpend(ctx, in, start, end)
				o.syncCampaigns(ctx, in)
			default:
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures++
				return
			}
			if total > 0 {
				rangeTotals[in.Platform] += total
			}
		}()
	}
	wg.Wait()

	if failures > 0 {
		return fmt.Errorf("%d of %d integration syncs failed; cache left stale", failures, len(ins))
	}

	if err := o.rebuildMetrics(ctx, orgID, start, end, rangeTotals); err != nil {
		return err
	}

	o.runAttribution(ctx, orgID, start, end)
	return nil
}

func (o *Orchestrator) syncOrders(ctx context.Context, in *models.Integration, start, end time.Time) error {
	client := o.registry.OrderClient(in.Platform)
	if client == nil {
		o.logger.Warn("no order client registered",
			zap.String("platform", in.Platform),
			zap.String("integration_id", in.ID),
		)
		return nil
	}

	log := o.startLog(ctx, in, models.SyncOrders)
	began := o.now()

	orders, err := client.FetchOrders(ctx, in, start, end)
	if err != nil {
		o.finishLog(ctx, log, 0, err, began)
		return fmt.Errorf("failed to fetch orders from %s: %w", in.Platform, err)
	}

	var saved int64
	for _, order := range orders {
		order.SyncedAt = o.now()
		if err := o.orders.Upsert(ctx, order); err != nil {
			o.finishLog(ctx, log, saved, err, began)
			return fmt.Errorf("failed to store order: %w", err)
		}
		saved++
	}

	o.finishLog(ctx, log, saved, nil, began)
	return nil
}

func (o *Orchestrator) syncSpend(ctx context.Context, in *models.Integration, start, end time.Time) (float64, error) {
	client := o.registry.SpendClient(in.Platform)
	if client == nil {
		o.logger.Warn("no spend client registered",
			zap.String("platform", in.Platform),
			zap.String("integration_id", in.ID),
		)
		return 0, nil
	}

	log := o.startLog(ctx, in, models.SyncSpend)
	began := o.now()

	result, err := client.FetchSpend(ctx, in, start, end)
	if err != nil {
		o.finishLog(ctx, log, 0, err, began)
		return 0, fmt.Errorf("failed to fetch spend from %s: %w", in.Platform, err)
	}

	var saved int64
	for _, row := range result.Daily {
		row.SyncedAt = o.now()
		if err := o.spend.Upsert(ctx, row); err != nil {
			o.finishLog(ctx, log, saved, err, began)
			return 0, fmt.Errorf("failed to store daily spend: %w", err)
		}
		saved++
	}

	o.finishLog(ctx, log, saved, nil, began)
	return result.RangeTotal, nil
}

// syncCampaigns is best effort; campaign rollups feed reporting, not the
// metrics cache, so a failure here does not hold the pipeline back.
func (o *Orchestrator) syncCampaigns(ctx context.Context, in *models.Integration) {
	client := o.registry.CampaignClient(in.Platform)
	if client == nil {
		return
	}

	log := o.startLog(ctx, in, models.SyncCampaigns)
	began := o.now()

	campaigns, err := client.FetchCampaigns(ctx, in)
	if err != nil {
		o.finishLog(ctx, log, 0, err, began)
		o.logger.Warn("campaign sync failed",
			zap.String("platform", in.Platform),
			zap.String("integration_id", in.ID),
			zap.Error(err),
		)
		return
	}

	var saved int64
	for _, c := range campaigns {
		c.LastSyncAt = o.now()
		if err := o.campaigns.Upsert(ctx, c); err != nil {
			o.finishLog(ctx, log, saved, err, began)
			return
		}
		saved++
	}

	o.finishLog(ctx, log, saved, nil, began)
}

// rebuildMetrics re-reads the synced window from storage and replaces the
// cached rows. Reading back what the fetches just wrote keeps one code
// path whether a day changed or not.
func (o *Orchestrator) rebuildMetrics(ctx context.Context, orgID string, start, end time.Time, rangeTotals map[string]float64) error {
	orders, err := o.orders.ListByDateRange(ctx, orgID, start, end)
	if err != nil {
		return fmt.Errorf("failed to read synced orders: %w", err)
	}
	spend, err := o.spend.ListByDateRange(ctx, orgID, start, end)
	if err != nil {
		return fmt.Errorf("failed to read synced spend: %w", err)
	}

	rows, err := o.aggregator.BuildDaily(orgID, start, end, analytics.Input{
		Orders:           orders,
		Spend:            spend,
		RangeSpendTotals: rangeTotals,
	})
	if err != nil {
		return fmt.Errorf("failed to aggregate daily metrics: %w", err)
	}
	if len(rows) == 0 {
		return nil
	}

	if err := o.cache.SaveDaily(ctx, rows); err != nil {
		return fmt.Errorf("failed to save daily metrics: %w", err)
	}

	o.logger.Info("metrics cache rebuilt",
		zap.String("organization_id", orgID),
		zap.Int("days", len(rows)),
		zap.Int("orders", len(orders)),
	)
	return nil
}

// runAttribution reconciles the organization's pending purchase events,
// then the synced window's orders against stored pixel events and clicks.
// Best effort; attribution catches up on the next pass if storage
// misbehaves mid-way.
func (o *Orchestrator) runAttribution(ctx context.Context, orgID string, start, end time.Time) {
	pending, err := o.events.ListPendingPurchases(ctx, orgID)
	if err != nil {
		o.logger.Error("failed to list pending purchases",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
		return
	}

	for _, ev := range pending {
		if _, err := o.reconciler.ReconcilePurchaseEvent(ctx, o.engine, ev); err != nil {
			o.logger.Error("failed to reconcile purchase event",
				zap.String("organization_id", orgID),
				zap.String("event_id", ev.ID),
				zap.Error(err),
			)
		}
	}

	// Orders with no click-bearing purchase event can still attribute
	// through pixel correlation, customer email or the click window.
	// The reconciler skips orders an earlier pass already attributed.
	orders, err := o.orders.ListByDateRange(ctx, orgID, start, end)
	if err != nil {
		o.logger.Error("failed to list orders for attribution",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
		return
	}

	for _, order := range orders {
		if !order.CountsTowardRevenue() {
			continue
		}
		if _, err := o.reconciler.ReconcileOrder(ctx, o.engine, order); err != nil {
			o.logger.Error("failed to reconcile order",
				zap.String("organization_id", orgID),
				zap.String("order_id", order.ExternalID),
				zap.Error(err),
			)
		}
	}
}

// Run loops SyncAll on the interval until the context is cancelled. A
// pass starts immediately on entry.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := o.SyncAll(ctx); err != nil {
			o.logger.Error("sync pass failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) startLog(ctx context.Context, in *models.Integration, t models.SyncType) *models.SyncLog {
	log := &models.SyncLog{
		ID:             uuid.New().String(),
		OrganizationID: in.OrganizationID,
		IntegrationID:  in.ID,
		Type:           t,
		Status:         models.SyncInProgress,
		StartedAt:      o.now(),
	}
	if err := o.syncLogs.Create(ctx, log); err != nil {
		o.logger.Warn("failed to create sync log", zap.Error(err))
	}
	return log
}

func (o *Orchestrator) finishLog(ctx context.Context, log *models.SyncLog, records int64, cause error, began time.Time) {
	now := o.now()
	status := "success"
	if cause != nil {
		log.MarkFailed(cause.Error(), now)
		status = "failed"
	} else {
		log.MarkSuccess(records, now)
		if err := o.integrations.SetLastSyncAt(ctx, log.IntegrationID, now); err != nil {
			o.logger.Warn("failed to stamp integration sync time", zap.Error(err))
		}
	}

	if err := o.syncLogs.Update(ctx, log); err != nil {
		o.logger.Warn("failed to update sync log", zap.Error(err))
	}
	if o.metrics != nil {
		o.metrics.RecordSyncPass(string(log.Type), status, records, now.Sub(began))
	}
}
