package attribution

import (
	"context"
	"fmt"

	"github.com/lucametrics/attribution-core/internal/metrics"
	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/lucametrics/attribution-core/internal/storage"
	"go.uber.org/zap"
)

// Reconciler applies engine results to stored state: pixel events get an
// attribution outcome, matched clicks get marked converted. The engine
// stays pure; all side effects live here and every write is an idempotent
// upsert, so retrying a failed pass is safe.
type Reconciler struct {
	events  storage.EventStore
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewReconciler creates a reconciler over the given event store.
func NewReconciler(events storage.EventStore, logger *zap.Logger, m *metrics.Metrics) *Reconciler {
	return &Reconciler{
		events:  events,
		logger:  logger,
		metrics: m,
	}
}

// ReconcileOrder attributes one order against the organization's stored
// pixel events and clicks, persisting the outcome. Returns the match, or
// nil when the order stays unmatched; no match is not an error.
func (r *Reconciler) ReconcileOrder(ctx context.Context, engine *Engine, order *models.Order) (*models.AttributionMatch, error) {
	windowStart := order.OrderDate.Add(-engine.Config().Window.Duration())

	pixelEvents, err := r.events.ListPixelEventsByOrder(ctx, order.OrganizationID, order.ExternalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pixel events for order: %w", err)
	}
	windowEvents, err := r.events.ListPixelEventsInWindow(ctx, order.OrganizationID, windowStart, order.OrderDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list pixel events in window: %w", err)
	}
	pixelEvents = append(pixelEvents, windowEvents...)

	clicks, err := r.events.ListClicksInWindow(ctx, order.OrganizationID, windowStart, order.OrderDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidate clicks: %w", err)
	}

	// A click already converted for this order means an earlier pass
	// attributed it; re-running the cascade would hand the order to a
	// second click.
	for _, c := range clicks {
		if c.Converted && c.ConversionOrderID == order.ExternalID {
			return nil, nil
		}
	}

	match := engine.MatchOrder(order, pixelEvents, clicks)
	if match == nil {
		if err := r.markEventsUnmatched(ctx, pixelEvents, order.ExternalID); err != nil {
			return nil, err
		}
		if r.metrics != nil {
			r.metrics.RecordAttributionMiss(order.OrganizationID)
		}
		r.logger.Debug("order unmatched",
			zap.String("organization_id", order.OrganizationID),
			zap.String("order_id", order.ExternalID),
		)
		return nil, nil
	}

	if err := r.apply(ctx, order.OrganizationID, match, pixelEvents, order.TotalAmount); err != nil {
		return nil, err
	}
	return match, nil
}

// ReconcilePurchaseEvent attributes a pixel purchase event from its own
// click/UTM data and persists the outcome on the event.
func (r *Reconciler) ReconcilePurchaseEvent(ctx context.Context, engine *Engine, ev *models.PixelEvent) (*models.AttributionMatch, error) {
	match := engine.MatchPurchase(ev)
	if match == nil {
		err := r.events.SetAttributionOutcome(ctx, ev.ID, models.AttributionUnmatched, "", "", 0)
		if err != nil {
			return nil, fmt.Errorf("failed to mark event unmatched: %w", err)
		}
		if r.metrics != nil {
			r.metrics.RecordAttributionMiss(ev.OrganizationID)
		}
		return nil, nil
	}

	err := r.events.SetAttributionOutcome(ctx, ev.ID, models.AttributionMatched, match.Method, match.OrderID, match.Confidence)
	if err != nil {
		return nil, fmt.Errorf("failed to record attribution outcome: %w", err)
	}
	if match.ClickID != "" {
		if err := r.events.MarkClickConverted(ctx, match.ClickID, match.OrderID, match.ConversionTimestamp, ev.OrderValue); err != nil {
			return nil, fmt.Errorf("failed to mark click converted: %w", err)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordAttributionMatch(ev.OrganizationID, string(match.Method), match.Confidence)
	}
	r.logger.Info("purchase attributed",
		zap.String("organization_id", ev.OrganizationID),
		zap.String("order_id", match.OrderID),
		zap.String("platform", match.Platform),
		zap.String("method", string(match.Method)),
		zap.Float64("confidence", match.Confidence),
	)
	return match, nil
}

// apply persists a successful order match: outcome on the matched pixel
// events, conversion flag and order value on the click.
func (r *Reconciler) apply(ctx context.Context, orgID string, match *models.AttributionMatch, pixelEvents []*models.PixelEvent, orderValue float64) error {
	for _, ev := range pixelEvents {
		if ev.OrderID != match.OrderID || !ev.IsPurchase() {
			continue
		}
		err := r.events.SetAttributionOutcome(ctx, ev.ID, models.AttributionMatched, match.Method, match.OrderID, match.Confidence)
		if err != nil {
			return fmt.Errorf("failed to record attribution outcome: %w", err)
		}
	}

	if match.ClickID != "" {
		if err := r.events.MarkClickConverted(ctx, match.ClickID, match.OrderID, match.ConversionTimestamp, orderValue); err != nil {
			return fmt.Errorf("failed to mark click converted: %w", err)
		}
	}

	if r.metrics != nil {
		r.metrics.RecordAttributionMatch(orgID, string(match.Method), match.Confidence)
	}
	r.logger.Info("order attributed",
		zap.String("organization_id", orgID),
		zap.String("order_id", match.OrderID),
		zap.String("platform", match.Platform),
		zap.String("method", string(match.Method)),
		zap.Float64("confidence", match.Confidence),
	)
	return nil
}

// markEventsUnmatched flips this order's pending purchase events to
// unmatched, distinguishing "engine exhausted" from "not yet attempted".
func (r *Reconciler) markEventsUnmatched(ctx context.Context, pixelEvents []*models.PixelEvent, orderID string) error {
	for _, ev := range pixelEvents {
		if ev.OrderID != orderID || !ev.IsPurchase() {
			continue
		}
		if ev.AttributionStatus != models.AttributionPending {
			continue
		}
		err := r.events.SetAttributionOutcome(ctx, ev.ID, models.AttributionUnmatched, "", "", 0)
		if err != nil {
			return fmt.Errorf("failed to mark event unmatched: %w", err)
		}
	}
	return nil
}
