package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/lucametrics/attribution-core/internal/metrics"
	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/lucametrics/attribution-core/internal/storage"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultMaxAge is how old cached metrics may get before a recompute is
// warranted.
const DefaultMaxAge = 15 * time.Minute

// lastSyncKeyTTL bounds how long the Redis stamp outlives the data it
// describes. The metrics store stays authoritative; the stamp only saves
// a query on the hot path.
const lastSyncKeyTTL = 24 * time.Hour

// Service is the cache/freshness layer: it persists DailyMetrics rows
// with full-row-replace semantics and decides when a recompute is
// warranted. Redis, when configured, mirrors the per-organization
// last-sync stamp; a nil client degrades to store-only checks.
type Service struct {
	repo    storage.MetricsRepo
	rdb     *redis.Client
	maxAge  time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a freshness service. maxAge <= 0 selects the
// 15-minute default.
func NewService(repo storage.MetricsRepo, rdb *redis.Client, maxAge time.Duration, logger *zap.Logger, m *metrics.Metrics) *Service {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Service{
		repo:    repo,
		rdb:     rdb,
		maxAge:  maxAge,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

func lastSyncKey(orgID string) string {
	return "metrics:lastsync:" + orgID
}

// IsStale reports whether the organization's cached metrics need a
// recompute. No cached row at all is unconditionally stale.
func (s *Service) IsStale(ctx context.Context, orgID string) (bool, error) {
	now := s.now()

	// Cheap probe first: the Redis stamp can prove freshness without
	// touching the metrics store. Absence proves nothing.
	if s.rdb != nil {
		if raw, err := s.rdb.Get(ctx, lastSyncKey(orgID)).Result(); err == nil {
			if stamp, perr := time.Parse(time.RFC3339Nano, raw); perr == nil {
				if now.Sub(stamp) <= s.maxAge {
					s.recordCheck("fresh", orgID, now.Sub(stamp))
					return false, nil
				}
			}
		}
	}

	latest, err := s.repo.Latest(ctx, orgID)
	if err != nil {
		return false, fmt.Errorf("failed to read latest metrics row: %w", err)
	}
	if latest == nil {
		s.recordCheck("empty", orgID, 0)
		return true, nil
	}

	age := now.Sub(latest.LastSyncAt)
	if age > s.maxAge {
		s.recordCheck("stale", orgID, age)
		return true, nil
	}
	s.recordCheck("fresh", orgID, age)
	return false, nil
}

// SaveDaily upserts a batch of daily metrics rows. Every row's derived
// fields are recomputed from its base fields before the write, the sync
// stamp is refreshed, and the whole row replaces whatever was stored for
// (organization, date, store). Safe to call repeatedly with identical
// input.
func (s *Service) SaveDaily(ctx context.Context, rows []*models.DailyMetrics) error {
	if len(rows) == 0 {
		return nil
	}

	now := s.now()
	for _, row := range rows {
		row.Recompute()
		row.LastSyncAt = now
		if err := s.repo.Upsert(ctx, row); err != nil {
			return fmt.Errorf("failed to upsert daily metrics for %s: %w", models.DayKey(row.Date), err)
		}
		if s.metrics != nil {
			s.metrics.RecordMetricsUpsert(row.OrganizationID)
		}
	}

	s.stampLastSync(ctx, rows[0].OrganizationID, now)

	s.logger.Debug("daily metrics saved",
		zap.String("organization_id", rows[0].OrganizationID),
		zap.Int("rows", len(rows)),
	)
	return nil
}

// ListDaily returns cached rows for the range, oldest first.
func (s *Service) ListDaily(ctx context.Context, orgID string, start, end time.Time) ([]*models.DailyMetrics, error) {
	return s.repo.ListByDateRange(ctx, orgID, start, end)
}

// Age returns how old the organization's newest cached row is, and
// whether any row exists.
func (s *Service) Age(ctx context.Context, orgID string) (time.Duration, bool, error) {
	latest, err := s.repo.Latest(ctx, orgID)
	if err != nil {
		return 0, false, err
	}
	if latest == nil {
		return 0, false, nil
	}
	return s.now().Sub(latest.LastSyncAt), true, nil
}

func (s *Service) stampLastSync(ctx context.Context, orgID string, at time.Time) {
	if s.rdb == nil {
		return
	}
	err := s.rdb.Set(ctx, lastSyncKey(orgID), at.Format(time.RFC3339Nano), lastSyncKeyTTL).Err()
	if err != nil {
		// The store keeps the authoritative stamp; a failed mirror only
		// costs an extra query on the next staleness check.
		s.logger.Warn("failed to mirror last-sync stamp",
			zap.String("organization_id", orgID),
			zap.Error(err),
		)
	}
}

func (s *Service) recordCheck(outcome, orgID string, age time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordStaleCheck(outcome)
	if outcome != "empty" {
		s.metrics.RecordCacheAge(orgID, age)
	}
}
