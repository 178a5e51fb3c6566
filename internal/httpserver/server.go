package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/lucametrics/attribution-core/internal/analytics"
	"github.com/lucametrics/attribution-core/internal/cache"
	"github.com/lucametrics/attribution-core/internal/config"
	"github.com/lucametrics/attribution-core/internal/geo"
	"github.com/lucametrics/attribution-core/internal/metrics"
	"github.com/lucametrics/attribution-core/internal/middleware"
	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/lucametrics/attribution-core/internal/storage"
	"github.com/lucametrics/attribution-core/internal/syncer"
	"go.uber.org/zap"
)

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Config       *config.Config
	Logger       *zap.Logger
	Metrics      *metrics.Metrics
	Cache        *cache.Service
	Events       storage.EventStore
	Archive      storage.EventArchive
	Campaigns    storage.CampaignRepo
	SyncLogs     storage.SyncLogRepo
	Orchestrator *syncer.Orchestrator
	Geo          *geo.Resolver
}

// Server exposes the attribution core over HTTP: pixel ingest, sync
// triggers and the daily metrics read path.
type Server struct {
	cache        *cache.Service
	events       storage.EventStore
	archive      storage.EventArchive
	campaigns    storage.CampaignRepo
	syncLogs     storage.SyncLogRepo
	orchestrator *syncer.Orchestrator
	geo          *geo.Resolver
	aggregator   *analytics.Aggregator
	logger       *zap.Logger
	config       *config.Config
	metrics      *metrics.Metrics
}

// NewServer constructs a new http.Handler with all routes registered.
func NewServer(deps *Dependencies) http.Handler {
	s := &Server{
		cache:        deps.Cache,
		events:       deps.Events,
		archive:      deps.Archive,
		campaigns:    deps.Campaigns,
		syncLogs:     deps.SyncLogs,
		orchestrator: deps.Orchestrator,
		geo:          deps.Geo,
		aggregator:   analytics.NewAggregator(),
		logger:       deps.Logger,
		config:       deps.Config,
		metrics:      deps.Metrics,
	}

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", s.handleHealth)

	// Prometheus metrics
	if deps.Config.Metrics.Enabled {
		mux.Handle(deps.Config.Metrics.Path, metrics.Handler())
	}

	// Pixel ingest
	mux.HandleFunc("/v1/events", s.handlePixelEvent)
	mux.HandleFunc("/v1/clicks", s.handleClick)

	// Sync
	mux.HandleFunc("/v1/sync", s.handleSync)
	mux.HandleFunc("/v1/sync/logs", s.handleSyncLogs)

	// Reporting
	mux.HandleFunc("/v1/metrics/daily", s.handleDailyMetrics)
	mux.HandleFunc("/v1/campaigns", s.handleCampaigns)

	return mux
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ---- Pixel Ingest ----

func (s *Server) handlePixelEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var ev models.PixelEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	if ev.OrganizationID == "" {
		s.errorResponse(w, "organization_id required", http.StatusBadRequest)
		return
	}
	switch ev.EventType {
	case models.EventPageView, models.EventAddToCart, models.EventBeginCheckout, models.EventPurchase:
	default:
		s.errorResponse(w, "unknown event_type", http.StatusBadRequest)
		return
	}

	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.IP == "" {
		ev.IP = middleware.ClientIP(r)
	}
	if ev.IsPurchase() && ev.AttributionStatus == "" {
		ev.AttributionStatus = models.AttributionPending
	}

	if info, err := s.geo.Lookup(ev.IP); err == nil && info != nil {
		ev.GeoCountry = info.CountryCode
		ev.GeoRegion = info.Region
		ev.GeoCity = info.City
	}

	if err := s.events.SavePixelEvent(r.Context(), &ev); err != nil {
		s.logger.Error("failed to save pixel event", zap.Error(err))
		s.errorResponse(w, "failed to save event", http.StatusInternalServerError)
		return
	}

	// A click-bearing event doubles as a click record so window matching
	// can find it later without a separate capture call.
	if ev.ClickID != "" {
		click := clickFromEvent(&ev)
		if err := s.events.SaveClick(r.Context(), click); err != nil {
			s.logger.Warn("failed to save click from event", zap.Error(err))
		}
	}

	if s.archive != nil {
		if err := s.archive.ArchivePixelEvents(r.Context(), []*models.PixelEvent{&ev}); err != nil {
			s.logger.Warn("failed to archive pixel event", zap.Error(err))
			if s.metrics != nil {
				s.metrics.RecordArchiveBatch(false)
			}
		} else if s.metrics != nil {
			s.metrics.RecordArchiveBatch(true)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordPixelEvent(string(ev.EventType))
	}

	s.acceptedResponse(w, map[string]string{"id": ev.ID})
}

func clickFromEvent(ev *models.PixelEvent) *models.Click {
	ts := ev.Timestamp
	if ev.ClickTimestamp != nil {
		ts = *ev.ClickTimestamp
	}
	return &models.Click{
		ID:             uuid.New().String(),
		OrganizationID: ev.OrganizationID,
		StoreID:        ev.StoreID,
		Platform:       ev.Platform,
		ClickID:        ev.ClickID,
		Timestamp:      ts,
		LandingPage:    ev.LandingPage,
		UTMSource:      ev.UTMSource,
		UTMMedium:      ev.UTMMedium,
		UTMCampaign:    ev.UTMCampaign,
		SessionID:      ev.SessionID,
		UserAgent:      ev.UserAgent,
		IP:             ev.IP,
	}
}

func (s *Server) handleClick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var c models.Click
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		s.errorResponse(w, "invalid json", http.StatusBadRequest)
		return
	}

	if c.OrganizationID == "" {
		s.errorResponse(w, "organization_id required", http.StatusBadRequest)
		return
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	if c.IP == "" {
		c.IP = middleware.ClientIP(r)
	}

	if err := s.events.SaveClick(r.Context(), &c); err != nil {
		s.logger.Error("failed to save click", zap.Error(err))
		s.errorResponse(w, "failed to save click", http.StatusInternalServerError)
		return
	}

	s.acceptedResponse(w, map[string]string{"id": c.ID})
}

// ---- Sync ----

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// The pass can outlive the request; callers poll sync logs for the
	// outcome.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.orchestrator.SyncAll(ctx); err != nil {
			s.logger.Error("triggered sync failed", zap.Error(err))
		}
	}()

	s.acceptedResponse(w, map[string]string{"status": "sync started"})
}

func (s *Server) handleSyncLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		s.errorResponse(w, "organization_id required", http.StatusBadRequest)
		return
	}

	logs, err := s.syncLogs.ListByOrganization(r.Context(), orgID, 50)
	if err != nil {
		s.logger.Error("failed to list sync logs", zap.Error(err))
		s.errorResponse(w, "failed to list sync logs", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, logs)
}

// ---- Reporting ----

type dailyMetricsResponse struct {
	Rows    []*models.DailyMetrics `json:"rows"`
	Summary *models.RangeSummary   `json:"summary,omitempty"`
	// AgeSeconds is how old the newest cached row is; Stale reports
	// whether a recompute is due.
	AgeSeconds float64 `json:"age_seconds"`
	Stale      bool    `json:"stale"`
}

func (s *Server) handleDailyMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	orgID := q.Get("organization_id")
	if orgID == "" {
		s.errorResponse(w, "organization_id required", http.StatusBadRequest)
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)
	if v := q.Get("start_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.errorResponse(w, "invalid start_date", http.StatusBadRequest)
			return
		}
		start = t
	}
	if v := q.Get("end_date"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			s.errorResponse(w, "invalid end_date", http.StatusBadRequest)
			return
		}
		end = t
	}
	if models.Day(end).Before(models.Day(start)) {
		s.errorResponse(w, "start_date after end_date", http.StatusBadRequest)
		return
	}

	rows, err := s.cache.ListDaily(r.Context(), orgID, start, end)
	if err != nil {
		s.logger.Error("failed to list daily metrics", zap.Error(err))
		s.errorResponse(w, "failed to list metrics", http.StatusInternalServerError)
		return
	}

	resp := dailyMetricsResponse{Rows: rows}
	resp.Summary = s.aggregator.Summarize(rows)

	age, found, err := s.cache.Age(r.Context(), orgID)
	if err != nil {
		s.logger.Warn("failed to read cache age", zap.Error(err))
	}
	if found {
		resp.AgeSeconds = age.Seconds()
	}
	stale, err := s.cache.IsStale(r.Context(), orgID)
	if err != nil {
		s.logger.Warn("failed to check staleness", zap.Error(err))
	}
	resp.Stale = stale || !found

	s.jsonResponse(w, resp)
}

func (s *Server) handleCampaigns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.errorResponse(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	orgID := r.URL.Query().Get("organization_id")
	if orgID == "" {
		s.errorResponse(w, "organization_id required", http.StatusBadRequest)
		return
	}

	campaigns, err := s.campaigns.ListByOrganization(r.Context(), orgID)
	if err != nil {
		s.logger.Error("failed to list campaigns", zap.Error(err))
		s.errorResponse(w, "failed to list campaigns", http.StatusInternalServerError)
		return
	}

	s.jsonResponse(w, campaigns)
}

// ---- Helper Methods ----

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) acceptedResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
