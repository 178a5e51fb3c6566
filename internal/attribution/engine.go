package attribution

import (
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
)

// Rule confidences. Time-decay matches are capped below UTM so the
// cascade ordering survives into the stored confidence values.
const (
	confidenceClickID    = 0.95
	confidenceEmailClick = 0.9
	confidenceUTM        = 0.75
	confidenceEmailUTM   = 0.7
	confidenceFirstClick = 0.4
	timeDecayCeiling     = 0.5
	timeDecayFloor       = 0.1
)

// Config is the immutable engine configuration. Engines are cheap to
// construct, so per-organization settings get their own engine instead of
// mutating a shared one.
type Config struct {
	Window models.AttributionWindow
	Model  models.AttributionModel
}

// DefaultConfig returns the 7-day click window with last-click credit.
func DefaultConfig() Config {
	return Config{
		Window: models.Window7DClick,
		Model:  models.ModelLastClick,
	}
}

// Engine matches purchase signals against candidate clicks and pixel
// events. It is pure: no I/O, no mutation of its inputs. Matching is a
// priority cascade, not a weighted blend; the first rule that fires wins.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine with the given configuration. Zero-valued
// window/model fields fall back to the defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.Window == "" {
		cfg.Window = models.Window7DClick
	}
	if cfg.Model == "" {
		cfg.Model = models.ModelLastClick
	}
	return &Engine{cfg: cfg}
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// MatchPurchase attributes a pixel purchase event using only the data the
// event itself carries. Returns nil when neither a click ID nor UTM
// parameters are present.
func (e *Engine) MatchPurchase(ev *models.PixelEvent) *models.AttributionMatch {
	if ev == nil || !ev.IsPurchase() {
		return nil
	}

	// Rule 1: the event carries a platform click ID. Self-describing, no
	// candidate search needed.
	if ev.ClickID != "" && ev.Platform != "" {
		m := &models.AttributionMatch{
			OrderID:             ev.OrderID,
			Platform:            ev.Platform,
			ClickID:             ev.ClickID,
			ConversionTimestamp: ev.Timestamp,
			Window:              e.cfg.Window,
			Confidence:          confidenceClickID,
			Method:              models.MethodClickID,
		}
		if ev.ClickTimestamp != nil {
			m.ClickTimestamp = *ev.ClickTimestamp
		}
		return m
	}

	// Rule 2: UTM parameters only.
	if ev.UTMSource != "" || ev.UTMCampaign != "" {
		platform := ResolvePlatform(ev.UTMSource)
		if platform == "" {
			platform = ev.UTMSource
		}
		m := &models.AttributionMatch{
			OrderID:             ev.OrderID,
			Platform:            platform,
			ConversionTimestamp: ev.Timestamp,
			Window:              e.cfg.Window,
			Confidence:          confidenceUTM,
			Method:              models.MethodUTM,
		}
		if ev.ClickTimestamp != nil {
			m.ClickTimestamp = *ev.ClickTimestamp
		}
		return m
	}

	return nil
}

// MatchOrder reconciles a platform order against stored pixel events and
// clicks. Rules are evaluated in order: pixel correlation by order ID,
// customer-email correlation inside the window, then time-window click
// matching per the configured model. Returns nil when nothing fires;
// an unmatched purchase is a valid outcome, never an error.
func (e *Engine) MatchOrder(order *models.Order, pixelEvents []*models.PixelEvent, clicks []*models.Click) *models.AttributionMatch {
	if order == nil {
		return nil
	}

	conversionAt := order.OrderDate
	windowStart := conversionAt.Add(-e.cfg.Window.Duration())

	// Rule 3a: a pixel event already ties this order to a click ID.
	for _, ev := range pixelEvents {
		if ev.OrderID != order.ExternalID || ev.ClickID == "" {
			continue
		}
		m := &models.AttributionMatch{
			OrderID:             order.ExternalID,
			Platform:            ev.Platform,
			ClickID:             ev.ClickID,
			ConversionTimestamp: conversionAt,
			Window:              e.cfg.Window,
			Confidence:          confidenceClickID,
			Method:              models.MethodClickID,
		}
		if ev.ClickTimestamp != nil {
			m.ClickTimestamp = *ev.ClickTimestamp
		} else {
			m.ClickTimestamp = ev.Timestamp
		}
		return m
	}

	// Rule 3b: correlate by customer email inside the window.
	if order.CustomerEmail != "" {
		for _, ev := range pixelEvents {
			if ev.CustomerEmail == "" || ev.CustomerEmail != order.CustomerEmail {
				continue
			}
			if !inWindow(ev.Timestamp, windowStart, conversionAt) {
				continue
			}
			m := &models.AttributionMatch{
				OrderID:             order.ExternalID,
				Platform:            ev.Platform,
				ClickID:             ev.ClickID,
				ClickTimestamp:      ev.Timestamp,
				ConversionTimestamp: conversionAt,
				Window:              e.cfg.Window,
			}
			if ev.ClickID != "" {
				m.Confidence = confidenceEmailClick
				m.Method = models.MethodClickID
			} else {
				m.Confidence = confidenceEmailUTM
				m.Method = models.MethodUTM
				if m.Platform == "" {
					m.Platform = ResolvePlatform(ev.UTMSource)
				}
			}
			return m
		}
	}

	// Rule 3c: time-window click matching over unconverted candidates.
	var candidate *models.Click
	for _, c := range clicks {
		if c.Converted {
			continue
		}
		if !inWindow(c.Timestamp, windowStart, conversionAt) {
			continue
		}
		if candidate == nil {
			candidate = c
			continue
		}
		switch e.cfg.Model {
		case models.ModelFirstClick:
			if c.Timestamp.Before(candidate.Timestamp) {
				candidate = c
			}
		default: // last_click, linear, time_decay
			if c.Timestamp.After(candidate.Timestamp) {
				candidate = c
			}
		}
	}
	if candidate == nil {
		return nil
	}

	confidence := confidenceFirstClick
	if e.cfg.Model != models.ModelFirstClick {
		confidence = e.timeDecayConfidence(conversionAt.Sub(candidate.Timestamp))
	}

	return &models.AttributionMatch{
		OrderID:             order.ExternalID,
		Platform:            candidate.Platform,
		ClickID:             candidate.ClickID,
		ClickTimestamp:      candidate.Timestamp,
		ConversionTimestamp: conversionAt,
		Window:              e.cfg.Window,
		Confidence:          confidence,
		Method:              models.MethodTimeDecay,
	}
}

// timeDecayConfidence scores a click by how recently it preceded the
// conversion: half the remaining window ratio, clamped to [0.1, 0.5].
// Near-boundary clicks approach the floor rather than zero, and no
// time-decay match can outrank a UTM or click-ID match.
func (e *Engine) timeDecayConfidence(elapsed time.Duration) float64 {
	window := e.cfg.Window.Duration()
	ratio := 1 - float64(elapsed)/float64(window)
	confidence := ratio * timeDecayCeiling
	if confidence < timeDecayFloor {
		return timeDecayFloor
	}
	if confidence > timeDecayCeiling {
		return timeDecayCeiling
	}
	return confidence
}

// inWindow reports whether ts lies in [start, end]. Both boundaries are
// inclusive: a click exactly one window before the conversion is still
// eligible, a click after the conversion never is.
func inWindow(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}
