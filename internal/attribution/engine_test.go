package attribution

import (
	"testing"
	"time"

	"github.com/lucametrics/attribution-core/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestMatchPurchaseClickIDBeatsUTM(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	clickAt := ts("2024-03-01T10:00:00Z")
	ev := &models.PixelEvent{
		EventType:      models.EventPurchase,
		OrderID:        "ord-1",
		Platform:       "meta",
		ClickID:        "fbclid-123",
		ClickTimestamp: &clickAt,
		UTMSource:      "tiktok",
		Timestamp:      ts("2024-03-02T10:00:00Z"),
	}

	m := engine.MatchPurchase(ev)
	require.NotNil(t, m)
	assert.Equal(t, models.MethodClickID, m.Method)
	assert.Equal(t, "meta", m.Platform)
	assert.Equal(t, "fbclid-123", m.ClickID)
	assert.Equal(t, 0.95, m.Confidence)
	assert.Equal(t, clickAt, m.ClickTimestamp)
}

func TestMatchPurchaseUTMFallback(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := &models.PixelEvent{
		EventType: models.EventPurchase,
		OrderID:   "ord-2",
		UTMSource: "FB_Newsfeed",
		Timestamp: ts("2024-03-02T10:00:00Z"),
	}

	m := engine.MatchPurchase(ev)
	require.NotNil(t, m)
	assert.Equal(t, models.MethodUTM, m.Method)
	assert.Equal(t, "meta", m.Platform)
	assert.Equal(t, 0.75, m.Confidence)
}

func TestMatchPurchaseUnknownSourceKeptRaw(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := &models.PixelEvent{
		EventType: models.EventPurchase,
		OrderID:   "ord-3",
		UTMSource: "newsletter",
		Timestamp: ts("2024-03-02T10:00:00Z"),
	}

	m := engine.MatchPurchase(ev)
	require.NotNil(t, m)
	assert.Equal(t, "newsletter", m.Platform)
}

func TestMatchPurchaseNoSignal(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	ev := &models.PixelEvent{
		EventType: models.EventPurchase,
		OrderID:   "ord-4",
		Timestamp: ts("2024-03-02T10:00:00Z"),
	}

	assert.Nil(t, engine.MatchPurchase(ev))
	assert.Nil(t, engine.MatchPurchase(nil))
	assert.Nil(t, engine.MatchPurchase(&models.PixelEvent{EventType: models.EventPageView, ClickID: "x", Platform: "meta"}))
}

func TestMatchOrderPixelCorrelation(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	order := &models.Order{
		ExternalID:     "ord-10",
		OrganizationID: "org-1",
		OrderDate:      ts("2024-03-10T12:00:00Z"),
	}
	events := []*models.PixelEvent{
		{ID: "ev-1", OrderID: "ord-10", ClickID: "gclid-9", Platform: "google", EventType: models.EventPurchase, Timestamp: ts("2024-03-10T11:59:00Z")},
	}

	m := engine.MatchOrder(order, events, nil)
	require.NotNil(t, m)
	assert.Equal(t, models.MethodClickID, m.Method)
	assert.Equal(t, "google", m.Platform)
	assert.Equal(t, 0.95, m.Confidence)
}

func TestMatchOrderEmailCorrelation(t *testing.T) {
	engine := NewEngine(DefaultConfig())

	order := &models.Order{
		ExternalID:    "ord-11",
		CustomerEmail: "buyer@example.com",
		OrderDate:     ts("2024-03-10T12:00:00Z"),
	}

	t.Run("with click id", func(t *testing.T) {
		events := []*models.PixelEvent{
			{CustomerEmail: "buyer@example.com", ClickID: "ttclid-1", Platform: "tiktok", Timestamp: ts("2024-03-08T12:00:00Z")},
		}
		m := engine.MatchOrder(order, events, nil)
		require.NotNil(t, m)
		assert.Equal(t, models.MethodClickID, m.Method)
		assert.Equal(t, 0.9, m.Confidence)
	})

	t.Run("utm only", func(t *testing.T) {
		events := []*models.PixelEvent{
			{CustomerEmail: "buyer@example.com", UTMSource: "snap_ads", Timestamp: ts("2024-03-08T12:00:00Z")},
		}
		m := engine.MatchOrder(order, events, nil)
		require.NotNil(t, m)
		assert.Equal(t, models.MethodUTM, m.Method)
		assert.Equal(t, 0.7, m.Confidence)
		assert.Equal(t, "snapchat", m.Platform)
	})

	t.Run("outside window ignored", func(t *testing.T) {
		events := []*models.PixelEvent{
			{CustomerEmail: "buyer@example.com", ClickID: "old", Platform: "meta", Timestamp: ts("2024-02-10T12:00:00Z")},
		}
		assert.Nil(t, engine.MatchOrder(order, events, nil))
	})
}

func TestMatchOrderTimeWindowLastClick(t *testing.T) {
	engine := NewEngine(Config{Window: models.Window7DClick, Model: models.ModelLastClick})

	order := &models.Order{ExternalID: "ord-20", OrderDate: ts("2024-03-10T00:00:00Z")}
	clicks := []*models.Click{
		{ID: "c1", Platform: "meta", ClickID: "a", Timestamp: ts("2024-03-05T00:00:00Z")},
		{ID: "c2", Platform: "google", ClickID: "b", Timestamp: ts("2024-03-09T00:00:00Z")},
		{ID: "c3", Platform: "tiktok", ClickID: "c", Timestamp: ts("2024-03-08T00:00:00Z"), Converted: true},
	}

	m := engine.MatchOrder(order, nil, clicks)
	require.NotNil(t, m)
	assert.Equal(t, models.MethodTimeDecay, m.Method)
	assert.Equal(t, "google", m.Platform)
	assert.Equal(t, "b", m.ClickID)
}

func TestMatchOrderWindowBoundaryInclusive(t *testing.T) {
	engine := NewEngine(Config{Window: models.Window7DClick, Model: models.ModelLastClick})

	order := &models.Order{ExternalID: "ord-21", OrderDate: ts("2024-03-10T00:00:00Z")}

	boundary := &models.Click{ID: "c1", Platform: "meta", Timestamp: ts("2024-03-03T00:00:00Z")}
	m := engine.MatchOrder(order, nil, []*models.Click{boundary})
	require.NotNil(t, m, "click exactly one window before conversion is eligible")

	tooOld := &models.Click{ID: "c2", Platform: "meta", Timestamp: ts("2024-03-03T00:00:00Z").Add(-time.Millisecond)}
	assert.Nil(t, engine.MatchOrder(order, nil, []*models.Click{tooOld}))

	after := &models.Click{ID: "c3", Platform: "meta", Timestamp: ts("2024-03-10T00:00:01Z")}
	assert.Nil(t, engine.MatchOrder(order, nil, []*models.Click{after}))
}

func TestMatchOrderFirstClickModel(t *testing.T) {
	engine := NewEngine(Config{Window: models.Window7DClick, Model: models.ModelFirstClick})

	order := &models.Order{ExternalID: "ord-22", OrderDate: ts("2024-03-10T00:00:00Z")}
	clicks := []*models.Click{
		{ID: "c1", Platform: "meta", Timestamp: ts("2024-03-05T00:00:00Z")},
		{ID: "c2", Platform: "google", Timestamp: ts("2024-03-09T00:00:00Z")},
	}

	m := engine.MatchOrder(order, nil, clicks)
	require.NotNil(t, m)
	assert.Equal(t, "meta", m.Platform)
	assert.Equal(t, 0.4, m.Confidence)
}

func TestMatchOrderNoCandidates(t *testing.T) {
	engine := NewEngine(DefaultConfig())
	order := &models.Order{ExternalID: "ord-23", OrderDate: ts("2024-03-10T00:00:00Z")}

	assert.Nil(t, engine.MatchOrder(order, nil, nil))
	assert.Nil(t, engine.MatchOrder(nil, nil, nil))
}

func TestTimeDecayConfidence(t *testing.T) {
	engine := NewEngine(Config{Window: models.Window7DClick, Model: models.ModelLastClick})
	window := 7 * 24 * time.Hour

	cases := []struct {
		name    string
		elapsed time.Duration
		want    float64
	}{
		{"immediate", 0, 0.5},
		{"half window", window / 2, 0.25},
		{"full window clamps to floor", window, 0.1},
		{"near boundary clamps to floor", window - time.Minute, 0.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, engine.timeDecayConfidence(tc.elapsed), 1e-6)
		})
	}
}

func TestResolvePlatform(t *testing.T) {
	cases := []struct {
		source string
		want   string
	}{
		{"facebook", "meta"},
		{"FB_Newsfeed", "meta"},
		{"l.instagram.com", "meta"},
		{"ig_stories", "meta"},
		{"snap", "snapchat"},
		{"Snapchat_Ads", "snapchat"},
		{"tiktok", "tiktok"},
		{"tt_spark", "tiktok"},
		{"google", "google"},
		{"gads_search", "google"},
		{"adwords", "google"},
		{"newsletter", ""},
		{"", ""},
		{"  ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ResolvePlatform(tc.source), "source %q", tc.source)
	}
}
