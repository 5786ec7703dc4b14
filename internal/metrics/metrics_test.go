package metrics

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/stretchr/testify/assert"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestFetchCompleted(t *testing.T) {
	m := New()

	m.FetchCompleted(models.PlatformTwitter, 3, nil, time.Second)
	m.FetchCompleted(models.PlatformTwitter, 1, errors.New("rate limited"), time.Second)
	m.FetchCompleted(models.PlatformReddit, 0, errors.New("down"), time.Second)

	body := scrape(t, m)
	assert.Contains(t, body, `mentions_ingestion_items_fetched_total{platform="twitter"} 4`)
	assert.Contains(t, body, `mentions_ingestion_adapter_errors_total{platform="twitter"} 1`)
	assert.Contains(t, body, `mentions_ingestion_adapter_errors_total{platform="reddit"} 1`)
	assert.Contains(t, body, `mentions_ingestion_fetch_duration_seconds_count{platform="twitter"} 2`)
}

func TestItemPersisted(t *testing.T) {
	m := New()

	m.ItemPersisted(models.PlatformYouTube, true)
	m.ItemPersisted(models.PlatformYouTube, true)
	m.ItemPersisted(models.PlatformYouTube, false)

	body := scrape(t, m)
	assert.Contains(t, body, `mentions_ingestion_items_saved_total{platform="youtube"} 2`)
	assert.Contains(t, body, `mentions_ingestion_items_duplicate_total{platform="youtube"} 1`)
}

func TestObserveClassificationAndAlerts(t *testing.T) {
	m := New()

	m.ObserveClassification("ok", 100*time.Millisecond)
	m.ObserveClassification("fallback", time.Second)
	m.AlertDelivered(nil)
	m.AlertDelivered(errors.New("smtp down"))

	body := scrape(t, m)
	assert.Contains(t, body, `mentions_classifier_classifications_total{outcome="ok"} 1`)
	assert.Contains(t, body, `mentions_classifier_classifications_total{outcome="fallback"} 1`)
	assert.Contains(t, body, `mentions_classifier_duration_seconds_count 2`)
	assert.Contains(t, body, `mentions_notifications_alerts_total{status="sent"} 1`)
	assert.Contains(t, body, `mentions_notifications_alerts_total{status="failed"} 1`)
}

func TestHandler_IncludesRuntimeCollectors(t *testing.T) {
	body := scrape(t, New())
	assert.Contains(t, body, "go_goroutines")
}
