package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/azure/social-mentions-monitor/internal/digest"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/monitoring"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/azure/social-mentions-monitor/internal/stats"
	"github.com/azure/social-mentions-monitor/internal/storage"
	"github.com/azure/social-mentions-monitor/internal/triage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockPipeline struct {
	mock.Mock
}

func (m *MockPipeline) RunIngestion(ctx context.Context, tenantID string) (*monitoring.RunResult, error) {
	args := m.Called(ctx, tenantID)
	result, _ := args.Get(0).(*monitoring.RunResult)
	return result, args.Error(1)
}

func (m *MockPipeline) GetMetrics() string {
	return m.Called().String(0)
}

type replyAdapter struct {
	err error
}

func (a *replyAdapter) Platform() models.Platform { return models.PlatformTwitter }

func (a *replyAdapter) Reply(ctx context.Context, conn models.Connection, target *models.Mention, text string) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	return "reply-1", nil
}

type fixture struct {
	router   http.Handler
	pipeline *MockPipeline
	mentions *repository.MentionRepository
	tenants  *repository.TenantRepository
	adapter  *replyAdapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := storage.NewMemoryStorage()
	f := &fixture{
		pipeline: &MockPipeline{},
		mentions: repository.NewMentionRepository(store),
		tenants:  repository.NewTenantRepository(store),
		adapter:  &replyAdapter{},
	}

	registry := sources.NewRegistry(f.adapter)
	triageStore := triage.NewStore(f.mentions)
	aggregator := stats.NewAggregator(f.mentions, 0)

	h := New(Dependencies{
		Pipeline:   f.pipeline,
		Tenants:    f.tenants,
		Mentions:   f.mentions,
		Store:      triageStore,
		Dispatcher: triage.NewDispatcher(triageStore, registry, f.tenants),
		Aggregator: aggregator,
		Digests:    digest.NewBuilder(f.mentions, f.tenants, aggregator, 0),
		Registry:   registry,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("# metrics"))
		}),
	})
	f.router = h.Router()

	return f
}

func (f *fixture) seed(t *testing.T, externalID, content string, score float64) *models.Mention {
	t.Helper()
	now := time.Now().UTC()
	m := &models.Mention{
		ID:             models.ItemID("acme", models.PlatformTwitter, externalID),
		TenantID:       "acme",
		Platform:       models.PlatformTwitter,
		ExternalID:     externalID,
		Type:           models.TypeBrandMention,
		Content:        content,
		Sentiment:      models.SentimentNeutral,
		SentimentScore: &score,
		Priority:       models.PriorityLow,
		PrioritySource: models.PrioritySourceClassifier,
		CreatedAt:      now.Add(-time.Hour),
		DetectedAt:     now,
	}
	created, err := f.mentions.Create(context.Background(), m)
	require.NoError(t, err)
	require.True(t, created)
	return m
}

func (f *fixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealthAndStatus(t *testing.T) {
	f := newFixture(t)
	f.pipeline.On("GetMetrics").Return(`{"total_runs":3}`)

	rec := f.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "healthy")

	rec = f.do(http.MethodGet, "/status", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"total_runs":3}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, "# metrics", rec.Body.String())
}

func TestConfig(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodGet, "/tenants/acme/config", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	cfg := decodeBody[models.MonitoringConfig](t, rec)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, []models.Platform{models.PlatformTwitter}, cfg.Platforms)

	cfg.BrandKeywords = []string{"Acme"}
	cfg.TenantID = "someone-else"
	rec = f.do(http.MethodPut, "/tenants/acme/config", cfg)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.tenants.FindConfig(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "acme", stored.TenantID)
	assert.Equal(t, []string{"Acme"}, stored.BrandKeywords)
}

func TestConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{"Malformed JSON", "{"},
		{"Unknown field", `{"brand":"x"}`},
		{"Unsupported platform", map[string]any{"platforms": []string{"myspace"}}},
		{"Floor out of range", map[string]any{"thresholds": map[string]any{"negative_sentiment_floor": -2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.do(http.MethodPut, "/tenants/acme/config", tt.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.NotEmpty(t, decodeBody[map[string]string](t, rec)["error"])
		})
	}
}

func TestPutConnections(t *testing.T) {
	f := newFixture(t)

	rec := f.do(http.MethodPut, "/tenants/acme/connections", []models.Connection{
		{Platform: models.PlatformTwitter, AccessToken: "token"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	conns, err := f.tenants.GetConnections(context.Background(), "acme")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "token", conns[0].AccessToken)

	rec = f.do(http.MethodPut, "/tenants/acme/connections", []models.Connection{
		{Platform: models.PlatformTwitter},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest(t *testing.T) {
	f := newFixture(t)
	f.pipeline.On("RunIngestion", mock.Anything, "acme").
		Return(&monitoring.RunResult{TenantID: "acme", Saved: 2}, nil).Once()
	f.pipeline.On("RunIngestion", mock.Anything, "broken").
		Return(nil, errors.New("storage offline")).Once()

	rec := f.do(http.MethodPost, "/tenants/acme/ingest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, decodeBody[monitoring.RunResult](t, rec).Saved)

	rec = f.do(http.MethodPost, "/tenants/broken/ingest", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "storage offline", decodeBody[map[string]string](t, rec)["error"])

	f.pipeline.AssertExpectations(t)
}

func TestListMentions(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", "first", 0.1)
	read := f.seed(t, "2", "second", 0.2)

	rec := f.do(http.MethodPost, "/tenants/acme/mentions/"+read.ID+"/read", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodGet, "/tenants/acme/mentions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[[]models.Mention](t, rec), 2)

	rec = f.do(http.MethodGet, "/tenants/acme/mentions?unread=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody[[]models.Mention](t, rec)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].ExternalID)

	rec = f.do(http.MethodGet, "/tenants/other/mentions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]", strings.TrimSpace(rec.Body.String()))

	for _, bad := range []string{"?limit=0", "?limit=abc", "?unread=maybe", "?platform=myspace"} {
		rec = f.do(http.MethodGet, "/tenants/acme/mentions"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestTriageActions(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, "1", "hello", 0)
	base := "/tenants/acme/mentions/" + m.ID

	rec := f.do(http.MethodPost, base+"/star", map[string]bool{"starred": true})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[models.Mention](t, rec).IsStarred)

	rec = f.do(http.MethodPost, base+"/star", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, base+"/spam", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	item := decodeBody[models.Mention](t, rec)
	assert.True(t, item.IsSpam)
	assert.True(t, item.IsArchived)

	rec = f.do(http.MethodGet, "/tenants/acme/mentions", nil)
	assert.Len(t, decodeBody[[]models.Mention](t, rec), 0)

	rec = f.do(http.MethodGet, "/tenants/acme/mentions?archived=true", nil)
	assert.Len(t, decodeBody[[]models.Mention](t, rec), 1)

	rec = f.do(http.MethodPost, "/tenants/acme/mentions/missing/archive", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReply(t *testing.T) {
	f := newFixture(t)
	m := f.seed(t, "1", "question?", 0)
	require.NoError(t, f.tenants.SaveConnections(context.Background(), "acme", []models.Connection{
		{Platform: models.PlatformTwitter, AccessToken: "token"},
	}))
	path := "/tenants/acme/mentions/" + m.ID + "/reply"

	rec := f.do(http.MethodPost, path, map[string]string{"text": "  "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodPost, "/tenants/acme/mentions/missing/reply", map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	f.adapter.err = errors.New("tweet rejected")
	rec = f.do(http.MethodPost, path, map[string]string{"text": "hi"})
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	failed := decodeBody[triage.ReplyResult](t, rec)
	assert.False(t, failed.Success)
	assert.Contains(t, failed.Error, "tweet rejected")

	f.adapter.err = nil
	rec = f.do(http.MethodPost, path, map[string]string{"text": "Thanks!"})
	require.Equal(t, http.StatusOK, rec.Code)
	result := decodeBody[triage.ReplyResult](t, rec)
	assert.True(t, result.Success)
	assert.Equal(t, "reply-1", result.ReplyID)
	require.NotNil(t, result.Item)
	assert.True(t, result.Item.HasReplied)
}

func TestStatsAndDigest(t *testing.T) {
	f := newFixture(t)
	f.seed(t, "1", "Acme rocks", 0.8)

	rec := f.do(http.MethodGet, "/tenants/acme/stats?days=7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	snapshot := decodeBody[models.Stats](t, rec)
	assert.Equal(t, 1, snapshot.Total)
	assert.Equal(t, 7, snapshot.Days)

	rec = f.do(http.MethodGet, "/tenants/acme/stats?days=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/tenants/acme/stats?days=200000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/tenants/acme/digest?days=200000", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/tenants/acme/digest", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decodeBody[digest.Digest](t, rec)
	assert.Equal(t, "acme", d.TenantID)
	assert.Len(t, d.RecentUnread, 1)

	rec = f.do(http.MethodGet, "/tenants/acme/digest?format=text", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.String())
}
