package digest

import (
	"context"
	"testing"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/stats"
	"github.com/azure/social-mentions-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type seed struct {
	id        string
	sentiment models.Sentiment
	score     float64
	keywords  []string
	priority  models.Priority
	respond   bool
	read      bool
	archived  bool
}

func setup(t *testing.T, items []seed, competitors []string) (*Builder, *storage.MemoryStorage) {
	t.Helper()
	ctx := context.Background()
	s := storage.NewMemoryStorage()
	mentions := repository.NewMentionRepository(s)
	tenants := repository.NewTenantRepository(s)

	for i, it := range items {
		score := it.score
		m := models.Mention{
			TenantID:         "acme",
			Platform:         models.PlatformTwitter,
			ExternalID:       it.id,
			Type:             models.TypeBrandMention,
			Content:          "content " + it.id,
			Keywords:         it.keywords,
			Sentiment:        it.sentiment,
			SentimentScore:   &score,
			Priority:         it.priority,
			RequiresResponse: it.respond,
			IsRead:           it.read,
			IsArchived:       it.archived,
			DetectedAt:       time.Now().UTC().Add(-time.Duration(i+1) * time.Hour),
		}
		_, err := mentions.Create(ctx, &m)
		require.NoError(t, err)
	}

	if competitors != nil {
		cfg := models.DefaultMonitoringConfig("acme", []models.Platform{models.PlatformTwitter})
		cfg.BrandKeywords = []string{"Acme"}
		cfg.CompetitorKeywords = competitors
		require.NoError(t, tenants.SaveConfig(ctx, cfg))
	}

	return NewBuilder(mentions, tenants, stats.NewAggregator(mentions, 5), 10), s
}

func TestBuilder_Build(t *testing.T) {
	items := []seed{
		{id: "1", sentiment: models.SentimentNegative, score: -0.8, keywords: []string{"Acme"}, priority: models.PriorityLow, respond: true},
		{id: "2", sentiment: models.SentimentPositive, score: 0.7, keywords: []string{"Globex"}, priority: models.PriorityLow, read: true},
		{id: "3", sentiment: models.SentimentNeutral, score: 0, keywords: []string{"Acme", "Globex"}, priority: models.PriorityCritical, respond: true},
		{id: "4", sentiment: models.SentimentNegative, score: -0.5, keywords: []string{"Initech"}, priority: models.PriorityHigh, respond: true, archived: true},
	}
	builder, _ := setup(t, items, []string{"Globex", "Initech"})

	d, err := builder.Build(context.Background(), "acme", 7)
	require.NoError(t, err)

	assert.Equal(t, 4, d.Stats.Total)
	assert.Equal(t, d.Stats.BrandHealth, d.BrandHealth)

	// unread excludes read and archived, newest first
	require.Len(t, d.RecentUnread, 2)
	assert.Equal(t, "1", d.RecentUnread[0].ExternalID)
	assert.Equal(t, "3", d.RecentUnread[1].ExternalID)

	// most urgent first, archived left out
	require.Len(t, d.NeedsResponse, 2)
	assert.Equal(t, "3", d.NeedsResponse[0].ExternalID)
	assert.Equal(t, "1", d.NeedsResponse[1].ExternalID)

	require.NotNil(t, d.Brand)
	assert.Equal(t, 2, d.Brand.Mentions)
	assert.InDelta(t, -0.4, d.Brand.AvgSentiment, 1e-9)

	require.Len(t, d.Competitors, 2)
	assert.Equal(t, "Globex", d.Competitors[0].Term)
	assert.Equal(t, 2, d.Competitors[0].Mentions)
	assert.Equal(t, "Initech", d.Competitors[1].Term)
	assert.Equal(t, 1, d.Competitors[1].Negative)

	text := d.Render()
	assert.Contains(t, text, "BRAND HEALTH")
	assert.Contains(t, text, "NEEDS RESPONSE")
	assert.Contains(t, text, "COMPETITOR COMPARISON")
	assert.Contains(t, text, "Globex: 2 mentions")
	assert.Contains(t, text, "[CRITICAL]")
}

func TestBuilder_IsReadOnly(t *testing.T) {
	builder, s := setup(t, []seed{{id: "1", sentiment: models.SentimentNeutral, priority: models.PriorityLow}}, nil)
	ctx := context.Background()

	before, err := s.List(ctx, "")
	require.NoError(t, err)

	d, err := builder.Build(ctx, "acme", 7)
	require.NoError(t, err)
	assert.Nil(t, d.Brand)
	assert.Empty(t, d.Competitors)
	assert.NotContains(t, d.Render(), "COMPETITOR COMPARISON")

	after, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestBuilder_EmptyTenant(t *testing.T) {
	builder, _ := setup(t, nil, nil)

	d, err := builder.Build(context.Background(), "acme", 7)
	require.NoError(t, err)
	assert.Empty(t, d.RecentUnread)
	assert.Empty(t, d.NeedsResponse)
	assert.Equal(t, 50.0, d.BrandHealth.Score)
	assert.Contains(t, d.Render(), "Score: 50/100 (stable)")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
	assert.Equal(t, "héé...", truncate("hééllo", 3))
}
