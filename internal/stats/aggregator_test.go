package stats

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

func scored(s models.Sentiment, score float64, detected time.Time) models.Mention {
	return models.Mention{
		TenantID:       "acme",
		Platform:       models.PlatformTwitter,
		Sentiment:      s,
		SentimentScore: &score,
		DetectedAt:     detected,
		CreatedAt:      detected.Add(-time.Minute),
	}
}

func TestBrandHealthOf(t *testing.T) {
	tests := []struct {
		name     string
		positive int
		neutral  int
		negative int
		expected float64
	}{
		{"Mixed", 6, 3, 1, 70},
		{"All positive", 4, 0, 0, 100},
		{"All negative clamps at zero", 0, 0, 5, 0},
		{"All neutral", 0, 2, 0, 50},
		{"No items", 0, 0, 0, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var items []models.Mention
			for i := 0; i < tt.positive; i++ {
				items = append(items, scored(models.SentimentPositive, 0.5, now))
			}
			for i := 0; i < tt.neutral; i++ {
				items = append(items, scored(models.SentimentNeutral, 0, now))
			}
			for i := 0; i < tt.negative; i++ {
				items = append(items, scored(models.SentimentNegative, -0.5, now))
			}

			assert.InDelta(t, tt.expected, BrandHealthOf(items).Score, 1e-9)
		})
	}
}

func TestTrend(t *testing.T) {
	series := func(scores ...float64) []models.Mention {
		var items []models.Mention
		for i, s := range scores {
			items = append(items, scored(models.SentimentNeutral, s, now.Add(time.Duration(i)*time.Hour)))
		}
		return items
	}

	assert.Equal(t, models.TrendImproving, Trend(series(-0.5, -0.3, 0.2, 0.4)))
	assert.Equal(t, models.TrendDeclining, Trend(series(0.6, 0.5, 0.1, -0.2)))
	assert.Equal(t, models.TrendStable, Trend(series(0.2, 0.1, 0.15, 0.2)))
	assert.Equal(t, models.TrendStable, Trend(series(0.9)))
	assert.Equal(t, models.TrendStable, Trend(nil))

	// order of the input does not matter
	items := series(-0.5, -0.3, 0.2, 0.4)
	items[0], items[3] = items[3], items[0]
	assert.Equal(t, models.TrendImproving, Trend(items))
}

func TestResponseRate(t *testing.T) {
	assert.Equal(t, 60.0, ResponseRate(5, 3))
	assert.Equal(t, 100.0, ResponseRate(0, 0))
	assert.Equal(t, 0.0, ResponseRate(4, 0))
}

func TestCompute(t *testing.T) {
	replied := func(m models.Mention, after time.Duration) models.Mention {
		at := m.DetectedAt.Add(after)
		m.HasReplied = true
		m.RepliedAt = &at
		return m
	}

	a := scored(models.SentimentPositive, 0.8, now.Add(-2*time.Hour))
	a.Hashtags = []string{"#launch", "#acme"}
	a.Keywords = []string{"Acme"}
	a.Priority = models.PriorityLow
	a.RequiresResponse = true
	a = replied(a, 2*time.Hour)

	b := scored(models.SentimentNegative, -0.6, now.Add(-time.Hour))
	b.Platform = models.PlatformReddit
	b.Hashtags = []string{"#acme"}
	b.Keywords = []string{"Acme", "Globex"}
	b.Priority = models.PriorityHigh
	b.RequiresResponse = true
	b.IsRead = true

	c := scored(models.SentimentNeutral, 0, now.Add(-30*time.Minute))
	c.Hashtags = []string{"#launch"}
	c.Priority = models.PriorityLow
	c = replied(c, 4*time.Hour)

	old := scored(models.SentimentNegative, -1, now.Add(-10*24*time.Hour))
	spam := scored(models.SentimentNegative, -1, now)
	spam.IsSpam = true

	unclassified := models.Mention{Platform: models.PlatformTwitter, DetectedAt: now.Add(-3 * time.Hour), Priority: models.PriorityMedium}

	s := Compute([]models.Mention{a, b, c, old, spam, unclassified}, now, 7, 10)

	assert.Equal(t, 4, s.Total)
	assert.Equal(t, 3, s.Unread)
	assert.Equal(t, 1, s.Unclassified)
	assert.Equal(t, map[models.Sentiment]int{
		models.SentimentPositive: 1, models.SentimentNegative: 1, models.SentimentNeutral: 1,
	}, s.Sentiment)
	assert.Equal(t, map[models.Priority]int{
		models.PriorityLow: 2, models.PriorityHigh: 1, models.PriorityMedium: 1,
	}, s.Priority)

	twitter := s.Platforms[models.PlatformTwitter]
	assert.Equal(t, 3, twitter.Count)
	assert.Equal(t, 3, twitter.Unread)
	assert.InDelta(t, 0.4, twitter.AvgSentiment, 1e-9)
	assert.InDelta(t, 3.0, twitter.AvgResponseTimeHours, 1e-9)
	assert.Equal(t, 1, s.Platforms[models.PlatformReddit].Count)

	assert.InDelta(t, 3.0, s.AvgResponseTimeHours, 1e-9)
	assert.Equal(t, 50.0, s.ResponseRate)

	assert.Equal(t, []models.TermCount{{Term: "#launch", Count: 2}, {Term: "#acme", Count: 2}}, s.TopHashtags)
	assert.Equal(t, []models.TermCount{{Term: "Acme", Count: 2}, {Term: "Globex", Count: 1}}, s.TopKeywords)
	assert.InDelta(t, 100.0/3, s.BrandHealth.Score, 1e-9)
}

func TestCompute_TopNTieBreakFirstSeen(t *testing.T) {
	var items []models.Mention
	for i, tags := range [][]string{{"#b"}, {"#a"}, {"#c", "#a"}, {"#b"}} {
		m := scored(models.SentimentNeutral, 0, now.Add(time.Duration(i-10)*time.Minute))
		m.Hashtags = tags
		items = append(items, m)
	}

	s := Compute(items, now, 1, 2)
	assert.Equal(t, []models.TermCount{{Term: "#b", Count: 2}, {Term: "#a", Count: 2}}, s.TopHashtags)
}

func TestCompute_HugeWindowIsCapped(t *testing.T) {
	items := []models.Mention{
		scored(models.SentimentPositive, 0.8, now.Add(-time.Hour)),
		scored(models.SentimentNegative, -0.4, now.Add(-400*24*time.Hour)),
	}

	s := Compute(items, now, 200000, 5)
	assert.Equal(t, MaxDays, s.Days)
	assert.True(t, s.Since.Before(now))
	assert.Equal(t, 2, s.Total)
}

func TestClampDays(t *testing.T) {
	tests := []struct {
		name     string
		days     int
		expected int
	}{
		{"Zero uses default", 0, DefaultDays},
		{"Negative uses default", -3, DefaultDays},
		{"In range", 30, 30},
		{"At cap", MaxDays, MaxDays},
		{"Over cap", 200000, MaxDays},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClampDays(tt.days))
		})
	}
}

func TestAggregator_Snapshot(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMentionRepository(storage.NewMemoryStorage())

	sentiments := []models.Sentiment{
		models.SentimentPositive, models.SentimentPositive, models.SentimentPositive,
		models.SentimentPositive, models.SentimentPositive, models.SentimentPositive,
		models.SentimentNeutral, models.SentimentNeutral, models.SentimentNeutral,
		models.SentimentNegative,
	}
	for i, s := range sentiments {
		m := scored(s, 0, now.Add(-time.Duration(i+1)*time.Hour))
		m.ExternalID = fmt.Sprintf("ext-%d", i)
		created, err := repo.Create(ctx, &m)
		require.NoError(t, err)
		require.True(t, created)
	}

	agg := NewAggregator(repo, 5)
	agg.now = func() time.Time { return now }

	s, err := agg.Snapshot(ctx, "acme", 7)
	require.NoError(t, err)
	assert.Equal(t, "acme", s.TenantID)
	assert.Equal(t, 10, s.Total)
	assert.InDelta(t, 70.0, s.BrandHealth.Score, 1e-9)
	assert.Equal(t, 100.0, s.ResponseRate)

	empty, err := agg.Snapshot(ctx, "nobody", 0)
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Total)
	assert.Equal(t, DefaultDays, empty.Days)
	assert.Equal(t, 50.0, empty.BrandHealth.Score)
	assert.Equal(t, models.TrendStable, empty.BrandHealth.Trend)
}
