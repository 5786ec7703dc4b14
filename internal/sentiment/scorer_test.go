package sentiment

import (
	"testing"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/stretchr/testify/assert"
)

func floatPtr(f float64) *float64 { return &f }

func TestPriority(t *testing.T) {
	tests := []struct {
		name       string
		engagement models.Engagement
		followers  int
		expected   models.Priority
	}{
		{"Viral", models.Engagement{Likes: 1000, Comments: 300, Shares: 200}, 0, models.PriorityCritical},
		{"Mega influencer", models.Engagement{}, 150000, models.PriorityCritical},
		{"High engagement", models.Engagement{Likes: 101}, 0, models.PriorityHigh},
		{"Influencer", models.Engagement{}, 20000, models.PriorityHigh},
		{"Some engagement", models.Engagement{Likes: 30, Comments: 20}, 500, models.PriorityMedium},
		{"Small account", models.Engagement{}, 1500, models.PriorityMedium},
		{"Quiet", models.Engagement{Likes: 10}, 1000, models.PriorityLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Priority(tt.engagement, tt.followers))
		})
	}
}

func TestCheckUrgency(t *testing.T) {
	tests := []struct {
		name    string
		mention models.Mention
		urgent  bool
		reasons []string
	}{
		{
			name:    "Very negative",
			mention: models.Mention{SentimentScore: floatPtr(-0.7)},
			urgent:  true,
			reasons: []string{"Very negative sentiment detected"},
		},
		{
			name:    "Borderline negative",
			mention: models.Mention{SentimentScore: floatPtr(-0.6)},
			urgent:  false,
		},
		{
			name:    "Angry",
			mention: models.Mention{Emotions: &models.Emotions{Anger: 0.8}},
			urgent:  true,
			reasons: []string{ReasonStrongEmotion},
		},
		{
			name:    "Complaint with engagement",
			mention: models.Mention{Intent: "complaint", Engagement: models.Engagement{Likes: 40, Shares: 11}},
			urgent:  true,
			reasons: []string{ReasonViralComplaint},
		},
		{
			name:    "Quiet complaint",
			mention: models.Mention{Intent: "complaint", Engagement: models.Engagement{Likes: 50}},
			urgent:  false,
		},
		{
			name:    "Critical and very negative",
			mention: models.Mention{Priority: models.PriorityCritical, SentimentScore: floatPtr(-0.9)},
			urgent:  true,
			reasons: []string{ReasonVeryNegative, ReasonCriticalPriority},
		},
		{
			name:    "Unclassified",
			mention: models.Mention{Priority: models.PriorityHigh},
			urgent:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := CheckUrgency(&tt.mention)
			assert.Equal(t, tt.urgent, u.IsUrgent)
			assert.Equal(t, tt.reasons, u.Reasons)
			assert.Len(t, u.Actions, len(u.Reasons))
		})
	}
}

func TestCheckAlert_Thresholds(t *testing.T) {
	thresholds := models.Thresholds{EngagementFloor: 100, NegativeSentimentFloor: -0.5, InfluencerFollowers: 10000}

	m := models.Mention{
		SentimentScore: floatPtr(-0.55),
		Engagement:     models.Engagement{Likes: 120},
		Author:         models.Author{Followers: 50000},
	}
	u := CheckAlert(&m, thresholds)
	assert.True(t, u.IsUrgent)
	assert.Len(t, u.Reasons, 2)

	m.SentimentScore = floatPtr(0.2)
	assert.False(t, CheckAlert(&m, thresholds).IsUrgent)
}

func TestApplyPrecedence(t *testing.T) {
	m := models.Mention{Engagement: models.Engagement{Likes: 1500}}

	ApplyHeuristic(&m)
	assert.Equal(t, models.PriorityCritical, m.Priority)
	assert.Equal(t, models.PrioritySourceHeuristic, m.PrioritySource)

	Apply(&m, models.Classification{Sentiment: models.SentimentNeutral, Priority: models.PriorityLow})
	assert.Equal(t, models.PriorityLow, m.Priority)
	assert.True(t, m.IsClassified())

	ApplyHeuristic(&m)
	assert.Equal(t, models.PriorityLow, m.Priority)
}
