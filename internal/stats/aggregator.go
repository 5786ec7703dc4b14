// Package stats computes windowed statistics and brand health over a
// tenant's stored items.
package stats

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/repository"
)

const (
	DefaultDays = 7
	DefaultTopN = 10
	// MaxDays bounds the window so its duration stays representable
	MaxDays = 3650

	trendDelta = 0.1
)

// Aggregator builds Stats snapshots from the mention repository
type Aggregator struct {
	repo *repository.MentionRepository
	topN int
	now  func() time.Time
}

func NewAggregator(repo *repository.MentionRepository, topN int) *Aggregator {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Aggregator{repo: repo, topN: topN, now: time.Now}
}

// Snapshot computes stats over items detected in the last days days.
// Items flagged as spam are left out.
func (a *Aggregator) Snapshot(ctx context.Context, tenantID string, days int) (*models.Stats, error) {
	days = ClampDays(days)
	now := a.now().UTC()

	items, err := a.repo.List(ctx, tenantID, repository.Filter{Since: windowStart(now, days)})
	if err != nil {
		return nil, fmt.Errorf("failed to load items for stats: %w", err)
	}

	s := Compute(items, now, days, a.topN)
	s.TenantID = tenantID
	return s, nil
}

// ClampDays maps a non-positive window to DefaultDays and caps it at MaxDays
func ClampDays(days int) int {
	switch {
	case days <= 0:
		return DefaultDays
	case days > MaxDays:
		return MaxDays
	default:
		return days
	}
}

func windowStart(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}

// Compute is the pure aggregation behind Snapshot. Items outside the window
// and spam are ignored.
func Compute(items []models.Mention, now time.Time, days, topN int) *models.Stats {
	days = ClampDays(days)
	since := windowStart(now, days)

	var window []models.Mention
	for _, m := range items {
		if m.IsSpam || m.DetectedAt.Before(since) {
			continue
		}
		window = append(window, m)
	}
	sortChronologically(window)

	s := &models.Stats{
		Days:        days,
		Since:       since,
		GeneratedAt: now,
		Total:       len(window),
		Platforms:   make(map[models.Platform]models.PlatformStats),
		Sentiment:   make(map[models.Sentiment]int),
		Priority:    make(map[models.Priority]int),
	}

	type platformAcc struct {
		stats                     models.PlatformStats
		sentimentSum, responseSum float64
		scored, replied           int
	}
	platforms := make(map[models.Platform]*platformAcc)

	var responseSum float64
	var replied, required, requiredReplied int
	hashtags := newCounter()
	keywords := newCounter()

	for i := range window {
		m := &window[i]

		acc, ok := platforms[m.Platform]
		if !ok {
			acc = &platformAcc{}
			platforms[m.Platform] = acc
		}
		acc.stats.Count++

		if !m.IsRead {
			s.Unread++
			acc.stats.Unread++
		}

		if m.Sentiment == "" {
			s.Unclassified++
		} else {
			s.Sentiment[m.Sentiment]++
		}
		if m.SentimentScore != nil {
			acc.sentimentSum += *m.SentimentScore
			acc.scored++
		}
		if m.Priority != "" {
			s.Priority[m.Priority]++
		}

		if m.HasReplied && m.RepliedAt != nil {
			hours := math.Max(0, m.RepliedAt.Sub(m.DetectedAt).Hours())
			responseSum += hours
			replied++
			acc.responseSum += hours
			acc.replied++
		}
		if m.RequiresResponse {
			required++
			if m.HasReplied {
				requiredReplied++
			}
		}

		hashtags.add(m.Hashtags)
		keywords.add(m.Keywords)
	}

	for p, acc := range platforms {
		if acc.scored > 0 {
			acc.stats.AvgSentiment = acc.sentimentSum / float64(acc.scored)
		}
		if acc.replied > 0 {
			acc.stats.AvgResponseTimeHours = acc.responseSum / float64(acc.replied)
		}
		s.Platforms[p] = acc.stats
	}

	if replied > 0 {
		s.AvgResponseTimeHours = responseSum / float64(replied)
	}
	s.ResponseRate = ResponseRate(required, requiredReplied)
	s.TopHashtags = hashtags.top(topN)
	s.TopKeywords = keywords.top(topN)
	s.BrandHealth = BrandHealthOf(window)

	return s
}

// ResponseRate is the percentage of items needing a response that got one.
// With nothing to answer the rate is 100.
func ResponseRate(required, replied int) float64 {
	if required == 0 {
		return 100
	}
	return float64(replied) / float64(required) * 100
}

// BrandHealthOf scores the sentiment distribution of items:
// positive% x 100 + neutral% x 50 - negative% x 50, clamped to [0,100].
// Unclassified items are not counted. With no classified items the score is
// a neutral 50.
func BrandHealthOf(items []models.Mention) models.BrandHealth {
	var positive, neutral, negative int
	for _, m := range items {
		switch m.Sentiment {
		case models.SentimentPositive:
			positive++
		case models.SentimentNeutral:
			neutral++
		case models.SentimentNegative:
			negative++
		}
	}

	health := models.BrandHealth{Score: 50, Trend: Trend(items)}
	if total := positive + neutral + negative; total > 0 {
		score := float64(positive*100+neutral*50-negative*50) / float64(total)
		health.Score = math.Max(0, math.Min(100, score))
	}
	return health
}

// Trend splits items chronologically in half and compares the mean sentiment
// score of the halves
func Trend(items []models.Mention) string {
	ordered := append([]models.Mention(nil), items...)
	sortChronologically(ordered)

	half := len(ordered) / 2
	if half == 0 {
		return models.TrendStable
	}

	first, okFirst := meanScore(ordered[:half])
	second, okSecond := meanScore(ordered[half:])
	if !okFirst || !okSecond {
		return models.TrendStable
	}

	switch diff := second - first; {
	case diff > trendDelta:
		return models.TrendImproving
	case diff < -trendDelta:
		return models.TrendDeclining
	default:
		return models.TrendStable
	}
}

func meanScore(items []models.Mention) (float64, bool) {
	var sum float64
	var n int
	for _, m := range items {
		if m.SentimentScore != nil {
			sum += *m.SentimentScore
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func sortChronologically(items []models.Mention) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DetectedAt.Before(items[j].DetectedAt)
	})
}

// counter ranks terms by frequency, ties going to the term seen first
type counter struct {
	counts map[string]int
	order  []string
}

func newCounter() *counter {
	return &counter{counts: make(map[string]int)}
}

func (c *counter) add(terms []string) {
	for _, t := range terms {
		if _, ok := c.counts[t]; !ok {
			c.order = append(c.order, t)
		}
		c.counts[t]++
	}
}

func (c *counter) top(n int) []models.TermCount {
	ranked := make([]models.TermCount, 0, len(c.order))
	for _, t := range c.order {
		ranked = append(ranked, models.TermCount{Term: t, Count: c.counts[t]})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Count > ranked[j].Count
	})

	if n > 0 && len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}
