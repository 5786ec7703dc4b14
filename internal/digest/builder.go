// Package digest assembles the read-only monitoring digest consumed by
// reports and assistants.
package digest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/stats"
)

const DefaultItemLimit = 10

// TermSummary compares how often a tracked term appears and how it is felt
type TermSummary struct {
	Term         string  `json:"term"`
	Mentions     int     `json:"mentions"`
	AvgSentiment float64 `json:"avg_sentiment"`
	Negative     int     `json:"negative"`
}

// Digest is the composed view for one tenant and window
type Digest struct {
	TenantID      string             `json:"tenant_id"`
	GeneratedAt   time.Time          `json:"generated_at"`
	Days          int                `json:"days"`
	RecentUnread  []models.Mention   `json:"recent_unread"`
	NeedsResponse []models.Mention   `json:"needs_response"`
	Stats         *models.Stats      `json:"stats"`
	BrandHealth   models.BrandHealth `json:"brand_health"`
	Brand         *TermSummary       `json:"brand,omitempty"`
	Competitors   []TermSummary      `json:"competitors,omitempty"`
}

// Builder reads the stored corpus. It never classifies or mutates items.
type Builder struct {
	mentions   *repository.MentionRepository
	tenants    *repository.TenantRepository
	aggregator *stats.Aggregator
	limit      int
}

func NewBuilder(mentions *repository.MentionRepository, tenants *repository.TenantRepository, aggregator *stats.Aggregator, limit int) *Builder {
	if limit <= 0 {
		limit = DefaultItemLimit
	}
	return &Builder{
		mentions:   mentions,
		tenants:    tenants,
		aggregator: aggregator,
		limit:      limit,
	}
}

func (b *Builder) Build(ctx context.Context, tenantID string, days int) (*Digest, error) {
	snapshot, err := b.aggregator.Snapshot(ctx, tenantID, days)
	if err != nil {
		return nil, err
	}

	unread, err := b.mentions.List(ctx, tenantID, repository.Filter{
		Since:           snapshot.Since,
		UnreadOnly:      true,
		ExcludeArchived: true,
		Limit:           b.limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load unread items: %w", err)
	}

	needsResponse, err := b.mentions.List(ctx, tenantID, repository.Filter{
		Since:            snapshot.Since,
		RequiresResponse: true,
		ExcludeArchived:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load items needing response: %w", err)
	}
	sortByUrgency(needsResponse)
	if len(needsResponse) > b.limit {
		needsResponse = needsResponse[:b.limit]
	}

	d := &Digest{
		TenantID:      tenantID,
		GeneratedAt:   snapshot.GeneratedAt,
		Days:          snapshot.Days,
		RecentUnread:  unread,
		NeedsResponse: needsResponse,
		Stats:         snapshot,
		BrandHealth:   snapshot.BrandHealth,
	}

	cfg, err := b.tenants.FindConfig(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load monitoring config: %w", err)
	}
	if cfg != nil && len(cfg.CompetitorKeywords) > 0 {
		window, err := b.mentions.List(ctx, tenantID, repository.Filter{Since: snapshot.Since})
		if err != nil {
			return nil, fmt.Errorf("failed to load items for comparison: %w", err)
		}
		d.Brand, d.Competitors = compare(window, cfg.BrandKeywords, cfg.CompetitorKeywords)
	}

	return d, nil
}

var priorityRank = map[models.Priority]int{
	models.PriorityCritical: 0,
	models.PriorityHigh:     1,
	models.PriorityMedium:   2,
	models.PriorityLow:      3,
}

func sortByUrgency(items []models.Mention) {
	sort.SliceStable(items, func(i, j int) bool {
		ri, ok := priorityRank[items[i].Priority]
		if !ok {
			ri = len(priorityRank)
		}
		rj, ok := priorityRank[items[j].Priority]
		if !ok {
			rj = len(priorityRank)
		}
		return ri < rj
	})
}

// compare summarises the brand against each competitor keyword. Spam is left
// out.
func compare(items []models.Mention, brand, competitors []string) (*TermSummary, []TermSummary) {
	summarise := func(term string, terms []string) TermSummary {
		s := TermSummary{Term: term}
		var sum float64
		var scored int

		for _, m := range items {
			if m.IsSpam || !matchesAny(m.Keywords, terms) {
				continue
			}
			s.Mentions++
			if m.Sentiment == models.SentimentNegative {
				s.Negative++
			}
			if m.SentimentScore != nil {
				sum += *m.SentimentScore
				scored++
			}
		}
		if scored > 0 {
			s.AvgSentiment = sum / float64(scored)
		}
		return s
	}

	var brandSummary *TermSummary
	if len(brand) > 0 {
		s := summarise(strings.Join(brand, ", "), brand)
		brandSummary = &s
	}

	summaries := make([]TermSummary, 0, len(competitors))
	for _, c := range competitors {
		summaries = append(summaries, summarise(c, []string{c}))
	}
	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Mentions > summaries[j].Mentions
	})

	return brandSummary, summaries
}

func matchesAny(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if strings.EqualFold(h, w) {
				return true
			}
		}
	}
	return false
}
