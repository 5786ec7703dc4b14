package digest

import (
	"fmt"
	"sort"
	"strings"

	"github.com/azure/social-mentions-monitor/internal/models"
)

const contentPreview = 200

// Render formats the digest as plain text
func (d *Digest) Render() string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("Social Mentions Digest - %s (last %d days)\n", d.TenantID, d.Days))
	text.WriteString(fmt.Sprintf("Generated: %s\n\n", d.GeneratedAt.Format("2006-01-02 15:04:05 UTC")))

	text.WriteString("BRAND HEALTH\n")
	text.WriteString("============\n")
	text.WriteString(fmt.Sprintf("Score: %.0f/100 (%s)\n\n", d.BrandHealth.Score, d.BrandHealth.Trend))

	if s := d.Stats; s != nil {
		text.WriteString("SUMMARY\n")
		text.WriteString("=======\n")
		text.WriteString(fmt.Sprintf("Total Mentions: %d (%d unread)\n", s.Total, s.Unread))
		text.WriteString(fmt.Sprintf("Sentiment: %d positive, %d neutral, %d negative",
			s.Sentiment[models.SentimentPositive], s.Sentiment[models.SentimentNeutral], s.Sentiment[models.SentimentNegative]))
		if s.Unclassified > 0 {
			text.WriteString(fmt.Sprintf(", %d pending", s.Unclassified))
		}
		text.WriteString("\n")
		text.WriteString(fmt.Sprintf("Response Rate: %.0f%%", s.ResponseRate))
		if s.AvgResponseTimeHours > 0 {
			text.WriteString(fmt.Sprintf(" (avg %.1fh to reply)", s.AvgResponseTimeHours))
		}
		text.WriteString("\n")

		platforms := make([]string, 0, len(s.Platforms))
		for p := range s.Platforms {
			platforms = append(platforms, string(p))
		}
		sort.Strings(platforms)
		for _, p := range platforms {
			ps := s.Platforms[models.Platform(p)]
			text.WriteString(fmt.Sprintf("  %s: %d mentions, %d unread, avg sentiment %+.2f\n", p, ps.Count, ps.Unread, ps.AvgSentiment))
		}

		if len(s.TopHashtags) > 0 {
			text.WriteString("Top Hashtags: " + joinTerms(s.TopHashtags) + "\n")
		}
		if len(s.TopKeywords) > 0 {
			text.WriteString("Top Keywords: " + joinTerms(s.TopKeywords) + "\n")
		}
		text.WriteString("\n")
	}

	if len(d.Competitors) > 0 {
		text.WriteString("COMPETITOR COMPARISON\n")
		text.WriteString("=====================\n")
		if d.Brand != nil {
			text.WriteString(formatSummary("Brand ("+d.Brand.Term+")", *d.Brand))
		}
		for _, c := range d.Competitors {
			text.WriteString(formatSummary(c.Term, c))
		}
		text.WriteString("\n")
	}

	writeItems(&text, "NEEDS RESPONSE", d.NeedsResponse)
	writeItems(&text, "RECENT UNREAD", d.RecentUnread)

	return text.String()
}

func formatSummary(label string, s TermSummary) string {
	return fmt.Sprintf("%s: %d mentions, avg sentiment %+.2f, %d negative\n", label, s.Mentions, s.AvgSentiment, s.Negative)
}

func joinTerms(terms []models.TermCount) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		parts = append(parts, fmt.Sprintf("%s (%d)", t.Term, t.Count))
	}
	return strings.Join(parts, ", ")
}

func writeItems(text *strings.Builder, title string, items []models.Mention) {
	if len(items) == 0 {
		return
	}

	text.WriteString(title + "\n")
	text.WriteString(strings.Repeat("=", len(title)) + "\n")

	for i, m := range items {
		author := m.Author.Handle
		if author == "" {
			author = m.Author.DisplayName
		}
		text.WriteString(fmt.Sprintf("\n%d. [%s] %s by %s on %s\n", i+1, strings.ToUpper(string(m.Priority)), m.Type, author, m.Platform))
		if m.Sentiment != "" {
			text.WriteString(fmt.Sprintf("   Sentiment: %s", m.Sentiment))
			if m.Intent != "" {
				text.WriteString(fmt.Sprintf(" | Intent: %s", m.Intent))
			}
			text.WriteString("\n")
		}
		if m.URL != "" {
			text.WriteString(fmt.Sprintf("   URL: %s\n", m.URL))
		}
		if m.Content != "" {
			text.WriteString(fmt.Sprintf("   Content: %s\n", truncate(m.Content, contentPreview)))
		}
	}
	text.WriteString("\n")
}

func truncate(s string, length int) string {
	runes := []rune(s)
	if len(runes) <= length {
		return s
	}
	return string(runes[:length]) + "..."
}
