package sources

import (
	"fmt"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/extract"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/go-resty/resty/v2"
)

const (
	userAgent     = "Social-Mentions-Monitor/1.0"
	clientTimeout = 30 * time.Second
	maxPages      = 5
)

func newClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(clientTimeout).
		SetHeader("User-Agent", userAgent).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() >= 500
		})
}

// checkResponse turns transport errors and non-2xx statuses into one error
func checkResponse(platform models.Platform, resp *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%s request failed: %w", platform, err)
	}
	if resp.IsError() {
		body := string(resp.Body())
		if len(body) > 300 {
			body = body[:300] + "..."
		}
		return fmt.Errorf("%s API returned status %d: %s", platform, resp.StatusCode(), body)
	}
	return nil
}

// searchTerms are the tracked terms a platform search is run for
func searchTerms(cfg *models.MonitoringConfig) []string {
	if cfg == nil {
		return nil
	}

	seen := make(map[string]bool)
	var terms []string
	add := func(values []string) {
		for _, v := range values {
			v = strings.TrimSpace(v)
			if v == "" || seen[strings.ToLower(v)] {
				continue
			}
			seen[strings.ToLower(v)] = true
			terms = append(terms, v)
		}
	}

	add(cfg.BrandKeywords)
	for _, tag := range cfg.Hashtags {
		add([]string{"#" + strings.TrimPrefix(tag, "#")})
	}
	add(cfg.CompetitorKeywords)
	add(cfg.CustomKeywords)
	return terms
}

// isNew applies the incremental floor
func isNew(createdAt, since time.Time) bool {
	return since.IsZero() || createdAt.After(since)
}

// buildMention normalises a raw platform item into a Mention. Type is
// inferred from the tracked terms unless the caller already knows it
// (comments and DMs).
func buildMention(req FetchRequest, platform models.Platform, externalID, text string, createdAt time.Time, typ models.MentionType) models.Mention {
	now := time.Now().UTC()
	createdAt = createdAt.UTC()
	if createdAt.IsZero() || createdAt.After(now) {
		createdAt = now
	}

	var keywords []string
	if req.Config != nil {
		keywords = req.Config.TrackedKeywords()
	}
	found := extract.Extract(text, keywords)

	if typ == "" {
		typ = inferType(req.Config, text, found)
	}

	return models.Mention{
		ID:         models.ItemID(req.TenantID, platform, externalID),
		TenantID:   req.TenantID,
		Platform:   platform,
		ExternalID: externalID,
		Type:       typ,
		Content:    text,
		Hashtags:   found.Hashtags,
		Handles:    found.Handles,
		Keywords:   found.Keywords,
		CreatedAt:  createdAt,
		DetectedAt: now,
	}
}

func inferType(cfg *models.MonitoringConfig, text string, found extract.Result) models.MentionType {
	if cfg == nil {
		return models.TypeKeyword
	}
	if extract.ContainsAny(text, cfg.BrandKeywords) {
		return models.TypeBrandMention
	}
	if extract.ContainsAny(text, cfg.CompetitorKeywords) {
		return models.TypeCompetitor
	}
	for _, tag := range cfg.Hashtags {
		want := "#" + strings.ToLower(strings.TrimPrefix(tag, "#"))
		for _, have := range found.Hashtags {
			if have == want {
				return models.TypeHashtag
			}
		}
	}
	return models.TypeKeyword
}

func deduplicateMentions(mentions []models.Mention) []models.Mention {
	seen := make(map[string]bool)
	var unique []models.Mention

	for _, mention := range mentions {
		if !seen[mention.ExternalID] {
			seen[mention.ExternalID] = true
			unique = append(unique, mention)
		}
	}

	return unique
}
