package ingestion

import (
	"context"
	"fmt"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/sentiment"
	"github.com/sirupsen/logrus"
)

// SaveResult reports what Persist wrote. Items holds the stored items in
// input order.
type SaveResult struct {
	Saved      int
	Duplicates int
	Errors     []string
	Items      []models.Mention
}

// Gate persists only items whose dedup key has not been seen
type Gate struct {
	repo     *repository.MentionRepository
	observer Observer
}

func NewGate(repo *repository.MentionRepository, observer Observer) *Gate {
	if observer == nil {
		observer = nopObserver{}
	}
	return &Gate{repo: repo, observer: observer}
}

// Persist checks each item for an existing record and stores the unseen
// ones with their heuristic priority. Existing records are never
// overwritten; the conditional create also catches a concurrent cycle that
// stored the same item after the existence check.
func (g *Gate) Persist(ctx context.Context, items []models.Mention) SaveResult {
	var result SaveResult

	for i := range items {
		item := items[i]

		if ctx.Err() != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: %v", item.Platform, item.ExternalID, ctx.Err()))
			continue
		}

		exists, err := g.repo.Exists(ctx, item.TenantID, item.Platform, item.ExternalID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: existence check failed: %v", item.Platform, item.ExternalID, err))
			continue
		}
		if exists {
			result.Duplicates++
			g.observer.ItemPersisted(item.Platform, false)
			continue
		}

		sentiment.ApplyHeuristic(&item)

		created, err := g.repo.Create(ctx, &item)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s/%s: failed to save: %v", item.Platform, item.ExternalID, err))
			continue
		}
		if !created {
			logrus.WithFields(logrus.Fields{
				"tenant":   item.TenantID,
				"platform": item.Platform,
				"external": item.ExternalID,
			}).Debug("Item stored concurrently by another cycle")
			result.Duplicates++
			g.observer.ItemPersisted(item.Platform, false)
			continue
		}

		result.Saved++
		result.Items = append(result.Items, item)
		g.observer.ItemPersisted(item.Platform, true)
	}

	return result
}
