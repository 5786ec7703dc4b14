package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/config"
	"github.com/azure/social-mentions-monitor/internal/digest"
	"github.com/azure/social-mentions-monitor/internal/ingestion"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/monitoring"
	"github.com/azure/social-mentions-monitor/internal/repository"
	"github.com/azure/social-mentions-monitor/internal/sentiment"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/azure/social-mentions-monitor/internal/stats"
	"github.com/azure/social-mentions-monitor/internal/storage"
	"github.com/sirupsen/logrus"
)

const tenantID = "contoso"

// sampleSource replays canned items for one platform
type sampleSource struct {
	platform   models.Platform
	mentions   []models.Mention
	engagement []models.Mention
}

func (s *sampleSource) Platform() models.Platform { return s.platform }

func (s *sampleSource) FetchMentions(ctx context.Context, req sources.FetchRequest) ([]models.Mention, error) {
	return s.mentions, nil
}

func (s *sampleSource) FetchEngagement(ctx context.Context, req sources.FetchRequest) ([]models.Mention, error) {
	return s.engagement, nil
}

// TestNotificationService outputs reports and alerts to the terminal and files
type TestNotificationService struct{}

func (t *TestNotificationService) SendReport(report *models.Report) error {
	fmt.Println("\n" + strings.Repeat("=", 70))
	fmt.Printf("📊 %s\n", strings.ToUpper(report.Title))
	fmt.Println(strings.Repeat("=", 70))
	fmt.Println(report.Body)

	if err := saveJSON(fmt.Sprintf("digest_%s.json", report.GeneratedAt.Format("2006-01-02_15-04-05")), report); err != nil {
		fmt.Printf("\n⚠️  Warning: Could not save to file: %v\n", err)
	}

	fmt.Println(strings.Repeat("=", 70))
	return nil
}

func (t *TestNotificationService) SendAlert(alert *models.Alert) error {
	fmt.Println("\n🚨 ALERT")
	fmt.Printf("Type: %s\n", alert.Type)
	fmt.Printf("Title: %s\n", alert.Title)
	fmt.Printf("Message: %s\n", alert.Message)
	for i, reason := range alert.Reasons {
		fmt.Printf("   • %s -> %s\n", reason, alert.Actions[i])
	}
	return nil
}

func saveJSON(name string, v any) error {
	dir := "test_output"
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	filename := filepath.Join(dir, name)
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return err
	}

	fmt.Printf("\n💾 Saved to: %s\n", filename)
	return nil
}

func sample(platform models.Platform, externalID string, typ models.MentionType, content string, age time.Duration, likes, followers int) models.Mention {
	now := time.Now().UTC()
	return models.Mention{
		ID:         models.ItemID(tenantID, platform, externalID),
		TenantID:   tenantID,
		Platform:   platform,
		ExternalID: externalID,
		Type:       typ,
		Content:    content,
		URL:        fmt.Sprintf("https://example.com/%s/%s", platform, externalID),
		Engagement: models.Engagement{Likes: likes, Comments: likes / 10},
		Author:     models.Author{Handle: "user_" + externalID, Followers: followers},
		Keywords:   []string{"Contoso"},
		CreatedAt:  now.Add(-age),
		DetectedAt: now,
	}
}

func main() {
	fmt.Println("🤖 Social Mentions Monitor - Test Digest Generator")
	fmt.Println("==================================================")

	logrus.SetLevel(logrus.WarnLevel)

	ctx := context.Background()

	cfg := &config.Config{
		Tenants:         []string{tenantID},
		DigestDays:      7,
		InitialLookback: 7 * 24 * time.Hour,
	}

	registry := sources.NewRegistry(
		&sampleSource{
			platform: models.PlatformTwitter,
			mentions: []models.Mention{
				sample(models.PlatformTwitter, "t1", models.TypeBrandMention, "Just switched to Contoso and it is amazing, love the new dashboard #contoso", 3*time.Hour, 420, 12000),
				sample(models.PlatformTwitter, "t2", models.TypeBrandMention, "Contoso billing is broken again. Terrible support, worst experience ever", 5*time.Hour, 1300, 150000),
				sample(models.PlatformTwitter, "t3", models.TypeCompetitor, "Fabrikam vs Contoso, which one is better for small teams?", 20*time.Hour, 35, 800),
			},
		},
		&sampleSource{
			platform: models.PlatformReddit,
			mentions: []models.Mention{
				sample(models.PlatformReddit, "t3_r1", models.TypeKeyword, "How do I export reports from Contoso? Anyone know?", 30*time.Hour, 12, 0),
			},
			engagement: []models.Mention{
				sample(models.PlatformReddit, "t1_c1", models.TypeComment, "Thanks Contoso team, the fix works great", 2*time.Hour, 4, 0),
			},
		},
		&sampleSource{
			platform: models.PlatformYouTube,
			engagement: []models.Mention{
				sample(models.PlatformYouTube, "yc1", models.TypeComment, "Great tutorial, very helpful", 48*time.Hour, 60, 0),
			},
		},
	)

	store := storage.NewMemoryStorage()
	mentionRepo := repository.NewMentionRepository(store)
	tenantRepo := repository.NewTenantRepository(store)

	monitoringConfig := models.DefaultMonitoringConfig(tenantID, registry.Platforms())
	monitoringConfig.BrandKeywords = []string{"Contoso"}
	monitoringConfig.CompetitorKeywords = []string{"Fabrikam"}
	if err := tenantRepo.SaveConfig(ctx, monitoringConfig); err != nil {
		fmt.Printf("❌ Error saving config: %v\n", err)
		os.Exit(1)
	}

	var conns []models.Connection
	for _, p := range registry.Platforms() {
		conns = append(conns, models.Connection{Platform: p, AccessToken: "sample"})
	}
	if err := tenantRepo.SaveConnections(ctx, tenantID, conns); err != nil {
		fmt.Printf("❌ Error saving connections: %v\n", err)
		os.Exit(1)
	}

	aggregator := stats.NewAggregator(mentionRepo, stats.DefaultTopN)
	notifications := &TestNotificationService{}

	service := monitoring.NewService(cfg, monitoring.Components{
		Mentions:    mentionRepo,
		Tenants:     tenantRepo,
		Registry:    registry,
		Coordinator: ingestion.NewCoordinator(registry, ingestion.Options{}),
		Gate:        ingestion.NewGate(mentionRepo, nil),
		Classifier:  sentiment.NewClassifier(nil, sentiment.Options{}),
		Digests:     digest.NewBuilder(mentionRepo, tenantRepo, aggregator, digest.DefaultItemLimit),
	}, notifications)

	fmt.Println("\n📡 Running one ingestion cycle over sample data...")
	result, err := service.RunIngestion(ctx, tenantID)
	if err != nil {
		fmt.Printf("❌ Error running ingestion: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("   fetched=%d saved=%d classified=%d alerts=%d\n",
		result.Fetched, result.Saved, result.Classified, result.Alerts)

	snapshot, err := aggregator.Snapshot(ctx, tenantID, cfg.DigestDays)
	if err != nil {
		fmt.Printf("❌ Error computing statistics: %v\n", err)
		os.Exit(1)
	}
	if err := saveJSON("stats.json", snapshot); err != nil {
		fmt.Printf("⚠️  Warning: Could not save statistics: %v\n", err)
	}

	// Send the digest (outputs to terminal and saves to file)
	if err := service.SendDigest(ctx, tenantID); err != nil {
		fmt.Printf("❌ Error sending digest: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\n✅ Test digest generation completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Check the 'test_output' directory for saved JSON files")
	fmt.Println("   • Run 'go test ./...' for the full test suite")
	fmt.Println("   • Configure connections and run the service with 'go run ./cmd/bot'")
}
