package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/config"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/azure/social-mentions-monitor/internal/sources"
	"github.com/joho/godotenv"
)

// Access tokens are read from <PLATFORM>_ACCESS_TOKEN, for example
// TWITTER_ACCESS_TOKEN. Instagram also needs INSTAGRAM_ACCOUNT_ID.
func main() {
	fmt.Println("🔍 Social Mentions Monitor - API Connectivity Test")
	fmt.Println("==================================================")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	keywords := strings.Split(getEnv("TEST_KEYWORDS", "azure,kubernetes"), ",")
	monitoring := models.DefaultMonitoringConfig("connectivity-test", nil)
	monitoring.BrandKeywords = keywords

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	registry := sources.NewRegistry(
		sources.NewTwitterSource(cfg.TwitterAPIURL),
		sources.NewYouTubeSource(cfg.YouTubeAPIURL),
		sources.NewRedditSource(cfg.RedditAPIURL),
		sources.NewInstagramSource(cfg.InstagramAPIURL),
	)

	fmt.Println("\n📡 Testing platform adapters...")
	fmt.Println(strings.Repeat("-", 40))

	for _, platform := range registry.Platforms() {
		adapter, _ := registry.Get(platform)
		conn := models.Connection{
			Platform:    platform,
			AccessToken: os.Getenv(strings.ToUpper(string(platform)) + "_ACCESS_TOKEN"),
			AccountID:   os.Getenv(strings.ToUpper(string(platform)) + "_ACCOUNT_ID"),
		}
		testAdapter(ctx, adapter, sources.FetchRequest{
			TenantID:   monitoring.TenantID,
			Connection: conn,
			Config:     monitoring,
			Since:      time.Now().Add(-24 * time.Hour),
		})
	}

	fmt.Println("\n✅ API connectivity test completed!")
	fmt.Println("\n💡 Next steps:")
	fmt.Println("   • Configure missing access tokens in .env file")
	fmt.Println("   • Register connections with PUT /tenants/{tenant}/connections")
	fmt.Println("   • Run the service with: make run")
}

func testAdapter(ctx context.Context, adapter sources.Adapter, req sources.FetchRequest) {
	fmt.Printf("🔸 Testing %s... ", adapter.Platform())

	if req.Connection.AccessToken == "" {
		fmt.Printf("⚠️  SKIPPED (missing access token)\n")
		return
	}

	var found []models.Mention
	var errs []string

	if f, ok := adapter.(sources.MentionFetcher); ok {
		mentions, err := f.FetchMentions(ctx, req)
		found = append(found, mentions...)
		if err != nil {
			errs = append(errs, "mentions: "+err.Error())
		}
	}
	if f, ok := adapter.(sources.EngagementFetcher); ok {
		engagement, err := f.FetchEngagement(ctx, req)
		found = append(found, engagement...)
		if err != nil {
			errs = append(errs, "engagement: "+err.Error())
		}
	}

	if len(errs) > 0 {
		fmt.Printf("❌ ERROR: %s (%d items before failure)\n", strings.Join(errs, "; "), len(found))
		return
	}

	fmt.Printf("✅ SUCCESS (%d items found)\n", len(found))

	// Show a sample item
	if len(found) > 0 {
		content := found[0].Content
		if r := []rune(content); len(r) > 80 {
			content = string(r[:80]) + "..."
		}
		fmt.Printf("   📝 Sample (%s): \"%s\"\n", found[0].Type, content)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
