package models

import (
	"time"

	"github.com/google/uuid"
)

// Platform identifies an external social network
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformYouTube   Platform = "youtube"
	PlatformReddit    Platform = "reddit"
	PlatformInstagram Platform = "instagram"
)

// MentionType describes why an item was picked up
type MentionType string

const (
	TypeBrandMention MentionType = "brand_mention"
	TypeHashtag      MentionType = "hashtag"
	TypeKeyword      MentionType = "keyword"
	TypeComment      MentionType = "comment"
	TypeDM           MentionType = "dm"
	TypeCompetitor   MentionType = "competitor"
)

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priority sources. A classifier value always replaces a heuristic one.
const (
	PrioritySourceHeuristic  = "heuristic"
	PrioritySourceClassifier = "classifier"
)

// Author describes who wrote an item on the origin platform
type Author struct {
	ID          string `json:"id"`
	Handle      string `json:"handle"`
	DisplayName string `json:"display_name"`
	Followers   int    `json:"followers"`
	Verified    bool   `json:"verified"`
}

// Engagement holds the counters a platform exposes. Missing fields stay 0.
type Engagement struct {
	Likes       int `json:"likes"`
	Comments    int `json:"comments"`
	Shares      int `json:"shares"`
	Reach       int `json:"reach,omitempty"`
	Impressions int `json:"impressions,omitempty"`
}

// Total is the engagement magnitude used for prioritisation
func (e Engagement) Total() int {
	return e.Likes + e.Comments + e.Shares
}

// Emotions are per-emotion intensities in [0,1]
type Emotions struct {
	Joy      float64 `json:"joy"`
	Anger    float64 `json:"anger"`
	Sadness  float64 `json:"sadness"`
	Fear     float64 `json:"fear"`
	Surprise float64 `json:"surprise"`
}

// Mention is a detected reference to a tracked brand, keyword, hashtag or
// competitor. Comment and DM typed mentions are engagement items: they can be
// replied to and flagged as spam.
//
// TenantID, Platform and ExternalID form the dedup key and never change after
// creation. CreatedAt is the origin timestamp and is never after DetectedAt.
type Mention struct {
	ID         string      `json:"id"`
	TenantID   string      `json:"tenant_id"`
	Platform   Platform    `json:"platform"`
	ExternalID string      `json:"external_id"`
	Type       MentionType `json:"type"`

	Content  string   `json:"content"`
	URL      string   `json:"url,omitempty"`
	ParentID string   `json:"parent_id,omitempty"` // platform id of the post a comment belongs to
	Hashtags []string `json:"hashtags"`
	Handles  []string `json:"mentions"`
	Keywords []string `json:"keywords"`

	Engagement Engagement `json:"engagement"`
	Author     Author     `json:"author"`

	Sentiment        Sentiment `json:"sentiment,omitempty"`
	SentimentScore   *float64  `json:"sentiment_score,omitempty"`
	Emotions         *Emotions `json:"emotions,omitempty"`
	Intent           string    `json:"intent,omitempty"`
	RequiresResponse bool      `json:"requires_response"`
	Priority         Priority  `json:"priority"`
	PrioritySource   string    `json:"priority_source,omitempty"`
	ClassifiedAt     time.Time `json:"classified_at,omitempty"`

	IsRead     bool `json:"is_read"`
	IsStarred  bool `json:"is_starred"`
	IsArchived bool `json:"is_archived"`
	IsSpam     bool `json:"is_spam"`

	HasReplied   bool       `json:"has_replied"`
	ReplyID      string     `json:"reply_id,omitempty"`
	ReplyContent string     `json:"reply_content,omitempty"`
	RepliedAt    *time.Time `json:"replied_at,omitempty"`

	CreatedAt  time.Time `json:"created_at"`
	DetectedAt time.Time `json:"detected_at"`
}

// IsEngagement reports whether the item is a comment or direct message
func (m *Mention) IsEngagement() bool {
	return m.Type == TypeComment || m.Type == TypeDM
}

// IsClassified reports whether the classifier has written its result
func (m *Mention) IsClassified() bool {
	return m.PrioritySource == PrioritySourceClassifier
}

var itemNamespace = uuid.MustParse("6f1d5c0e-4d0a-4a55-9a36-0c3c1f1b7a10")

// ItemID derives the stable item id from the dedup key
func ItemID(tenantID string, platform Platform, externalID string) string {
	return uuid.NewSHA1(itemNamespace, []byte(tenantID+"\x00"+string(platform)+"\x00"+externalID)).String()
}

// Thresholds are per-tenant alerting floors
type Thresholds struct {
	EngagementFloor        int     `json:"engagement_floor"`
	NegativeSentimentFloor float64 `json:"negative_sentiment_floor"`
	InfluencerFollowers    int     `json:"influencer_followers"`
}

// MonitoringConfig holds the per-tenant monitoring settings
type MonitoringConfig struct {
	TenantID           string     `json:"tenant_id"`
	Enabled            bool       `json:"enabled"`
	BrandKeywords      []string   `json:"brand_keywords"`
	CompetitorKeywords []string   `json:"competitor_keywords"`
	Hashtags           []string   `json:"hashtags"`
	CustomKeywords     []string   `json:"custom_keywords"`
	Platforms          []Platform `json:"platforms"`
	Thresholds         Thresholds `json:"thresholds"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DefaultMonitoringConfig returns the settings used when a tenant has none yet
func DefaultMonitoringConfig(tenantID string, platforms []Platform) *MonitoringConfig {
	now := time.Now().UTC()
	return &MonitoringConfig{
		TenantID:  tenantID,
		Enabled:   true,
		Platforms: append([]Platform(nil), platforms...),
		Thresholds: Thresholds{
			EngagementFloor:        100,
			NegativeSentimentFloor: -0.5,
			InfluencerFollowers:    10000,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// PlatformEnabled reports whether p is in the enabled platform set
func (c *MonitoringConfig) PlatformEnabled(p Platform) bool {
	for _, enabled := range c.Platforms {
		if enabled == p {
			return true
		}
	}
	return false
}

// TrackedKeywords returns every term the extractor should look for
func (c *MonitoringConfig) TrackedKeywords() []string {
	var all []string
	all = append(all, c.BrandKeywords...)
	all = append(all, c.CompetitorKeywords...)
	all = append(all, c.CustomKeywords...)
	return all
}

// Connection is a tenant's authorised link to one platform account
type Connection struct {
	Platform    Platform `json:"platform"`
	AccessToken string   `json:"access_token"`
	AccountID   string   `json:"account_id,omitempty"`
}

// Classification is the structured classifier output
type Classification struct {
	Sentiment        Sentiment `json:"sentiment"`
	Score            float64   `json:"score"`
	Confidence       float64   `json:"confidence"`
	Emotions         Emotions  `json:"emotions"`
	Intent           string    `json:"intent"`
	Keywords         []string  `json:"keywords"`
	RequiresResponse bool      `json:"requiresResponse"`
	Priority         Priority  `json:"priority"`
}

// Alert represents an urgent notification
type Alert struct {
	ID        string    `json:"id"`
	TenantID  string    `json:"tenant_id"`
	Type      string    `json:"type"` // "critical", "urgent", "info"
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Reasons   []string  `json:"reasons,omitempty"`
	Actions   []string  `json:"actions,omitempty"`
	Mention   *Mention  `json:"mention,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Report is a rendered digest sent through the notification channels
type Report struct {
	TenantID    string    `json:"tenant_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Period      string    `json:"period"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	Highlights  []Mention `json:"highlights"`
}

// Brand health trend directions
const (
	TrendImproving = "improving"
	TrendDeclining = "declining"
	TrendStable    = "stable"
)

// PlatformStats is the per-platform slice of a Stats snapshot
type PlatformStats struct {
	Count                int     `json:"count"`
	Unread               int     `json:"unread"`
	AvgSentiment         float64 `json:"avg_sentiment"`
	AvgResponseTimeHours float64 `json:"avg_response_time_hours"`
}

// TermCount is one entry of a top-N ranking
type TermCount struct {
	Term  string `json:"term"`
	Count int    `json:"count"`
}

// BrandHealth is a 0-100 score derived from the sentiment distribution
type BrandHealth struct {
	Score float64 `json:"score"`
	Trend string  `json:"trend"`
}

// Stats is a windowed snapshot computed on demand. It is never persisted.
type Stats struct {
	TenantID    string    `json:"tenant_id"`
	Days        int       `json:"days"`
	Since       time.Time `json:"since"`
	GeneratedAt time.Time `json:"generated_at"`

	Total        int `json:"total"`
	Unread       int `json:"unread"`
	Unclassified int `json:"unclassified"`

	Platforms map[Platform]PlatformStats `json:"platforms"`
	Sentiment map[Sentiment]int          `json:"sentiment"`
	Priority  map[Priority]int           `json:"priority"`

	TopHashtags []TermCount `json:"top_hashtags"`
	TopKeywords []TermCount `json:"top_keywords"`

	AvgResponseTimeHours float64     `json:"avg_response_time_hours"`
	ResponseRate         float64     `json:"response_rate"`
	BrandHealth          BrandHealth `json:"brand_health"`
}
