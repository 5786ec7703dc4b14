package sources

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTwitterAPIURL = "https://api.twitter.com"

	twitterTweetFields = "created_at,author_id,public_metrics,referenced_tweets,conversation_id"
	twitterUserFields  = "username,name,verified,public_metrics"
)

// TwitterSource implements the X/Twitter API v2
type TwitterSource struct {
	client *resty.Client
}

type twitterSearchResponse struct {
	Data     []twitterTweet `json:"data"`
	Includes struct {
		Users []twitterUser `json:"users"`
	} `json:"includes"`
	Meta struct {
		ResultCount int    `json:"result_count"`
		NextToken   string `json:"next_token"`
	} `json:"meta"`
}

type twitterTweet struct {
	ID             string `json:"id"`
	Text           string `json:"text"`
	AuthorID       string `json:"author_id"`
	CreatedAt      string `json:"created_at"`
	ConversationID string `json:"conversation_id"`
	PublicMetrics  struct {
		RetweetCount    int `json:"retweet_count"`
		LikeCount       int `json:"like_count"`
		ReplyCount      int `json:"reply_count"`
		QuoteCount      int `json:"quote_count"`
		ImpressionCount int `json:"impression_count"`
	} `json:"public_metrics"`
	ReferencedTweets []struct {
		Type string `json:"type"`
		ID   string `json:"id"`
	} `json:"referenced_tweets"`
}

type twitterUser struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Name          string `json:"name"`
	Verified      bool   `json:"verified"`
	PublicMetrics struct {
		FollowersCount int `json:"followers_count"`
	} `json:"public_metrics"`
}

type twitterCreateResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// NewTwitterSource creates a new Twitter source against baseURL
func NewTwitterSource(baseURL string) *TwitterSource {
	if baseURL == "" {
		baseURL = DefaultTwitterAPIURL
	}
	return &TwitterSource{client: newClient(baseURL)}
}

func (t *TwitterSource) Platform() models.Platform {
	return models.PlatformTwitter
}

// FetchMentions runs one recent-search query covering every tracked term
func (t *TwitterSource) FetchMentions(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	query := buildTwitterQuery(searchTerms(req.Config))
	if query == "" {
		logrus.WithField("tenant", req.TenantID).Debug("Twitter search skipped - no tracked terms")
		return nil, nil
	}

	params := map[string]string{
		"query":        query,
		"max_results":  "100",
		"tweet.fields": twitterTweetFields,
		"expansions":   "author_id",
		"user.fields":  twitterUserFields,
	}
	if !req.Since.IsZero() && time.Since(req.Since) < 7*24*time.Hour {
		params["start_time"] = req.Since.UTC().Format(time.RFC3339)
	}

	mentions, err := t.paginate(ctx, req, "/2/tweets/search/recent", params, "")
	return deduplicateMentions(mentions), err
}

// FetchEngagement reads the connected account's mentions timeline
func (t *TwitterSource) FetchEngagement(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	userID := req.Connection.AccountID
	if userID == "" {
		var err error
		userID, err = t.currentUserID(ctx, req.Connection.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	params := map[string]string{
		"max_results":  "100",
		"tweet.fields": twitterTweetFields,
		"expansions":   "author_id",
		"user.fields":  twitterUserFields,
	}
	if !req.Since.IsZero() {
		params["start_time"] = req.Since.UTC().Format(time.RFC3339)
	}

	mentions, err := t.paginate(ctx, req, fmt.Sprintf("/2/users/%s/mentions", userID), params, models.TypeComment)
	return deduplicateMentions(mentions), err
}

// Reply posts a reply tweet to target
func (t *TwitterSource) Reply(ctx context.Context, conn models.Connection, target *models.Mention, text string) (string, error) {
	body := map[string]interface{}{
		"text": text,
		"reply": map[string]string{
			"in_reply_to_tweet_id": target.ExternalID,
		},
	}

	var created twitterCreateResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetBody(body).
		SetResult(&created).
		Post("/2/tweets")
	if err := checkResponse(models.PlatformTwitter, resp, err); err != nil {
		return "", err
	}
	if created.Data.ID == "" {
		return "", fmt.Errorf("twitter reply response did not include an id")
	}

	return created.Data.ID, nil
}

func (t *TwitterSource) currentUserID(ctx context.Context, token string) (string, error) {
	var me struct {
		Data twitterUser `json:"data"`
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetResult(&me).
		Get("/2/users/me")
	if err := checkResponse(models.PlatformTwitter, resp, err); err != nil {
		return "", err
	}
	return me.Data.ID, nil
}

func (t *TwitterSource) paginate(ctx context.Context, req FetchRequest, path string, params map[string]string, typ models.MentionType) ([]models.Mention, error) {
	var mentions []models.Mention
	nextToken := ""

	for page := 0; page < maxPages; page++ {
		r := t.client.R().
			SetContext(ctx).
			SetAuthToken(req.Connection.AccessToken).
			SetQueryParams(params)
		if nextToken != "" {
			tokenParam := "pagination_token"
			if strings.Contains(path, "/search/") {
				tokenParam = "next_token"
			}
			r.SetQueryParam(tokenParam, nextToken)
		}

		var searchResp twitterSearchResponse
		resp, err := r.SetResult(&searchResp).Get(path)

		if err == nil && resp.StatusCode() == 429 {
			logrus.Warnf("Twitter API rate limit hit (reset at %s) - returning %d mentions gathered so far",
				resp.Header().Get("x-rate-limit-reset"), len(mentions))
			return mentions, fmt.Errorf("twitter API rate limited")
		}
		if err := checkResponse(models.PlatformTwitter, resp, err); err != nil {
			return mentions, err
		}

		users := make(map[string]twitterUser, len(searchResp.Includes.Users))
		for _, u := range searchResp.Includes.Users {
			users[u.ID] = u
		}

		for _, tweet := range searchResp.Data {
			if isRetweet(tweet) {
				continue
			}

			createdAt, err := time.Parse(time.RFC3339, tweet.CreatedAt)
			if err != nil {
				logrus.Errorf("Failed to parse Twitter timestamp: %v", err)
				continue
			}
			if !isNew(createdAt, req.Since) {
				continue
			}

			mentions = append(mentions, t.toMention(req, tweet, users[tweet.AuthorID], createdAt, typ))
		}

		nextToken = searchResp.Meta.NextToken
		if nextToken == "" {
			break
		}
	}

	return mentions, nil
}

func (t *TwitterSource) toMention(req FetchRequest, tweet twitterTweet, author twitterUser, createdAt time.Time, typ models.MentionType) models.Mention {
	m := buildMention(req, models.PlatformTwitter, tweet.ID, tweet.Text, createdAt, typ)
	m.URL = fmt.Sprintf("https://twitter.com/i/status/%s", tweet.ID)
	if tweet.ConversationID != "" && tweet.ConversationID != tweet.ID {
		m.ParentID = tweet.ConversationID
	}
	m.Engagement = models.Engagement{
		Likes:       tweet.PublicMetrics.LikeCount,
		Comments:    tweet.PublicMetrics.ReplyCount,
		Shares:      tweet.PublicMetrics.RetweetCount + tweet.PublicMetrics.QuoteCount,
		Impressions: tweet.PublicMetrics.ImpressionCount,
	}
	m.Author = models.Author{
		ID:          tweet.AuthorID,
		Handle:      author.Username,
		DisplayName: author.Name,
		Followers:   author.PublicMetrics.FollowersCount,
		Verified:    author.Verified,
	}
	return m
}

// buildTwitterQuery ORs the quoted terms together and drops retweets
func buildTwitterQuery(terms []string) string {
	if len(terms) == 0 {
		return ""
	}

	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		if strings.HasPrefix(term, "#") {
			parts = append(parts, term)
			continue
		}
		parts = append(parts, fmt.Sprintf(`"%s"`, term))
	}

	if len(parts) == 1 {
		return parts[0] + " -is:retweet"
	}
	return "(" + strings.Join(parts, " OR ") + ") -is:retweet"
}

func isRetweet(tweet twitterTweet) bool {
	for _, ref := range tweet.ReferencedTweets {
		if ref.Type == "retweeted" {
			return true
		}
	}
	return false
}
