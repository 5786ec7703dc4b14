package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const DefaultRedditAPIURL = "https://oauth.reddit.com"

// RedditSource implements the Reddit OAuth API with a user access token
type RedditSource struct {
	client *resty.Client
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Kind string      `json:"kind"`
			Data redditThing `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// redditThing covers posts (t3), comments (t1) and messages (t4)
type redditThing struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Title       string  `json:"title"`
	Selftext    string  `json:"selftext"`
	Body        string  `json:"body"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Permalink   string  `json:"permalink"`
	Context     string  `json:"context"`
	ParentID    string  `json:"parent_id"`
	Created     float64 `json:"created_utc"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	WasComment  bool    `json:"was_comment"`
}

type redditCommentResponse struct {
	JSON struct {
		Errors [][]interface{} `json:"errors"`
		Data   struct {
			Things []struct {
				Data struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

// NewRedditSource creates a new Reddit source against baseURL
func NewRedditSource(baseURL string) *RedditSource {
	if baseURL == "" {
		baseURL = DefaultRedditAPIURL
	}
	return &RedditSource{client: newClient(baseURL)}
}

func (r *RedditSource) Platform() models.Platform {
	return models.PlatformReddit
}

// FetchMentions searches all of Reddit for each tracked term
func (r *RedditSource) FetchMentions(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	var allMentions []models.Mention
	var firstErr error

	for _, term := range searchTerms(req.Config) {
		mentions, err := r.searchPosts(ctx, req, term)
		allMentions = append(allMentions, mentions...)
		if err != nil {
			logrus.Errorf("Failed to search Reddit for term '%s': %v", term, err)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	return deduplicateMentions(allMentions), firstErr
}

// searchPosts pages through newest-first results until it reaches req.Since
func (r *RedditSource) searchPosts(ctx context.Context, req FetchRequest, term string) ([]models.Mention, error) {
	var mentions []models.Mention
	after := ""

	for page := 0; page < maxPages; page++ {
		params := map[string]string{
			"q":     term,
			"sort":  "new",
			"type":  "link",
			"limit": "100",
		}
		if after != "" {
			params["after"] = after
		}

		listing, err := r.get(ctx, req.Connection.AccessToken, "/search", params)
		if err != nil {
			return mentions, err
		}

		reachedFloor := false
		for _, child := range listing.Data.Children {
			post := child.Data
			createdAt := time.Unix(int64(post.Created), 0)
			if !isNew(createdAt, req.Since) {
				reachedFloor = true
				continue
			}

			text := post.Title
			if post.Selftext != "" {
				text += "\n" + post.Selftext
			}

			m := buildMention(req, models.PlatformReddit, post.Name, text, createdAt, "")
			m.URL = fmt.Sprintf("https://reddit.com%s", post.Permalink)
			m.Engagement = models.Engagement{
				Likes:    post.Score,
				Comments: post.NumComments,
			}
			m.Author = models.Author{Handle: post.Author, DisplayName: post.Author}
			mentions = append(mentions, m)
		}

		after = listing.Data.After
		if after == "" || reachedFloor {
			break
		}
	}

	return mentions, nil
}

// FetchEngagement reads the inbox: comment replies become comments and
// private messages become DMs
func (r *RedditSource) FetchEngagement(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	var mentions []models.Mention
	after := ""

	for page := 0; page < maxPages; page++ {
		params := map[string]string{"limit": "100"}
		if after != "" {
			params["after"] = after
		}

		listing, err := r.get(ctx, req.Connection.AccessToken, "/message/inbox", params)
		if err != nil {
			return mentions, err
		}

		reachedFloor := false
		for _, child := range listing.Data.Children {
			thing := child.Data
			createdAt := time.Unix(int64(thing.Created), 0)
			if !isNew(createdAt, req.Since) {
				reachedFloor = true
				continue
			}

			typ := models.TypeDM
			if child.Kind == "t1" || thing.WasComment {
				typ = models.TypeComment
			}

			m := buildMention(req, models.PlatformReddit, thing.Name, thing.Body, createdAt, typ)
			m.ParentID = thing.ParentID
			if thing.Context != "" {
				m.URL = fmt.Sprintf("https://reddit.com%s", thing.Context)
			}
			m.Engagement.Likes = thing.Score
			m.Author = models.Author{Handle: thing.Author, DisplayName: thing.Author}
			mentions = append(mentions, m)
		}

		after = listing.Data.After
		if after == "" || reachedFloor {
			break
		}
	}

	return deduplicateMentions(mentions), nil
}

// Reply comments on a post or comment, or answers a private message
func (r *RedditSource) Reply(ctx context.Context, conn models.Connection, target *models.Mention, text string) (string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetFormData(map[string]string{
			"thing_id": target.ExternalID,
			"text":     text,
			"api_type": "json",
		}).
		Post("/api/comment")
	if err := checkResponse(models.PlatformReddit, resp, err); err != nil {
		return "", err
	}

	var created redditCommentResponse
	if err := json.Unmarshal(resp.Body(), &created); err != nil {
		return "", fmt.Errorf("failed to parse Reddit reply response: %w", err)
	}
	if len(created.JSON.Errors) > 0 {
		return "", fmt.Errorf("reddit rejected reply: %v", created.JSON.Errors[0])
	}
	if len(created.JSON.Data.Things) == 0 {
		return "", fmt.Errorf("reddit reply response did not include an id")
	}

	thing := created.JSON.Data.Things[0].Data
	if thing.Name != "" {
		return thing.Name, nil
	}
	return thing.ID, nil
}

func (r *RedditSource) get(ctx context.Context, token, path string, params map[string]string) (*redditListing, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(params).
		Get(path)
	if err := checkResponse(models.PlatformReddit, resp, err); err != nil {
		return nil, err
	}

	var listing redditListing
	if err := json.Unmarshal(resp.Body(), &listing); err != nil {
		return nil, fmt.Errorf("failed to parse Reddit response: %w", err)
	}
	return &listing, nil
}
