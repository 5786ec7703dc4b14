package sources

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/azure/social-mentions-monitor/internal/extract"
	"github.com/azure/social-mentions-monitor/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
)

const DefaultYouTubeAPIURL = "https://www.googleapis.com/youtube/v3"

// YouTubeSource implements the YouTube Data API v3 with an OAuth token
type YouTubeSource struct {
	client *resty.Client
}

type youTubeSearchResponse struct {
	NextPageToken string         `json:"nextPageToken"`
	Items         []youTubeVideo `json:"items"`
}

type youTubeVideo struct {
	ID struct {
		VideoID string `json:"videoId"`
	} `json:"id"`
	Snippet struct {
		Title        string `json:"title"`
		Description  string `json:"description"`
		ChannelID    string `json:"channelId"`
		ChannelTitle string `json:"channelTitle"`
		PublishedAt  string `json:"publishedAt"`
	} `json:"snippet"`
}

type youTubeStatsResponse struct {
	Items []struct {
		ID         string `json:"id"`
		Statistics struct {
			ViewCount    string `json:"viewCount"`
			LikeCount    string `json:"likeCount"`
			CommentCount string `json:"commentCount"`
		} `json:"statistics"`
	} `json:"items"`
}

type youTubeCommentThreadsResponse struct {
	NextPageToken string                 `json:"nextPageToken"`
	Items         []youTubeCommentThread `json:"items"`
}

type youTubeCommentThread struct {
	ID      string `json:"id"`
	Snippet struct {
		VideoID         string `json:"videoId"`
		TotalReplyCount int    `json:"totalReplyCount"`
		TopLevelComment struct {
			ID      string `json:"id"`
			Snippet struct {
				TextDisplay       string `json:"textDisplay"`
				AuthorDisplayName string `json:"authorDisplayName"`
				AuthorChannelID   struct {
					Value string `json:"value"`
				} `json:"authorChannelId"`
				PublishedAt string `json:"publishedAt"`
				LikeCount   int    `json:"likeCount"`
			} `json:"snippet"`
		} `json:"topLevelComment"`
	} `json:"snippet"`
}

// NewYouTubeSource creates a new YouTube source against baseURL
func NewYouTubeSource(baseURL string) *YouTubeSource {
	if baseURL == "" {
		baseURL = DefaultYouTubeAPIURL
	}
	return &YouTubeSource{client: newClient(baseURL)}
}

func (y *YouTubeSource) Platform() models.Platform {
	return models.PlatformYouTube
}

// FetchMentions searches videos for each tracked term
func (y *YouTubeSource) FetchMentions(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	var allMentions []models.Mention
	var firstErr error

	for _, term := range searchTerms(req.Config) {
		mentions, err := y.searchVideos(ctx, req, term)
		allMentions = append(allMentions, mentions...)
		if err != nil {
			logrus.Errorf("Failed to search YouTube videos for term '%s': %v", term, err)
			if firstErr == nil {
				firstErr = err
			}
			if ctx.Err() != nil {
				break
			}
		}
	}

	allMentions = deduplicateMentions(allMentions)
	if err := y.attachStatistics(ctx, req, allMentions); err != nil {
		logrus.Warnf("Failed to load YouTube video statistics: %v", err)
	}

	return allMentions, firstErr
}

func (y *YouTubeSource) searchVideos(ctx context.Context, req FetchRequest, term string) ([]models.Mention, error) {
	var mentions []models.Mention
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		params := map[string]string{
			"part":       "snippet",
			"q":          term,
			"type":       "video",
			"order":      "date",
			"maxResults": "50",
		}
		if !req.Since.IsZero() {
			params["publishedAfter"] = req.Since.UTC().Format(time.RFC3339)
		}
		if pageToken != "" {
			params["pageToken"] = pageToken
		}

		var searchResp youTubeSearchResponse
		resp, err := y.client.R().
			SetContext(ctx).
			SetAuthToken(req.Connection.AccessToken).
			SetQueryParams(params).
			SetResult(&searchResp).
			Get("/search")
		if err := checkResponse(models.PlatformYouTube, resp, err); err != nil {
			return mentions, err
		}

		reachedFloor := false
		for _, video := range searchResp.Items {
			publishedAt, err := time.Parse(time.RFC3339, video.Snippet.PublishedAt)
			if err != nil {
				logrus.Errorf("Failed to parse YouTube timestamp: %v", err)
				continue
			}
			if !isNew(publishedAt, req.Since) {
				reachedFloor = true
				continue
			}

			text := strings.TrimSpace(video.Snippet.Title + "\n" + extract.StripHTML(video.Snippet.Description))
			m := buildMention(req, models.PlatformYouTube, video.ID.VideoID, text, publishedAt, "")
			m.URL = fmt.Sprintf("https://www.youtube.com/watch?v=%s", video.ID.VideoID)
			m.Author = models.Author{
				ID:          video.Snippet.ChannelID,
				DisplayName: video.Snippet.ChannelTitle,
			}
			mentions = append(mentions, m)
		}

		pageToken = searchResp.NextPageToken
		if pageToken == "" || reachedFloor {
			break
		}
	}

	return mentions, nil
}

// attachStatistics fills engagement counters with one batched videos call
func (y *YouTubeSource) attachStatistics(ctx context.Context, req FetchRequest, mentions []models.Mention) error {
	if len(mentions) == 0 {
		return nil
	}

	index := make(map[string]int, len(mentions))
	ids := make([]string, 0, len(mentions))
	for i, m := range mentions {
		index[m.ExternalID] = i
		ids = append(ids, m.ExternalID)
	}

	for start := 0; start < len(ids); start += 50 {
		end := start + 50
		if end > len(ids) {
			end = len(ids)
		}

		var stats youTubeStatsResponse
		resp, err := y.client.R().
			SetContext(ctx).
			SetAuthToken(req.Connection.AccessToken).
			SetQueryParams(map[string]string{
				"part": "statistics",
				"id":   strings.Join(ids[start:end], ","),
			}).
			SetResult(&stats).
			Get("/videos")
		if err := checkResponse(models.PlatformYouTube, resp, err); err != nil {
			return err
		}

		for _, item := range stats.Items {
			i, ok := index[item.ID]
			if !ok {
				continue
			}
			mentions[i].Engagement.Likes = atoiOrZero(item.Statistics.LikeCount)
			mentions[i].Engagement.Comments = atoiOrZero(item.Statistics.CommentCount)
			mentions[i].Engagement.Impressions = atoiOrZero(item.Statistics.ViewCount)
		}
	}

	return nil
}

// FetchEngagement lists comment threads on the connected channel's videos
func (y *YouTubeSource) FetchEngagement(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	channelID := req.Connection.AccountID
	if channelID == "" {
		var err error
		channelID, err = y.myChannelID(ctx, req.Connection.AccessToken)
		if err != nil {
			return nil, err
		}
	}

	var mentions []models.Mention
	pageToken := ""

	for page := 0; page < maxPages; page++ {
		params := map[string]string{
			"part":                         "snippet",
			"allThreadsRelatedToChannelId": channelID,
			"order":                        "time",
			"maxResults":                   "100",
		}
		if pageToken != "" {
			params["pageToken"] = pageToken
		}

		var threads youTubeCommentThreadsResponse
		resp, err := y.client.R().
			SetContext(ctx).
			SetAuthToken(req.Connection.AccessToken).
			SetQueryParams(params).
			SetResult(&threads).
			Get("/commentThreads")
		if err := checkResponse(models.PlatformYouTube, resp, err); err != nil {
			return mentions, err
		}

		reachedFloor := false
		for _, thread := range threads.Items {
			top := thread.Snippet.TopLevelComment
			publishedAt, err := time.Parse(time.RFC3339, top.Snippet.PublishedAt)
			if err != nil {
				logrus.Errorf("Failed to parse YouTube comment timestamp: %v", err)
				continue
			}
			if !isNew(publishedAt, req.Since) {
				// threads come newest first
				reachedFloor = true
				continue
			}

			m := buildMention(req, models.PlatformYouTube, top.ID, extract.StripHTML(top.Snippet.TextDisplay), publishedAt, models.TypeComment)
			m.ParentID = thread.Snippet.VideoID
			m.URL = fmt.Sprintf("https://www.youtube.com/watch?v=%s&lc=%s", thread.Snippet.VideoID, top.ID)
			m.Engagement = models.Engagement{
				Likes:    top.Snippet.LikeCount,
				Comments: thread.Snippet.TotalReplyCount,
			}
			m.Author = models.Author{
				ID:          top.Snippet.AuthorChannelID.Value,
				DisplayName: top.Snippet.AuthorDisplayName,
			}
			mentions = append(mentions, m)
		}

		pageToken = threads.NextPageToken
		if pageToken == "" || reachedFloor {
			break
		}
	}

	return deduplicateMentions(mentions), nil
}

// Reply answers a top-level comment
func (y *YouTubeSource) Reply(ctx context.Context, conn models.Connection, target *models.Mention, text string) (string, error) {
	if !target.IsEngagement() {
		return "", fmt.Errorf("youtube replies are only supported on comments")
	}

	body := map[string]interface{}{
		"snippet": map[string]string{
			"parentId":     target.ExternalID,
			"textOriginal": text,
		},
	}

	var created struct {
		ID string `json:"id"`
	}
	resp, err := y.client.R().
		SetContext(ctx).
		SetAuthToken(conn.AccessToken).
		SetQueryParam("part", "snippet").
		SetBody(body).
		SetResult(&created).
		Post("/comments")
	if err := checkResponse(models.PlatformYouTube, resp, err); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("youtube reply response did not include an id")
	}

	return created.ID, nil
}

func (y *YouTubeSource) myChannelID(ctx context.Context, token string) (string, error) {
	var channels struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	resp, err := y.client.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetQueryParams(map[string]string{"part": "id", "mine": "true"}).
		SetResult(&channels).
		Get("/channels")
	if err := checkResponse(models.PlatformYouTube, resp, err); err != nil {
		return "", err
	}
	if len(channels.Items) == 0 {
		return "", fmt.Errorf("youtube connection has no channel")
	}
	return channels.Items[0].ID, nil
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
