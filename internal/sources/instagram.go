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
	DefaultInstagramAPIURL = "https://graph.facebook.com/v19.0"

	instagramTimeLayout  = "2006-01-02T15:04:05-0700"
	instagramMediaFields = "id,caption,permalink,timestamp,username,like_count,comments_count"
)

// InstagramSource implements the Instagram Graph API for a business account.
// The connection's AccountID is the Instagram business account id.
type InstagramSource struct {
	client *resty.Client
}

type instagramMedia struct {
	ID            string `json:"id"`
	Caption       string `json:"caption"`
	Permalink     string `json:"permalink"`
	Timestamp     string `json:"timestamp"`
	Username      string `json:"username"`
	LikeCount     int    `json:"like_count"`
	CommentsCount int    `json:"comments_count"`
}

type instagramMediaPage struct {
	Data   []instagramMedia `json:"data"`
	Paging struct {
		Cursors struct {
			After string `json:"after"`
		} `json:"cursors"`
		Next string `json:"next"`
	} `json:"paging"`
}

type instagramComment struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp"`
	LikeCount int    `json:"like_count"`
}

// NewInstagramSource creates a new Instagram source against baseURL
func NewInstagramSource(baseURL string) *InstagramSource {
	if baseURL == "" {
		baseURL = DefaultInstagramAPIURL
	}
	return &InstagramSource{client: newClient(baseURL)}
}

func (i *InstagramSource) Platform() models.Platform {
	return models.PlatformInstagram
}

// FetchMentions collects media the account was tagged in plus recent media
// for each tracked hashtag
func (i *InstagramSource) FetchMentions(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	accountID := req.Connection.AccountID
	if accountID == "" {
		return nil, fmt.Errorf("instagram connection is missing the business account id")
	}

	var allMentions []models.Mention
	var firstErr error

	tagged, err := i.listMedia(ctx, req, fmt.Sprintf("/%s/tags", accountID), nil)
	for _, media := range tagged {
		if m, ok := i.mediaToMention(req, media, models.TypeBrandMention); ok {
			allMentions = append(allMentions, m)
		}
	}
	if err != nil {
		logrus.Errorf("Failed to fetch Instagram tagged media: %v", err)
		firstErr = err
	}

	if req.Config != nil {
		for _, tag := range req.Config.Hashtags {
			if ctx.Err() != nil {
				break
			}
			tag = strings.TrimPrefix(strings.TrimSpace(tag), "#")
			if tag == "" {
				continue
			}

			hashtagID, err := i.hashtagID(ctx, req.Connection.AccessToken, accountID, tag)
			if err != nil {
				logrus.Errorf("Failed to resolve Instagram hashtag '%s': %v", tag, err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}

			recent, err := i.listMedia(ctx, req, fmt.Sprintf("/%s/recent_media", hashtagID),
				map[string]string{"user_id": accountID})
			for _, media := range recent {
				if m, ok := i.mediaToMention(req, media, models.TypeHashtag); ok {
					allMentions = append(allMentions, m)
				}
			}
			if err != nil {
				logrus.Errorf("Failed to fetch Instagram media for hashtag '%s': %v", tag, err)
				if firstErr == nil {
					firstErr = err
				}
			}
		}
	}

	return deduplicateMentions(allMentions), firstErr
}

// FetchEngagement lists comments on the account's own recent media
func (i *InstagramSource) FetchEngagement(ctx context.Context, req FetchRequest) ([]models.Mention, error) {
	accountID := req.Connection.AccountID
	if accountID == "" {
		return nil, fmt.Errorf("instagram connection is missing the business account id")
	}

	media, err := i.listMedia(ctx, req, fmt.Sprintf("/%s/media", accountID), nil)
	if err != nil {
		return nil, err
	}

	var mentions []models.Mention
	for _, post := range media {
		if post.CommentsCount == 0 {
			continue
		}

		var comments struct {
			Data []instagramComment `json:"data"`
		}
		resp, err := i.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"access_token": req.Connection.AccessToken,
				"fields":       "id,text,username,timestamp,like_count",
			}).
			SetResult(&comments).
			Get(fmt.Sprintf("/%s/comments", post.ID))
		if err := checkResponse(models.PlatformInstagram, resp, err); err != nil {
			return mentions, err
		}

		for _, c := range comments.Data {
			createdAt, err := parseInstagramTime(c.Timestamp)
			if err != nil {
				logrus.Errorf("Failed to parse Instagram comment timestamp: %v", err)
				continue
			}
			if !isNew(createdAt, req.Since) {
				continue
			}

			m := buildMention(req, models.PlatformInstagram, c.ID, c.Text, createdAt, models.TypeComment)
			m.ParentID = post.ID
			m.URL = post.Permalink
			m.Engagement.Likes = c.LikeCount
			m.Author = models.Author{Handle: c.Username, DisplayName: c.Username}
			mentions = append(mentions, m)
		}
	}

	return deduplicateMentions(mentions), nil
}

// Reply answers a comment, or comments on media the account was tagged in
func (i *InstagramSource) Reply(ctx context.Context, conn models.Connection, target *models.Mention, text string) (string, error) {
	var path string
	params := map[string]string{"access_token": conn.AccessToken, "message": text}

	if target.IsEngagement() {
		path = fmt.Sprintf("/%s/replies", target.ExternalID)
	} else {
		if conn.AccountID == "" {
			return "", fmt.Errorf("instagram connection is missing the business account id")
		}
		path = fmt.Sprintf("/%s/mentions", conn.AccountID)
		params["media_id"] = target.ExternalID
	}

	var created struct {
		ID string `json:"id"`
	}
	resp, err := i.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&created).
		Post(path)
	if err := checkResponse(models.PlatformInstagram, resp, err); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("instagram reply response did not include an id")
	}

	return created.ID, nil
}

func (i *InstagramSource) listMedia(ctx context.Context, req FetchRequest, path string, extra map[string]string) ([]instagramMedia, error) {
	var media []instagramMedia
	after := ""

	for page := 0; page < maxPages; page++ {
		r := i.client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{
				"access_token": req.Connection.AccessToken,
				"fields":       instagramMediaFields,
				"limit":        "50",
			}).
			SetQueryParams(extra)
		if after != "" {
			r.SetQueryParam("after", after)
		}

		var result instagramMediaPage
		resp, err := r.SetResult(&result).Get(path)
		if err := checkResponse(models.PlatformInstagram, resp, err); err != nil {
			return media, err
		}

		media = append(media, result.Data...)

		if result.Paging.Next == "" || result.Paging.Cursors.After == "" {
			break
		}
		after = result.Paging.Cursors.After
	}

	return media, nil
}

func (i *InstagramSource) hashtagID(ctx context.Context, token, accountID, tag string) (string, error) {
	var result struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	resp, err := i.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"access_token": token,
			"user_id":      accountID,
			"q":            tag,
		}).
		SetResult(&result).
		Get("/ig_hashtag_search")
	if err := checkResponse(models.PlatformInstagram, resp, err); err != nil {
		return "", err
	}
	if len(result.Data) == 0 {
		return "", fmt.Errorf("hashtag #%s not found", tag)
	}
	return result.Data[0].ID, nil
}

func (i *InstagramSource) mediaToMention(req FetchRequest, media instagramMedia, typ models.MentionType) (models.Mention, bool) {
	createdAt, err := parseInstagramTime(media.Timestamp)
	if err != nil {
		logrus.Errorf("Failed to parse Instagram timestamp: %v", err)
		return models.Mention{}, false
	}
	if !isNew(createdAt, req.Since) {
		return models.Mention{}, false
	}

	m := buildMention(req, models.PlatformInstagram, media.ID, media.Caption, createdAt, typ)
	m.URL = media.Permalink
	m.Engagement = models.Engagement{
		Likes:    media.LikeCount,
		Comments: media.CommentsCount,
	}
	m.Author = models.Author{Handle: media.Username, DisplayName: media.Username}
	return m, true
}

func parseInstagramTime(s string) (time.Time, error) {
	if t, err := time.Parse(instagramTimeLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}
