package social

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/sergeartemyev-blip/social-capital-monitor/internal/contacts"
)

// ErrNoAPIKey is returned by YouTubeVideos when no Data API key is configured.
var ErrNoAPIKey = errors.New("youtube api key not configured")

const maxVideoDescription = 200

type youtubeSearch struct {
	Items []struct {
		ID struct {
			ChannelID string `json:"channelId"`
			VideoID   string `json:"videoId"`
		} `json:"id"`
		Snippet struct {
			Title       string `json:"title"`
			Description string `json:"description"`
			PublishedAt string `json:"publishedAt"`
		} `json:"snippet"`
	} `json:"items"`
}

func (f *Fetcher) youtubeSearch(ctx context.Context, params url.Values) (youtubeSearch, error) {
	params.Set("part", "snippet")
	params.Set("key", f.cfg.YouTubeAPIKey)
	var out youtubeSearch
	body, err := f.get(ctx, f.cfg.YouTubeURL+"/search?"+params.Encode(), nil)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) {
			return out, fmt.Errorf("youtube search: status %d", status.Status)
		}
		return out, fmt.Errorf("youtube search: %s", strings.ReplaceAll(err.Error(), f.cfg.YouTubeAPIKey, "***"))
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, fmt.Errorf("decode youtube search: %w", err)
	}
	return out, nil
}

// YouTubeVideos lists the latest uploads of the channel behind link.
// Channel handles are resolved with a channel search first.
func (f *Fetcher) YouTubeVideos(ctx context.Context, link string, max int) ([]Post, error) {
	if f.cfg.YouTubeAPIKey == "" {
		return nil, ErrNoAPIKey
	}
	handle := contacts.ParseYouTubeChannel(link)
	if handle == "" || max <= 0 {
		return nil, nil
	}

	channels, err := f.youtubeSearch(ctx, url.Values{
		"q":          {handle},
		"type":       {"channel"},
		"maxResults": {"1"},
	})
	if err != nil {
		return nil, err
	}
	if len(channels.Items) == 0 || channels.Items[0].ID.ChannelID == "" {
		return nil, nil
	}

	videos, err := f.youtubeSearch(ctx, url.Values{
		"channelId":  {channels.Items[0].ID.ChannelID},
		"order":      {"date"},
		"type":       {"video"},
		"maxResults": {strconv.Itoa(max)},
	})
	if err != nil {
		return nil, err
	}
	posts := make([]Post, 0, len(videos.Items))
	for _, item := range videos.Items {
		published := item.Snippet.PublishedAt
		if len(published) > 10 {
			published = published[:10]
		}
		text := fmt.Sprintf("📹 %s (%s)", item.Snippet.Title, published)
		if desc := truncate(collapse(item.Snippet.Description), maxVideoDescription); desc != "" {
			text += "\n" + desc
		}
		post := Post{Source: SourceYouTube, Text: text}
		if item.ID.VideoID != "" {
			post.URL = "https://youtu.be/" + item.ID.VideoID
		}
		posts = append(posts, post)
	}
	return posts, nil
}
