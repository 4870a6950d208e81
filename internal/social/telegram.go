package social

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	minPostRunes        = 10
	maxPostRunes        = 500
	minChannelPostRunes = 20
	maxChannelPostRunes = 400
	channelSamplePosts  = 3
)

// ChannelInfo is a channel's description plus a few recent posts.
type ChannelInfo struct {
	Description string
	Posts       []Post
}

func (f *Fetcher) channelPreviewURL(channel string) string {
	return f.cfg.TelegramURL + "/s/" + url.PathEscape(channel)
}

// TelegramPosts returns up to max recent posts from a public channel preview.
func (f *Fetcher) TelegramPosts(ctx context.Context, channel string, max int) ([]Post, error) {
	if channel == "" || max <= 0 {
		return nil, nil
	}
	doc, err := f.document(ctx, f.channelPreviewURL(channel))
	if err != nil {
		return nil, err
	}
	return f.channelPosts(doc, max, minPostRunes, maxPostRunes), nil
}

func (f *Fetcher) channelPosts(doc *goquery.Document, max, minRunes, maxRunes int) []Post {
	var posts []Post
	doc.Find(".tgme_widget_message_text").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := markdownText(s)
		if len([]rune(text)) <= minRunes {
			return true
		}
		post := Post{Source: SourceTelegram, Text: truncate(text, maxRunes)}
		if ref, ok := s.Closest(".tgme_widget_message").Attr("data-post"); ok && ref != "" {
			post.URL = f.cfg.TelegramURL + "/" + ref
		}
		posts = append(posts, post)
		return len(posts) < max
	})
	return posts
}

// TelegramProfile returns the bio shown on a public user page.
func (f *Fetcher) TelegramProfile(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", nil
	}
	doc, err := f.document(ctx, f.cfg.TelegramURL+"/"+url.PathEscape(username))
	if err != nil {
		return "", err
	}
	return spacedText(doc.Find(".tgme_page_description").First()), nil
}

// TelegramChannelInfo returns the channel description and up to three posts.
func (f *Fetcher) TelegramChannelInfo(ctx context.Context, channel string) (ChannelInfo, error) {
	if channel == "" {
		return ChannelInfo{}, nil
	}
	doc, err := f.document(ctx, f.channelPreviewURL(channel))
	if err != nil {
		return ChannelInfo{}, err
	}
	return ChannelInfo{
		Description: strings.TrimSpace(spacedText(doc.Find(".tgme_channel_info_description").First())),
		Posts:       f.channelPosts(doc, channelSamplePosts, minChannelPostRunes, maxChannelPostRunes),
	}, nil
}
