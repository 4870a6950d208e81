package social

import (
	"context"
	"net/url"

	"github.com/PuerkitoBio/goquery"
)

// InstagramPosts reads post captions from a public Instagram mirror.
func (f *Fetcher) InstagramPosts(ctx context.Context, username string, max int) ([]Post, error) {
	if username == "" || max <= 0 {
		return nil, nil
	}
	profile := f.cfg.InstagramURL + "/profile/" + url.PathEscape(username)
	doc, err := f.document(ctx, profile)
	if err != nil {
		return nil, err
	}
	var posts []Post
	doc.Find(".photo-description").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := spacedText(s)
		if len([]rune(text)) <= minPostRunes {
			return true
		}
		posts = append(posts, Post{
			Source: SourceInstagram,
			Text:   truncate(text, maxPostRunes),
			URL:    "https://www.instagram.com/" + username + "/",
		})
		return len(posts) < max
	})
	return posts, nil
}
