package social

import (
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/PuerkitoBio/goquery"
)

// collapse joins whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// spacedText is the selection's text with line breaks and block edges
// turned into spaces.
func spacedText(s *goquery.Selection) string {
	s = s.Clone()
	s.Find("br").ReplaceWithHtml(" ")
	s.Find("p, div, li").Each(func(_ int, el *goquery.Selection) {
		el.AppendHtml(" ")
	})
	return collapse(s.Text())
}

// markdownText renders the selection as markdown so links survive. It
// falls back to plain text when conversion fails.
func markdownText(s *goquery.Selection) string {
	html, err := s.Html()
	if err != nil {
		return spacedText(s)
	}
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil || strings.TrimSpace(md) == "" {
		return spacedText(s)
	}
	return collapse(md)
}
