package server

import "net/url"

// redactQuery masks the webhook secret in logged URIs.
func redactQuery(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.RawQuery == "" {
		return uri
	}
	q := u.Query()
	if q.Get("secret") == "" {
		return uri
	}
	q.Set("secret", "***")
	u.RawQuery = q.Encode()
	return u.String()
}
