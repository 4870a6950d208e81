package contacts

import "strings"

// pathAfterHost splits a link into path segments following one of hosts.
// Scheme and "www." are optional; query and fragment are dropped.
func pathAfterHost(link string, hosts ...string) []string {
	link = strings.TrimSpace(link)
	if i := strings.IndexAny(link, "?#"); i >= 0 {
		link = link[:i]
	}
	link = strings.TrimRight(link, "/")
	parts := strings.Split(link, "/")
	for i, p := range parts {
		host := strings.TrimPrefix(strings.ToLower(p), "www.")
		for _, h := range hosts {
			if host == h {
				return parts[i+1:]
			}
		}
	}
	return nil
}

// ParseTelegramHandle extracts the user or channel name from a t.me link.
// Private invite links (t.me/+...) and the /s/ preview prefix are handled.
func ParseTelegramHandle(link string) string {
	rest := pathAfterHost(link, "t.me", "telegram.me")
	if len(rest) > 1 && rest[0] == "s" {
		rest = rest[1:]
	}
	if len(rest) == 0 {
		return ""
	}
	handle := strings.TrimPrefix(rest[0], "@")
	if handle == "" || strings.HasPrefix(handle, "+") || handle == "joinchat" {
		return ""
	}
	return handle
}

// ParseInstagramHandle extracts the username from an instagram.com link.
func ParseInstagramHandle(link string) string {
	rest := pathAfterHost(link, "instagram.com")
	if len(rest) == 0 {
		return ""
	}
	return strings.TrimPrefix(rest[0], "@")
}

// ParseYouTubeChannel extracts the channel id or handle from /channel/, /@ or /c/ links.
func ParseYouTubeChannel(link string) string {
	rest := pathAfterHost(link, "youtube.com", "m.youtube.com")
	if len(rest) == 0 {
		return ""
	}
	switch {
	case (rest[0] == "channel" || rest[0] == "c") && len(rest) > 1:
		return rest[1]
	case strings.HasPrefix(rest[0], "@") && len(rest[0]) > 1:
		return rest[0][1:]
	}
	return ""
}
