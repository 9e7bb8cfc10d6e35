package clusterset

import "strings"

// urlEncodePathSegment handles only the characters that actually appear in
// CIDR literals and timestamp comments, not the full RFC 3986 escaping set.
func urlEncodePathSegment(s string) string {
	replacer := strings.NewReplacer(
		"/", "%2F",
		":", "%3A",
		" ", "%20",
	)
	return replacer.Replace(s)
}
