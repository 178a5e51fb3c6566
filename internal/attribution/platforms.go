package attribution

import "strings"

// platformHints maps utm_source substrings to canonical platform names.
// Order matters for nothing here; rules are disjoint in practice.
var platformHints = []struct {
	substrings []string
	platform   string
}{
	{[]string{"facebook", "fb", "instagram", "ig"}, "meta"},
	{[]string{"snap"}, "snapchat"},
	{[]string{"tiktok", "tt"}, "tiktok"},
	{[]string{"google", "gads", "adwords"}, "google"},
}

// ResolvePlatform maps a raw utm_source value to a canonical ad platform
// name, or "" when no rule matches. Matching is case-insensitive
// substring containment, so "FB_Newsfeed" and "l.instagram.com" both
// resolve to meta.
func ResolvePlatform(utmSource string) string {
	src := strings.ToLower(strings.TrimSpace(utmSource))
	if src == "" {
		return ""
	}
	for _, hint := range platformHints {
		for _, sub := range hint.substrings {
			if strings.Contains(src, sub) {
				return hint.platform
			}
		}
	}
	return ""
}
