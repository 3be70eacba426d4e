// internal/utils/helpers.go
package utils

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	hashtagRe    = regexp.MustCompile(`#(\w+)`)
	mentionRe    = regexp.MustCompile(`@(\w+)`)
	urlRe        = regexp.MustCompile(`https?://[^\s<>"']+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
	compactNumRe = regexp.MustCompile(`^([\d.,]+)\s*([KkMmBb]?)$`)
)

// CleanText collapses whitespace and strips control characters from scraped
// content.
func CleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// ExtractHashtags returns hashtag tokens (without the leading #) found in
// text, in order of appearance.
func ExtractHashtags(text string) []string {
	return extractGroups(hashtagRe, text)
}

// ExtractMentions returns mention tokens (without the leading @) found in
// text, in order of appearance.
func ExtractMentions(text string) []string {
	return extractGroups(mentionRe, text)
}

// ExtractURLs returns http/https URLs found in text.
func ExtractURLs(text string) []string {
	return urlRe.FindAllString(text, -1)
}

func extractGroups(re *regexp.Regexp, text string) []string {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// ParseCompactNumber parses counts as platforms render them: "1,234",
// "1.2K", "3.4M", "2B". Unparseable input returns 0.
func ParseCompactNumber(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	m := compactNumRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}

	base := strings.ReplaceAll(m[1], ",", "")
	multiplier := float64(1)
	switch strings.ToUpper(m[2]) {
	case "K":
		multiplier = 1e3
	case "M":
		multiplier = 1e6
	case "B":
		multiplier = 1e9
	}

	f, err := strconv.ParseFloat(base, 64)
	if err != nil {
		return 0
	}
	return int64(f * multiplier)
}

// postDateLayouts covers the timestamp formats the platform endpoints emit.
var postDateLayouts = []string{
	time.RFC3339,
	time.RFC1123Z,
	time.RFC1123,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
}

// ParseDate parses a platform timestamp string. The zero time is returned
// when no known layout matches.
func ParseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}

	// Some platforms serve epoch milliseconds.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n > 1e12 {
			return time.UnixMilli(n).UTC()
		}
		if n > 1e9 {
			return time.Unix(n, 0).UTC()
		}
	}

	for _, layout := range postDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

// TruncateString shortens s to max runes, appending an ellipsis when
// truncation occurred.
func TruncateString(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
