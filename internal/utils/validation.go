// internal/utils/validation.go
package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Per-platform username rules mirror what the platforms themselves accept.
var usernamePatterns = map[string]*regexp.Regexp{
	"twitter":   regexp.MustCompile(`^[A-Za-z0-9_]{1,15}$`),
	"instagram": regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`),
	"facebook":  regexp.MustCompile(`^[A-Za-z0-9.]{5,50}$`),
	"linkedin":  regexp.MustCompile(`^[A-Za-z0-9-]{3,100}$`),
	"tiktok":    regexp.MustCompile(`^[A-Za-z0-9._]{2,24}$`),
}

var hashtagPattern = regexp.MustCompile(`^\w{1,100}$`)

// ValidateUsername checks a username against the platform's own rules.
// A leading @ is tolerated and stripped before validation.
func ValidateUsername(username, platform string) error {
	username = strings.TrimPrefix(username, "@")
	if username == "" {
		return fmt.Errorf("username cannot be empty")
	}

	pattern, ok := usernamePatterns[strings.ToLower(platform)]
	if !ok {
		return fmt.Errorf("no username rules for platform %q", platform)
	}
	if !pattern.MatchString(username) {
		return fmt.Errorf("invalid %s username: %q", platform, username)
	}
	return nil
}

// ValidateHashtag checks a hashtag target. A leading # is tolerated.
func ValidateHashtag(tag string) error {
	tag = strings.TrimPrefix(tag, "#")
	if !hashtagPattern.MatchString(tag) {
		return fmt.Errorf("invalid hashtag: %q", tag)
	}
	return nil
}

// ValidateKeyword checks a keyword search target.
func ValidateKeyword(keyword string) error {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return fmt.Errorf("keyword cannot be empty")
	}
	if len(keyword) > 200 {
		return fmt.Errorf("keyword too long: %d characters", len(keyword))
	}
	return nil
}

// ValidateProxyURL checks that a proxy endpoint parses and uses a supported
// scheme.
func ValidateProxyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid proxy URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https", "socks4", "socks5":
	default:
		return fmt.Errorf("unsupported proxy scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("proxy URL missing host")
	}
	return nil
}
