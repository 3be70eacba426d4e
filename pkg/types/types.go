// pkg/types/types.go

// Package types defines the canonical record shapes shared between the
// collection engine, the storage layer, and external consumers (CLI,
// exports, future web layers). The Post JSON encoding is the wire contract.
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Platform identifies a supported social platform.
type Platform string

const (
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTikTok    Platform = "tiktok"
)

// ValidPlatforms returns all supported platform values
func ValidPlatforms() []Platform {
	return []Platform{
		PlatformTwitter, PlatformInstagram, PlatformFacebook,
		PlatformLinkedIn, PlatformTikTok,
	}
}

// IsValid checks if the platform is a supported value
func (p Platform) IsValid() bool {
	for _, valid := range ValidPlatforms() {
		if p == valid {
			return true
		}
	}
	return false
}

// ParsePlatform converts a string into a Platform, validating it
func ParsePlatform(s string) (Platform, error) {
	p := Platform(s)
	if !p.IsValid() {
		return "", fmt.Errorf("unsupported platform: %q", s)
	}
	return p, nil
}

// TargetType identifies what a collection job scrapes.
type TargetType string

const (
	TargetUser    TargetType = "user"
	TargetHashtag TargetType = "hashtag"
	TargetKeyword TargetType = "keyword"
)

// ValidTargetTypes returns all valid target type values
func ValidTargetTypes() []TargetType {
	return []TargetType{TargetUser, TargetHashtag, TargetKeyword}
}

// IsValid checks if the target type is valid
func (t TargetType) IsValid() bool {
	for _, valid := range ValidTargetTypes() {
		if t == valid {
			return true
		}
	}
	return false
}

// SessionStatus represents the lifecycle state of a scraping session.
// Transitions are monotonic: active is the only non-terminal state, and
// completed, failed and cancelled are mutually exclusive and final.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions
func (s SessionStatus) IsTerminal() bool {
	return s == SessionCompleted || s == SessionFailed || s == SessionCancelled
}

// IsValid checks if the status is a valid value
func (s SessionStatus) IsValid() bool {
	switch s {
	case SessionActive, SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// ProxyStatus represents the health state of a proxy endpoint.
type ProxyStatus string

const (
	ProxyTesting  ProxyStatus = "testing"
	ProxyActive   ProxyStatus = "active"
	ProxyFailed   ProxyStatus = "failed"
	ProxyInactive ProxyStatus = "inactive"
)

// IsValid checks if the proxy status is a valid value
func (s ProxyStatus) IsValid() bool {
	switch s {
	case ProxyTesting, ProxyActive, ProxyFailed, ProxyInactive:
		return true
	}
	return false
}

// Post is the canonical cross-platform record. The json tags define the
// export contract consumed by the CLI and any future web layer.
type Post struct {
	ID              string                 `json:"id"`
	Platform        Platform               `json:"platform"`
	Author          string                 `json:"author"`
	Content         string                 `json:"content"`
	PublishedAt     time.Time              `json:"timestamp"`
	ScrapedAt       time.Time              `json:"-"`
	Likes           int64                  `json:"likes"`
	Comments        int64                  `json:"comments"`
	Shares          int64                  `json:"shares"`
	Views           int64                  `json:"views"`
	URL             string                 `json:"url"`
	MediaURLs       []string               `json:"media_urls"`
	Hashtags        []string               `json:"hashtags"`
	Mentions        []string               `json:"mentions"`
	IsVerified      bool                   `json:"is_verified"`
	IsRetweet       bool                   `json:"-"`
	IsReply         bool                   `json:"-"`
	ParentPostID    string                 `json:"-"`
	EngagementScore float64                `json:"engagement_score"`
	RawData         map[string]interface{} `json:"raw_data"`
}

// NaturalKey returns the identity a post is deduplicated on
func (p *Post) NaturalKey() string {
	return string(p.Platform) + ":" + p.ID
}

// Author is a scraped profile. Unique on (platform, user id) and on
// (platform, username).
type Author struct {
	Platform       Platform               `json:"platform"`
	UserID         string                 `json:"user_id"`
	Username       string                 `json:"username"`
	DisplayName    string                 `json:"display_name"`
	Bio            string                 `json:"bio,omitempty"`
	FollowersCount int64                  `json:"followers_count"`
	FollowingCount int64                  `json:"following_count"`
	PostsCount     int64                  `json:"posts_count"`
	IsVerified     bool                   `json:"is_verified"`
	IsPrivate      bool                   `json:"is_private"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Session tracks one bounded collection job against one (platform, target).
type Session struct {
	SessionID       string        `json:"session_id"`
	Platform        Platform      `json:"platform"`
	TargetType      TargetType    `json:"target_type"`
	Target          string        `json:"target"`
	Status          SessionStatus `json:"status"`
	TotalPosts      int64         `json:"total_posts"`
	SuccessfulPosts int64         `json:"successful_posts"`
	FailedPosts     int64         `json:"failed_posts"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
	Config          map[string]interface{} `json:"config,omitempty"`
}

// ErrorRecord is one durably recorded failure. SessionID may be empty for
// infrastructure errors raised before a session exists.
type ErrorRecord struct {
	SessionID  string                 `json:"session_id,omitempty"`
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	Code       string                 `json:"code,omitempty"`
	StackTrace string                 `json:"stack_trace,omitempty"`
	Context    map[string]interface{} `json:"context,omitempty"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// OutputFormat represents supported export formats
type OutputFormat string

const (
	FormatJSON  OutputFormat = "json"
	FormatCSV   OutputFormat = "csv"
	FormatExcel OutputFormat = "excel"
)

// ValidOutputFormats returns all valid output format values
func ValidOutputFormats() []OutputFormat {
	return []OutputFormat{FormatJSON, FormatCSV, FormatExcel}
}

// IsValid checks if the output format is valid
func (of OutputFormat) IsValid() bool {
	for _, valid := range ValidOutputFormats() {
		if of == valid {
			return true
		}
	}
	return false
}

// GetFileExtension returns the appropriate file extension for the format
func (of OutputFormat) GetFileExtension() string {
	switch of {
	case FormatJSON:
		return ".json"
	case FormatCSV:
		return ".csv"
	case FormatExcel:
		return ".xlsx"
	default:
		return ".txt"
	}
}

// MarshalExport renders a post in the canonical export encoding
func (p *Post) MarshalExport() ([]byte, error) {
	return json.Marshal(p)
}
