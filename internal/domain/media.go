package domain

import (
	"fmt"
	"net/url"
	"time"
)

// Platform identifies the upstream video platform a link belongs to.
type Platform string

const (
	PlatformDouyin   Platform = "douyin"
	PlatformTikTok   Platform = "tiktok"
	PlatformFacebook Platform = "facebook"
)

// Valid reports whether p is one of the supported platforms.
func (p Platform) Valid() bool {
	switch p {
	case PlatformDouyin, PlatformTikTok, PlatformFacebook:
		return true
	}
	return false
}

// MediaRecord is the canonical analysis result for one video, regardless of
// which extraction strategy produced it.
type MediaRecord struct {
	VideoID         string   `json:"videoId"`
	Description     string   `json:"description"`
	Author          string   `json:"author"`
	Avatar          string   `json:"avatar,omitempty"`
	Cover           string   `json:"cover,omitempty"`
	Music           string   `json:"music,omitempty"`
	DurationSeconds int      `json:"duration"`
	Resolution      string   `json:"resolution,omitempty"`
	BitrateKbps     int      `json:"bitrateKbps,omitempty"`
	SizeBytes       int64    `json:"sizeBytes,omitempty"`
	PublishedAt     string   `json:"publishedAt,omitempty"`
	NoWatermarkURL  string   `json:"noWatermarkUrl"`
	ProxyDownload   string   `json:"proxyDownload"`
	Platform        Platform `json:"platform"`
}

// ProxyDownloadPath builds the download-proxy path for a resolved media URL.
func ProxyDownloadPath(platform Platform, mediaURL, videoID string) string {
	return fmt.Sprintf("/api/%s/download?source=%s&filename=%s.mp4",
		platform, url.QueryEscape(mediaURL), videoID)
}

// CacheEntry wraps a MediaRecord together with its cache bookkeeping.
type CacheEntry struct {
	ID            string      `json:"id"`
	URL           string      `json:"url"`
	NormalizedURL string      `json:"normalizedUrl"`
	VideoID       string      `json:"videoId"`
	Platform      Platform    `json:"platform"`
	Result        MediaRecord `json:"result"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`
	AccessedAt    time.Time   `json:"accessedAt"`
	AccessCount   int         `json:"accessCount"`
}

// CacheStats summarizes the cache contents.
type CacheStats struct {
	TotalVideos   int          `json:"totalVideos"`
	TotalAccesses int          `json:"totalAccesses"`
	MostAccessed  []CacheEntry `json:"mostAccessed"`
}

// CacheRepository is the persistent store behind the resolution pipeline.
// Lookups increment access bookkeeping as a side effect; Save is an upsert
// keyed by (normalizedUrl, platform, videoId).
type CacheRepository interface {
	Lookup(normalizedURL string, platform Platform) (*MediaRecord, error)
	Save(originalURL, normalizedURL string, platform Platform, result *MediaRecord) error
	History(limit int) ([]CacheEntry, error)
	Stats() (*CacheStats, error)
	DeleteByID(id string) (bool, error)
}
