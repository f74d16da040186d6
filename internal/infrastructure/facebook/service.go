// Package facebook resolves Facebook video, reel and watch links. There is
// no official API tier: the cascade runs the configured resolver services
// first (when any are configured) and falls back to scraping the page.
package facebook

import (
	"context"
	"math"
	"net/http"
	"regexp"
	"strings"
	"time"

	"shortvid/config"
	"shortvid/internal/cascade"
	"shortvid/internal/domain"
	infrastructure "shortvid/internal/infrastructure/http"
	"shortvid/internal/logger"
)

var (
	errUnrecognizedLink = domain.WithMessage(domain.ErrUnresolvableLink,
		"Không thể nhận diện video từ link Facebook này. Vui lòng dùng link video trực tiếp.")

	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`facebook\.com/reel/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`facebook\.com/[^/]+/reels/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`(?:facebook\.com/watch/\?v=|facebook\.com/.*/videos/)([0-9]+)`),
		regexp.MustCompile(`facebook\.com/.*[?&]v=([0-9]+)`),
		regexp.MustCompile(`fb\.watch/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`m\.facebook\.com/reel/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`m\.facebook\.com/watch/\?v=([0-9]+)`),
	}

	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// Service extracts Facebook videos.
type Service struct {
	cfg  *config.Config
	http *infrastructure.HTTPClient
}

func NewService(cfg *config.Config, httpClient *infrastructure.HTTPClient) *Service {
	return &Service{cfg: cfg, http: httpClient}
}

// Extract resolves a Facebook link into a media record. Share links are
// expanded first; a failed expansion falls through to the original URL.
func (s *Service) Extract(ctx context.Context, rawURL, tag string) (*domain.MediaRecord, error) {
	resolvedURL := rawURL
	if isShareLink(rawURL) {
		logger.Info().Printf("[facebook:%s] detected share link, resolving", tag)
		if resolved := s.resolveShareLink(ctx, rawURL, tag); resolved != "" {
			resolvedURL = resolved
			logger.Info().Printf("[facebook:%s] resolved to %s", tag, resolvedURL)
		}
	}

	videoID := extractVideoID(resolvedURL)
	if videoID == "" {
		if !strings.Contains(resolvedURL, "facebook.com") {
			return nil, errUnrecognizedLink
		}
		videoID = pseudoID(resolvedURL)
		logger.Info().Printf("[facebook:%s] using generated video id %s", tag, videoID)
	}

	return cascade.Run(ctx, domain.PlatformFacebook, []cascade.Strategy{
		&resolverStrategy{s},
		&scrapeStrategy{s},
	}, cascade.Request{
		RawURL:     resolvedURL,
		Identifier: videoID,
		Tag:        tag,
	})
}

func isShareLink(rawURL string) bool {
	return strings.Contains(rawURL, "/share/r/") || strings.Contains(rawURL, "/share/v/")
}

// resolveShareLink follows the share-link redirect and returns the final
// URL, or empty when the expansion failed. Expansion is best-effort.
func (s *Service) resolveShareLink(ctx context.Context, shareURL, tag string) string {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FacebookScrapeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, shareURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", s.cfg.FacebookDesktopUA)
	req.Header.Set("Accept", "text/html")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := s.http.Do(req)
	if err != nil {
		logger.Warn().Printf("[facebook:%s] share link resolve failed: %v", tag, err)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return resp.Request.URL.String()
}

func extractVideoID(rawURL string) string {
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(rawURL); match != nil {
			return match[1]
		}
	}
	return ""
}

// pseudoID derives a stable identifier from the last path segment when the
// URL carries no recognizable video id.
func pseudoID(rawURL string) string {
	trimmed := strings.TrimSuffix(rawURL, "/")
	segment := trimmed[strings.LastIndex(trimmed, "/")+1:]
	id := nonAlphanumeric.ReplaceAllString(segment, "")
	if id == "" {
		return "unknown"
	}
	return id
}

// videoInfo is the intermediate shape both tiers normalize into.
type videoInfo struct {
	URL        string
	Title      string
	Author     string
	Thumbnail  string
	Avatar     string
	Resolution string
	Duration   float64
	Bitrate    int64
	Size       int64
	UploadDate string
}

func buildRecord(info *videoInfo, videoID string) (*domain.MediaRecord, error) {
	if info.URL == "" {
		return nil, domain.ErrNoPlayableURL
	}

	author := info.Author
	if author == "" {
		author = "Không rõ"
	}
	avatar := info.Avatar
	if avatar == "" {
		avatar = info.Thumbnail
	}

	record := &domain.MediaRecord{
		VideoID:         videoID,
		Description:     info.Title,
		Author:          author,
		Avatar:          avatar,
		Cover:           info.Thumbnail,
		DurationSeconds: int(math.Round(info.Duration)),
		Resolution:      info.Resolution,
		SizeBytes:       info.Size,
		NoWatermarkURL:  info.URL,
		ProxyDownload:   domain.ProxyDownloadPath(domain.PlatformFacebook, info.URL, videoID),
		Platform:        domain.PlatformFacebook,
	}
	if info.Bitrate > 0 {
		record.BitrateKbps = int(math.Round(float64(info.Bitrate) / 1000))
	}
	if info.UploadDate != "" {
		if ts, err := time.Parse(time.RFC3339, info.UploadDate); err == nil {
			record.PublishedAt = ts.UTC().Format(time.RFC3339)
		}
	}
	return record, nil
}
