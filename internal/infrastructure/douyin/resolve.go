package douyin

import (
	"context"
	"io"
	"net/http"
	"regexp"

	"shortvid/internal/domain"
	"shortvid/internal/logger"
)

const (
	maxResolveHops = 5
	maxPageBytes   = 4 * 1024 * 1024
)

var (
	urlIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/video/(\d+)`),
		regexp.MustCompile(`aweme_id=(\d+)`),
		regexp.MustCompile(`/share/video/(\d+)`),
	}
	htmlIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"awemeId":"(\d+)"`),
		regexp.MustCompile(`"aweme_id":"?(\d+)"?`),
		regexp.MustCompile(`"itemId":"(\d+)"`),
	}
	canonicalVideoLink = regexp.MustCompile(`(?i)(https://www\.douyin\.com/video/\d+[^\s"]*)`)
)

// ResolveAwemeID expands short links (v.douyin.com) by following the
// redirect chain and pulling the aweme id from the final URL, the original
// URL, or embedded page markers. When a page carries no id but embeds a
// canonical video link, that link becomes the next hop. Revisiting a URL or
// running out of hops fails with ErrUnresolvableLink.
func (s *Service) ResolveAwemeID(ctx context.Context, inputURL, tag string) (string, string, error) {
	visited := make(map[string]struct{})
	currentURL := inputURL

	for i := 0; i < maxResolveHops; i++ {
		if _, seen := visited[currentURL]; seen {
			break
		}
		visited[currentURL] = struct{}{}

		logger.Info().Printf("[douyin:%s] resolve step %d -> %s", tag, i+1, currentURL)

		finalURL, html, err := s.fetchPage(ctx, currentURL, "")
		if err != nil {
			logger.Warn().Printf("[douyin:%s] resolve fetch failed: %v", tag, err)
			break
		}

		awemeID := extractAwemeID(finalURL)
		if awemeID == "" {
			awemeID = extractAwemeID(currentURL)
		}
		if awemeID == "" {
			awemeID = extractAwemeIDFromHTML(html)
		}
		if awemeID != "" {
			logger.Info().Printf("[douyin:%s] found aweme id %s", tag, awemeID)
			return awemeID, finalURL, nil
		}

		next := canonicalVideoLink.FindString(html)
		if next == "" {
			break
		}
		currentURL = next
	}

	return "", "", domain.ErrUnresolvableLink
}

// fetchPage GETs a URL with the mobile browsing headers, following
// redirects, and returns the final URL plus a bounded read of the body.
func (s *Service) fetchPage(ctx context.Context, pageURL, cookie string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", "", err
	}
	s.applyHeaders(req, cookie)

	resp, err := s.http.Do(req)
	if err != nil {
		return "", "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return "", "", err
	}

	return resp.Request.URL.String(), string(body), nil
}

func (s *Service) applyHeaders(req *http.Request, cookie string) {
	req.Header.Set("User-Agent", s.cfg.DouyinMobileUA)
	req.Header.Set("Referer", s.cfg.DouyinReferer)
	req.Header.Set("Accept-Language", s.cfg.DouyinAcceptLanguage)
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
}

func extractAwemeID(url string) string {
	for _, pattern := range urlIDPatterns {
		if match := pattern.FindStringSubmatch(url); match != nil {
			return match[1]
		}
	}
	return ""
}

func extractAwemeIDFromHTML(html string) string {
	for _, pattern := range htmlIDPatterns {
		if match := pattern.FindStringSubmatch(html); match != nil {
			return match[1]
		}
	}
	return ""
}
