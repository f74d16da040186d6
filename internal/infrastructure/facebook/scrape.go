package facebook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"shortvid/internal/cascade"
	"shortvid/internal/domain"
	"shortvid/internal/logger"
)

const maxScrapeBytes = 8 * 1024 * 1024

var errScrapeExhausted = errors.New(
	"Không thể lấy thông tin video từ Facebook. Video có thể là riêng tư hoặc yêu cầu đăng nhập. Vui lòng thử với link video công khai hoặc thử lại sau.")

// mediaURLPatterns covers the markup variants Facebook has shipped for the
// playable source, from the classic video_src keys through the newer native
// player URLs, plus meta tags and JSON-LD. Order matters: the earlier
// patterns carry the higher-quality renditions.
var mediaURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`"video_src":"([^"]+)"`),
	regexp.MustCompile(`"hd_src":"([^"]+)"`),
	regexp.MustCompile(`"sd_src":"([^"]+)"`),
	regexp.MustCompile(`video_src_no_ratelimit":"([^"]+)"`),
	regexp.MustCompile(`"playable_url":"([^"]+)"`),
	regexp.MustCompile(`"playable_url_quality_hd":"([^"]+)"`),
	regexp.MustCompile(`"browser_native_hd_url":"([^"]+)"`),
	regexp.MustCompile(`"browser_native_sd_url":"([^"]+)"`),
	regexp.MustCompile(`"video":\s*\{[^}]*"url":\s*"([^"]+)"`),
	regexp.MustCompile(`"source":\s*"([^"]+\.mp4[^"]*)"`),
	regexp.MustCompile(`"videoUrl":\s*"([^"]+)"`),
	regexp.MustCompile(`"contentUrl":\s*"([^"]+\.mp4[^"]*)"`),
	regexp.MustCompile(`<meta\s+property="og:video:url"\s+content="([^"]+)"`),
	regexp.MustCompile(`<meta\s+property="og:video"\s+content="([^"]+)"`),
	regexp.MustCompile(`"@type":\s*"VideoObject"[^}]*"contentUrl":\s*"([^"]+)"`),
}

var (
	titlePatterns = []*regexp.Regexp{
		regexp.MustCompile(`<title>([^<]+)</title>`),
		regexp.MustCompile(`"name":"([^"]+)"`),
		regexp.MustCompile(`<meta\s+property="og:title"\s+content="([^"]+)"`),
	}
	authorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"author":"([^"]+)"`),
		regexp.MustCompile(`"ownerName":"([^"]+)"`),
		regexp.MustCompile(`<meta\s+property="article:author"\s+content="([^"]+)"`),
		regexp.MustCompile(`<meta\s+property="og:site_name"\s+content="([^"]+)"`),
	}
	thumbnailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`"thumbnail":"([^"]+)"`),
		regexp.MustCompile(`<meta\s+property="og:image"\s+content="([^"]+)"`),
	}
)

// scrapeStrategy fetches the page with desktop browser headers and digs the
// playable URL out of the raw markup.
type scrapeStrategy struct{ s *Service }

func (t *scrapeStrategy) Name() string { return "page-scrape" }

func (t *scrapeStrategy) Attempt(ctx context.Context, req cascade.Request) (*domain.MediaRecord, error) {
	logger.Info().Printf("[facebook:%s] attempting direct page scrape", req.Tag)

	html, err := t.fetchPage(ctx, req.RawURL)
	if err != nil {
		logger.Warn().Printf("[facebook:%s] page fetch failed: %v", req.Tag, err)
		return nil, cascade.NewMiss(cascade.MissHTTP, errScrapeExhausted)
	}

	info := scrapePage(html)
	if info == nil {
		logger.Warn().Printf("[facebook:%s] no video URL found in %d chars of HTML", req.Tag, len(html))
		return nil, cascade.NewMiss(cascade.MissNoPlayableURL, errScrapeExhausted)
	}

	return buildFromInfo(info, req.Identifier)
}

func (t *scrapeStrategy) fetchPage(ctx context.Context, pageURL string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.s.cfg.FacebookScrapeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", t.s.cfg.FacebookDesktopUA)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := t.s.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxScrapeBytes))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// scrapePage extracts the playable URL and the page metadata from raw
// markup, with a goquery pass over the og: meta tags filling whatever the
// regex pass left empty.
func scrapePage(html string) *videoInfo {
	var mediaURL string
	for _, pattern := range mediaURLPatterns {
		if match := pattern.FindStringSubmatch(html); match != nil {
			mediaURL = decodeEscapes(match[1])
			break
		}
	}
	if mediaURL == "" {
		return nil
	}

	info := &videoInfo{
		URL:       mediaURL,
		Title:     strings.TrimSpace(firstMatch(html, titlePatterns)),
		Author:    firstMatch(html, authorPatterns),
		Thumbnail: decodeEscapes(firstMatch(html, thumbnailPatterns)),
	}
	fillFromMetaTags(html, info)
	return info
}

func fillFromMetaTags(html string, info *videoInfo) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return
	}
	if info.Title == "" {
		info.Title = metaProperty(doc, "og:title")
	}
	if info.Author == "" {
		info.Author = metaProperty(doc, "og:site_name")
	}
	if info.Thumbnail == "" {
		info.Thumbnail = metaProperty(doc, "og:image")
	}
}

func metaProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf(`meta[property=%q]`, property)).Attr("content")
	return strings.TrimSpace(content)
}

func firstMatch(html string, patterns []*regexp.Regexp) string {
	for _, pattern := range patterns {
		if match := pattern.FindStringSubmatch(html); match != nil {
			return match[1]
		}
	}
	return ""
}

// decodeEscapes undoes the escaping Facebook applies to URLs embedded in
// script blobs: unicode escapes for slash, equals and ampersand, escaped
// slashes and quotes, and HTML entity ampersands.
var escapeReplacer = strings.NewReplacer(
	"\\u002F", "/",
	"\\u003D", "=",
	"\\u0026", "&",
	"\\/", "/",
	"\\\"", "\"",
	"&amp;", "&",
)

func decodeEscapes(raw string) string {
	return strings.TrimPrefix(escapeReplacer.Replace(raw), "\\")
}
