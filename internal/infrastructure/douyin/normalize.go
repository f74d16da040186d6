package douyin

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"shortvid/internal/domain"
)

var (
	errVideoUnavailable = errors.New("Video không khả dụng hoặc đã bị xoá.")

	watermarkParam = regexp.MustCompile(`watermark=\d`)
	ratioHint      = regexp.MustCompile(`ratio=\d+p`)
)

// BuildRecord maps an AwemeDetail into the canonical media record: best
// bitrate variant selection, playable-URL fallback chain, watermark
// rewriting and unit conversion.
func BuildRecord(aweme *AwemeDetail, awemeID string) (*domain.MediaRecord, error) {
	video := aweme.Video
	if video == nil {
		return nil, errVideoUnavailable
	}

	best := bestVariant(video.BitRate)

	candidateURL := addrURL(variantAddr(best))
	if candidateURL == "" {
		candidateURL = addrURL(video.PlayAddr)
	}
	if candidateURL == "" {
		candidateURL = addrURL(video.DownloadAddr)
	}
	if candidateURL == "" {
		return nil, domain.ErrNoPlayableURL
	}

	mediaURL := SanitizeVideoURL(candidateURL)

	record := &domain.MediaRecord{
		VideoID:         awemeID,
		Description:     aweme.Desc,
		Author:          "Không rõ",
		Music:           musicTitle(aweme.Music),
		DurationSeconds: int(math.Round(float64(video.Duration) / 1000)),
		NoWatermarkURL:  mediaURL,
		ProxyDownload:   domain.ProxyDownloadPath(domain.PlatformDouyin, mediaURL, awemeID),
		Platform:        domain.PlatformDouyin,
	}

	if aweme.Author != nil {
		if aweme.Author.Nickname != "" {
			record.Author = aweme.Author.Nickname
		}
		record.Avatar = firstURL(aweme.Author.AvatarThumb)
	}

	record.Cover = firstURL(video.OriginCover)
	if record.Cover == "" {
		record.Cover = firstURL(video.Cover)
	}
	if record.Cover == "" {
		record.Cover = firstURL(video.DynamicCover)
	}

	if best != nil {
		if best.PlayAddr != nil && best.PlayAddr.Width > 0 && best.PlayAddr.Height > 0 {
			record.Resolution = fmt.Sprintf("%d×%d", best.PlayAddr.Width, best.PlayAddr.Height)
		}
		if best.BitRate > 0 {
			record.BitrateKbps = int(math.Round(float64(best.BitRate) / 1000))
		}
	}

	record.SizeBytes = dataSize(variantAddr(best))
	if record.SizeBytes == 0 {
		record.SizeBytes = dataSize(video.DownloadAddr)
	}
	if record.SizeBytes == 0 {
		record.SizeBytes = dataSize(video.PlayAddr)
	}

	if aweme.CreateTime > 0 {
		record.PublishedAt = time.Unix(aweme.CreateTime, 0).UTC().Format(time.RFC3339)
	}

	return record, nil
}

// bestVariant picks the numerically highest bit-rate rendition. The sort is
// stable, so ties keep the upstream's original order and the first
// occurrence wins.
func bestVariant(variants []BitRateVariant) *BitRateVariant {
	if len(variants) == 0 {
		return nil
	}
	sorted := make([]BitRateVariant, len(variants))
	copy(sorted, variants)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].BitRate > sorted[j].BitRate
	})
	return &sorted[0]
}

// SanitizeVideoURL rewrites a candidate media URL to request the
// unwatermarked rendition: https forced, the playwm path token swapped for
// play, watermark=0 forced and a high-resolution hint added when absent.
func SanitizeVideoURL(rawURL string) string {
	finalURL := rawURL
	if strings.HasPrefix(finalURL, "http://") {
		finalURL = "https://" + finalURL[len("http://"):]
	}
	finalURL = strings.ReplaceAll(finalURL, "playwm", "play")
	if watermarkParam.MatchString(finalURL) {
		finalURL = watermarkParam.ReplaceAllString(finalURL, "watermark=0")
	} else if strings.Contains(finalURL, "?") {
		finalURL += "&watermark=0"
	} else {
		finalURL += "?watermark=0"
	}
	if !ratioHint.MatchString(finalURL) {
		finalURL += "&ratio=1080p"
	}
	return finalURL
}

func variantAddr(v *BitRateVariant) *PlayAddr {
	if v == nil {
		return nil
	}
	return v.PlayAddr
}

func firstURL(list *URLList) string {
	if list == nil || len(list.URLList) == 0 {
		return ""
	}
	return list.URLList[0]
}

func addrURL(addr *PlayAddr) string {
	if addr == nil || len(addr.URLList) == 0 {
		return ""
	}
	return addr.URLList[0]
}

func dataSize(addr *PlayAddr) int64 {
	if addr == nil {
		return 0
	}
	return addr.DataSize
}

func musicTitle(m *Music) string {
	if m == nil {
		return ""
	}
	return m.Title
}
