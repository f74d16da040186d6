package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"shortvid/internal/cascade"
	"shortvid/internal/domain"
	"shortvid/internal/logger"
)

const (
	resolverTimeout  = 10 * time.Second
	maxResolverBytes = 2 * 1024 * 1024
)

// resolverStrategy queries the configured third-party resolver services in
// order. With no services configured the tier is a silent miss.
type resolverStrategy struct{ s *Service }

func (t *resolverStrategy) Name() string { return "resolver-services" }

func (t *resolverStrategy) Attempt(ctx context.Context, req cascade.Request) (*domain.MediaRecord, error) {
	services := t.s.cfg.FacebookResolverServices
	if len(services) == 0 {
		return nil, nil
	}

	var last error
	for i, service := range services {
		endpoint := fmt.Sprintf("%s%s", service, url.QueryEscape(req.RawURL))
		logger.Info().Printf("[facebook:%s] trying service %d: %s", req.Tag, i+1, service)

		info, err := t.queryService(ctx, endpoint)
		if err != nil {
			logger.Warn().Printf("[facebook:%s] service %d failed: %v", req.Tag, i+1, err)
			last = err
			continue
		}
		if info == nil {
			continue
		}
		logger.Info().Printf("[facebook:%s] service %d success", req.Tag, i+1)
		return buildFromInfo(info, req.Identifier)
	}

	if last != nil {
		return nil, cascade.NewMiss(cascade.MissHTTP, last)
	}
	return nil, cascade.NewMiss(cascade.MissMissingField, nil)
}

// resolverPayload accepts the response shapes the known services produce:
// a flat object carrying the link directly, or the savefrom-style envelope
// with a status string and a nested data object or array.
type resolverPayload struct {
	URL             string          `json:"url"`
	DownloadURL     string          `json:"download_url"`
	VideoURL        string          `json:"video_url"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Duration        float64         `json:"duration"`
	Thumbnail       string          `json:"thumbnail"`
	Avatar          string          `json:"avatar"`
	Author          string          `json:"author"`
	Uploader        string          `json:"uploader"`
	Resolution      string          `json:"resolution"`
	VideoResolution string          `json:"video_resolution"`
	Bitrate         int64           `json:"bitrate"`
	Filesize        int64           `json:"filesize"`
	Size            int64           `json:"size"`
	UploadDate      string          `json:"upload_date"`
	Status          string          `json:"status"`
	Data            json.RawMessage `json:"data"`
}

func (t *resolverStrategy) queryService(ctx context.Context, endpoint string) (*videoInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, resolverTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", t.s.cfg.FacebookDesktopUA)
	req.Header.Set("Accept", "application/json")

	resp, err := t.s.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResolverBytes))
	if err != nil {
		return nil, err
	}

	var payload resolverPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, err
	}

	if direct := payload.directInfo(); direct != nil {
		return direct, nil
	}
	if nested := payload.envelopeInfo(); nested != nil {
		return nested, nil
	}
	return nil, nil
}

func (p *resolverPayload) directInfo() *videoInfo {
	mediaURL := p.URL
	if mediaURL == "" {
		mediaURL = p.DownloadURL
	}
	if mediaURL == "" {
		mediaURL = p.VideoURL
	}
	if mediaURL == "" {
		return nil
	}

	title := p.Title
	if title == "" {
		title = p.Description
	}
	author := p.Author
	if author == "" {
		author = p.Uploader
	}
	resolution := p.Resolution
	if resolution == "" {
		resolution = p.VideoResolution
	}
	size := p.Filesize
	if size == 0 {
		size = p.Size
	}

	return &videoInfo{
		URL:        mediaURL,
		Title:      title,
		Author:     author,
		Thumbnail:  p.Thumbnail,
		Avatar:     p.Avatar,
		Resolution: resolution,
		Duration:   p.Duration,
		Bitrate:    p.Bitrate,
		Size:       size,
		UploadDate: p.UploadDate,
	}
}

func (p *resolverPayload) envelopeInfo() *videoInfo {
	if p.Status != "success" || len(p.Data) == 0 {
		return nil
	}

	var entry resolverPayload
	if err := json.Unmarshal(p.Data, &entry); err != nil {
		var entries []resolverPayload
		if err := json.Unmarshal(p.Data, &entries); err != nil || len(entries) == 0 {
			return nil
		}
		entry = entries[0]
	}
	return entry.directInfo()
}

func buildFromInfo(info *videoInfo, videoID string) (*domain.MediaRecord, error) {
	record, err := buildRecord(info, videoID)
	if err != nil {
		if errors.Is(err, domain.ErrNoPlayableURL) {
			return nil, cascade.NewMiss(cascade.MissNoPlayableURL, err)
		}
		return nil, cascade.NewMiss(cascade.MissMissingField, err)
	}
	return record, nil
}
