// Package douyin implements the Douyin extraction cascade: official detail
// API (two hosts), embedded-page-state scraping, the legacy iteminfo
// endpoint, a headless browser probe, and the tikwm mirror as last resort.
package douyin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"shortvid/config"
	"shortvid/internal/cascade"
	"shortvid/internal/domain"
	infrastructure "shortvid/internal/infrastructure/http"
	"shortvid/internal/infrastructure/tikwm"
	"shortvid/internal/logger"
)

var (
	errNoDetailFound  = errors.New("Không tìm thấy thông tin chi tiết video.")
	errUpstreamSilent = errors.New("Douyin tạm thời không phản hồi. Thử lại sau nhé.")
)

// BrowserProbe drives a real browser against the video page and reports the
// aweme detail it intercepted or scraped, or nil when everything missed.
type BrowserProbe interface {
	FetchAweme(ctx context.Context, targetURL, tag string) (*AwemeDetail, error)
}

// Service resolves Douyin share links into watermark-free media records.
type Service struct {
	cfg    *config.Config
	http   *infrastructure.HTTPClient
	probe  BrowserProbe
	mirror *tikwm.Client
}

// NewService creates a Douyin extraction service. probe may be nil, in
// which case the browser tier is skipped.
func NewService(cfg *config.Config, httpClient *infrastructure.HTTPClient, probe BrowserProbe, mirror *tikwm.Client) *Service {
	return &Service{cfg: cfg, http: httpClient, probe: probe, mirror: mirror}
}

// Extract runs the full Douyin pipeline for a normalized share URL.
func (s *Service) Extract(ctx context.Context, rawURL, tag string) (*domain.MediaRecord, error) {
	awemeID, resolvedURL, err := s.ResolveAwemeID(ctx, rawURL, tag)
	if err != nil {
		return nil, err
	}
	logger.Info().Printf("[douyin:%s] resolved aweme id %s", tag, awemeID)

	strategies := []cascade.Strategy{&officialStrategy{s}}
	if s.probe != nil {
		strategies = append(strategies, &browserStrategy{s})
	}
	strategies = append(strategies, &mirrorStrategy{s})

	return cascade.Run(ctx, domain.PlatformDouyin, strategies, cascade.Request{
		RawURL:      resolvedURL,
		OriginalURL: rawURL,
		Identifier:  awemeID,
		Tag:         tag,
	})
}

// officialStrategy is tier 1: detail API over both hosts, then the
// embedded-state HTML scrape, then the legacy iteminfo endpoint.
type officialStrategy struct{ s *Service }

func (t *officialStrategy) Name() string { return "official" }

func (t *officialStrategy) Attempt(ctx context.Context, req cascade.Request) (*domain.MediaRecord, error) {
	detail, err := t.s.fetchAwemeDetail(ctx, req.Identifier, req.Tag)
	if err != nil {
		return nil, err
	}
	return buildFromDetail(detail, req.Identifier)
}

// browserStrategy is tier 2: the headless browser probe against the
// resolved video page.
type browserStrategy struct{ s *Service }

func (t *browserStrategy) Name() string { return "browser" }

func (t *browserStrategy) Attempt(ctx context.Context, req cascade.Request) (*domain.MediaRecord, error) {
	detail, err := t.s.probe.FetchAweme(ctx, req.RawURL, req.Tag)
	if err != nil {
		return nil, cascade.NewMiss(cascade.MissHTTP, err)
	}
	if detail == nil {
		return nil, nil
	}
	id := detail.AwemeID
	if id == "" {
		id = req.Identifier
	}
	return buildFromDetail(detail, id)
}

// mirrorStrategy is tier 3: the tikwm third-party mirror, fed the link as
// submitted rather than the aweme id; tikwm expands short links itself.
type mirrorStrategy struct{ s *Service }

func (t *mirrorStrategy) Name() string { return "tikwm" }

func (t *mirrorStrategy) Attempt(ctx context.Context, req cascade.Request) (*domain.MediaRecord, error) {
	logger.Info().Printf("[douyin:%s] trying tikwm fallback", req.Tag)
	target := req.OriginalURL
	if target == "" {
		target = req.RawURL
	}
	data, err := t.s.mirror.ResolveByForm(ctx, target)
	if err != nil {
		return nil, err
	}
	record, err := tikwm.BuildRecord(data, req.Identifier, domain.PlatformDouyin)
	if err != nil {
		return nil, cascade.NewMiss(cascade.MissNoPlayableURL, err)
	}
	return record, nil
}

func buildFromDetail(detail *AwemeDetail, awemeID string) (*domain.MediaRecord, error) {
	record, err := BuildRecord(detail, awemeID)
	if err != nil {
		if errors.Is(err, domain.ErrNoPlayableURL) {
			return nil, cascade.NewMiss(cascade.MissNoPlayableURL, err)
		}
		return nil, cascade.NewMiss(cascade.MissMissingField, err)
	}
	return record, nil
}

// fetchAwemeDetail walks the official sub-tiers in order. Every sub-tier
// failure is a recoverable miss; once all sub-tiers miss, the returned miss
// carries the most telling Vietnamese message for the terminal error.
func (s *Service) fetchAwemeDetail(ctx context.Context, awemeID, tag string) (*AwemeDetail, error) {
	cookie := s.composeCookieHeader(ctx)

	var last *cascade.Miss
	for _, endpoint := range s.cfg.DouyinDetailEndpoints {
		detail, miss := s.fetchDetailEndpoint(ctx, endpoint, awemeID, cookie, tag)
		if miss == nil {
			return detail, nil
		}
		last = miss
	}

	logger.Info().Printf("[douyin:%s] attempting HTML fallback", tag)
	if detail := s.fetchAwemeFromHTML(ctx, awemeID, cookie, tag); detail != nil {
		return detail, nil
	}

	logger.Info().Printf("[douyin:%s] attempting legacy iteminfo fallback", tag)
	if detail := s.fetchAwemeFromLegacyAPI(ctx, awemeID, cookie, tag); detail != nil {
		return detail, nil
	}

	if last != nil && last.Kind == cascade.MissMissingField {
		return nil, cascade.NewMiss(cascade.MissMissingField, errNoDetailFound)
	}
	return nil, cascade.NewMiss(cascade.MissHTTP, errUpstreamSilent)
}

func (s *Service) fetchDetailEndpoint(ctx context.Context, endpoint, awemeID, cookie, tag string) (*AwemeDetail, *cascade.Miss) {
	logger.Info().Printf("[douyin:%s] call %s", tag, endpoint)

	body, status, err := s.getBody(ctx, endpoint+awemeID, cookie)
	if err != nil {
		logger.Warn().Printf("[douyin:%s] %s request failed: %v", tag, endpoint, err)
		return nil, cascade.NewMiss(cascade.MissHTTP, err)
	}
	if status != http.StatusOK {
		logger.Warn().Printf("[douyin:%s] %s -> HTTP %d", tag, endpoint, status)
		return nil, cascade.NewMiss(cascade.MissHTTP, fmt.Errorf("HTTP %d", status))
	}
	if strings.TrimSpace(string(body)) == "" {
		logger.Warn().Printf("[douyin:%s] %s returned empty body", tag, endpoint)
		return nil, cascade.NewMiss(cascade.MissEmptyBody, nil)
	}

	var payload struct {
		AwemeDetail *AwemeDetail `json:"aweme_detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		logger.Warn().Printf("[douyin:%s] %s invalid JSON", tag, endpoint)
		return nil, cascade.NewMiss(cascade.MissInvalidJSON, err)
	}
	if payload.AwemeDetail == nil {
		logger.Warn().Printf("[douyin:%s] %s missing aweme_detail", tag, endpoint)
		return nil, cascade.NewMiss(cascade.MissMissingField, errNoDetailFound)
	}

	return payload.AwemeDetail, nil
}

func (s *Service) fetchAwemeFromLegacyAPI(ctx context.Context, awemeID, cookie, tag string) *AwemeDetail {
	endpoint := s.cfg.DouyinItemInfoURL + awemeID
	body, status, err := s.getBody(ctx, endpoint, cookie)
	if err != nil || status != http.StatusOK {
		logger.Warn().Printf("[douyin:%s] legacy API unavailable (status %d, err %v)", tag, status, err)
		return nil
	}

	var payload struct {
		ItemList []AwemeDetail `json:"item_list"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.ItemList) == 0 {
		logger.Warn().Printf("[douyin:%s] legacy API returned no item_list", tag)
		return nil
	}
	return &payload.ItemList[0]
}

func (s *Service) getBody(ctx context.Context, rawURL, cookie string) ([]byte, int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.PageFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	s.applyHeaders(req, cookie)

	resp, err := s.http.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageBytes))
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}
