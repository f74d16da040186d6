// Package tiktok resolves TikTok links. Unlike Douyin there is no direct
// upstream tier; the tikwm mirror handles short links, full links and the
// HD rendition on its own.
package tiktok

import (
	"context"
	"regexp"

	"shortvid/internal/cascade"
	"shortvid/internal/domain"
	"shortvid/internal/infrastructure/tikwm"
)

var videoIDPattern = regexp.MustCompile(`/video/(\d+)`)

// Service extracts TikTok videos through the tikwm mirror.
type Service struct {
	mirror *tikwm.Client
}

func NewService(mirror *tikwm.Client) *Service {
	return &Service{mirror: mirror}
}

// Extract resolves a TikTok link into a media record.
func (s *Service) Extract(ctx context.Context, rawURL, tag string) (*domain.MediaRecord, error) {
	return cascade.Run(ctx, domain.PlatformTikTok, []cascade.Strategy{&mirrorStrategy{s}}, cascade.Request{
		RawURL:      rawURL,
		OriginalURL: rawURL,
		Identifier:  extractVideoID(rawURL),
		Tag:         tag,
	})
}

type mirrorStrategy struct{ s *Service }

func (t *mirrorStrategy) Name() string { return "tikwm" }

func (t *mirrorStrategy) Attempt(ctx context.Context, req cascade.Request) (*domain.MediaRecord, error) {
	data, err := t.s.mirror.ResolveByQuery(ctx, req.RawURL)
	if err != nil {
		return nil, err
	}
	record, err := tikwm.BuildRecord(data, req.Identifier, domain.PlatformTikTok)
	if err != nil {
		return nil, cascade.NewMiss(cascade.MissNoPlayableURL, err)
	}
	return record, nil
}

func extractVideoID(rawURL string) string {
	if match := videoIDPattern.FindStringSubmatch(rawURL); match != nil {
		return match[1]
	}
	return ""
}
