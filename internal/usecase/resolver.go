// Package usecase orchestrates the resolution pipeline: URL normalization,
// cache lookup, platform extraction and cache write-back.
package usecase

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"shortvid/internal/domain"
	"shortvid/internal/logger"
	"shortvid/internal/urlutil"
)

// PlatformExtractor resolves one platform's links into media records.
type PlatformExtractor interface {
	Extract(ctx context.Context, rawURL, tag string) (*domain.MediaRecord, error)
}

// Resolver routes requests to the right platform extractor and fronts them
// with the cache.
type Resolver struct {
	cache      domain.CacheRepository
	extractors map[domain.Platform]PlatformExtractor
}

func NewResolver(cache domain.CacheRepository, extractors map[domain.Platform]PlatformExtractor) *Resolver {
	return &Resolver{cache: cache, extractors: extractors}
}

// Resolve turns pasted text into a media record. The boolean reports whether
// the result came from cache. Cache failures are logged and swallowed; the
// pipeline must keep working without persistence.
func (r *Resolver) Resolve(ctx context.Context, platform domain.Platform, input string) (*domain.MediaRecord, bool, error) {
	extractor, ok := r.extractors[platform]
	if !ok {
		return nil, false, fmt.Errorf("unsupported platform %q", platform)
	}

	tag := newTag()

	rawURL, err := urlutil.ExtractURL(input)
	if err != nil {
		return nil, false, err
	}

	key := urlutil.CacheKey(rawURL)

	if cached, err := r.cache.Lookup(key, platform); err != nil {
		logger.Warn().Printf("[%s:%s] cache lookup failed: %v", platform, tag, err)
	} else if cached != nil {
		logger.Info().Printf("[%s:%s] cache hit for %s", platform, tag, key)
		return cached, true, nil
	}

	logger.Info().Printf("[%s:%s] cache miss, analyzing %s", platform, tag, rawURL)

	record, err := extractor.Extract(ctx, rawURL, tag)
	if err != nil {
		return nil, false, err
	}

	if err := r.cache.Save(rawURL, key, platform, record); err != nil {
		logger.Warn().Printf("[%s:%s] cache save failed: %v", platform, tag, err)
	} else {
		logger.Info().Printf("[%s:%s] saved to cache: %s", platform, tag, record.VideoID)
	}

	return record, false, nil
}

// newTag produces the short correlation tag attached to every log line of
// one request's journey through the pipeline.
func newTag() string {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%06x", time.Now().UnixNano()&0xffffff)
	}
	return hex.EncodeToString(buf)
}
