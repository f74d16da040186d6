// Package memory provides an in-memory domain.CacheRepository, used in
// tests and as a fallback when no database is reachable.
package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"shortvid/internal/domain"
)

// CacheRepository keeps cache entries in process memory.
type CacheRepository struct {
	mu      sync.RWMutex
	entries map[string]*domain.CacheEntry
}

func NewCacheRepository() *CacheRepository {
	return &CacheRepository{entries: make(map[string]*domain.CacheEntry)}
}

func (r *CacheRepository) Lookup(normalizedURL string, platform domain.Platform) (*domain.MediaRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, entry := range r.entries {
		if entry.NormalizedURL == normalizedURL && entry.Platform == platform {
			entry.AccessedAt = time.Now().UTC()
			entry.AccessCount++
			result := entry.Result
			return &result, nil
		}
	}
	return nil, nil
}

func (r *CacheRepository) Save(originalURL, normalizedURL string, platform domain.Platform, result *domain.MediaRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	for _, entry := range r.entries {
		if entry.NormalizedURL == normalizedURL && entry.Platform == platform && entry.VideoID == result.VideoID {
			entry.URL = originalURL
			entry.Result = *result
			entry.UpdatedAt = now
			entry.AccessedAt = now
			entry.AccessCount++
			return nil
		}
	}

	id := uuid.NewString()
	r.entries[id] = &domain.CacheEntry{
		ID:            id,
		URL:           originalURL,
		NormalizedURL: normalizedURL,
		VideoID:       result.VideoID,
		Platform:      platform,
		Result:        *result,
		CreatedAt:     now,
		UpdatedAt:     now,
		AccessedAt:    now,
		AccessCount:   1,
	}
	return nil
}

func (r *CacheRepository) History(limit int) ([]domain.CacheEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := r.snapshot()
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AccessedAt.After(entries[j].AccessedAt)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (r *CacheRepository) Stats() (*domain.CacheStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.CacheStats{TotalVideos: len(r.entries)}
	entries := r.snapshot()
	for _, entry := range entries {
		stats.TotalAccesses += entry.AccessCount
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].AccessCount > entries[j].AccessCount
	})
	if len(entries) > 10 {
		entries = entries[:10]
	}
	stats.MostAccessed = entries
	return stats, nil
}

func (r *CacheRepository) DeleteByID(id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		delete(r.entries, id)
		return true, nil
	}
	for key, entry := range r.entries {
		if entry.VideoID == id {
			delete(r.entries, key)
			return true, nil
		}
	}
	return false, nil
}

func (r *CacheRepository) snapshot() []domain.CacheEntry {
	entries := make([]domain.CacheEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, *entry)
	}
	return entries
}
