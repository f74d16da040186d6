// Package sqlite persists resolved videos so repeated requests for the same
// link skip the extraction cascade entirely.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"shortvid/internal/domain"
)

const entryColumns = `id, url, normalized_url, video_id, platform, result,
	created_at, updated_at, accessed_at, access_count`

// CacheRepository is a SQLite implementation of domain.CacheRepository.
type CacheRepository struct {
	db *sql.DB
}

// NewCacheRepository creates a CacheRepository backed by SQLite.
func NewCacheRepository(db *sql.DB) *CacheRepository {
	return &CacheRepository{db: db}
}

// Lookup returns the cached result for a normalized URL, bumping the access
// bookkeeping on a hit. A miss returns (nil, nil).
func (r *CacheRepository) Lookup(normalizedURL string, platform domain.Platform) (*domain.MediaRecord, error) {
	row := r.db.QueryRow(`SELECT id, result FROM videos
		WHERE normalized_url = ? AND platform = ?
		ORDER BY accessed_at DESC LIMIT 1`, normalizedURL, string(platform))

	var id, rawResult string
	if err := row.Scan(&id, &rawResult); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	var record domain.MediaRecord
	if err := json.Unmarshal([]byte(rawResult), &record); err != nil {
		return nil, fmt.Errorf("decode cached result: %w", err)
	}

	if _, err := r.db.Exec(`UPDATE videos
		SET accessed_at = ?, access_count = access_count + 1
		WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return nil, err
	}

	return &record, nil
}

// Save upserts a resolved video keyed by (normalized_url, platform,
// video_id). A re-save of an existing key refreshes the stored result and
// counts as one more access.
func (r *CacheRepository) Save(originalURL, normalizedURL string, platform domain.Platform, result *domain.MediaRecord) error {
	rawResult, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	now := time.Now().UTC()
	_, err = r.db.Exec(`INSERT INTO videos
		(id, url, normalized_url, video_id, platform, result,
			created_at, updated_at, accessed_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(normalized_url, platform, video_id) DO UPDATE SET
			url = excluded.url,
			result = excluded.result,
			updated_at = excluded.updated_at,
			accessed_at = excluded.accessed_at,
			access_count = access_count + 1`,
		uuid.NewString(), originalURL, normalizedURL, result.VideoID, string(platform),
		string(rawResult), now, now, now)
	return err
}

// History returns cache entries ordered by most recent access.
func (r *CacheRepository) History(limit int) ([]domain.CacheEntry, error) {
	rows, err := r.db.Query(`SELECT `+entryColumns+` FROM videos
		ORDER BY accessed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// Stats summarizes the cache: row count, total accesses, and the ten most
// requested videos.
func (r *CacheRepository) Stats() (*domain.CacheStats, error) {
	stats := &domain.CacheStats{}

	row := r.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(access_count), 0) FROM videos`)
	if err := row.Scan(&stats.TotalVideos, &stats.TotalAccesses); err != nil {
		return nil, err
	}

	rows, err := r.db.Query(`SELECT ` + entryColumns + ` FROM videos
		ORDER BY access_count DESC LIMIT 10`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats.MostAccessed, err = scanEntries(rows)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// DeleteByID removes one entry by its row id, falling back to treating the
// argument as a platform video id. Returns whether anything was deleted.
func (r *CacheRepository) DeleteByID(id string) (bool, error) {
	res, err := r.db.Exec(`DELETE FROM videos WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected > 0 {
		return true, nil
	}

	res, err = r.db.Exec(`DELETE FROM videos WHERE id IN
		(SELECT id FROM videos WHERE video_id = ? LIMIT 1)`, id)
	if err != nil {
		return false, err
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func scanEntries(rows *sql.Rows) ([]domain.CacheEntry, error) {
	var entries []domain.CacheEntry
	for rows.Next() {
		var entry domain.CacheEntry
		var platform, rawResult string
		if err := rows.Scan(&entry.ID, &entry.URL, &entry.NormalizedURL, &entry.VideoID,
			&platform, &rawResult, &entry.CreatedAt, &entry.UpdatedAt,
			&entry.AccessedAt, &entry.AccessCount); err != nil {
			return nil, err
		}
		entry.Platform = domain.Platform(platform)
		if err := json.Unmarshal([]byte(rawResult), &entry.Result); err != nil {
			return nil, fmt.Errorf("decode cached result: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
