package sqlite

import (
	"path/filepath"
	"testing"

	"shortvid/internal/domain"
)

func newTestRepo(t *testing.T) *CacheRepository {
	t.Helper()
	db, err := Open("sqlite3:" + filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewCacheRepository(db)
}

func sampleRecord(videoID string) *domain.MediaRecord {
	return &domain.MediaRecord{
		VideoID:        videoID,
		Description:    "video thử nghiệm",
		Author:         "ai đó",
		NoWatermarkURL: "https://cdn/" + videoID + ".mp4",
		ProxyDownload:  domain.ProxyDownloadPath(domain.PlatformDouyin, "https://cdn/"+videoID+".mp4", videoID),
		Platform:       domain.PlatformDouyin,
	}
}

func TestLookupMissReturnsNil(t *testing.T) {
	repo := newTestRepo(t)
	record, err := repo.Lookup("https://www.douyin.com/video/1", domain.PlatformDouyin)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record != nil {
		t.Fatalf("expected miss, got %+v", record)
	}
}

func TestSaveAndLookup(t *testing.T) {
	repo := newTestRepo(t)
	key := "https://www.douyin.com/video/1"

	if err := repo.Save("https://v.douyin.com/abc/", key, domain.PlatformDouyin, sampleRecord("1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	record, err := repo.Lookup(key, domain.PlatformDouyin)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record == nil || record.VideoID != "1" {
		t.Fatalf("unexpected record %+v", record)
	}

	// Different platform must not hit the same key.
	record, err = repo.Lookup(key, domain.PlatformTikTok)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if record != nil {
		t.Fatalf("expected cross-platform miss, got %+v", record)
	}
}

func TestSaveUpsertIncrementsAccessCount(t *testing.T) {
	repo := newTestRepo(t)
	key := "https://www.douyin.com/video/2"

	for i := 0; i < 3; i++ {
		if err := repo.Save("orig", key, domain.PlatformDouyin, sampleRecord("2")); err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
	}

	entries, err := repo.History(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected a single upserted row, got %d", len(entries))
	}
	if entries[0].AccessCount != 3 {
		t.Errorf("access count = %d, want 3", entries[0].AccessCount)
	}
}

func TestLookupBumpsAccessCount(t *testing.T) {
	repo := newTestRepo(t)
	key := "https://www.douyin.com/video/3"

	if err := repo.Save("orig", key, domain.PlatformDouyin, sampleRecord("3")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := repo.Lookup(key, domain.PlatformDouyin); err != nil {
		t.Fatalf("lookup: %v", err)
	}

	entries, err := repo.History(10)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if entries[0].AccessCount != 2 {
		t.Errorf("access count = %d, want 2", entries[0].AccessCount)
	}
}

func TestHistoryOrderedByAccess(t *testing.T) {
	repo := newTestRepo(t)

	for _, id := range []string{"a", "b", "c"} {
		if err := repo.Save("orig", "https://x/"+id, domain.PlatformTikTok, sampleRecord(id)); err != nil {
			t.Fatalf("save: %v", err)
		}
	}
	// Touch the first entry so it becomes the most recently accessed.
	if _, err := repo.Lookup("https://x/a", domain.PlatformTikTok); err != nil {
		t.Fatalf("lookup: %v", err)
	}

	entries, err := repo.History(2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected limit 2, got %d", len(entries))
	}
	if entries[0].VideoID != "a" {
		t.Errorf("expected most recently accessed first, got %q", entries[0].VideoID)
	}
}

func TestStats(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.Save("orig", "https://x/a", domain.PlatformDouyin, sampleRecord("a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save("orig", "https://x/b", domain.PlatformDouyin, sampleRecord("b")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := repo.Lookup("https://x/b", domain.PlatformDouyin); err != nil {
		t.Fatalf("lookup: %v", err)
	}

	stats, err := repo.Stats()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalVideos != 2 {
		t.Errorf("total videos = %d, want 2", stats.TotalVideos)
	}
	if stats.TotalAccesses != 3 {
		t.Errorf("total accesses = %d, want 3", stats.TotalAccesses)
	}
	if len(stats.MostAccessed) == 0 || stats.MostAccessed[0].VideoID != "b" {
		t.Errorf("expected b most accessed, got %+v", stats.MostAccessed)
	}
}

func TestDeleteByID(t *testing.T) {
	repo := newTestRepo(t)

	if err := repo.Save("orig", "https://x/a", domain.PlatformDouyin, sampleRecord("a")); err != nil {
		t.Fatalf("save: %v", err)
	}
	entries, err := repo.History(1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}

	t.Run("native row id", func(t *testing.T) {
		deleted, err := repo.DeleteByID(entries[0].ID)
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if !deleted {
			t.Error("expected deletion")
		}
	})

	t.Run("video id fallback", func(t *testing.T) {
		if err := repo.Save("orig", "https://x/b", domain.PlatformDouyin, sampleRecord("b")); err != nil {
			t.Fatalf("save: %v", err)
		}
		deleted, err := repo.DeleteByID("b")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if !deleted {
			t.Error("expected fallback deletion by video id")
		}
	})

	t.Run("missing id", func(t *testing.T) {
		deleted, err := repo.DeleteByID("does-not-exist")
		if err != nil {
			t.Fatalf("delete: %v", err)
		}
		if deleted {
			t.Error("expected no deletion")
		}
	})
}
