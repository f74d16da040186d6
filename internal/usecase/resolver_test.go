package usecase

import (
	"context"
	"errors"
	"testing"

	"shortvid/internal/domain"
	"shortvid/internal/repository/memory"
)

type fakeExtractor struct {
	record *domain.MediaRecord
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(ctx context.Context, rawURL, tag string) (*domain.MediaRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

func sampleRecord() *domain.MediaRecord {
	return &domain.MediaRecord{
		VideoID:        "7001",
		Author:         "ai đó",
		NoWatermarkURL: "https://cdn/v.mp4",
		Platform:       domain.PlatformDouyin,
	}
}

func newResolver(extractor PlatformExtractor) *Resolver {
	return NewResolver(memory.NewCacheRepository(), map[domain.Platform]PlatformExtractor{
		domain.PlatformDouyin: extractor,
	})
}

func TestResolveCachesResult(t *testing.T) {
	extractor := &fakeExtractor{record: sampleRecord()}
	resolver := newResolver(extractor)

	record, cached, err := resolver.Resolve(context.Background(), domain.PlatformDouyin, "xem này https://v.douyin.com/abc/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cached {
		t.Error("first resolve must not be cached")
	}
	if record.VideoID != "7001" {
		t.Errorf("video id = %q", record.VideoID)
	}

	record, cached, err = resolver.Resolve(context.Background(), domain.PlatformDouyin, "https://v.douyin.com/abc/?utm=x")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cached {
		t.Error("second resolve with equivalent URL must hit cache")
	}
	if record.VideoID != "7001" {
		t.Errorf("cached video id = %q", record.VideoID)
	}
	if extractor.calls != 1 {
		t.Errorf("extractor called %d times, want 1", extractor.calls)
	}
}

func TestResolveNoURL(t *testing.T) {
	resolver := newResolver(&fakeExtractor{record: sampleRecord()})
	_, _, err := resolver.Resolve(context.Background(), domain.PlatformDouyin, "chỉ có chữ thôi")
	if !errors.Is(err, domain.ErrNoURLFound) {
		t.Fatalf("expected ErrNoURLFound, got %v", err)
	}
}

func TestResolveExtractorError(t *testing.T) {
	wantErr := errors.New("upstream hỏng")
	resolver := newResolver(&fakeExtractor{err: wantErr})
	_, _, err := resolver.Resolve(context.Background(), domain.PlatformDouyin, "https://v.douyin.com/abc/")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected extractor error, got %v", err)
	}
}

func TestResolveUnsupportedPlatform(t *testing.T) {
	resolver := newResolver(&fakeExtractor{record: sampleRecord()})
	_, _, err := resolver.Resolve(context.Background(), domain.PlatformFacebook, "https://www.facebook.com/reel/1")
	if err == nil {
		t.Fatal("expected error for unregistered platform")
	}
}
