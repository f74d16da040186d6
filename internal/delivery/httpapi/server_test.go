package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"shortvid/config"
	"shortvid/internal/domain"
	infrastructure "shortvid/internal/infrastructure/http"
	"shortvid/internal/repository/memory"
	"shortvid/internal/usecase"
)

type stubExtractor struct {
	record *domain.MediaRecord
	err    error
	calls  int32
}

func (s *stubExtractor) Extract(ctx context.Context, rawURL, tag string) (*domain.MediaRecord, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.err != nil {
		return nil, s.err
	}
	return s.record, nil
}

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:            "0",
		HTTPClientTimeout:     5 * time.Second,
		MaxIdleConns:          4,
		MaxConnsPerHost:       4,
		DouyinAllowedSuffixes: []string{".douyinvod.com"},
		DouyinMobileUA:        "test-agent",
		DouyinReferer:         "https://www.douyin.com/",
	}
}

func newTestServer(t *testing.T, extractors map[domain.Platform]usecase.PlatformExtractor) (*Server, domain.CacheRepository) {
	t.Helper()
	cfg := testConfig()
	cache := memory.NewCacheRepository()
	resolver := usecase.NewResolver(cache, extractors)
	return NewServer(cfg, resolver, cache, infrastructure.NewHTTPClient(cfg)), cache
}

func douyinRecord(videoID, mediaURL string) *domain.MediaRecord {
	return &domain.MediaRecord{
		VideoID:        videoID,
		Description:    "video thử",
		Author:         "ai đó",
		NoWatermarkURL: mediaURL,
		ProxyDownload:  domain.ProxyDownloadPath(domain.PlatformDouyin, mediaURL, videoID),
		Platform:       domain.PlatformDouyin,
	}
}

type analyzeResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Cached  bool               `json:"cached"`
	Data    domain.MediaRecord `json:"data"`
}

func postAnalyze(t *testing.T, handler http.Handler, platform, body string) (*httptest.ResponseRecorder, analyzeResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/"+platform, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var parsed analyzeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, parsed
}

func TestAnalyzeCachedFlow(t *testing.T) {
	extractor := &stubExtractor{record: douyinRecord("7001", "https://v3.douyinvod.com/clip.mp4")}
	server, _ := newTestServer(t, map[domain.Platform]usecase.PlatformExtractor{
		domain.PlatformDouyin: extractor,
	})
	handler := server.Handler()

	rec, first := postAnalyze(t, handler, "douyin", `{"url":"xem thử https://v.douyin.com/abc/"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if !first.Success || first.Cached {
		t.Errorf("first response = %+v", first)
	}
	if first.Data.ProxyDownload != "/api/douyin/download?source=https%3A%2F%2Fv3.douyinvod.com%2Fclip.mp4&filename=7001.mp4" {
		t.Errorf("proxyDownload = %q", first.Data.ProxyDownload)
	}

	rec, second := postAnalyze(t, handler, "douyin", `{"url":"https://v.douyin.com/abc/#frag"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !second.Cached {
		t.Error("second response should be served from cache")
	}
	if second.Data != first.Data {
		t.Errorf("cached record differs: %+v vs %+v", second.Data, first.Data)
	}
	if atomic.LoadInt32(&extractor.calls) != 1 {
		t.Errorf("extractor called %d times, want 1", extractor.calls)
	}
}

func TestAnalyzeEmptyURL(t *testing.T) {
	server, _ := newTestServer(t, map[domain.Platform]usecase.PlatformExtractor{
		domain.PlatformDouyin: &stubExtractor{},
	})

	rec, parsed := postAnalyze(t, server.Handler(), "douyin", `{"url":"  "}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if parsed.Success || !strings.Contains(parsed.Message, "Douyin") {
		t.Errorf("response = %+v", parsed)
	}
}

func TestAnalyzeErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no url found", domain.ErrNoURLFound, http.StatusBadRequest},
		{"unresolvable", domain.ErrUnresolvableLink, http.StatusBadRequest},
		{"localized unresolvable", domain.WithMessage(domain.ErrUnresolvableLink, "không nhận diện được"), http.StatusBadRequest},
		{"upstream failure", context.DeadlineExceeded, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server, _ := newTestServer(t, map[domain.Platform]usecase.PlatformExtractor{
				domain.PlatformDouyin: &stubExtractor{err: tt.err},
			})
			rec, parsed := postAnalyze(t, server.Handler(), "douyin", `{"url":"https://v.douyin.com/abc/"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if parsed.Success {
				t.Error("expected success=false")
			}
		})
	}
}

func TestDownloadProxyRejectsForeignHost(t *testing.T) {
	var upstreamCalls int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&upstreamCalls, 1)
	}))
	t.Cleanup(upstream.Close)

	server, _ := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodGet,
		"/api/douyin/download?source="+strings.ReplaceAll(upstream.URL, ":", "%3A")+"%2Fclip.mp4&filename=x.mp4", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if atomic.LoadInt32(&upstreamCalls) != 0 {
		t.Error("upstream must not be contacted for disallowed hosts")
	}
}

func TestDownloadProxyStreamsAllowedHost(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Referer"); got != "https://www.douyin.com/" {
			t.Errorf("unexpected referer %q", got)
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("fake-bytes"))
	}))
	t.Cleanup(upstream.Close)

	cfg := testConfig()
	cfg.DouyinAllowedSuffixes = []string{"127.0.0.1"}
	cache := memory.NewCacheRepository()
	server := NewServer(cfg, usecase.NewResolver(cache, nil), cache, infrastructure.NewHTTPClient(cfg))

	target := "/api/douyin/download?source=" + strings.ReplaceAll(upstream.URL+"/clip.mp4", ":", "%3A") + "&filename=b%C3%A0i+7.mp4"
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if rec.Body.String() != "fake-bytes" {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Content-Disposition"); got != `attachment; filename="b_i_7.mp4"` {
		t.Errorf("disposition = %q", got)
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-store" {
		t.Errorf("cache-control = %q", got)
	}
}

func TestDownloadProxyUpstreamFailure(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	t.Cleanup(upstream.Close)

	cfg := testConfig()
	cfg.DouyinAllowedSuffixes = []string{"127.0.0.1"}
	cache := memory.NewCacheRepository()
	server := NewServer(cfg, usecase.NewResolver(cache, nil), cache, infrastructure.NewHTTPClient(cfg))

	target := "/api/douyin/download?source=" + strings.ReplaceAll(upstream.URL+"/clip.mp4", ":", "%3A")
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
}

func TestDownloadProxyMissingSource(t *testing.T) {
	server, _ := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/api/douyin/download", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHistoryEndpoints(t *testing.T) {
	server, cache := newTestServer(t, nil)
	handler := server.Handler()

	record := douyinRecord("7002", "https://v3.douyinvod.com/b.mp4")
	if err := cache.Save("orig", "https://www.douyin.com/video/7002", domain.PlatformDouyin, record); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	t.Run("list with stats", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/history?limit=5&stats=true", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var payload struct {
			Success bool                `json:"success"`
			Data    []domain.CacheEntry `json:"data"`
			Stats   *domain.CacheStats  `json:"stats"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(payload.Data) != 1 || payload.Data[0].VideoID != "7002" {
			t.Errorf("data = %+v", payload.Data)
		}
		if payload.Stats == nil || payload.Stats.TotalVideos != 1 {
			t.Errorf("stats = %+v", payload.Stats)
		}
	})

	t.Run("delete missing id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/history", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("delete not found", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/history?id=nope", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d", rec.Code)
		}
	})

	t.Run("delete by video id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/history?id=7002", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, body %s", rec.Code, rec.Body.String())
		}
	})
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"video-7001.mp4", "video-7001.mp4"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"tên video.mp4", "t_n_video.mp4"},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAllowedHost(t *testing.T) {
	suffixes := []string{".douyinvod.com", ".zjcdn.com"}
	tests := []struct {
		host string
		want bool
	}{
		{"v3.douyinvod.com", true},
		{"douyinvod.com", true},
		{"x.zjcdn.com", true},
		{"evil-douyinvod.com.attacker.net", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := allowedHost(tt.host, suffixes); got != tt.want {
			t.Errorf("allowedHost(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}
