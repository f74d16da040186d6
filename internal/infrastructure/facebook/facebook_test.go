package facebook

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"shortvid/config"
	"shortvid/internal/domain"
	infrastructure "shortvid/internal/infrastructure/http"
)

func testConfig() *config.Config {
	return &config.Config{
		HTTPClientTimeout:     5 * time.Second,
		MaxIdleConns:          4,
		MaxConnsPerHost:       4,
		FacebookDesktopUA:     "test-agent",
		FacebookReferer:       "https://www.facebook.com/",
		FacebookScrapeTimeout: 5 * time.Second,
	}
}

func newTestService(cfg *config.Config) *Service {
	return NewService(cfg, infrastructure.NewHTTPClient(cfg))
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"reel", "https://www.facebook.com/reel/1234abcd", "1234abcd"},
		{"user reels", "https://www.facebook.com/someone/reels/987xyz", "987xyz"},
		{"watch query", "https://www.facebook.com/watch/?v=555666", "555666"},
		{"videos path", "https://www.facebook.com/someone/videos/111222", "111222"},
		{"generic v param", "https://www.facebook.com/something?v=333444", "333444"},
		{"fb.watch", "https://fb.watch/ab_C-9/", "ab_C-9"},
		{"mobile watch", "https://m.facebook.com/watch/?v=777888", "777888"},
		{"no id", "https://example.com/video/123", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractVideoID(tt.url); got != tt.want {
				t.Errorf("extractVideoID(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestPseudoID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.facebook.com/share/r/aB3_x9!/", "aB3x9"},
		{"https://www.facebook.com/", "wwwfacebookcom"},
		{"https://www.facebook.com/!!!/", "unknown"},
	}
	for _, tt := range tests {
		if got := pseudoID(tt.url); got != tt.want {
			t.Errorf("pseudoID(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestExtractRejectsForeignLink(t *testing.T) {
	service := newTestService(testConfig())
	_, err := service.Extract(context.Background(), "https://example.com/clip/42", "f1")
	if !errors.Is(err, domain.ErrUnresolvableLink) {
		t.Fatalf("expected ErrUnresolvableLink, got %v", err)
	}
	if !strings.Contains(err.Error(), "link Facebook") {
		t.Errorf("expected localized message, got %q", err)
	}
}

func TestExtractViaScrape(t *testing.T) {
	page := `<html><head>
		<title>Video hay lắm</title>
		<meta property="og:image" content="https://cdn/thumb.jpg">
		</head><body>
		<script>{"browser_native_hd_url":"https:\/\/video.fbcdn.net\/v\/clip.mp4?oh=1&oe=2"}</script>
		<script>{"ownerName":"Trang Video"}</script>
		</body></html>`

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("User-Agent"); got != "test-agent" {
			t.Errorf("unexpected UA %q", got)
		}
		w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)

	service := newTestService(testConfig())
	record, err := service.Extract(context.Background(), server.URL+"/facebook.com/reel/55667788", "f2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if record.VideoID != "55667788" {
		t.Errorf("video id = %q", record.VideoID)
	}
	if record.NoWatermarkURL != "https://video.fbcdn.net/v/clip.mp4?oh=1&oe=2" {
		t.Errorf("media url = %q", record.NoWatermarkURL)
	}
	if record.Description != "Video hay lắm" {
		t.Errorf("description = %q", record.Description)
	}
	if record.Author != "Trang Video" {
		t.Errorf("author = %q", record.Author)
	}
	if record.Cover != "https://cdn/thumb.jpg" {
		t.Errorf("cover = %q", record.Cover)
	}
	if record.Platform != domain.PlatformFacebook {
		t.Errorf("platform = %q", record.Platform)
	}
}

func TestExtractScrapeMissSurfacesPrivateMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>login required</body></html>`))
	}))
	t.Cleanup(server.Close)

	service := newTestService(testConfig())
	_, err := service.Extract(context.Background(), server.URL+"/facebook.com/reel/99", "f3")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "riêng tư") {
		t.Errorf("expected private-video message, got %q", err)
	}
}

func TestResolverServiceTier(t *testing.T) {
	resolver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("url") == "" {
			t.Error("expected url query parameter")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status": "success",
			"data": map[string]any{
				"url":       "https://video.fbcdn.net/svc.mp4",
				"title":     "từ dịch vụ",
				"duration":  12.4,
				"thumbnail": "https://cdn/t.jpg",
				"author":    "ai đó",
			},
		})
	}))
	t.Cleanup(resolver.Close)

	cfg := testConfig()
	cfg.FacebookResolverServices = []string{resolver.URL + "/api/info?url="}
	service := newTestService(cfg)

	record, err := service.Extract(context.Background(), "https://www.facebook.com/watch/?v=123", "f4")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if record.NoWatermarkURL != "https://video.fbcdn.net/svc.mp4" {
		t.Errorf("media url = %q", record.NoWatermarkURL)
	}
	if record.Description != "từ dịch vụ" || record.Author != "ai đó" {
		t.Errorf("metadata = %+v", record)
	}
	if record.DurationSeconds != 12 {
		t.Errorf("duration = %d", record.DurationSeconds)
	}
}

func TestDecodeEscapes(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`https:\/\/cdn\/v.mp4`, "https://cdn/v.mp4"},
		{"https:\\u002F\\u002Fcdn\\u002Fv.mp4?a\\u003D1\\u0026b\\u003D2", "https://cdn/v.mp4?a=1&b=2"},
		{`https://cdn/v.mp4?a=1&amp;b=2`, "https://cdn/v.mp4?a=1&b=2"},
		{`\https://cdn/v.mp4`, "https://cdn/v.mp4"},
	}
	for _, tt := range tests {
		if got := decodeEscapes(tt.in); got != tt.want {
			t.Errorf("decodeEscapes(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScrapePagePatternOrder(t *testing.T) {
	html := `{"sd_src":"https:\/\/cdn\/sd.mp4"}{"hd_src":"https:\/\/cdn\/hd.mp4"}`
	info := scrapePage(html)
	if info == nil {
		t.Fatal("expected info")
	}
	if info.URL != "https://cdn/hd.mp4" {
		t.Errorf("expected hd source to win, got %q", info.URL)
	}
}
