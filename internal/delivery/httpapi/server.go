// Package httpapi exposes the resolution pipeline over REST: one analyze
// endpoint per platform, a streaming download proxy, and the cache history.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"shortvid/config"
	"shortvid/internal/domain"
	infrastructure "shortvid/internal/infrastructure/http"
	"shortvid/internal/logger"
	"shortvid/internal/usecase"
)

var filenameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9-_.]`)

var platformLabels = map[domain.Platform]string{
	domain.PlatformDouyin:   "Douyin",
	domain.PlatformTikTok:   "TikTok",
	domain.PlatformFacebook: "Facebook",
}

// Server exposes the REST API.
type Server struct {
	cfg      *config.Config
	resolver *usecase.Resolver
	cache    domain.CacheRepository
	http     *infrastructure.HTTPClient
	server   *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(cfg *config.Config, resolver *usecase.Resolver, cache domain.CacheRepository, httpClient *infrastructure.HTTPClient) *Server {
	mux := http.NewServeMux()
	s := &Server{
		cfg:      cfg,
		resolver: resolver,
		cache:    cache,
		http:     httpClient,
	}

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/history", s.handleHistory)
	for platform := range platformLabels {
		mux.HandleFunc("/api/"+string(platform), s.platformHandler(platform))
		mux.HandleFunc("/api/"+string(platform)+"/download", s.downloadHandler(platform))
	}

	s.server = &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: loggingMiddleware(mux),
	}
	return s
}

// Start begins serving HTTP requests in a separate goroutine.
func (s *Server) Start() error {
	if s.cfg.ServerPort == "" {
		return fmt.Errorf("server port is not configured")
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Printf("http api server stopped with error: %v", err)
		}
	}()
	logger.Info().Printf("HTTP API server listening on %s", s.server.Addr)
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// platformHandler analyzes one pasted link for the given platform.
func (s *Server) platformHandler(platform domain.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w)
			return
		}

		var payload struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			respondError(w, http.StatusBadRequest, "Dữ liệu gửi lên không hợp lệ.")
			return
		}

		input := strings.TrimSpace(payload.URL)
		if input == "" {
			respondError(w, http.StatusBadRequest,
				fmt.Sprintf("Bạn chưa cung cấp link %s.", platformLabels[platform]))
			return
		}

		record, cached, err := s.resolver.Resolve(r.Context(), platform, input)
		if err != nil {
			respondError(w, resolveStatus(err), err.Error())
			return
		}

		respondJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"data":    record,
			"cached":  cached,
		})
	}
}

// resolveStatus maps pipeline errors onto HTTP statuses: bad input is the
// caller's fault, everything else is upstream trouble.
func resolveStatus(err error) int {
	if errors.Is(err, domain.ErrNoURLFound) || errors.Is(err, domain.ErrUnresolvableLink) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

// downloadHandler streams an upstream media file through the server so the
// browser gets a same-origin download with a clean filename. Only hosts on
// the platform's allow-list are fetched.
func (s *Server) downloadHandler(platform domain.Platform) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}

		source := r.URL.Query().Get("source")
		if source == "" {
			respondError(w, http.StatusBadRequest, "Thiếu link nguồn video.")
			return
		}

		parsed, err := url.Parse(source)
		if err != nil || !allowedHost(parsed.Hostname(), s.allowedSuffixes(platform)) {
			respondError(w, http.StatusBadRequest, "Nguồn video không hợp lệ.")
			return
		}

		filename := sanitizeFilename(r.URL.Query().Get("filename"))
		if filename == "" {
			filename = "video.mp4"
		}

		req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, source, nil)
		if err != nil {
			respondError(w, http.StatusBadGateway, "Không tải được video từ nguồn.")
			return
		}
		s.applyDownloadHeaders(req, platform)

		resp, err := s.http.Do(req)
		if err != nil {
			logger.Warn().Printf("[%s] download proxy fetch failed: %v", platform, err)
			respondError(w, http.StatusBadGateway, "Không tải được video từ nguồn.")
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			logger.Warn().Printf("[%s] download proxy got HTTP %d from upstream", platform, resp.StatusCode)
			respondError(w, http.StatusBadGateway, "Không tải được video từ nguồn.")
			return
		}

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "video/mp4"
		}
		w.Header().Set("Content-Type", contentType)
		if length := resp.Header.Get("Content-Length"); length != "" {
			w.Header().Set("Content-Length", length)
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
		w.Header().Set("Cache-Control", "no-store")

		if _, err := io.Copy(w, resp.Body); err != nil {
			logger.Warn().Printf("[%s] download stream interrupted: %v", platform, err)
		}
	}
}

func (s *Server) allowedSuffixes(platform domain.Platform) []string {
	switch platform {
	case domain.PlatformDouyin:
		return s.cfg.DouyinAllowedSuffixes
	case domain.PlatformTikTok:
		return s.cfg.TikTokAllowedSuffixes
	case domain.PlatformFacebook:
		return s.cfg.FacebookAllowedSuffixes
	}
	return nil
}

func (s *Server) applyDownloadHeaders(req *http.Request, platform domain.Platform) {
	switch platform {
	case domain.PlatformDouyin:
		req.Header.Set("User-Agent", s.cfg.DouyinMobileUA)
		req.Header.Set("Referer", s.cfg.DouyinReferer)
	case domain.PlatformTikTok:
		req.Header.Set("User-Agent", s.cfg.FacebookDesktopUA)
		req.Header.Set("Referer", s.cfg.TikwmReferer)
	case domain.PlatformFacebook:
		req.Header.Set("User-Agent", s.cfg.FacebookDesktopUA)
		req.Header.Set("Referer", s.cfg.FacebookReferer)
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listHistory(w, r)
	case http.MethodDelete:
		s.deleteHistory(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	entries, err := s.cache.History(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Không đọc được lịch sử.")
		return
	}
	if entries == nil {
		entries = []domain.CacheEntry{}
	}

	payload := map[string]any{
		"success": true,
		"data":    entries,
	}

	if r.URL.Query().Get("stats") == "true" {
		stats, err := s.cache.Stats()
		if err != nil {
			respondError(w, http.StatusInternalServerError, "Không đọc được thống kê.")
			return
		}
		payload["stats"] = stats
	}

	respondJSON(w, http.StatusOK, payload)
}

func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		respondError(w, http.StatusBadRequest, "Thiếu id của mục cần xoá.")
		return
	}

	deleted, err := s.cache.DeleteByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Không xoá được mục này.")
		return
	}
	if !deleted {
		respondError(w, http.StatusNotFound, "Không tìm thấy mục cần xoá.")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"success": true})
}

// allowedHost reports whether host belongs to one of the trusted CDN
// domains. A suffix like ".douyin.com" also admits the bare apex.
func allowedHost(host string, suffixes []string) bool {
	if host == "" {
		return false
	}
	host = strings.ToLower(host)
	for _, suffix := range suffixes {
		if strings.HasSuffix(host, suffix) || host == strings.TrimPrefix(suffix, ".") {
			return true
		}
	}
	return false
}

func sanitizeFilename(name string) string {
	return filenameSanitizer.ReplaceAllString(name, "_")
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]any{"success": false, "message": message})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Info().Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
