package douyin

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"regexp"
	"strings"
	"time"

	"shortvid/internal/logger"
)

var ttwidCookie = regexp.MustCompile(`ttwid=([^;]+)`)

// composeCookieHeader synthesizes the anti-bot session cookies attached to
// every official-API and HTML-scrape request: a random msToken, a
// timestamp-based device id reused for both webid variants, and a
// server-issued ttwid when the registration endpoint cooperates. The ttwid
// fetch is best-effort; its failure never blocks the pipeline.
func (s *Service) composeCookieHeader(ctx context.Context) string {
	msToken := randomHex(16)
	webID := deviceID()

	parts := []string{
		"msToken=" + msToken,
		"tt_webid=" + webID,
		"tt_webid_v2=" + webID,
	}

	if ttwid := s.fetchTtwid(ctx); ttwid != "" {
		parts = append(parts, "ttwid="+ttwid)
	}

	return strings.Join(parts, "; ")
}

func (s *Service) fetchTtwid(ctx context.Context) string {
	payload, err := json.Marshal(map[string]any{
		"region":        "en",
		"aid":           1459,
		"needFid":       false,
		"service":       "www.douyin.com",
		"migrate_info":  map[string]string{"ticket": "", "source": "web"},
		"cbUrlProtocol": "https",
		"union":         true,
	})
	if err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.DouyinTtwidURL, bytes.NewReader(payload))
	if err != nil {
		return ""
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.cfg.DouyinMobileUA)

	resp, err := s.http.Do(req)
	if err != nil {
		logger.Warn().Printf("[douyin] ttwid registration failed: %v", err)
		return ""
	}
	defer resp.Body.Close()

	for _, setCookie := range resp.Header.Values("Set-Cookie") {
		if match := ttwidCookie.FindStringSubmatch(setCookie); match != nil {
			return match[1]
		}
	}
	return ""
}

func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// Degrade to a time-derived token; the cookie only needs to look
		// plausible to the upstream.
		return fmt.Sprintf("%032x", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func deviceID() string {
	suffix, err := rand.Int(rand.Reader, big.NewInt(100000))
	if err != nil {
		suffix = big.NewInt(0)
	}
	return fmt.Sprintf("%d%d", time.Now().UnixMilli(), suffix.Int64())
}
