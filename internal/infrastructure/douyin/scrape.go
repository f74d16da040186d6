package douyin

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"shortvid/internal/logger"
)

const (
	initPropsMarker  = `window.__INIT_PROPS__`
	renderDataOpen   = `<script id="RENDER_DATA" type="application/json">`
	renderDataClose  = `</script>`
	decodeURIWrapper = `decodeURIComponent("`
)

// sigiStateMarkers lists the canonical SIGI marker first, then the
// underscored variant some page builds have shipped.
var sigiStateMarkers = []string{`window.SIGI_STATE`, `window._SIGI_STATE`}

var (
	rawPlayAddrURL     = regexp.MustCompile(`"play_addr"\s*:\s*\{[^}]*"url_list"\s*:\s*\["([^"]+)"`)
	rawDescPattern     = regexp.MustCompile(`"desc"\s*:\s*"([^"]*)"`)
	rawNicknamePattern = regexp.MustCompile(`"nickname"\s*:\s*"([^"]*)"`)
)

// fetchAwemeFromHTML loads the desktop video page and tries the embedded
// state blobs the page ships for hydration, in the order the frontend has
// historically used them. A raw regex over the page source is kept as the
// very last resort for layouts where the state is inlined but renamed.
func (s *Service) fetchAwemeFromHTML(ctx context.Context, awemeID, cookie, tag string) *AwemeDetail {
	pageURL := s.cfg.DouyinVideoPageBase + awemeID
	_, html, err := s.fetchPage(ctx, pageURL, cookie)
	if err != nil {
		logger.Warn().Printf("[douyin:%s] HTML fetch failed: %v", tag, err)
		return nil
	}
	if strings.TrimSpace(html) == "" {
		return nil
	}

	detail, source := ParseEmbeddedState(html, awemeID)
	if detail == nil {
		logger.Warn().Printf("[douyin:%s] page carried no usable embedded state", tag)
		return nil
	}
	logger.Info().Printf("[douyin:%s] extracted from %s", tag, source)
	return detail
}

// ParseEmbeddedState tries every known embedded-state shape in order and
// reports which one produced the detail. The raw markup scan runs last so a
// structured blob always wins when both are present.
func ParseEmbeddedState(html, awemeID string) (*AwemeDetail, string) {
	if detail := parseInitProps(html, awemeID); detail != nil {
		return detail, "__INIT_PROPS__"
	}
	if detail := parseSigiState(html); detail != nil {
		return detail, "SIGI_STATE"
	}
	if detail := parseRenderData(html); detail != nil {
		return detail, "RENDER_DATA"
	}
	if detail := parseRawMarkup(html, awemeID); detail != nil {
		return detail, "raw markup scan"
	}
	return nil, ""
}

// parseInitProps handles the `window.__INIT_PROPS__ = {...};</script>` blob
// and probes the nested paths the detail object has been observed under.
func parseInitProps(html, awemeID string) *AwemeDetail {
	blob := scriptAssignment(html, initPropsMarker)
	if blob == "" {
		return nil
	}

	var state any
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil
	}

	candidates := []any{
		dig(state, "detail", "awemeDetail"),
		dig(state, "aweme", "detail", "awemeDetail"),
		dig(state, "/video/:id", "awemeDetail"),
	}
	if awemeID != "" {
		candidates = append(candidates, dig(state, "/video/"+awemeID, "awemeDetail"))
	}
	for _, candidate := range candidates {
		if detail := decodeCandidate(candidate); detail != nil {
			return detail
		}
	}
	return nil
}

// parseSigiState handles the `window.SIGI_STATE = {...}` blob shared with
// the TikTok frontend codebase.
func parseSigiState(html string) *AwemeDetail {
	var blob string
	for _, marker := range sigiStateMarkers {
		if blob = scriptAssignment(html, marker); blob != "" {
			break
		}
	}
	if blob == "" {
		return nil
	}

	var state any
	if err := json.Unmarshal([]byte(blob), &state); err != nil {
		return nil
	}

	candidates := []any{
		firstListItem(dig(state, "Aweme", "detail", "itemList")),
		dig(state, "Aweme", "detail"),
		dig(state, "Aweme", "awemeDetail"),
		firstListItem(dig(state, "Aweme", "itemList")),
	}
	for _, candidate := range candidates {
		if detail := decodeCandidate(candidate); detail != nil {
			return detail
		}
	}
	return nil
}

// parseRenderData handles the percent-encoded RENDER_DATA script block. Some
// page versions wrap the payload in decodeURIComponent("..."), others inline
// the encoded JSON directly.
func parseRenderData(html string) *AwemeDetail {
	start := strings.Index(html, renderDataOpen)
	if start < 0 {
		return nil
	}
	rest := html[start+len(renderDataOpen):]
	end := strings.Index(rest, renderDataClose)
	if end < 0 {
		return nil
	}
	payload := strings.TrimSpace(rest[:end])

	if idx := strings.Index(payload, decodeURIWrapper); idx >= 0 {
		inner := payload[idx+len(decodeURIWrapper):]
		if closeQuote := strings.Index(inner, `")`); closeQuote >= 0 {
			payload = inner[:closeQuote]
		}
	}

	decoded, err := url.QueryUnescape(payload)
	if err != nil {
		decoded = payload
	}

	var state any
	if err := json.Unmarshal([]byte(decoded), &state); err != nil {
		return nil
	}

	root, ok := state.(map[string]any)
	if !ok {
		return nil
	}
	for _, value := range root {
		if detail := decodeCandidate(dig(value, "aweme", "detail")); detail != nil {
			return detail
		}
		if detail := decodeCandidate(dig(value, "awemeDetail")); detail != nil {
			return detail
		}
	}
	return nil
}

// parseRawMarkup scavenges a play address straight out of the page source
// when every structured blob is absent or renamed. It only produces the
// fields it can see, which is enough for normalization to succeed.
func parseRawMarkup(html, awemeID string) *AwemeDetail {
	playURL := rawPlayAddrURL.FindStringSubmatch(html)
	if playURL == nil {
		return nil
	}

	detail := &AwemeDetail{
		AwemeID: awemeID,
		Video: &Video{
			PlayAddr: &PlayAddr{URLList: []string{unescapeJSON(playURL[1])}},
		},
	}
	if desc := rawDescPattern.FindStringSubmatch(html); desc != nil {
		detail.Desc = unescapeJSON(desc[1])
	}
	if nick := rawNicknamePattern.FindStringSubmatch(html); nick != nil {
		detail.Author = &Author{Nickname: unescapeJSON(nick[1])}
	}
	return detail
}

// scriptAssignment slices the JSON object assigned to a window marker inside
// a script tag. It trusts the page to terminate the assignment before the
// closing </script> and trims the trailing semicolon.
func scriptAssignment(html, marker string) string {
	idx := strings.Index(html, marker)
	if idx < 0 {
		return ""
	}
	rest := html[idx+len(marker):]

	eq := strings.Index(rest, "=")
	if eq < 0 {
		return ""
	}
	rest = rest[eq+1:]

	end := strings.Index(rest, "</script>")
	if end < 0 {
		return ""
	}
	blob := strings.TrimSpace(rest[:end])
	blob = strings.TrimSuffix(blob, ";")
	return blob
}

func unescapeJSON(s string) string {
	var decoded string
	if err := json.Unmarshal([]byte(`"`+s+`"`), &decoded); err != nil {
		return strings.ReplaceAll(s, `\/`, "/")
	}
	return decoded
}
