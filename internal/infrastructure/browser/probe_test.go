package browser

import (
	"strings"
	"testing"

	"github.com/chromedp/cdproto/network"
)

func TestMatchesAPIPath(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.douyin.com/aweme/v1/web/aweme/detail/?aweme_id=1", true},
		{"https://www.iesdouyin.com/web/api/v2/aweme/iteminfo/?item_ids=1", true},
		{"https://www.douyin.com/aweme/v1/web/comment/list/", true},
		{"https://www.douyin.com/video/123", false},
		{"https://cdn.example.com/static/app.js", false},
	}
	for _, tt := range tests {
		if got := matchesAPIPath(tt.url); got != tt.want {
			t.Errorf("matchesAPIPath(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestCapturedResponseFirstWriterWins(t *testing.T) {
	captured := &capturedResponse{}
	captured.store(network.RequestID("first"), "https://a/aweme/detail")
	captured.store(network.RequestID("second"), "https://b/aweme/detail")

	id, url := captured.get()
	if id != network.RequestID("first") || url != "https://a/aweme/detail" {
		t.Errorf("got (%q, %q), want first capture retained", id, url)
	}
}

// The extraction program is data the page evaluates; these markers are its
// contract with the upstream frontend and must not drift.
func TestEmbeddedStateProgramMarkers(t *testing.T) {
	for _, marker := range []string{
		"window.__INIT_PROPS__",
		"window.SIGI_STATE",
		"RENDER_DATA",
		`script[type="application/json"]`,
	} {
		if !strings.Contains(readEmbeddedState, marker) {
			t.Errorf("extraction program lost marker %q", marker)
		}
	}
}

func TestDecodeStateJSON(t *testing.T) {
	if detail := decodeStateJSON(`{"aweme_id":"7","desc":"một video"}`); detail == nil || detail.AwemeID != "7" {
		t.Errorf("detail = %+v, want aweme id 7", detail)
	}
	if detail := decodeStateJSON(`{"video":{"play_addr":{"url_list":["https://cdn/v.mp4"]}}}`); detail == nil || detail.Video == nil {
		t.Errorf("detail = %+v, want video payload kept without id", detail)
	}

	for _, raw := range []string{"", "not json", "{}"} {
		if detail := decodeStateJSON(raw); detail != nil {
			t.Errorf("decodeStateJSON(%q) = %+v, want nil", raw, detail)
		}
	}
}
