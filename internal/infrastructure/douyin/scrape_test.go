package douyin

import (
	"net/url"
	"testing"
)

func TestParseInitProps(t *testing.T) {
	html := `<html><script>window.__INIT_PROPS__ = {"/video/:id":{"awemeDetail":{"aweme_id":"42","video":{"play_addr":{"url_list":["https://cdn/v.mp4"]}}}}};</script></html>`

	detail := parseInitProps(html, "42")
	if detail == nil {
		t.Fatal("expected detail")
	}
	if detail.AwemeID != "42" {
		t.Errorf("id = %q", detail.AwemeID)
	}
}

func TestParseSigiState(t *testing.T) {
	tests := []struct {
		name string
		html string
	}{
		{
			"item list",
			`<script>window.SIGI_STATE = {"Aweme":{"detail":{"itemList":[{"aweme_id":"7","video":{}}]}}}</script>`,
		},
		{
			"direct detail",
			`<script>window.SIGI_STATE = {"Aweme":{"awemeDetail":{"aweme_id":"7","video":{}}}}</script>`,
		},
		{
			"underscored variant",
			`<script>window._SIGI_STATE = {"Aweme":{"detail":{"itemList":[{"aweme_id":"7","video":{}}]}}};</script>`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detail := parseSigiState(tt.html)
			if detail == nil || detail.AwemeID != "7" {
				t.Fatalf("detail = %+v", detail)
			}
		})
	}
}

func TestParseRenderData(t *testing.T) {
	state := `{"41":{"aweme":{"detail":{"aweme_id":"99","video":{"play_addr":{"url_list":["https://cdn/r.mp4"]}}}}}}`
	html := `<script id="RENDER_DATA" type="application/json">` + url.QueryEscape(state) + `</script>`

	detail := parseRenderData(html)
	if detail == nil || detail.AwemeID != "99" {
		t.Fatalf("detail = %+v", detail)
	}
}

func TestParseRawMarkup(t *testing.T) {
	html := `<script>{"play_addr":{"uri":"x","url_list":["https:\/\/cdn\/raw.mp4"]},"desc":"mô tả","nickname":"ai đó"}</script>`

	detail := parseRawMarkup(html, "55")
	if detail == nil {
		t.Fatal("expected detail")
	}
	if got := detail.Video.PlayAddr.URLList[0]; got != "https://cdn/raw.mp4" {
		t.Errorf("url = %q", got)
	}
	if detail.Desc != "mô tả" {
		t.Errorf("desc = %q", detail.Desc)
	}
	if detail.Author == nil || detail.Author.Nickname != "ai đó" {
		t.Errorf("author = %+v", detail.Author)
	}
	if detail.AwemeID != "55" {
		t.Errorf("id = %q", detail.AwemeID)
	}
}

func TestParseRawMarkupNoMatch(t *testing.T) {
	if detail := parseRawMarkup(`<html>plain page</html>`, "1"); detail != nil {
		t.Fatalf("expected nil, got %+v", detail)
	}
}

func TestParseEmbeddedState(t *testing.T) {
	t.Run("structured blob wins over raw markup", func(t *testing.T) {
		html := `<script>window.SIGI_STATE = {"Aweme":{"detail":{"itemList":[{"aweme_id":"7","video":{"play_addr":{"url_list":["https://cdn/sigi.mp4"]}}}]}}}</script>` +
			`<script>{"play_addr":{"url_list":["https:\/\/cdn\/raw.mp4"]}}</script>`

		detail, source := ParseEmbeddedState(html, "7")
		if detail == nil || source != "SIGI_STATE" {
			t.Fatalf("detail = %+v, source = %q", detail, source)
		}
		if got := detail.Video.PlayAddr.URLList[0]; got != "https://cdn/sigi.mp4" {
			t.Errorf("url = %q", got)
		}
	})

	t.Run("raw markup as last resort", func(t *testing.T) {
		html := `<script>{"play_addr":{"url_list":["https:\/\/cdn\/raw.mp4"]},"desc":"mô tả"}</script>`

		detail, source := ParseEmbeddedState(html, "")
		if detail == nil || source != "raw markup scan" {
			t.Fatalf("detail = %+v, source = %q", detail, source)
		}
	})

	t.Run("nothing embedded", func(t *testing.T) {
		if detail, source := ParseEmbeddedState(`<html>plain page</html>`, "1"); detail != nil || source != "" {
			t.Fatalf("detail = %+v, source = %q", detail, source)
		}
	})
}
