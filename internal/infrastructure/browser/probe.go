// Package browser drives a headless Chrome instance against a Douyin video
// page as a late extraction tier: a real browser executes the anti-bot
// JavaScript the plain HTTP tiers cannot, so the page either fires the
// detail API request (which we intercept) or hydrates its embedded state
// (which we read in-page).
package browser

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"shortvid/config"
	"shortvid/internal/infrastructure/douyin"
	"shortvid/internal/logger"
)

// apiPathMarkers identify the aweme endpoints worth intercepting.
var apiPathMarkers = []string{"/aweme/detail", "/aweme/iteminfo", "/aweme/v1/"}

// maskFingerprintScript hides the obvious headless signals before any page
// script runs.
const maskFingerprintScript = `
Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
Object.defineProperty(navigator, 'languages', { get: () => ['vi-VN', 'vi', 'en'] });
Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
window.chrome = window.chrome || { runtime: {} };
`

// readEmbeddedState is evaluated in-page after the navigation settles. It
// walks the same hydration blobs the HTTP scrape tier knows about, but
// against the live DOM, after the page's own scripts have run.
const readEmbeddedState = `
(() => {
  const pick = (obj, path) => path.reduce((o, k) => (o && o[k] !== undefined ? o[k] : null), obj);
  const candidates = [];
  const props = window.__INIT_PROPS__;
  if (props) {
    for (const key of Object.keys(props)) {
      candidates.push(pick(props[key], ['awemeDetail']));
    }
    candidates.push(pick(props, ['detail', 'awemeDetail']));
  }
  const sigi = window.SIGI_STATE || window._SIGI_STATE;
  if (sigi) {
    candidates.push(pick(sigi, ['Aweme', 'detail']));
    const list = pick(sigi, ['Aweme', 'detail', 'itemList']);
    if (Array.isArray(list) && list.length) candidates.push(list[0]);
  }
  const render = document.getElementById('RENDER_DATA');
  if (render && render.textContent) {
    try {
      const data = JSON.parse(decodeURIComponent(render.textContent));
      for (const key of Object.keys(data)) {
        candidates.push(pick(data[key], ['aweme', 'detail']));
      }
    } catch (e) {}
  }
  for (const tag of document.querySelectorAll('script[type="application/json"]')) {
    if (!tag.textContent) continue;
    let data = null;
    try { data = JSON.parse(tag.textContent); } catch (e) {
      try { data = JSON.parse(decodeURIComponent(tag.textContent)); } catch (e2) {}
    }
    if (!data || typeof data !== 'object') continue;
    candidates.push(pick(data, ['aweme', 'detail']));
    candidates.push(pick(data, ['awemeDetail']));
    for (const key of Object.keys(data)) {
      candidates.push(pick(data[key], ['aweme', 'detail']));
      candidates.push(pick(data[key], ['awemeDetail']));
    }
  }
  for (const c of candidates) {
    if (c && (c.aweme_id || c.awemeId || c.video)) {
      return JSON.stringify(c);
    }
  }
  return "";
})()
`

// Probe owns no long-lived browser; each FetchAweme call spawns a fresh
// allocator so a wedged page can never poison the next request.
type Probe struct {
	cfg *config.Config
}

func NewProbe(cfg *config.Config) *Probe {
	return &Probe{cfg: cfg}
}

type capturedResponse struct {
	mu        sync.Mutex
	requestID network.RequestID
	url       string
}

func (c *capturedResponse) store(id network.RequestID, url string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.requestID == "" {
		c.requestID = id
		c.url = url
	}
}

func (c *capturedResponse) get() (network.RequestID, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requestID, c.url
}

// FetchAweme loads the video page in headless Chrome and returns the aweme
// detail from intercepted API traffic, falling back to the page's hydrated
// state. A total miss returns nil without an error so the cascade can keep
// going.
func (p *Probe) FetchAweme(ctx context.Context, targetURL, tag string) (*douyin.AwemeDetail, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.BrowserHeadless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(p.cfg.BrowserUserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	runCtx, cancelRun := context.WithTimeout(browserCtx, p.cfg.BrowserNavTimeout)
	defer cancelRun()

	captured := &capturedResponse{}
	chromedp.ListenTarget(runCtx, func(ev any) {
		resp, ok := ev.(*network.EventResponseReceived)
		if !ok {
			return
		}
		if resp.Response.Status != 200 || !matchesAPIPath(resp.Response.URL) {
			return
		}
		captured.store(resp.RequestID, resp.Response.URL)
	})

	logger.Info().Printf("[browser:%s] navigating to %s", tag, targetURL)

	err := chromedp.Run(runCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": p.cfg.DouyinAcceptLanguage,
		}),
		installMaskScript(),
		chromedp.Navigate(targetURL),
	)
	if err != nil {
		return nil, err
	}

	if detail := p.awaitInterception(runCtx, captured, tag); detail != nil {
		return detail, nil
	}

	if detail := p.readPageState(runCtx, tag); detail != nil {
		return detail, nil
	}

	logger.Warn().Printf("[browser:%s] probe found nothing usable", tag)
	return nil, nil
}

// awaitInterception polls once per second for an intercepted aweme API
// response and decodes its body when one lands.
func (p *Probe) awaitInterception(ctx context.Context, captured *capturedResponse, tag string) *douyin.AwemeDetail {
	deadline := time.Now().Add(time.Duration(p.cfg.BrowserPollSeconds) * time.Second)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}

		requestID, url := captured.get()
		if requestID == "" {
			continue
		}

		logger.Info().Printf("[browser:%s] intercepted %s", tag, url)

		var body []byte
		err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			body, err = network.GetResponseBody(requestID).Do(ctx)
			return err
		}))
		if err != nil {
			logger.Warn().Printf("[browser:%s] response body read failed: %v", tag, err)
			return nil
		}

		if detail, ok := douyin.ParseDetailPayload(body); ok {
			return detail
		}
		logger.Warn().Printf("[browser:%s] intercepted body carried no detail", tag)
		return nil
	}
	return nil
}

// readPageState repeatedly evaluates the fixed extraction program against
// the hydrated page until a state marker appears or BrowserStateTimeout
// expires. Between evaluations it also scans the rendered markup itself, the
// last resort for layouts that inline the state under an unknown name.
// Timeout expiry is a miss, not an error.
func (p *Probe) readPageState(ctx context.Context, tag string) *douyin.AwemeDetail {
	stateCtx, cancel := context.WithTimeout(ctx, p.cfg.BrowserStateTimeout)
	defer cancel()

	for {
		var raw string
		if err := chromedp.Run(stateCtx, chromedp.Evaluate(readEmbeddedState, &raw)); err != nil {
			logger.Warn().Printf("[browser:%s] page state evaluation failed: %v", tag, err)
			return nil
		}
		if detail := decodeStateJSON(raw); detail != nil {
			logger.Info().Printf("[browser:%s] extracted detail from hydrated page state", tag)
			return detail
		}

		var html string
		if err := chromedp.Run(stateCtx, chromedp.OuterHTML("html", &html)); err == nil {
			if detail, source := douyin.ParseEmbeddedState(html, ""); detail != nil {
				logger.Info().Printf("[browser:%s] extracted via %s from rendered markup", tag, source)
				return detail
			}
		}

		select {
		case <-stateCtx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

// decodeStateJSON decodes the detail object the in-page program surfaced. An
// object without an id or video payload is treated as noise.
func decodeStateJSON(raw string) *douyin.AwemeDetail {
	if raw == "" {
		return nil
	}
	var detail douyin.AwemeDetail
	if err := json.Unmarshal([]byte(raw), &detail); err != nil {
		return nil
	}
	if detail.AwemeID == "" && detail.Video == nil {
		return nil
	}
	return &detail
}

func installMaskScript() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		_, err := page.AddScriptToEvaluateOnNewDocument(maskFingerprintScript).Do(ctx)
		return err
	})
}

func matchesAPIPath(url string) bool {
	for _, marker := range apiPathMarkers {
		if strings.Contains(url, marker) {
			return true
		}
	}
	return false
}
