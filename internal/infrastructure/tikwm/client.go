// Package tikwm talks to the tikwm.com resolver, used as the only TikTok
// extraction tier and as the last-resort mirror for Douyin.
package tikwm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"shortvid/config"
	"shortvid/internal/cascade"
	infrastructure "shortvid/internal/infrastructure/http"
	"shortvid/internal/logger"
)

const maxResponseBytes = 2 * 1024 * 1024

var errMirrorSilent = errors.New("Tikwm không phản hồi.")

// Client is a thin wrapper over the tikwm HTTP API.
type Client struct {
	cfg  *config.Config
	http *infrastructure.HTTPClient
}

func NewClient(cfg *config.Config, httpClient *infrastructure.HTTPClient) *Client {
	return &Client{cfg: cfg, http: httpClient}
}

// ResolveByForm posts the video URL as form data, the shape the mirror
// expects for Douyin links. The call only counts as a hit when the response
// carries code 0 and a data object.
func (c *Client) ResolveByForm(ctx context.Context, videoURL string) (*Data, error) {
	form := url.Values{}
	form.Set("url", videoURL)
	form.Set("hd", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TikwmEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, cascade.NewMiss(cascade.MissHTTP, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", c.cfg.TikwmReferer)

	payload, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if payload.Code != 0 || payload.Data == nil {
		msg := payload.Msg
		if msg == "" {
			msg = fmt.Sprintf("code %d", payload.Code)
		}
		logger.Warn().Printf("[tikwm] mirror rejected request: %s", msg)
		return nil, cascade.NewMiss(cascade.MissMissingField, errors.New(msg))
	}
	return payload.Data, nil
}

// ResolveByQuery issues the GET form of the API, used for TikTok links. The
// code field is not checked here; only a present data object counts.
func (c *Client) ResolveByQuery(ctx context.Context, videoURL string) (*Data, error) {
	endpoint := fmt.Sprintf("%s?url=%s&hd=1", c.cfg.TikwmEndpoint, url.QueryEscape(videoURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, cascade.NewMiss(cascade.MissHTTP, err)
	}
	req.Header.Set("Referer", c.cfg.TikwmReferer)

	payload, err := c.send(req)
	if err != nil {
		return nil, err
	}
	if payload.Data == nil {
		msg := payload.Msg
		if msg == "" {
			msg = "missing data"
		}
		logger.Warn().Printf("[tikwm] mirror returned no data: %s", msg)
		return nil, cascade.NewMiss(cascade.MissMissingField, errors.New(msg))
	}
	return payload.Data, nil
}

func (c *Client) send(req *http.Request) (*envelope, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn().Printf("[tikwm] request failed: %v", err)
		return nil, cascade.NewMiss(cascade.MissHTTP, errMirrorSilent)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Warn().Printf("[tikwm] HTTP %d from mirror", resp.StatusCode)
		return nil, cascade.NewMiss(cascade.MissHTTP, errMirrorSilent)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, cascade.NewMiss(cascade.MissHTTP, errMirrorSilent)
	}

	var payload envelope
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, cascade.NewMiss(cascade.MissInvalidJSON, err)
	}
	return &payload, nil
}

type envelope struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data *Data  `json:"data"`
}
