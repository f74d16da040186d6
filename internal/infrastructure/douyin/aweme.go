package douyin

import (
	"bytes"
	"encoding/json"
)

// AwemeDetail is the strict record every upstream shape (detail API, legacy
// iteminfo, embedded page state, intercepted browser traffic) is decoded
// into. Downstream normalization consumes only this, never raw JSON.
type AwemeDetail struct {
	AwemeID    string  `json:"aweme_id"`
	Desc       string  `json:"desc,omitempty"`
	CreateTime int64   `json:"create_time,omitempty"`
	Author     *Author `json:"author,omitempty"`
	Music      *Music  `json:"music,omitempty"`
	Video      *Video  `json:"video,omitempty"`
}

// Author carries the uploader fields used by normalization.
type Author struct {
	Nickname    string   `json:"nickname,omitempty"`
	AvatarThumb *URLList `json:"avatar_thumb,omitempty"`
}

// Music carries the soundtrack title.
type Music struct {
	Title string `json:"title,omitempty"`
}

// Video carries the media variants of an aweme.
type Video struct {
	Duration     int64            `json:"duration,omitempty"` // milliseconds
	BitRate      []BitRateVariant `json:"bit_rate,omitempty"`
	PlayAddr     *PlayAddr        `json:"play_addr,omitempty"`
	DownloadAddr *PlayAddr        `json:"download_addr,omitempty"`
	Cover        *URLList         `json:"cover,omitempty"`
	OriginCover  *URLList         `json:"origin_cover,omitempty"`
	DynamicCover *URLList         `json:"dynamic_cover,omitempty"`
}

// BitRateVariant is one encoded rendition of the video.
type BitRateVariant struct {
	BitRate  int64     `json:"bit_rate,omitempty"`
	GearName string    `json:"gear_name,omitempty"`
	PlayAddr *PlayAddr `json:"play_addr,omitempty"`
}

// URLList is the upstream wrapper around a list of mirror URLs.
type URLList struct {
	URLList []string `json:"url_list,omitempty"`
}

// PlayAddr is an upstream address block.
type PlayAddr struct {
	URLList  []string `json:"url_list,omitempty"`
	DataSize int64    `json:"data_size,omitempty"`
	Width    int      `json:"width,omitempty"`
	Height   int      `json:"height,omitempty"`
}

// ParseDetailPayload decodes an API response body that carries either an
// aweme_detail object or an item_list array, as seen on the detail and
// legacy iteminfo endpoints (and in intercepted browser traffic).
func ParseDetailPayload(body []byte) (*AwemeDetail, bool) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, false
	}

	var payload struct {
		AwemeDetail *AwemeDetail  `json:"aweme_detail"`
		ItemList    []AwemeDetail `json:"item_list"`
	}
	if err := json.Unmarshal(trimmed, &payload); err != nil {
		return nil, false
	}
	if payload.AwemeDetail != nil {
		return payload.AwemeDetail, true
	}
	if len(payload.ItemList) > 0 {
		return &payload.ItemList[0], true
	}
	return nil, false
}

// decodeCandidate re-decodes an arbitrarily-shaped JSON value into the
// strict AwemeDetail record. Used when walking embedded page state, where
// the detail object sits at varying nested paths.
func decodeCandidate(value any) *AwemeDetail {
	if value == nil {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil
	}
	var detail AwemeDetail
	if err := json.Unmarshal(raw, &detail); err != nil {
		return nil
	}
	if detail.AwemeID == "" && detail.Video == nil {
		return nil
	}
	return &detail
}

// dig walks a decoded JSON object along a key path, returning nil when any
// step is missing or not an object.
func dig(value any, path ...string) any {
	current := value
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// firstListItem returns the first element when value is a non-empty array.
func firstListItem(value any) any {
	list, ok := value.([]any)
	if !ok || len(list) == 0 {
		return nil
	}
	return list[0]
}
