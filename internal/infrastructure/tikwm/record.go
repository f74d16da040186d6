package tikwm

import (
	"encoding/json"
	"errors"
	"math"
	"time"

	"shortvid/internal/domain"
)

var errNoMirrorURL = errors.New("Tikwm không trả về link video.")

// Data is the mirror's per-video payload. The author field arrives either
// as a bare nickname string or as an object, so it stays raw until read.
type Data struct {
	ID              string          `json:"aweme_id"`
	Title           string          `json:"title"`
	Cover           string          `json:"cover"`
	OriginCover     string          `json:"origin_cover"`
	DurationSeconds int             `json:"duration"`
	Bitrate         int64           `json:"bitrate"`
	Size            int64           `json:"size"`
	SizeMB          float64         `json:"size_mb"`
	VideoResolution string          `json:"video_resolution"`
	Ratio           string          `json:"ratio"`
	CreateTime      int64           `json:"create_time"`
	HDPlay          string          `json:"hdplay"`
	Play            string          `json:"play"`
	Music           string          `json:"music"`
	MusicInfo       *MusicInfo      `json:"music_info"`
	Author          json.RawMessage `json:"author"`
}

type MusicInfo struct {
	Title string `json:"title"`
}

type authorObject struct {
	Nickname string `json:"nickname"`
	Avatar   string `json:"avatar"`
}

// BuildRecord maps a mirror payload into the canonical media record. The HD
// rendition wins over the standard one when both are present.
func BuildRecord(data *Data, fallbackID string, platform domain.Platform) (*domain.MediaRecord, error) {
	mediaURL := data.HDPlay
	if mediaURL == "" {
		mediaURL = data.Play
	}
	if mediaURL == "" {
		return nil, errNoMirrorURL
	}

	videoID := data.ID
	if videoID == "" {
		videoID = fallbackID
	}

	nickname, avatar := readAuthor(data.Author)
	if nickname == "" {
		nickname = "Không rõ"
	}

	record := &domain.MediaRecord{
		VideoID:         videoID,
		Description:     data.Title,
		Author:          nickname,
		Avatar:          avatar,
		Music:           musicTitle(data),
		DurationSeconds: data.DurationSeconds,
		Resolution:      resolution(data),
		SizeBytes:       sizeBytes(data),
		NoWatermarkURL:  mediaURL,
		ProxyDownload:   domain.ProxyDownloadPath(platform, mediaURL, videoID),
		Platform:        platform,
	}

	if data.Bitrate > 0 {
		record.BitrateKbps = int(math.Round(float64(data.Bitrate) / 1000))
	}
	if data.CreateTime > 0 {
		record.PublishedAt = time.Unix(data.CreateTime, 0).UTC().Format(time.RFC3339)
	}

	record.Cover = data.OriginCover
	if record.Cover == "" {
		record.Cover = data.Cover
	}

	return record, nil
}

func readAuthor(raw json.RawMessage) (nickname, avatar string) {
	if len(raw) == 0 {
		return "", ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name, ""
	}
	var obj authorObject
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Nickname, obj.Avatar
	}
	return "", ""
}

func musicTitle(data *Data) string {
	if data.MusicInfo != nil && data.MusicInfo.Title != "" {
		return data.MusicInfo.Title
	}
	return data.Music
}

func resolution(data *Data) string {
	if data.VideoResolution != "" {
		return data.VideoResolution
	}
	return data.Ratio
}

func sizeBytes(data *Data) int64 {
	if data.Size > 0 {
		return data.Size
	}
	if data.SizeMB > 0 {
		return int64(data.SizeMB * 1024 * 1024)
	}
	return 0
}
