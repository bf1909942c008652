package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vincent-petithory/dataurl"

	"zapdesk/internal/models"
	"zapdesk/internal/storage"
)

// MediaDownloader fetches message media from the channel provider.
type MediaDownloader interface {
	DownloadMedia(ctx context.Context, instanceID, apiToken, messageID string) (data, mimetype, fileName string, err error)
}

// MediaService downloads, decodes and stores message media. Every failure
// degrades to empty media fields; nothing here is allowed to fail the message.
type MediaService struct {
	downloader MediaDownloader
	uploader   storage.Uploader
}

func NewMediaService(downloader MediaDownloader, uploader storage.Uploader) *MediaService {
	return &MediaService{downloader: downloader, uploader: uploader}
}

type mediaDefaults struct {
	ext         string
	contentType string
}

var mediaTypeDefaults = map[string]mediaDefaults{
	models.TypeImage:    {".jpg", "image/jpeg"},
	models.TypeAudio:    {".ogg", "audio/ogg"},
	models.TypeVideo:    {".mp4", "video/mp4"},
	models.TypeSticker:  {".webp", "image/webp"},
	models.TypeDocument: {".bin", "application/octet-stream"},
}

// Fetch runs the full pipeline for one message: provider download, base64
// decode, object-storage upload. Returns the stored URL, file name and content
// type, or empty strings when any step fails.
func (s *MediaService) Fetch(ctx context.Context, inst *models.Instance, conversationID, messageID, msgType, providerFileName, providerMimetype string) (string, string, string) {
	if s == nil || s.downloader == nil || s.uploader == nil {
		return "", "", ""
	}

	raw, mimetype, fileName, err := s.downloader.DownloadMedia(ctx, inst.ID, inst.APIToken, messageID)
	if err != nil {
		log.Warn().Err(err).Str("messageId", messageID).Str("type", msgType).Msg("Media download failed, persisting without media")
		return "", "", ""
	}
	if mimetype == "" {
		mimetype = providerMimetype
	}
	if fileName == "" {
		fileName = providerFileName
	}

	data, decodedType, err := decodeMedia(raw)
	if err != nil {
		log.Warn().Err(err).Str("messageId", messageID).Msg("Media decode failed, persisting without media")
		return "", "", ""
	}
	if decodedType != "" {
		mimetype = decodedType
	}

	defaults := mediaTypeDefaults[msgType]
	contentType := mimetype
	if contentType == "" {
		contentType = defaults.contentType
	}

	name := buildFileName(messageID, fileName, defaults.ext)
	key := fmt.Sprintf("conversations/%s/%s", conversationID, name)

	url, err := s.uploader.Upload(ctx, key, data, contentType)
	if err != nil {
		log.Warn().Err(err).Str("messageId", messageID).Str("key", key).Msg("Media upload failed, persisting without media")
		return "", "", ""
	}
	return url, name, contentType
}

// decodeMedia accepts either a data URL or bare base64, tolerating embedded
// whitespace from providers that chunk their payloads.
func decodeMedia(raw string) ([]byte, string, error) {
	raw = strings.NewReplacer("\n", "", "\r", "", " ", "", "\t", "").Replace(raw)
	if strings.HasPrefix(raw, "data:") {
		du, err := dataurl.DecodeString(raw)
		if err != nil {
			return nil, "", fmt.Errorf("invalid data URL: %w", err)
		}
		return du.Data, du.ContentType(), nil
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return data, "", nil
}

func buildFileName(messageID, providerName, ext string) string {
	if providerName != "" {
		return sanitizeFileName(providerName)
	}
	if ext == "" {
		ext = ".bin"
	}
	return fmt.Sprintf("%d-%s%s", time.Now().UnixMilli(), sanitizeFileName(messageID), ext)
}

// sanitizeFileName keeps object keys portable across S3-compatible backends.
func sanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
