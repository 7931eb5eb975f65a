package whatsapp

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/whatsdesk/internal/domain"
)

// MediaSource is the raw material the webhook carries for one media message.
type MediaSource struct {
	Base64   string
	URL      string
	MimeType string
	FileName string
}

// MediaRetriever persists inbound media to local storage. Retrieval is
// best-effort: the message itself must be recorded whether or not the bytes
// could be fetched, so FetchAndPersist never returns an error. An empty path
// means every source was exhausted.
type MediaRetriever struct {
	dir    string
	http   *http.Client
	logger *zap.Logger
}

func NewMediaRetriever(dir string, logger *zap.Logger) *MediaRetriever {
	return &MediaRetriever{
		dir:    dir,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// FetchAndPersist tries, in order: the inline base64 payload, the download
// URL, and a gateway re-fetch by message id. The gateway api may be nil for
// connections without one. The file is written atomically and named by the
// message id so retried webhooks overwrite rather than duplicate.
func (m *MediaRetriever) FetchAndPersist(ctx context.Context, api GatewayAPI, instanceName, messageID string, kind domain.MediaKind, src MediaSource) string {
	if raw := decodeInline(src.Base64); len(raw) > 0 {
		if path, err := m.write(messageID, src, kind, raw); err == nil {
			return path
		} else {
			m.logger.Warn("media write failed", zap.String("message_id", messageID), zap.Error(err))
		}
	}

	if src.URL != "" {
		if raw, err := m.download(ctx, src.URL); err == nil {
			if path, werr := m.write(messageID, src, kind, raw); werr == nil {
				return path
			}
		} else {
			m.logger.Warn("media download failed", zap.String("message_id", messageID), zap.Error(err))
		}
	}

	if api != nil && instanceName != "" {
		encoded, err := api.FetchBase64Media(ctx, instanceName, messageID)
		if err != nil {
			m.logger.Warn("gateway media fetch failed", zap.String("message_id", messageID), zap.Error(err))
			return ""
		}
		if raw := decodeInline(encoded); len(raw) > 0 {
			if path, err := m.write(messageID, src, kind, raw); err == nil {
				return path
			}
		}
	}
	return ""
}

func (m *MediaRetriever) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 64<<20))
}

func (m *MediaRetriever) write(messageID string, src MediaSource, kind domain.MediaKind, raw []byte) (string, error) {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return "", err
	}
	name := sanitizeFileName(messageID) + extensionFor(src, kind)
	final := filepath.Join(m.dir, name)

	tmp, err := os.CreateTemp(m.dir, name+".*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return final, nil
}

// decodeInline strips an optional data-URI prefix before decoding.
func decodeInline(encoded string) []byte {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil
	}
	if idx := strings.Index(encoded, "base64,"); idx >= 0 {
		encoded = encoded[idx+len("base64,"):]
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil
	}
	return raw
}

func sanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpeg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"video/mp4":       ".mp4",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"application/pdf": ".pdf",
}

func extensionFor(src MediaSource, kind domain.MediaKind) string {
	if src.FileName != "" {
		if ext := filepath.Ext(src.FileName); ext != "" {
			return ext
		}
	}
	mime := src.MimeType
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	if ext, ok := mimeExtensions[strings.TrimSpace(mime)]; ok {
		return ext
	}
	switch kind {
	case domain.MediaImage, domain.MediaSticker:
		return ".jpeg"
	case domain.MediaVideo:
		return ".mp4"
	case domain.MediaAudio:
		return ".ogg"
	}
	return ".bin"
}
