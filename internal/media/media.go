// Package media persists uploaded audio, images and video on disk with a
// per-kind time-to-live. Audio lives a day so interactions can be replayed
// for debugging; photos and video expire after an hour.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Kind is the media category, which determines the TTL.
type Kind string

const (
	KindAudio Kind = "audio"
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// TTL policy per kind.
const (
	audioTTL = 24 * time.Hour
	imageTTL = time.Hour
	videoTTL = time.Hour
)

func ttlFor(kind Kind) time.Duration {
	switch kind {
	case KindAudio:
		return audioTTL
	case KindVideo:
		return videoTTL
	default:
		return imageTTL
	}
}

var extensions = map[string]string{
	"audio/aac":  ".aac",
	"audio/mpeg": ".mp3",
	"audio/wav":  ".wav",
	"audio/ogg":  ".ogg",
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"video/mp4":  ".mp4",
	"video/webm": ".webm",
}

// Store writes media files under a base directory, one subdirectory per
// kind. File names carry the creation timestamp so cleanup needs no index.
type Store struct {
	baseDir string
	logger  *zap.Logger
}

// NewStore creates the base directory tree.
func NewStore(baseDir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, kind := range []Kind{KindAudio, KindImage, KindVideo} {
		if err := os.MkdirAll(filepath.Join(baseDir, string(kind)), 0o755); err != nil {
			return nil, fmt.Errorf("media: failed to create directory: %w", err)
		}
	}
	return &Store{baseDir: baseDir, logger: logger}, nil
}

// Save writes one media payload and returns its path.
func (s *Store) Save(kind Kind, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("media: empty payload")
	}
	ext := extensions[strings.ToLower(mimeType)]
	if ext == "" {
		ext = ".bin"
	}
	name := fmt.Sprintf("%d_%s%s", time.Now().Unix(), uuid.NewString(), ext)
	path := filepath.Join(s.baseDir, string(kind), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("media: failed to write file: %w", err)
	}
	return path, nil
}

// Delete removes one stored file. Missing files are not an error.
func (s *Store) Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("media: failed to delete file: %w", err)
	}
	return nil
}

// Cleanup removes files older than their kind's TTL and returns how many
// were deleted.
func (s *Store) Cleanup(now time.Time) (int, error) {
	removed := 0
	for _, kind := range []Kind{KindAudio, KindImage, KindVideo} {
		dir := filepath.Join(s.baseDir, string(kind))
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("media: failed to read directory: %w", err)
		}
		cutoff := now.Add(-ttlFor(kind))
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil {
				s.logger.Warn("failed to remove expired media file",
					zap.String("file", entry.Name()), zap.Error(err))
				continue
			}
			removed++
		}
	}
	return removed, nil
}

// RunCleanup loops Cleanup on an interval until the done channel closes.
func (s *Store) RunCleanup(interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			n, err := s.Cleanup(time.Now())
			if err != nil {
				s.logger.Warn("media cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("removed expired media files", zap.Int("count", n))
			}
		}
	}
}
