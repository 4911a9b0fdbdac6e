package downloader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kkdai/youtube/v2"

	"github.com/lvcoi/ytup/internal/apperr"
)

// selectFormat picks the best progressive stream (video with audio). MP4 is
// preferred over other containers; within a container the tallest stream
// wins, then the highest bitrate.
func selectFormat(video *youtube.Video) (*youtube.Format, error) {
	var best *youtube.Format
	for i := range video.Formats {
		format := &video.Formats[i]
		if format.AudioChannels == 0 || format.Width == 0 || format.Height == 0 {
			continue
		}
		if best == nil || betterFormat(format, best) {
			best = format
		}
	}
	if best == nil {
		return nil, apperr.Wrap(apperr.CategoryInvalidInput, errors.New("no progressive (audio+video) formats available"))
	}
	return best, nil
}

func betterFormat(candidate, current *youtube.Format) bool {
	candMP4 := mimeToExt(candidate.MimeType) == "mp4"
	curMP4 := mimeToExt(current.MimeType) == "mp4"
	if candMP4 != curMP4 {
		return candMP4
	}
	if candidate.Height != current.Height {
		return candidate.Height > current.Height
	}
	return bitrateForFormat(candidate) > bitrateForFormat(current)
}

func bitrateForFormat(f *youtube.Format) int {
	if f.Bitrate > 0 {
		return f.Bitrate
	}
	if f.AverageBitrate > 0 {
		return f.AverageBitrate
	}
	return 0
}

func mimeToExt(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(strings.TrimSpace(mime), "/")
	if len(parts) == 2 {
		switch parts[1] {
		case "3gpp":
			return "3gp"
		default:
			return parts[1]
		}
	}
	return "bin"
}

// nextAvailablePath returns path, or "name (n).ext" for the first n that is
// not taken.
func nextAvailablePath(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path, nil
	} else if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	for i := 1; i < 10000; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s (%d)%s", name, i, ext))
		if _, err := os.Stat(candidate); err != nil {
			if os.IsNotExist(err) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("unable to find available filename for %s", path)
}
