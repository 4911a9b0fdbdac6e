// Package media wraps the ffmpeg and ffprobe invocations the pipeline needs.
package media

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Info is what the metadata generator needs to know about a video.
type Info struct {
	Duration time.Duration
	Width    int
	Height   int
}

// Resolution renders WxH, or "" when the size is unknown.
func (i Info) Resolution() string {
	if i.Width <= 0 || i.Height <= 0 {
		return ""
	}
	return fmt.Sprintf("%dx%d", i.Width, i.Height)
}

// Prober inspects a video file.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FFProbe runs ffprobe through ffmpeg-go.
type FFProbe struct {
	Timeout time.Duration
}

func (p FFProbe) Probe(ctx context.Context, path string) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}

	out, err := ffmpeg.ProbeWithTimeout(path, timeout, ffmpeg.KwArgs{"v": "quiet"})
	if err != nil {
		return Info{}, fmt.Errorf("ffprobe %q: %w", path, err)
	}
	return ParseProbe([]byte(out))
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType   string         `json:"codec_type"`
		Width       int            `json:"width"`
		Height      int            `json:"height"`
		Duration    string         `json:"duration"`
		Disposition map[string]int `json:"disposition"`
	} `json:"streams"`
}

// ParseProbe converts ffprobe JSON into an Info. The container duration wins;
// the first real video stream supplies the size and, if needed, the duration.
func ParseProbe(data []byte) (Info, error) {
	var raw probeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Info{}, fmt.Errorf("parse ffprobe JSON: %w", err)
	}

	info := Info{Duration: parseSeconds(raw.Format.Duration)}
	for _, s := range raw.Streams {
		if s.CodecType != "video" || s.Disposition["attached_pic"] == 1 {
			continue
		}
		info.Width, info.Height = s.Width, s.Height
		if info.Duration == 0 {
			info.Duration = parseSeconds(s.Duration)
		}
		break
	}
	if info.Duration == 0 && info.Width == 0 {
		return Info{}, fmt.Errorf("ffprobe reported neither duration nor video stream")
	}
	return info, nil
}

func parseSeconds(s string) time.Duration {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
