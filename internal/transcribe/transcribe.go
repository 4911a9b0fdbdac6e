// Package transcribe turns a video into text: ffmpeg extracts a small mono
// mp3, the transcription endpoint reads it, and the result is cached in the
// mp3's ID3 tag so later runs skip the API call.
package transcribe

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	id3v2 "github.com/bogem/id3v2/v2"
	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/media"
	"github.com/lvcoi/ytup/internal/sanitize"
)

const (
	lyricsFrameName   = "Unsynchronised lyrics/text transcription"
	transcriptDescKey = "ytup-transcript"
)

// AudioTranscriber sends an audio file to a speech-to-text service.
type AudioTranscriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// AudioExtractor writes the audio track of a video to audioPath.
type AudioExtractor func(ctx context.Context, videoPath, audioPath string) error

type Service struct {
	cacheDir string
	client   AudioTranscriber
	extract  AudioExtractor
	log      zerolog.Logger
}

func New(cacheDir string, client AudioTranscriber, log zerolog.Logger) *Service {
	return &Service{cacheDir: cacheDir, client: client, extract: media.ExtractAudio, log: log}
}

// WithExtractor replaces the ffmpeg audio extraction step.
func (s *Service) WithExtractor(extract AudioExtractor) *Service {
	s.extract = extract
	return s
}

// Transcribe returns the transcript of videoPath, reusing a cached one when
// the same file (by path, size and modification time) was transcribed before.
func (s *Service) Transcribe(ctx context.Context, videoPath string) (string, error) {
	audioPath, err := s.audioPath(videoPath)
	if err != nil {
		return "", err
	}

	if text, ok := readCached(audioPath); ok {
		s.log.Debug().Str("audio", audioPath).Msg("transcript cache hit")
		return text, nil
	}

	if _, err := os.Stat(audioPath); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(s.cacheDir, 0o755); err != nil {
			return "", fmt.Errorf("creating cache directory: %w", err)
		}
		if err := s.extract(ctx, videoPath, audioPath); err != nil {
			os.Remove(audioPath)
			return "", err
		}
	}

	text, err := s.client.Transcribe(ctx, audioPath)
	if err != nil {
		return "", err
	}

	if err := writeCached(audioPath, filepath.Base(videoPath), text); err != nil {
		s.log.Warn().Err(err).Str("audio", audioPath).Msg("could not cache transcript")
	}
	return text, nil
}

func (s *Service) audioPath(videoPath string) (string, error) {
	info, err := os.Stat(videoPath)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", videoPath, err)
	}
	abs, err := filepath.Abs(videoPath)
	if err != nil {
		abs = videoPath
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())))
	stem, _ := sanitize.SplitExt(sanitize.Name(filepath.Base(videoPath)))
	return filepath.Join(s.cacheDir, stem+"-"+hex.EncodeToString(sum[:6])+".mp3"), nil
}

func readCached(audioPath string) (string, bool) {
	tag, err := id3v2.Open(audioPath, id3v2.Options{Parse: true, ParseFrames: []string{lyricsFrameName}})
	if err != nil {
		return "", false
	}
	defer tag.Close()

	for _, f := range tag.GetFrames(tag.CommonID(lyricsFrameName)) {
		uslt, ok := f.(id3v2.UnsynchronisedLyricsFrame)
		if ok && uslt.ContentDescriptor == transcriptDescKey {
			return strings.TrimSpace(uslt.Lyrics), true
		}
	}
	return "", false
}

func writeCached(audioPath, title, text string) error {
	tag, err := id3v2.Open(audioPath, id3v2.Options{Parse: true})
	if err != nil {
		return err
	}
	defer tag.Close()

	tag.SetDefaultEncoding(id3v2.EncodingUTF8)
	tag.SetTitle(title)
	tag.DeleteFrames(tag.CommonID(lyricsFrameName))
	tag.AddUnsynchronisedLyricsFrame(id3v2.UnsynchronisedLyricsFrame{
		Encoding:          id3v2.EncodingUTF8,
		Language:          "eng",
		ContentDescriptor: transcriptDescKey,
		Lyrics:            text,
	})
	return tag.Save()
}
