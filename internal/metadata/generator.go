// Package metadata derives publishable metadata for a video from its content.
package metadata

import (
	"context"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/db"
	"github.com/lvcoi/ytup/internal/media"
	"github.com/lvcoi/ytup/internal/model"
	"github.com/lvcoi/ytup/internal/sanitize"
)

const (
	maxTitleRunes = 100
	// maxDescriptionBytes is the platform's limit, timestamps included.
	maxDescriptionBytes = 5000
)

// Completer sends one system and one user message to a completion service.
type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Transcriber converts a video's speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, videoPath string) (string, error)
}

type Options struct {
	Prober      media.Prober
	Transcriber Transcriber
	Completer   Completer
	// FallbackCategoryID is used when the proposed category is not offered.
	FallbackCategoryID string
	Log                zerolog.Logger
}

type Generator struct {
	prober      media.Prober
	transcriber Transcriber
	completer   Completer
	fallbackID  string
	log         zerolog.Logger
}

func NewGenerator(opts Options) *Generator {
	fallback := opts.FallbackCategoryID
	if fallback == "" {
		fallback = "22"
	}
	return &Generator{
		prober:      opts.Prober,
		transcriber: opts.Transcriber,
		completer:   opts.Completer,
		fallbackID:  fallback,
		log:         opts.Log,
	}
}

// Generate returns metadata for the video at path. Any failure to obtain or
// validate the AI record yields the sentinel. The error is non-nil only when
// ctx ended, in which case the metadata must be discarded.
func (g *Generator) Generate(ctx context.Context, path string, categories model.CategoryMap) (model.Metadata, model.VideoFile, error) {
	video := model.VideoFile{OriginalPath: path, Path: path}
	log := g.log.With().Str("file", filepath.Base(path)).Logger()

	if g.prober != nil {
		info, err := g.prober.Probe(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return model.Metadata{}, video, ctx.Err()
			}
			log.Warn().Err(err).Msg("video analysis failed; continuing without duration")
		} else {
			video.Duration = info.Duration
			video.Resolution = info.Resolution()
		}
	}

	if g.transcriber != nil {
		text, err := g.transcriber.Transcribe(ctx, path)
		if err != nil {
			if ctx.Err() != nil {
				return model.Metadata{}, video, ctx.Err()
			}
			log.Warn().Err(err).Msg("transcription failed; continuing without transcript")
		} else {
			video.Transcript = text
		}
	}

	stem, _ := sanitize.SplitExt(filepath.Base(path))
	prompt := BuildPrompt(PromptInput{
		Filename:   stem,
		Duration:   video.Duration,
		Resolution: video.Resolution,
		Transcript: video.Transcript,
		Categories: categories.Names(),
		Suggested:  db.ClassifyCategory(stem, video.Transcript, categories),
	})

	reply, err := g.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		if ctx.Err() != nil {
			return model.Metadata{}, video, ctx.Err()
		}
		log.Warn().Err(err).Msg("metadata completion failed")
		return model.Sentinel(g.fallbackID), video, nil
	}
	log.Debug().Str("reply", reply).Msg("metadata completion")

	resp, err := ParseResponse(reply)
	if err != nil {
		log.Warn().Err(err).Msg("AI response not usable as metadata")
		return model.Sentinel(g.fallbackID), video, nil
	}

	categoryID, ok := categories.IDForName(strings.TrimSpace(resp.Category))
	if !ok {
		log.Warn().Str("category", resp.Category).Str("fallback", g.fallbackID).Msg("invalid category; using fallback")
		categoryID = g.fallbackID
	}

	title := cleanText(resp.Title, maxTitleRunes)
	if title == "" {
		log.Warn().Str("title", resp.Title).Msg("title empty after cleaning")
		return model.Sentinel(g.fallbackID), video, nil
	}

	return model.Metadata{
		Title:       title,
		Description: buildDescription(resp.Description, video.Duration),
		Tags:        AugmentTags(resp.Tags),
		CategoryID:  categoryID,
	}, video, nil
}

// cleanText removes the angle brackets the platform rejects and bounds the
// length in runes.
func cleanText(s string, max int) string {
	s = stripBrackets(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:max]))
}

func stripBrackets(s string) string {
	return strings.TrimSpace(strings.NewReplacer("<", "", ">", "").Replace(s))
}

// buildDescription cleans text and appends the timestamp block, cutting the
// text so the whole description fits maxDescriptionBytes.
func buildDescription(text string, duration time.Duration) string {
	block := timestampBlock(duration)
	return truncateBytes(stripBrackets(text), maxDescriptionBytes-len(block)) + block
}

// truncateBytes cuts s to at most max bytes without splitting a rune.
func truncateBytes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
