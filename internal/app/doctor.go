package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/media"
	"github.com/lvcoi/ytup/internal/printer"
)

// RequiredBinaries are the external programs the pipeline shells out to.
var RequiredBinaries = []string{"ffmpeg", "ffprobe", "yt-dlp"}

// Doctor reports which external programs resolve on PATH and whether the
// credentials the run needs are in place.
func Doctor(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, _, err := loadConfig("doctor", args, stderr)
	if err != nil {
		return err
	}
	p := printer.New(stdout, false)

	deps := media.CheckBinaries(RequiredBinaries...)
	var missing []string
	for i, dep := range deps {
		prefix := p.Prefix(i+1, len(deps), dep.Name)
		if dep.Err != nil {
			missing = append(missing, dep.Name)
			p.ItemResult(prefix, "", errors.New("not found on PATH"))
			continue
		}
		p.ItemResult(prefix, dep.Path, nil)
	}

	if _, err := os.Stat(cfg.ClientSecretsFile); err != nil {
		p.Warn(fmt.Sprintf("client secrets %s not readable: %v", cfg.ClientSecretsFile, err))
	}
	if cfg.OpenAIAPIKey == "" {
		p.Warn("OPENAI_API_KEY is not set; every video will be skipped for missing metadata")
	}

	if len(missing) > 0 {
		err := fmt.Errorf("missing dependency: %s", strings.Join(missing, ", "))
		return apperr.MarkReported(apperr.Wrap(apperr.CategoryDependency, err))
	}
	return nil
}
