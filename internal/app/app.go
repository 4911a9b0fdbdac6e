// Package app wires the ytup subcommands to their components.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lvcoi/ytup/internal/apperr"
	"github.com/lvcoi/ytup/internal/config"
	"github.com/lvcoi/ytup/internal/httpx"
)

const usage = `usage: ytup [command] [flags] [args]

commands:
  run               rename, describe and publish every video in the upload folder (default)
  fetch <url...>    download videos into the upload folder, skipping known URLs
  crop [dir]        write a copy of every video with black bars cropped away
  edges [dir]       write an edge-detection copy of every video
  doctor            check that ffmpeg, ffprobe and yt-dlp are installed

Run "ytup <command> -h" for the flags of a command.
`

type command func(ctx context.Context, args []string, stdout, stderr io.Writer) error

var commands = map[string]command{
	"run":    Run,
	"fetch":  Fetch,
	"crop":   func(ctx context.Context, args []string, stdout, stderr io.Writer) error { return Transform(ctx, "crop", args, stdout, stderr) },
	"edges":  func(ctx context.Context, args []string, stdout, stderr io.Writer) error { return Transform(ctx, "edges", args, stdout, stderr) },
	"doctor": Doctor,
}

// Main dispatches args to a subcommand and returns the process exit code.
// Errors not yet shown to the user are printed to stderr.
func Main(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	name := "run"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		name, args = args[0], args[1:]
	}
	if name == "help" {
		fmt.Fprint(stdout, usage)
		return 0
	}

	cmd, ok := commands[name]
	if !ok {
		fmt.Fprint(stderr, usage)
		return apperr.ExitCode(apperr.Wrap(apperr.CategoryInvalidInput, errors.New("unknown command")))
	}

	err := cmd(ctx, args, stdout, stderr)
	httpx.CloseIdleConnections()
	switch {
	case err == nil:
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	case !apperr.IsReported(err):
		fmt.Fprintf(stderr, "error: %v\n", err)
	}
	return apperr.ExitCode(err)
}

// loadConfig parses the flags of one subcommand. Bad flags and settings are
// invalid input; flag.ErrHelp is passed through.
func loadConfig(name string, args []string, stderr io.Writer) (config.Config, []string, error) {
	cfg, rest, err := config.Load(name, args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return config.Config{}, nil, err
		}
		return config.Config{}, nil, apperr.Wrap(apperr.CategoryInvalidInput, err)
	}
	if err := cfg.Abs(); err != nil {
		return config.Config{}, nil, apperr.Wrap(apperr.CategoryFilesystem, err)
	}
	return cfg, rest, nil
}

func newLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	out := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.TimeOnly,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}
