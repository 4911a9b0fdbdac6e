package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	cropDetectFilter = "cropdetect=24:16:0"
	edgeDetectFilter = "edgedetect=low=0.1:high=0.4"
)

// ErrNoCrop means cropdetect never reported a crop rectangle.
var ErrNoCrop = errors.New("no crop values detected")

// DetectCrop decodes the whole input through cropdetect and returns the last
// reported rectangle, e.g. "1280:528:0:96".
func DetectCrop(ctx context.Context, inputPath string) (string, error) {
	var stderr bytes.Buffer
	stream := ffmpeg.Input(inputPath).
		Output("-", ffmpeg.KwArgs{"vf": cropDetectFilter, "f": "null"}).
		WithErrorOutput(&stderr)
	if err := run(ctx, stream); err != nil {
		return "", fmt.Errorf("cropdetect %s: %w", filepath.Base(inputPath), err)
	}
	value := ParseCropDetect(stderr.String())
	if value == "" {
		return "", ErrNoCrop
	}
	return value, nil
}

// ParseCropDetect returns the value of the last "crop=" token in an ffmpeg log.
func ParseCropDetect(log string) string {
	value := ""
	for _, line := range strings.Split(log, "\n") {
		idx := strings.LastIndex(line, "crop=")
		if idx < 0 {
			continue
		}
		fields := strings.Fields(line[idx+len("crop="):])
		if len(fields) > 0 {
			value = fields[0]
		}
	}
	return value
}

// Crop writes outputPath with the crop=<rect> filter applied; audio is copied.
func Crop(ctx context.Context, inputPath, outputPath, rect string) error {
	return filter(ctx, inputPath, outputPath, "crop="+rect)
}

// Edges writes outputPath with the edge-detection filter applied; audio is copied.
func Edges(ctx context.Context, inputPath, outputPath string) error {
	return filter(ctx, inputPath, outputPath, edgeDetectFilter)
}

func filter(ctx context.Context, inputPath, outputPath, vf string) error {
	stream := ffmpeg.Input(inputPath).
		Output(outputPath, ffmpeg.KwArgs{"vf": vf, "c:a": "copy"}).
		OverWriteOutput().
		Silent(true)
	if err := run(ctx, stream); err != nil {
		return fmt.Errorf("ffmpeg %s on %s: %w", vf, filepath.Base(inputPath), err)
	}
	return nil
}

// ExtractAudio writes the audio track of inputPath to outputPath. The codec
// follows the output extension.
func ExtractAudio(ctx context.Context, inputPath, outputPath string) error {
	kwargs := ffmpeg.KwArgs{"vn": ""}
	switch strings.ToLower(filepath.Ext(outputPath)) {
	case ".mp3":
		kwargs["acodec"] = "libmp3lame"
		kwargs["ac"] = "1"
		kwargs["b:a"] = "64k"
	case ".m4a":
		kwargs["acodec"] = "aac"
		kwargs["b:a"] = "96k"
	default:
		kwargs["acodec"] = "copy"
	}

	stream := ffmpeg.Input(inputPath).
		Output(outputPath, kwargs).
		OverWriteOutput().
		Silent(true)
	if err := run(ctx, stream); err != nil {
		return fmt.Errorf("extracting audio from %s: %w", filepath.Base(inputPath), err)
	}
	return nil
}

// run executes the compiled ffmpeg command and kills it when ctx ends.
func run(ctx context.Context, stream *ffmpeg.Stream) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := stream.Compile()
	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

// Dependency is one external binary and whether it resolved on PATH.
type Dependency struct {
	Name string
	Path string
	Err  error
}

// CheckBinaries resolves each name on PATH.
func CheckBinaries(names ...string) []Dependency {
	deps := make([]Dependency, 0, len(names))
	for _, name := range names {
		path, err := exec.LookPath(name)
		deps = append(deps, Dependency{Name: name, Path: path, Err: err})
	}
	return deps
}
