package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Transcoder normalizes audio before upload: 44.1kHz mono with a fixed
// attenuation, trying each target format in order and keeping the first
// non-empty output. It shells out to ffmpeg; when the binary is missing the
// pipeline simply continues with the original file.
type Transcoder struct {
	log     *zap.SugaredLogger
	binary  string
	timeout time.Duration
}

// transcodeFormats is the preferred order of portal-acceptable targets.
var transcodeFormats = []string{"mp3", "wav"}

func NewTranscoder(log *zap.SugaredLogger) *Transcoder {
	return &Transcoder{log: log, binary: "ffmpeg", timeout: 2 * time.Minute}
}

// Available reports whether the transcoder binary can be found.
func (t *Transcoder) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

// Normalize produces a portal-friendly copy of the input next to it, trying
// each format in order. Returns the new path, or ("", error) when every
// format failed; callers treat that as non-fatal and keep the original.
func (t *Transcoder) Normalize(ctx context.Context, inputPath string) (string, error) {
	var lastErr error
	for _, format := range transcodeFormats {
		out, err := t.ToFormat(ctx, inputPath, format)
		if err == nil {
			return out, nil
		}
		lastErr = err
		t.log.Debugw("transcode attempt failed", "format", format, "error", err)
	}
	return "", fmt.Errorf("all transcode targets failed: %w", lastErr)
}

// ToFormat converts the input to one specific format.
func (t *Transcoder) ToFormat(ctx context.Context, inputPath, format string) (string, error) {
	outputPath := transcodeOutputPath(inputPath, format)

	args := []string{
		"-y",
		"-i", inputPath,
		"-ar", "44100",
		"-ac", "1",
		"-filter:a", "volume=-2dB",
	}
	args = append(args, codecArgs(format)...)
	args = append(args, outputPath)

	runCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, t.binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg failed: %s", lastLine(string(output)))
	}

	info, err := os.Stat(outputPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(outputPath)
		return "", fmt.Errorf("ffmpeg produced empty output for %s", format)
	}

	return outputPath, nil
}

func codecArgs(format string) []string {
	switch format {
	case "mp3":
		return []string{"-codec:a", "libmp3lame", "-b:a", "192k"}
	case "wav":
		return []string{"-codec:a", "pcm_s16le"}
	default:
		return []string{"-codec:a", "copy"}
	}
}

func transcodeOutputPath(inputPath, format string) string {
	dir := filepath.Dir(inputPath)
	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	return filepath.Join(dir, fmt.Sprintf("%s.normalized.%s", base, format))
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) == 0 {
		return s
	}
	return strings.TrimSpace(lines[len(lines)-1])
}
