package thumbs

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const extractTimeout = 30 * time.Second

// FFmpegExtractor extracts preview images by shelling out to ffmpeg.
type FFmpegExtractor struct {
	binPath string
}

func NewFFmpegExtractor(binPath string) *FFmpegExtractor {
	if binPath == "" {
		binPath = "ffmpeg"
	}

	return &FFmpegExtractor{binPath: binPath}
}

// ExtractEmbedded copies the embedded cover art stream out of an audio
// file. Fails when the file carries no attached picture.
func (f *FFmpegExtractor) ExtractEmbedded(ctx context.Context, mediaPath, dstPath string) error {
	return f.run(ctx,
		"-y",
		"-i", mediaPath,
		"-map", "0:v",
		"-frames:v", "1",
		"-c:v", "mjpeg",
		dstPath,
	)
}

// ExtractFrame grabs a single frame at the given offset from a video file.
func (f *FFmpegExtractor) ExtractFrame(ctx context.Context, mediaPath string, atSeconds float64, dstPath string) error {
	return f.run(ctx,
		"-y",
		"-ss", fmt.Sprintf("%.2f", atSeconds),
		"-i", mediaPath,
		"-frames:v", "1",
		"-q:v", "4",
		dstPath,
	)
}

func (f *FFmpegExtractor) run(ctx context.Context, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binPath, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var lastLine string

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lastLine = line
		}
	}

	if err := cmd.Wait(); err != nil {
		if lastLine != "" {
			return fmt.Errorf("ffmpeg failed: %s", lastLine)
		}

		return fmt.Errorf("ffmpeg failed: %w", err)
	}

	return nil
}
