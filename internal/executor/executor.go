// Package executor wraps one invocation of the external media-fetch
// tool (yt-dlp). It translates a download record into a command line,
// streams parsed progress events back to the caller and classifies the
// terminal outcome: success with an output file, cooperative
// cancellation, or failure with the tool's own message.
package executor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mediafetch/mediafetch/internal/logctx"
	"github.com/mediafetch/mediafetch/internal/storage"
)

const (
	dirPerm = 0755

	defaultRetries         = 10
	defaultFragmentRetries = 10
	defaultKillGrace       = 10 * time.Second
	defaultUserAgent       = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// ProgressFunc receives one parsed progress update per tool output line.
type ProgressFunc func(percent float64, etaSeconds int64, rawLine string)

// Executor runs the external fetch tool. One Fetch call owns one child
// process; the process never outlives the caller's context by more than
// the kill grace period.
type Executor struct {
	binPath   string
	baseDir   string
	userAgent string

	retries         int
	fragmentRetries int
	killGrace       time.Duration
}

func New(binPath, baseDir string) *Executor {
	if binPath == "" {
		binPath = "yt-dlp"
	}

	return &Executor{
		binPath:         binPath,
		baseDir:         baseDir,
		userAgent:       defaultUserAgent,
		retries:         defaultRetries,
		fragmentRetries: defaultFragmentRetries,
		killGrace:       defaultKillGrace,
	}
}

// Fetch runs one invocation for the record and blocks until it settles.
// Returns the located output file on success. A context cancellation
// sweeps partial artifacts and returns ErrCancelled; a tool failure
// sweeps them too and returns an *ExecutionError.
func (e *Executor) Fetch(ctx context.Context, rec *storage.DownloadRecord, onProgress ProgressFunc) (string, error) {
	logger := logctx.LoggerFromContext(ctx).With("download_id", rec.ID)

	dir := e.TargetDir(rec)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("failed to create target directory: %w", err)
	}

	cmd := exec.CommandContext(ctx, e.binPath, e.buildArgs(rec, dir)...)

	// SIGINT first so the tool can flush fragments; after killGrace the
	// process group is torn down regardless, which bounds how long a hung
	// tool can hold the queue.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(os.Interrupt)
	}
	cmd.WaitDelay = e.killGrace

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", &ExecutionError{URL: rec.SourceURL, ExitCode: -1, Err: err}
	}

	logger.Debug("fetch tool started", "bin", e.binPath, "dir", dir)

	var lastErrLine string

	errDone := make(chan struct{})

	go func() {
		defer close(errDone)

		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				lastErrLine = line
			}
		}
	}()

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := scanner.Text()

		if ev, ok := ParseProgressLine(line); ok && onProgress != nil {
			onProgress(ev.Percent, ev.ETASeconds, ev.RawLine)
		}
	}

	<-errDone

	waitErr := cmd.Wait()

	if ctx.Err() != nil {
		if err := e.SweepArtifacts(rec); err != nil {
			logger.Warn("failed to sweep artifacts after cancel", "err", err)
		}

		return "", ErrCancelled
	}

	if waitErr != nil {
		if err := e.SweepArtifacts(rec); err != nil {
			logger.Warn("failed to sweep artifacts after failure", "err", err)
		}

		exitCode := -1

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		}

		return "", &ExecutionError{
			URL:      rec.SourceURL,
			ExitCode: exitCode,
			Output:   lastErrLine,
			Err:      waitErr,
		}
	}

	e.stripSidecars(rec)

	outputFile, err := e.findOutputFile(rec)
	if err != nil {
		return "", &ExecutionError{URL: rec.SourceURL, ExitCode: 0, Output: "output file missing", Err: err}
	}

	logger.Info("fetch completed", "output", outputFile)

	return outputFile, nil
}

// buildArgs translates a record into the tool's command line. The
// output template embeds the record id so a retry can never collide
// with stale files from a cancelled run of the same title.
func (e *Executor) buildArgs(rec *storage.DownloadRecord, dir string) []string {
	args := []string{
		"--newline",
		"--no-playlist",
		"--user-agent", e.userAgent,
		"--retries", strconv.Itoa(e.retries),
		"--fragment-retries", strconv.Itoa(e.fragmentRetries),
		"--no-mtime",
		"--write-info-json",
		"--add-metadata",
	}

	outputTemplate := filepath.Join(dir, "%(title)s-"+rec.ID+".%(ext)s")

	if rec.MediaKind == storage.MediaAudio {
		selector := rec.FormatSelector
		if selector == "" {
			selector = "bestaudio/best"
		}

		args = append(args,
			"-f", selector,
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "192",
			"--embed-thumbnail",
			"--write-thumbnail",
			"--convert-thumbnails", "jpg",
		)
	} else {
		selector := "bestvideo[height<=720]+bestaudio/best[height<=720]"
		if rec.FormatSelector != "" {
			selector = rec.FormatSelector + "+bestaudio/best"
		}

		args = append(args, "-f", selector)
	}

	args = append(args, "-o", outputTemplate, rec.SourceURL)

	return args
}
