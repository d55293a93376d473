package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const defaultResolveTimeout = 60 * time.Second

// MetadataError represents a failed metadata lookup: tool failures and
// unparseable responses both land here.
type MetadataError struct {
	URL    string // URL that was being resolved
	Reason string // Human-readable explanation
	Err    error  // Underlying error, if any
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata lookup failed for %s: %s", e.URL, e.Reason)
}

func (e *MetadataError) Unwrap() error {
	return e.Err
}

// Metadata is what the UI needs to show a candidate download before it
// is enqueued.
type Metadata struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	SourceURL    string `json:"source_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	Duration     string `json:"duration"`
	ChannelName  string `json:"channel_name"`
	Platform     string `json:"platform"`
}

// Resolver resolves titles, thumbnails and durations by probing the
// fetch tool in JSON mode, so every site the tool supports works
// without a per-platform API key.
type Resolver struct {
	binPath string
	timeout time.Duration
}

func NewResolver(binPath string) *Resolver {
	if binPath == "" {
		binPath = "yt-dlp"
	}

	return &Resolver{binPath: binPath, timeout: defaultResolveTimeout}
}

// probeInfo is the subset of the tool's JSON dump the resolver reads.
type probeInfo struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Thumbnail string  `json:"thumbnail"`
	Duration  float64 `json:"duration"`
	Uploader  string  `json:"uploader"`
	Channel   string  `json:"channel"`
	URL       string  `json:"url"`
	Entries   []probeInfo
}

// Resolve looks up metadata for a single media URL.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (*Metadata, error) {
	out, err := r.probe(ctx, rawURL, "--no-playlist")
	if err != nil {
		return nil, err
	}

	var info probeInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, &MetadataError{URL: rawURL, Reason: "unparseable tool response", Err: err}
	}

	return r.toMetadata(rawURL, &info), nil
}

// ResolvePlaylist looks up metadata for a slice of playlist entries.
// Pages are 1-based; pageSize entries per page.
func (r *Resolver) ResolvePlaylist(ctx context.Context, rawURL string, page, pageSize int) ([]*Metadata, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 {
		pageSize = 50
	}

	first := (page-1)*pageSize + 1
	last := page * pageSize

	out, err := r.probe(ctx, rawURL, "--flat-playlist", "--playlist-items", fmt.Sprintf("%d:%d", first, last))
	if err != nil {
		return nil, err
	}

	var info probeInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, &MetadataError{URL: rawURL, Reason: "unparseable tool response", Err: err}
	}

	entries := make([]*Metadata, 0, len(info.Entries))
	for i := range info.Entries {
		entries = append(entries, r.toMetadata("", &info.Entries[i]))
	}

	return entries, nil
}

func (r *Resolver) probe(ctx context.Context, rawURL string, extraArgs ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	args := append([]string{"-J", "--skip-download"}, extraArgs...)
	args = append(args, rawURL)

	out, err := exec.CommandContext(ctx, r.binPath, args...).Output()
	if err != nil {
		reason := "tool invocation failed"

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			reason = lastLine(string(exitErr.Stderr))
		}

		return nil, &MetadataError{URL: rawURL, Reason: reason, Err: err}
	}

	return out, nil
}

func (r *Resolver) toMetadata(rawURL string, info *probeInfo) *Metadata {
	sourceURL := rawURL
	if sourceURL == "" {
		sourceURL = info.URL
	}

	channel := info.Channel
	if channel == "" {
		channel = info.Uploader
	}

	return &Metadata{
		ID:           info.ID,
		Title:        info.Title,
		SourceURL:    sourceURL,
		ThumbnailURL: info.Thumbnail,
		Duration:     formatDuration(int(info.Duration)),
		ChannelName:  channel,
		Platform:     string(Classify(sourceURL)),
	}
}

// formatDuration renders seconds as an ISO 8601 duration (PT2M42S).
func formatDuration(seconds int) string {
	if seconds <= 0 {
		return ""
	}

	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	out := "PT"
	if hours > 0 {
		out += fmt.Sprintf("%dH", hours)
	}

	if minutes > 0 {
		out += fmt.Sprintf("%dM", minutes)
	}

	if secs > 0 || out == "PT" {
		out += fmt.Sprintf("%dS", secs)
	}

	return out
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")

	return strings.TrimSpace(lines[len(lines)-1])
}
