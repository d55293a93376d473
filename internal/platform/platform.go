// Package platform classifies media URLs and resolves their metadata
// through the external fetch tool. The queue never calls into this
// package; it only consumes the download requests built from its
// output.
package platform

import (
	"regexp"
	"strings"
)

// Platform is a free-form source tag attached to download records.
type Platform string

const (
	PlatformYouTube   Platform = "youtube"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformOther     Platform = "other"
)

var (
	youtubeVideoRe    = regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/shorts/)([A-Za-z0-9_-]{11})`)
	youtubePlaylistRe = regexp.MustCompile(`[?&]list=([A-Za-z0-9_-]+)`)
	instagramRe       = regexp.MustCompile(`instagram\.com/(?:p|reel|reels|tv)/([A-Za-z0-9_-]+)`)
	facebookRe        = regexp.MustCompile(`facebook\.com/(?:watch/?\?v=|reel/|[^/]+/videos/)(\d+)`)
)

// Classify maps a URL onto its source platform tag.
func Classify(rawURL string) Platform {
	lower := strings.ToLower(rawURL)

	switch {
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"):
		return PlatformYouTube
	case strings.Contains(lower, "instagram.com"):
		return PlatformInstagram
	case strings.Contains(lower, "facebook.com"), strings.Contains(lower, "fb.watch"):
		return PlatformFacebook
	default:
		return PlatformOther
	}
}

// IsPlaylistURL reports whether the URL points at a YouTube playlist
// rather than a single video.
func IsPlaylistURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)

	return strings.Contains(lower, "list=") || strings.Contains(lower, "youtube.com/playlist")
}

// ExtractVideoID pulls the 11-character video id out of a YouTube URL.
func ExtractVideoID(rawURL string) (string, bool) {
	if m := youtubeVideoRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}

	return "", false
}

// ExtractPlaylistID pulls the playlist id out of a YouTube URL.
func ExtractPlaylistID(rawURL string) (string, bool) {
	if m := youtubePlaylistRe.FindStringSubmatch(rawURL); m != nil {
		return m[1], true
	}

	return "", false
}

// ExtractMediaID returns a stable id for any supported URL: the
// platform's own id when one can be parsed, empty otherwise.
func ExtractMediaID(rawURL string) (string, bool) {
	switch Classify(rawURL) {
	case PlatformYouTube:
		return ExtractVideoID(rawURL)
	case PlatformInstagram:
		if m := instagramRe.FindStringSubmatch(rawURL); m != nil {
			return m[1], true
		}
	case PlatformFacebook:
		if m := facebookRe.FindStringSubmatch(rawURL); m != nil {
			return m[1], true
		}
	}

	return "", false
}
