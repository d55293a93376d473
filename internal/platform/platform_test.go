package platform

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		url  string
		want Platform
	}{
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", PlatformYouTube},
		{"https://youtu.be/dQw4w9WgXcQ", PlatformYouTube},
		{"https://www.YouTube.com/shorts/dQw4w9WgXcQ", PlatformYouTube},
		{"https://www.instagram.com/reel/Cabc123XYZ_/", PlatformInstagram},
		{"https://www.facebook.com/watch/?v=123456789", PlatformFacebook},
		{"https://fb.watch/abc123/", PlatformFacebook},
		{"https://vimeo.com/12345", PlatformOther},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			if got := Classify(tt.url); got != tt.want {
				t.Errorf("Classify(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestIsPlaylistURL(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://www.youtube.com/playlist?list=PLabc123", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLabc123", true},
		{"https://www.youtube.com/watch?v=dQw4w9WgXcQ", false},
		{"https://youtu.be/dQw4w9WgXcQ", false},
	}

	for _, tt := range tests {
		if got := IsPlaylistURL(tt.url); got != tt.want {
			t.Errorf("IsPlaylistURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestExtractVideoID(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{name: "watch URL", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ", wantOK: true},
		{name: "short link", url: "https://youtu.be/dQw4w9WgXcQ?t=10", want: "dQw4w9WgXcQ", wantOK: true},
		{name: "shorts URL", url: "https://www.youtube.com/shorts/dQw4w9WgXcQ", want: "dQw4w9WgXcQ", wantOK: true},
		{name: "watch with extra params", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PLx", want: "dQw4w9WgXcQ", wantOK: true},
		{name: "no id", url: "https://www.youtube.com/feed/subscriptions", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractVideoID(tt.url)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractVideoID(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestExtractPlaylistID(t *testing.T) {
	got, ok := ExtractPlaylistID("https://www.youtube.com/playlist?list=PLabc-123_XY")
	if !ok || got != "PLabc-123_XY" {
		t.Errorf("ExtractPlaylistID() = (%q, %v), want (PLabc-123_XY, true)", got, ok)
	}

	if _, ok := ExtractPlaylistID("https://www.youtube.com/watch?v=dQw4w9WgXcQ"); ok {
		t.Error("ExtractPlaylistID() found an id in a plain watch URL")
	}
}

func TestExtractMediaID(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{name: "youtube", url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ", want: "dQw4w9WgXcQ", wantOK: true},
		{name: "instagram reel", url: "https://www.instagram.com/reel/Cabc123XYZ_/", want: "Cabc123XYZ_", wantOK: true},
		{name: "instagram post", url: "https://www.instagram.com/p/Cabc123XYZ_/", want: "Cabc123XYZ_", wantOK: true},
		{name: "facebook watch", url: "https://www.facebook.com/watch/?v=123456789", want: "123456789", wantOK: true},
		{name: "facebook page video", url: "https://www.facebook.com/somepage/videos/987654321", want: "987654321", wantOK: true},
		{name: "unsupported platform", url: "https://vimeo.com/12345", wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractMediaID(tt.url)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ExtractMediaID(%q) = (%q, %v), want (%q, %v)", tt.url, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
