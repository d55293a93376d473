package thumbs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mediafetch/mediafetch/internal/storage"
)

type fakeExtractor struct {
	embeddedCalls int
	frameCalls    int
	err           error
}

func (f *fakeExtractor) ExtractEmbedded(_ context.Context, _, dstPath string) error {
	f.embeddedCalls++
	if f.err != nil {
		return f.err
	}

	return os.WriteFile(dstPath, []byte("jpeg"), 0o644)
}

func (f *fakeExtractor) ExtractFrame(_ context.Context, _ string, _ float64, dstPath string) error {
	f.frameCalls++
	if f.err != nil {
		return f.err
	}

	return os.WriteFile(dstPath, []byte("jpeg"), 0o644)
}

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		id       string
		filePath string
		want     string
	}{
		{name: "id wins", id: "abc123", filePath: "/media/clip.mp4", want: "abc123"},
		{name: "falls back to filename stem", id: "", filePath: "/media/clip.mp4", want: "clip"},
		{name: "stem keeps inner dots", id: "", filePath: "/media/my.clip.mp4", want: "my.clip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Key(tt.id, tt.filePath); got != tt.want {
				t.Errorf("Key(%q, %q) = %q, want %q", tt.id, tt.filePath, got, tt.want)
			}
		})
	}
}

func TestPut_FirstWriteWins(t *testing.T) {
	cache, err := NewCache(t.TempDir(), &fakeExtractor{})
	if err != nil {
		t.Fatal(err)
	}

	srcDir := t.TempDir()
	first := filepath.Join(srcDir, "first.jpg")
	second := filepath.Join(srcDir, "second.jpg")

	if err := os.WriteFile(first, []byte("first"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(second, []byte("second"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := cache.Put("abc123", first); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// a second Put for the same key keeps the original entry
	if err := cache.Put("abc123", second); err != nil {
		t.Fatalf("Put() second call error = %v", err)
	}

	path, ok := cache.Get("abc123")
	if !ok {
		t.Fatal("Get() after Put missed")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	if string(data) != "first" {
		t.Errorf("cache entry = %q, want the first write", data)
	}
}

func TestGet_Miss(t *testing.T) {
	cache, err := NewCache(t.TempDir(), &fakeExtractor{})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := cache.Get("nope"); ok {
		t.Error("Get() on empty cache hit")
	}
}

func TestEnsure_ExtractsOncePerKey(t *testing.T) {
	extractor := &fakeExtractor{}

	cache, err := NewCache(t.TempDir(), extractor)
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	firstPath, err := cache.Ensure(ctx, "abc123", "/media/clip.mp4", storage.MediaVideo)
	if err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	secondPath, err := cache.Ensure(ctx, "abc123", "/media/clip.mp4", storage.MediaVideo)
	if err != nil {
		t.Fatalf("Ensure() second call error = %v", err)
	}

	if firstPath != secondPath {
		t.Errorf("Ensure() paths differ: %q vs %q", firstPath, secondPath)
	}

	if extractor.frameCalls != 1 {
		t.Errorf("frame extraction ran %d times, want 1", extractor.frameCalls)
	}
}

func TestEnsure_AudioUsesEmbeddedArt(t *testing.T) {
	extractor := &fakeExtractor{}

	cache, err := NewCache(t.TempDir(), extractor)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Ensure(context.Background(), "abc123", "/media/track.mp3", storage.MediaAudio); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}

	if extractor.embeddedCalls != 1 || extractor.frameCalls != 0 {
		t.Errorf("embedded=%d frame=%d, want embedded extraction only", extractor.embeddedCalls, extractor.frameCalls)
	}
}

func TestEnsure_ExtractionFailure(t *testing.T) {
	extractor := &fakeExtractor{err: errors.New("no video stream")}

	cache, err := NewCache(t.TempDir(), extractor)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Ensure(context.Background(), "abc123", "/media/track.mp3", storage.MediaAudio); err == nil {
		t.Fatal("Ensure() succeeded, want extraction error")
	}

	if _, ok := cache.Get("abc123"); ok {
		t.Error("failed extraction left a cache entry behind")
	}
}

func TestInvalidate(t *testing.T) {
	cache, err := NewCache(t.TempDir(), &fakeExtractor{})
	if err != nil {
		t.Fatal(err)
	}

	if _, err := cache.Ensure(context.Background(), "abc123", "/media/clip.mp4", storage.MediaVideo); err != nil {
		t.Fatal(err)
	}

	if err := cache.Invalidate("abc123"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	if _, ok := cache.Get("abc123"); ok {
		t.Error("entry survived invalidation")
	}

	// invalidating an absent key is a no-op
	if err := cache.Invalidate("abc123"); err != nil {
		t.Errorf("Invalidate() on missing key = %v, want nil", err)
	}
}
