package imageio

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(x), uint8(y), 128, 255})
		}
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
}

func TestIsSupportedImage(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{"photo.jpg", true},
		{"photo.JPEG", true},
		{"photo.png", true},
		{"photo.gif", true},
		{"photo.webp", true},
		{"photo.bmp", true},
		{"photo.tif", true},
		{"photo.xmp", false},
		{"video.mp4", false},
		{"noextension", false},
		{"/path/to/photo.jpg", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := IsSupportedImage(tt.path)
			if got != tt.expected {
				t.Errorf("IsSupportedImage(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestDecode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "wide.png")
	writePNG(t, path, 400, 200)

	tests := []struct {
		name     string
		longEdge int
		wantW    int
		wantH    int
	}{
		{"downscale", 100, 100, 50},
		{"no upscale", 1024, 400, 200},
		{"disabled", 0, 400, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := Decode(path, tt.longEdge)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			b := img.Bounds()
			if b.Dx() != tt.wantW || b.Dy() != tt.wantH {
				t.Errorf("Decode size = %dx%d, want %dx%d", b.Dx(), b.Dy(), tt.wantW, tt.wantH)
			}
		})
	}
}

func TestDecode_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Decode(filepath.Join(dir, "missing.png"), 100); err == nil {
		t.Error("expected error for missing file")
	}

	corrupt := filepath.Join(dir, "corrupt.jpg")
	if err := os.WriteFile(corrupt, []byte("not an image"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(corrupt, 100); err == nil {
		t.Error("expected error for corrupt file")
	}
}

func TestToGray(t *testing.T) {
	img := image.NewRGBA(image.Rect(10, 10, 14, 12))
	for y := 10; y < 12; y++ {
		for x := 10; x < 14; x++ {
			img.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}

	gray := ToGray(img)
	if gray.Bounds().Min != (image.Point{}) {
		t.Errorf("ToGray origin = %v, want (0,0)", gray.Bounds().Min)
	}
	if gray.Bounds().Dx() != 4 || gray.Bounds().Dy() != 2 {
		t.Errorf("ToGray size = %v, want 4x2", gray.Bounds().Size())
	}
	if got := gray.GrayAt(3, 1).Y; got != 255 {
		t.Errorf("ToGray pixel = %d, want 255", got)
	}
}

func TestCaptureTime_FallsBackToMtime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "noexif.png")
	writePNG(t, path, 8, 8)

	mtime := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}

	for _, source := range []string{"auto", "exif", "mtime", "bogus"} {
		got := CaptureTime(path, source)
		if got != float64(mtime.Unix()) {
			t.Errorf("CaptureTime(%q) = %v, want %v", source, got, float64(mtime.Unix()))
		}
	}
}

func TestCaptureTime_Missing(t *testing.T) {
	if got := CaptureTime("/nonexistent/photo.jpg", "auto"); got != 0 {
		t.Errorf("CaptureTime = %v, want 0", got)
	}
}
