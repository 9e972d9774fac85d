package imageuri

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestEncodeParse(t *testing.T) {
	data := pngBytes(t)
	uri := Encode("image/png", data)

	img, err := Parse(uri)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if img.MIME != "image/png" || !bytes.Equal(img.Data, data) {
		t.Errorf("Unexpected image %s with %d bytes", img.MIME, len(img.Data))
	}
}

func TestVersion(t *testing.T) {
	a := Encode("image/png", []byte{1, 2, 3})
	b := Encode("image/png", []byte{1, 2, 4})

	if Version(a) != Version(a) {
		t.Error("Expected a stable version for the same payload")
	}
	if Version(a) == Version(b) {
		t.Error("Expected different versions for different payloads")
	}
	if len(Version(a)) != 16 {
		t.Errorf("Expected 16 hex characters, got %q", Version(a))
	}
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"",
		"image/png;base64,AAAA",
		"data:image/png;base64",
		"data:image/png,AAAA",
		"data:image/png;base64,***",
	}
	for _, c := range cases {
		if _, err := Parse(c); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): expected ErrMalformed, got %v", c, err)
		}
	}
}

func TestSniff(t *testing.T) {
	mime, err := Sniff(pngBytes(t))
	if err != nil {
		t.Fatalf("Sniff failed on PNG: %v", err)
	}
	if mime != "image/png" {
		t.Errorf("Expected image/png, got %s", mime)
	}

	if _, err := Sniff([]byte("just some notes about a cat")); !errors.Is(err, ErrNotImage) {
		t.Errorf("Expected ErrNotImage for text, got %v", err)
	}
}

func TestFromBytes(t *testing.T) {
	uri, err := FromBytes(pngBytes(t))
	if err != nil {
		t.Fatalf("FromBytes failed: %v", err)
	}
	img, err := Parse(uri)
	if err != nil || img.MIME != "image/png" {
		t.Errorf("Expected image/png data URI, got %s (%v)", img.MIME, err)
	}
}

func TestExtension(t *testing.T) {
	if ext := Extension("image/jpeg"); ext != ".jpg" {
		t.Errorf("Expected .jpg, got %s", ext)
	}
	if ext := Extension("application/x-unknown-thing"); ext != ".png" {
		t.Errorf("Expected fallback .png, got %s", ext)
	}
}
