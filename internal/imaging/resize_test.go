package imaging

import (
	"bytes"
	"image"
	"image/png"
	"testing"
)

func encodePNG(t *testing.T, width, height int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, width, height))); err != nil {
		t.Fatalf("failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

func decodeSize(t *testing.T, data []byte) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	return cfg.Width, cfg.Height
}

func TestDownscaleIfNeeded(t *testing.T) {
	data := encodePNG(t, 400, 200)

	out, resized, err := DownscaleIfNeeded(data, 100)
	if err != nil {
		t.Fatalf("failed to downscale: %v", err)
	}
	if !resized {
		t.Fatal("expected resize to happen")
	}

	width, height := decodeSize(t, out)
	if width != 100 || height != 50 {
		t.Errorf("expected 100x50, got %dx%d", width, height)
	}
}

func TestDownscaleIfNeeded_Portrait(t *testing.T) {
	data := encodePNG(t, 200, 400)

	out, resized, err := DownscaleIfNeeded(data, 100)
	if err != nil {
		t.Fatalf("failed to downscale: %v", err)
	}
	if !resized {
		t.Fatal("expected resize to happen")
	}

	width, height := decodeSize(t, out)
	if width != 50 || height != 100 {
		t.Errorf("expected 50x100, got %dx%d", width, height)
	}
}

func TestDownscaleIfNeeded_SmallEnough(t *testing.T) {
	data := encodePNG(t, 50, 50)

	out, resized, err := DownscaleIfNeeded(data, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resized {
		t.Error("expected image passed through unchanged")
	}
	if !bytes.Equal(out, data) {
		t.Error("expected identical bytes for small image")
	}
}

func TestDownscaleIfNeeded_DisabledLimit(t *testing.T) {
	data := encodePNG(t, 400, 400)

	out, resized, err := DownscaleIfNeeded(data, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resized {
		t.Error("expected no resize with limit disabled")
	}
	if !bytes.Equal(out, data) {
		t.Error("expected identical bytes with limit disabled")
	}
}

func TestDownscaleIfNeeded_UndecodableInput(t *testing.T) {
	data := []byte("not an image at all")

	out, resized, err := DownscaleIfNeeded(data, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resized {
		t.Error("expected undecodable input passed through")
	}
	if !bytes.Equal(out, data) {
		t.Error("expected identical bytes for undecodable input")
	}
}

func TestDownscaleIfNeeded_EmptyInput(t *testing.T) {
	if _, _, err := DownscaleIfNeeded(nil, 100); err == nil {
		t.Error("expected error for empty input")
	}
}
