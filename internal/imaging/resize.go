// Package imaging keeps image handling to the minimum the registry needs:
// downscaling oversized uploads before they travel to the recognizer.
package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // decode support for PNG uploads

	xdraw "golang.org/x/image/draw"
)

const jpegQuality = 90

// DownscaleIfNeeded re-encodes the image so its longest side does not
// exceed maxDim. Returns the (possibly unchanged) bytes and whether a
// resize happened. Formats the process cannot decode pass through
// unchanged; the recognizer is the authority on what it accepts.
func DownscaleIfNeeded(data []byte, maxDim int) ([]byte, bool, error) {
	if len(data) == 0 {
		return nil, false, errors.New("empty image")
	}
	if maxDim <= 0 {
		return data, false, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return data, false, nil
	}
	if cfg.Width <= maxDim && cfg.Height <= maxDim {
		return data, false, nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, false, nil
	}

	width, height := cfg.Width, cfg.Height
	if width >= height {
		height = height * maxDim / width
		width = maxDim
	} else {
		width = width * maxDim / height
		height = maxDim
	}
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, false, fmt.Errorf("encoding resized image: %w", err)
	}
	return buf.Bytes(), true, nil
}
