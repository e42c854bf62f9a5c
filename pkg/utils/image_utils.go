package utils

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

const (
	DefaultThumbnailSize = 300
	thumbnailQuality     = 85
)

var formatContentTypes = map[imaging.Format]string{
	imaging.JPEG: "image/jpeg",
	imaging.PNG:  "image/png",
	imaging.GIF:  "image/gif",
	imaging.TIFF: "image/tiff",
	imaging.BMP:  "image/bmp",
}

// Thumbnail is a derived image. ContentType is empty when Data is the
// unmodified original.
type Thumbnail struct {
	Data        []byte
	ContentType string
}

type ThumbnailDeriver struct {
	maxWidth  int
	maxHeight int
}

func NewThumbnailDeriver(maxWidth, maxHeight int) *ThumbnailDeriver {
	if maxWidth <= 0 {
		maxWidth = DefaultThumbnailSize
	}
	if maxHeight <= 0 {
		maxHeight = DefaultThumbnailSize
	}
	return &ThumbnailDeriver{maxWidth: maxWidth, maxHeight: maxHeight}
}

// Derive scales data to fit the bounding box without upscaling and re-encodes it
// in the source format, JPEG when the format has no encoder. On failure the
// original bytes are returned along with the error.
func (d *ThumbnailDeriver) Derive(data []byte) (Thumbnail, error) {
	fallback := Thumbnail{Data: data}

	_, name, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fallback, fmt.Errorf("detect image format: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return fallback, fmt.Errorf("decode %s image: %w", name, err)
	}

	format, err := imaging.FormatFromExtension(name)
	if err != nil {
		format = imaging.JPEG
	}

	thumb := imaging.Fit(img, d.maxWidth, d.maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, format, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return fallback, fmt.Errorf("encode thumbnail: %w", err)
	}

	return Thumbnail{Data: buf.Bytes(), ContentType: formatContentTypes[format]}, nil
}
