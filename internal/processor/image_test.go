package processor

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestImageProcessorSupportedTypes(t *testing.T) {
	p := NewImageProcessor(NewLocalSource(t.TempDir()), nil, "")

	assert.True(t, p.CanProcess("png"))
	assert.True(t, p.CanProcess("JPEG"))
	assert.False(t, p.CanProcess("txt"))
	assert.Len(t, p.SupportedTypes(), 7)
}

func TestImageProcessorValidPNG(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("img1", "photo.png", "png")
	writeLocalFile(t, dir, meta, buildPNG(t, 32, 16))

	p := NewImageProcessor(NewLocalSource(dir), nil, "")
	result, err := p.Process(context.Background(), meta)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "image", result.ContentType)
	assert.Equal(t, "png", result.Metadata["format"])
	assert.Equal(t, "32", result.Metadata["width"])
	assert.Equal(t, "16", result.Metadata["height"])
	assert.Equal(t, "false", result.Metadata["has_exif"])
	assert.Equal(t, "none", result.Metadata["description_source"])
	assert.Contains(t, result.ProcessedText, "photo.png")
	assert.Contains(t, result.ProcessedText, "32x16 pixels")
}

func TestImageProcessorRejectsNonImage(t *testing.T) {
	dir := t.TempDir()
	meta := textMeta("img2", "fake.png", "png")
	writeLocalFile(t, dir, meta, []byte("definitely not an image"))

	p := NewImageProcessor(NewLocalSource(dir), nil, "")
	_, err := p.Process(context.Background(), meta)
	assert.Error(t, err)
}

func TestWriteScratchCleansUp(t *testing.T) {
	meta := textMeta("s1", "scratch.png", "png")

	path, cleanup, err := writeScratch(t.TempDir(), meta, []byte("content"))
	require.NoError(t, err)
	require.FileExists(t, path)
	assert.Contains(t, path, ".png")

	cleanup()
	assert.NoFileExists(t, path)
}
