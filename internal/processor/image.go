/**
 * Image processor.
 *
 * Validates decodability, extracts intrinsic and EXIF metadata, and asks
 * the model service to describe the image. When the model is unavailable
 * the processor falls back to local OCR so image uploads still yield text.
 * Scratch files are removed on every exit path.
 */

package processor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strconv"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/otiai10/gosseract/v2"
	"github.com/rwcarlsen/goexif/exif"

	"github.com/parseforge/ingest-worker/internal/logging"
	"github.com/parseforge/ingest-worker/internal/model"
	"github.com/parseforge/ingest-worker/internal/models"
)

var imageExtensions = []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff"}

// ImageProcessor handles raster image content.
type ImageProcessor struct {
	source         ContentSource
	modelSvc       model.MultimodalService
	tessdataPrefix string
	supported      map[string]bool
	logger         *logging.Logger
}

// NewImageProcessor creates an image processor. modelSvc may be nil.
// tessdataPrefix points tesseract at its language data and enables the
// local OCR fallback; empty disables it.
func NewImageProcessor(source ContentSource, modelSvc model.MultimodalService, tessdataPrefix string) *ImageProcessor {
	supported := make(map[string]bool, len(imageExtensions))
	for _, ext := range imageExtensions {
		supported[ext] = true
	}
	return &ImageProcessor{
		source:         source,
		modelSvc:       modelSvc,
		tessdataPrefix: tessdataPrefix,
		supported:      supported,
		logger:         logging.NewLogger("ImageProcessor"),
	}
}

func (p *ImageProcessor) CanProcess(ext string) bool {
	return p.supported[strings.ToLower(ext)]
}

func (p *ImageProcessor) SupportedTypes() []string {
	out := make([]string, len(imageExtensions))
	copy(out, imageExtensions)
	return out
}

// Process validates and describes one image file.
func (p *ImageProcessor) Process(ctx context.Context, meta models.FileMetadata) (models.ProcessedContent, error) {
	start := time.Now()

	path, cleanup, err := p.source.ScratchPath(ctx, meta)
	if err != nil {
		return models.ProcessedContent{}, fmt.Errorf("failed to load %s: %w", meta.OriginalName, err)
	}
	defer cleanup()

	data, err := os.ReadFile(path)
	if err != nil {
		return models.ProcessedContent{}, fmt.Errorf("failed to read scratch file for %s: %w", meta.OriginalName, err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return models.ProcessedContent{}, fmt.Errorf("%s is not a decodable image: %w", meta.OriginalName, err)
	}

	result := newResult(meta, "image", start)
	result.Metadata["format"] = format
	result.Metadata["width"] = strconv.Itoa(cfg.Width)
	result.Metadata["height"] = strconv.Itoa(cfg.Height)
	result.Metadata["megapixels"] = fmt.Sprintf("%.1f", float64(cfg.Width)*float64(cfg.Height)/1e6)

	extractExif(data, result.Metadata)

	description, descSource := p.describe(ctx, data, meta)
	result.Metadata["description_source"] = descSource
	result.ProcessedText = formatImageReport(meta, result.Metadata, description)
	result.ProcessingTime = time.Since(start).Seconds()

	p.logger.Info("Processed image",
		"filename", meta.OriginalName,
		"format", format,
		"dimensions", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
		"descriptionSource", descSource)

	return result, nil
}

// describe obtains a textual description of the image: model service
// first, OCR fallback second, intrinsic summary last.
func (p *ImageProcessor) describe(ctx context.Context, data []byte, meta models.FileMetadata) (string, string) {
	if p.modelSvc != nil {
		encoded := base64.StdEncoding.EncodeToString(data)
		analysisContext := fmt.Sprintf("Uploaded file %s (%s)", meta.OriginalName, meta.MimeType)

		text, err := p.modelSvc.AnalyzeImage(ctx, encoded, analysisContext, meta.OriginalName)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, "model"
		}
		if err != nil {
			p.logger.Warn("Model image analysis failed",
				"filename", meta.OriginalName,
				"error", err.Error())
		}
	}

	if p.tessdataPrefix != "" {
		text, err := runOCR(data, p.tessdataPrefix)
		if err != nil {
			p.logger.Warn("OCR fallback failed",
				"filename", meta.OriginalName,
				"error", err.Error())
		} else if strings.TrimSpace(text) != "" {
			return text, "ocr"
		}
	}

	return "No textual description available for this image.", "none"
}

// runOCR extracts visible text with tesseract.
func runOCR(data []byte, tessdataPrefix string) (string, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetTessdataPrefix(tessdataPrefix); err != nil {
		return "", fmt.Errorf("failed to set tessdata prefix: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", fmt.Errorf("failed to set OCR image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR extraction failed: %w", err)
	}
	return text, nil
}

// extractExif records EXIF presence, camera model and capture timestamp
// when present. Absence of EXIF is not an error.
func extractExif(data []byte, md map[string]string) {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		md["has_exif"] = "false"
		return
	}
	md["has_exif"] = "true"

	if tag, err := x.Get(exif.Model); err == nil {
		if camera, err := tag.StringVal(); err == nil {
			md["camera_model"] = camera
		}
	}
	if taken, err := x.DateTime(); err == nil {
		md["capture_time"] = taken.UTC().Format(time.RFC3339)
	}
}

// formatImageReport renders the per-image text block.
func formatImageReport(meta models.FileMetadata, md map[string]string, description string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Image: %s\n", meta.OriginalName)
	fmt.Fprintf(&b, "Format: %s, %sx%s pixels\n", md["format"], md["width"], md["height"])
	if camera, ok := md["camera_model"]; ok {
		fmt.Fprintf(&b, "Camera: %s\n", camera)
	}
	if taken, ok := md["capture_time"]; ok {
		fmt.Fprintf(&b, "Captured: %s\n", taken)
	}
	b.WriteString("\n")
	b.WriteString(strings.TrimSpace(description))
	b.WriteString("\n")

	return b.String()
}
