/**
 * Multimodal model service client.
 *
 * The worker never talks to concrete models. All image analysis and text
 * normalization is delegated to the model service, which owns model
 * selection and fallback. Failures here map to the "model" error category.
 */

package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/parseforge/ingest-worker/internal/errors"
	"github.com/parseforge/ingest-worker/internal/logging"
)

// MultimodalService is the capability surface the processors depend on.
type MultimodalService interface {
	AnalyzeImage(ctx context.Context, base64Image, analysisContext, filename string) (string, error)
	ProcessTextContent(ctx context.Context, text string, fileInfo map[string]string) (string, error)
}

// Client handles communication with the multimodal model service
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *logging.Logger
}

// ImageAnalysisRequest represents a request to analyze an image
type ImageAnalysisRequest struct {
	Image    string            `json:"image"`  // Base64 encoded image
	Format   string            `json:"format"` // always "base64"
	Context  string            `json:"context,omitempty"`
	Filename string            `json:"filename,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// TextProcessRequest represents a request to normalize text content
type TextProcessRequest struct {
	Text     string            `json:"text"`
	FileInfo map[string]string `json:"fileInfo,omitempty"`
}

// ServiceResponse is the common envelope of the model service.
type ServiceResponse struct {
	Success bool         `json:"success"`
	Data    ResponseData `json:"data"`
	Message string       `json:"message"`
}

// ResponseData contains the produced text and model metadata
type ResponseData struct {
	Text           string  `json:"text"`
	ModelUsed      string  `json:"modelUsed"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime int64   `json:"processingTime"` // milliseconds
}

// NewClient creates a new model service client
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 120 * time.Second, // vision requests can take a while
		},
		logger: logging.NewLogger("ModelClient"),
	}
}

// AnalyzeImage asks the model service to describe an image.
func (c *Client) AnalyzeImage(ctx context.Context, base64Image, analysisContext, filename string) (string, error) {
	c.logger.Info("Requesting image analysis",
		"filename", filename,
		"imageSize", len(base64Image))

	req := &ImageAnalysisRequest{
		Image:    base64Image,
		Format:   "base64",
		Context:  analysisContext,
		Filename: filename,
	}

	data, err := c.post(ctx, "/api/internal/vision/analyze", req)
	if err != nil {
		return "", err
	}

	c.logger.Info("Image analysis complete",
		"filename", filename,
		"modelUsed", data.ModelUsed,
		"textLength", len(data.Text))

	return data.Text, nil
}

// ProcessTextContent asks the model service to normalize extracted text.
func (c *Client) ProcessTextContent(ctx context.Context, text string, fileInfo map[string]string) (string, error) {
	c.logger.Info("Requesting text normalization", "textLength", len(text))

	req := &TextProcessRequest{
		Text:     text,
		FileInfo: fileInfo,
	}

	data, err := c.post(ctx, "/api/internal/text/process", req)
	if err != nil {
		return "", err
	}

	c.logger.Info("Text normalization complete",
		"modelUsed", data.ModelUsed,
		"textLength", len(data.Text))

	return data.Text, nil
}

// HealthCheck verifies the model service is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/health", c.baseURL)

	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("model service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service unhealthy: status %d", resp.StatusCode)
	}

	return nil
}

// post sends one JSON request and decodes the standard envelope.
func (c *Client) post(ctx context.Context, path string, payload interface{}) (*ResponseData, error) {
	endpoint := fmt.Sprintf("%s%s", c.baseURL, path)

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Source", "ingest-worker")
	httpReq.Header.Set("X-Request-ID", fmt.Sprintf("model-%d", time.Now().UnixNano()))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.liftError(fmt.Errorf("request to model service failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.liftError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.liftError(fmt.Errorf("model service returned status %d: %s", resp.StatusCode, string(body)))
	}

	var envelope ServiceResponse
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, c.liftError(fmt.Errorf("failed to parse model service response: %w", err))
	}

	if !envelope.Success {
		return nil, c.liftError(fmt.Errorf("model service operation failed: %s", envelope.Message))
	}

	return &envelope.Data, nil
}

// liftError classifies a raw model-service failure into the error taxonomy.
func (c *Client) liftError(err error) error {
	cls := errors.ClassifyModel(err)

	code := errors.ErrorModelUnavailable
	switch {
	case cls.Severity == errors.SeverityCritical:
		code = errors.ErrorModelAuthFailed
	case cls.MaxRetries >= 5:
		code = errors.ErrorModelRateLimited
	}

	pe := errors.New(code, errors.CategoryModel, err.Error()).
		WithCause(err).
		WithComponent("ModelClient", "post").
		WithUserMessage(cls.UserMessage)
	pe.Severity = cls.Severity
	pe.Recoverable = cls.Recoverable
	pe.MaxRetries = cls.MaxRetries
	return pe
}
