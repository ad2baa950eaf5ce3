package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parseforge/ingest-worker/internal/errors"
)

func envelope(success bool, text, message string) ServiceResponse {
	return ServiceResponse{
		Success: success,
		Data:    ResponseData{Text: text, ModelUsed: "test-model", Confidence: 0.9},
		Message: message,
	}
}

func TestAnalyzeImageDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/internal/vision/analyze", r.URL.Path)
		assert.Equal(t, "ingest-worker", r.Header.Get("X-Source"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))

		var req ImageAnalysisRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "base64", req.Format)
		assert.Equal(t, "photo.png", req.Filename)

		json.NewEncoder(w).Encode(envelope(true, "a cat on a chair", ""))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	text, err := c.AnalyzeImage(context.Background(), "aGVsbG8=", "test context", "photo.png")
	require.NoError(t, err)
	assert.Equal(t, "a cat on a chair", text)
}

func TestProcessTextContentDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/internal/text/process", r.URL.Path)
		json.NewEncoder(w).Encode(envelope(true, "normalized text", ""))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	text, err := c.ProcessTextContent(context.Background(), "raw text", map[string]string{"filename": "a.txt"})
	require.NoError(t, err)
	assert.Equal(t, "normalized text", text)
}

func TestClientClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte("rate limit exceeded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ProcessTextContent(context.Background(), "text", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorModelRateLimited, errors.CodeOf(err))
}

func TestClientClassifiesAuthFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("unauthorized"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.AnalyzeImage(context.Background(), "aGVsbG8=", "", "a.png")
	require.Error(t, err)
	assert.Equal(t, errors.ErrorModelAuthFailed, errors.CodeOf(err))

	var pe *errors.ProcessingError
	require.True(t, errors.As(err, &pe))
	assert.False(t, pe.Recoverable)
	assert.Equal(t, errors.SeverityCritical, pe.Severity)
}

func TestClientRejectsUnsuccessfulEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(envelope(false, "", "model exploded"))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.ProcessTextContent(context.Background(), "text", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model exploded")
}

func TestHealthCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	assert.NoError(t, c.HealthCheck(context.Background()))

	c2 := NewClient("http://127.0.0.1:1")
	assert.Error(t, c2.HealthCheck(context.Background()))
}
