// Package embedding turns subtask text into dense vectors via an external
// embedding service.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fentz26/priora/internal/errs"
	"github.com/fentz26/priora/internal/retry"
)

// Embedder maps text to a fixed-dimension vector. Identical text must
// produce identical vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}

// HTTPEmbedder calls an embedding service over HTTP.
type HTTPEmbedder struct {
	baseURL    string
	model      string
	dimensions int
	client     *http.Client
	retrier    *retry.Retrier
}

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	URL        string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Retry      *retry.Config
}

type embedRequest struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type embedResponse struct {
	Vector []float64 `json:"vector"`
}

// NewHTTPEmbedder creates an embedder. Dimensions of 0 accepts whatever the
// service returns.
func NewHTTPEmbedder(cfg HTTPConfig) *HTTPEmbedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmbedder{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     &http.Client{Timeout: timeout},
		retrier:    retry.New(cfg.Retry),
	}
}

// Model returns the configured model name.
func (e *HTTPEmbedder) Model() string { return e.model }

// Embed posts text to {base}/embed.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.Validation("cannot embed empty text")
	}

	body, err := json.Marshal(embedRequest{Text: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out embedResponse
	err = e.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := e.client.Do(req)
		if err != nil {
			return errs.Unavailable("embedding service", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Unavailable("embedding service", err)
		}
		if resp.StatusCode >= 500 {
			return errs.Unavailable("embedding service", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("embedding service rejected request: status %d", resp.StatusCode)
		}
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("decode embedding response: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(out.Vector) == 0 {
		return nil, errs.Unavailable("embedding service", fmt.Errorf("empty vector"))
	}
	if e.dimensions > 0 && len(out.Vector) != e.dimensions {
		return nil, fmt.Errorf("embedding dimension %d, expected %d", len(out.Vector), e.dimensions)
	}
	return out.Vector, nil
}
