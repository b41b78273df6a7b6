package difficulty

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

// HTTPClassifier calls an external inference service hosting the trained
// difficulty model.
type HTTPClassifier struct {
	baseURL string
	client  *http.Client
	retrier *retry.Retrier
}

// NewHTTPClassifier creates a classifier client for baseURL.
func NewHTTPClassifier(baseURL string, timeout time.Duration, rc *retry.Config) *HTTPClassifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClassifier{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		retrier: retry.New(rc),
	}
}

// Classify posts text to {base}/classify.
func (c *HTTPClassifier) Classify(ctx context.Context, text string) (Classification, error) {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return Classification{}, fmt.Errorf("marshal request: %w", err)
	}

	var out Classification
	err = c.retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return errs.Unavailable("classifier", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return errs.Unavailable("classifier", err)
		}
		if resp.StatusCode >= 500 {
			return errs.Unavailable("classifier", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(data))))
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("classifier rejected request: status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
		}

		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("decode classifier response: %w", err)
		}
		return nil
	})
	if err != nil {
		return Classification{}, err
	}
	return out, nil
}
