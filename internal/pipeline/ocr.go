package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPOCRClient calls an external OCR service that accepts a batch of
// image URLs and returns the combined recognized text.
type HTTPOCRClient struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPOCRClient(baseURL string, timeout time.Duration) *HTTPOCRClient {
	return &HTTPOCRClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPOCRClient) Recognize(ctx context.Context, images []string) (string, error) {
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"images":    images,
		"maxImages": MaxImages,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/ocr", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr service returned %d", resp.StatusCode)
	}

	var parsed struct {
		Success bool `json:"success"`
		Data    struct {
			CombinedText string `json:"combinedText"`
			Processed    int    `json:"processed"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode ocr response: %w", err)
	}
	if !parsed.Success {
		return "", fmt.Errorf("ocr error: %s", parsed.Error)
	}
	return parsed.Data.CombinedText, nil
}
