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

// HTTPExtractor calls an external AI extraction service that turns page
// content into structured plan fields.
type HTTPExtractor struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPExtractor(baseURL string, timeout time.Duration) *HTTPExtractor {
	return &HTTPExtractor{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (e *HTTPExtractor) Extract(ctx context.Context, extractReq ExtractRequest) (*PlanFields, error) {
	payload, err := json.Marshal(extractReq)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.BaseURL+"/extract", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("extractor returned %d", resp.StatusCode)
	}

	var parsed struct {
		Success bool        `json:"success"`
		Plan    *PlanFields `json:"plan"`
		Error   string      `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode extractor response: %w", err)
	}
	if !parsed.Success || parsed.Plan == nil {
		return nil, fmt.Errorf("extraction failed: %s", parsed.Error)
	}
	return parsed.Plan, nil
}
