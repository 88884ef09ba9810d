package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
	"github.com/sony/gobreaker"

	"github.com/mealwatch/plan-scraper/internal/db"
)

const fetchUserAgent = "Mozilla/5.0 (compatible; plan-scraper/1.0)"

// ReaderFetcher fetches content through a reader proxy (r.jina.ai style)
// that returns pages as markdown.
type ReaderFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewReaderFetcher(baseURL string, timeout time.Duration) *ReaderFetcher {
	return &ReaderFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

func (f *ReaderFetcher) Fetch(ctx context.Context, target string, _ *db.DomainRule) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/"+target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reader service returned %d", resp.StatusCode)
	}

	var parsed struct {
		Data struct {
			Title   string `json:"title"`
			Content string `json:"content"`
		} `json:"data"`
	}
	// The reader may answer plain text when JSON output is unsupported.
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Data.Content == "" {
		return &FetchResult{Content: string(body)}, nil
	}
	return &FetchResult{Title: parsed.Data.Title, Content: parsed.Data.Content}, nil
}

// APIFetcher fetches through a hosted scraping API (firecrawl style)
// that renders JavaScript server-side.
type APIFetcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewAPIFetcher(baseURL, apiKey string, timeout time.Duration) *APIFetcher {
	return &APIFetcher{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: timeout},
	}
}

func (f *APIFetcher) Fetch(ctx context.Context, target string, _ *db.DomainRule) (*FetchResult, error) {
	payload, _ := json.Marshal(map[string]interface{}{
		"url":             target,
		"formats":         []string{"markdown"},
		"onlyMainContent": true,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/v1/scrape", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape api returned %d", resp.StatusCode)
	}

	var parsed struct {
		Success bool `json:"success"`
		Data    struct {
			Markdown string `json:"markdown"`
			Metadata struct {
				Title string `json:"title"`
			} `json:"metadata"`
		} `json:"data"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode scrape api response: %w", err)
	}
	if !parsed.Success {
		return nil, fmt.Errorf("scrape api error: %s", parsed.Error)
	}
	return &FetchResult{Title: parsed.Data.Metadata.Title, Content: parsed.Data.Markdown}, nil
}

// LocalFetcher fetches and converts pages in-process: plain HTTP GET,
// sanitize, convert to markdown. No JavaScript rendering, so rules with
// UseJavaScript set are better served by the api fetcher.
type LocalFetcher struct {
	Client    *http.Client
	policy    *bluemonday.Policy
	converter *converter.Converter
}

func NewLocalFetcher(timeout time.Duration) *LocalFetcher {
	return &LocalFetcher{
		Client: &http.Client{Timeout: timeout},
		policy: bluemonday.UGCPolicy(),
		converter: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

func (f *LocalFetcher) Fetch(ctx context.Context, target string, rule *db.DomainRule) (*FetchResult, error) {
	if rule != nil && rule.WaitTimeMs > 0 {
		select {
		case <-time.After(time.Duration(rule.WaitTimeMs) * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fetchUserAgent)

	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", target, resp.StatusCode)
	}

	rawHTML, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if rule != nil && rule.TitleSelector != "" {
		if sel := strings.TrimSpace(doc.Find(rule.TitleSelector).First().Text()); sel != "" {
			title = sel
		}
	}

	var images []string
	pageURL, _ := url.Parse(target)
	doc.Find("img[src]").Each(func(_ int, s *goquery.Selection) {
		src, _ := s.Attr("src")
		if abs := absoluteURL(pageURL, src); abs != "" {
			images = append(images, abs)
		}
	})

	markdown, err := f.converter.ConvertString(f.policy.Sanitize(string(rawHTML)))
	if err != nil {
		return nil, fmt.Errorf("convert html: %w", err)
	}
	if title != "" {
		markdown = "# " + title + "\n\n" + markdown
	}
	return &FetchResult{Title: title, Content: markdown, Images: images}, nil
}

func absoluteURL(page *url.URL, src string) string {
	src = strings.TrimSpace(src)
	if src == "" || strings.HasPrefix(src, "data:") {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	if page != nil {
		ref = page.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}

// BreakerFetcher wraps a fetcher with a circuit breaker so a dead
// upstream fails fast instead of tying up the worker for a full timeout
// on every attempt.
type BreakerFetcher struct {
	inner Fetcher
	cb    *gobreaker.CircuitBreaker
}

func NewBreakerFetcher(name string, inner Fetcher) *BreakerFetcher {
	return &BreakerFetcher{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: 2,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (b *BreakerFetcher) Fetch(ctx context.Context, target string, rule *db.DomainRule) (*FetchResult, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.Fetch(ctx, target, rule)
	})
	if err != nil {
		return nil, err
	}
	return out.(*FetchResult), nil
}
