// Package pipeline runs the scrape-and-extract flow for a single URL:
// fetch page content, collect and OCR images, then hand everything to
// the structured extractor. The adapter owns the job record for the
// duration of the run and always finalizes it, success or not.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/config"
	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// PlanFields is the structured output of an extraction.
type PlanFields struct {
	VendorName    string   `json:"vendorName"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	PriceOriginal int      `json:"priceOriginal"`
	PriceDiscount int      `json:"priceDiscount"`
	ShippingFee   int      `json:"shippingFee"`
	ShippingType  string   `json:"shippingType"`
	StorageType   string   `json:"storageType"`
	ServingsMin   int      `json:"servingsMin"`
	ServingsMax   int      `json:"servingsMax"`
	OrderDeadline string   `json:"orderDeadline"`
	Tags          []string `json:"tags"`
	Dishes        []string `json:"dishes"`
	ImageURL      string   `json:"imageUrl"`
}

// Result is what callers get back from a run. Failures are reported
// here, never as a panic or a lost job record.
type Result struct {
	Success bool
	Data    *PlanFields
	Err     string
}

// FetchResult is a fetched page: markdown-ish content plus any image
// URLs the fetcher could see directly.
type FetchResult struct {
	Title   string
	Content string
	Images  []string
}

// Fetcher retrieves page content for a URL. The domain rule, when
// non-nil, carries per-site hints (selectors, wait time).
type Fetcher interface {
	Fetch(ctx context.Context, url string, rule *db.DomainRule) (*FetchResult, error)
}

// OCRClient reads text out of images. Failures here degrade the run,
// they never fail it.
type OCRClient interface {
	Recognize(ctx context.Context, images []string) (string, error)
}

// ExtractRequest is the extractor input: truncated content plus regex
// hints and any per-vendor prompt hints.
type ExtractRequest struct {
	Content     string `json:"markdown"`
	URL         string `json:"url"`
	Hints       Hints  `json:"hints"`
	VendorHints string `json:"vendorHints,omitempty"`
}

// Extractor turns page content into structured plan fields.
type Extractor interface {
	Extract(ctx context.Context, req ExtractRequest) (*PlanFields, error)
}

// Adapter wires the three collaborators together and owns job record
// lifecycle for each run.
type Adapter struct {
	fetcher   Fetcher
	ocr       OCRClient // nil when no OCR service is configured
	extractor Extractor
	jobs      store.JobStore
	settings  *config.Settings
	log       *logrus.Logger
	now       func() time.Time
}

// NewAdapter builds a pipeline adapter. ocr may be nil.
func NewAdapter(fetcher Fetcher, ocr OCRClient, extractor Extractor, jobs store.JobStore, settings *config.Settings, log *logrus.Logger) *Adapter {
	return &Adapter{
		fetcher:   fetcher,
		ocr:       ocr,
		extractor: extractor,
		jobs:      jobs,
		settings:  settings,
		log:       log,
		now:       time.Now,
	}
}

// Run executes the pipeline for job. The caller creates the job record;
// Run marks it running, does the work, and finalizes it exactly once.
// Whatever artifacts were gathered before a failure are persisted with
// the failed record.
func (a *Adapter) Run(ctx context.Context, job *db.ScrapeJob) Result {
	start := a.now()
	log := a.log.WithFields(logrus.Fields{"job_id": job.ID, "url": job.URL})

	startedAt := start
	if err := a.jobs.UpdateJob(job.ID, map[string]interface{}{
		"status":     db.JobRunning,
		"started_at": &startedAt,
	}); err != nil {
		log.WithError(err).Error("failed to mark job running")
	}

	var rawContent, ocrText string
	var images []string

	rule := a.settings.MatchDomainRule(job.URL)
	fetched, err := a.fetcher.Fetch(ctx, job.URL, rule)
	if err != nil {
		return a.fail(job, start, rawContent, images, ocrText, fmt.Errorf("fetch: %w", err))
	}
	rawContent = fetched.Content
	images = FilterImages(append(fetched.Images, ExtractImages(rawContent)...))
	if len(images) > MaxImages {
		images = images[:MaxImages]
	}

	if a.ocr != nil && len(images) > 0 {
		text, err := a.ocr.Recognize(ctx, images)
		if err != nil {
			log.WithError(err).Warn("ocr unavailable, continuing without image text")
		} else {
			ocrText = text
		}
	}

	content := TruncateContent(rawContent, maxExtractChars)
	if ocrText != "" {
		content += "\n\n---\n\n## 圖片文字 (OCR)\n\n" + CapRunes(ocrText, MaxOCRTextChars)
	}

	req := ExtractRequest{
		Content: content,
		URL:     job.URL,
		Hints:   ExtractHints(rawContent + "\n" + ocrText),
	}
	vendorCfg := a.settings.MatchVendorConfig(job.URL)
	if vendorCfg != nil {
		req.VendorHints = vendorCfg.AIPromptHints
	}

	fields, err := a.extractor.Extract(ctx, req)
	if err != nil {
		return a.fail(job, start, rawContent, images, ocrText, fmt.Errorf("extract: %w", err))
	}
	if fields.Title == "" && fetched.Title != "" {
		fields.Title = fetched.Title
	}
	if vendorCfg != nil {
		fields.Tags = mergeTags(fields.Tags, vendorCfg.DefaultTags)
	}

	extractedJSON, _ := json.Marshal(fields)
	completedAt := a.now()
	updates := map[string]interface{}{
		"status":       db.JobSuccess,
		"completed_at": &completedAt,
		"duration_ms":  completedAt.Sub(start).Milliseconds(),
		"vendor_name":  fields.VendorName,
	}
	addArtifacts(updates, string(extractedJSON), rawContent, images, ocrText)
	if err := a.jobs.UpdateJob(job.ID, updates); err != nil {
		log.WithError(err).Error("failed to finalize job")
	}

	log.WithField("duration_ms", completedAt.Sub(start).Milliseconds()).Info("scrape succeeded")
	return Result{Success: true, Data: fields}
}

func (a *Adapter) fail(job *db.ScrapeJob, start time.Time, rawContent string, images []string, ocrText string, cause error) Result {
	completedAt := a.now()
	updates := map[string]interface{}{
		"status":       db.JobFailed,
		"completed_at": &completedAt,
		"duration_ms":  completedAt.Sub(start).Milliseconds(),
		"error":        cause.Error(),
	}
	addArtifacts(updates, "", rawContent, images, ocrText)
	if err := a.jobs.UpdateJob(job.ID, updates); err != nil {
		a.log.WithError(err).WithField("job_id", job.ID).Error("failed to finalize job")
	}

	a.log.WithFields(logrus.Fields{"job_id": job.ID, "url": job.URL}).
		WithError(cause).Warn("scrape failed")
	return Result{Success: false, Err: cause.Error()}
}

func addArtifacts(updates map[string]interface{}, extractedJSON, rawContent string, images []string, ocrText string) {
	if extractedJSON != "" {
		updates["extracted_data"] = extractedJSON
	}
	if rawContent != "" {
		updates["raw_content"] = CapRunes(rawContent, MaxRawContentChars)
	}
	if len(images) > 0 {
		if len(images) > MaxImages {
			images = images[:MaxImages]
		}
		imagesJSON, _ := json.Marshal(images)
		updates["images"] = string(imagesJSON)
	}
	if ocrText != "" {
		updates["ocr_text"] = CapRunes(ocrText, MaxOCRTextChars)
	}
}

// mergeTags appends default tags from the vendor config, skipping ones
// the extractor already produced.
func mergeTags(tags []string, defaultTagsJSON string) []string {
	if defaultTagsJSON == "" {
		return tags
	}
	var defaults []string
	if err := json.Unmarshal([]byte(defaultTagsJSON), &defaults); err != nil {
		return tags
	}
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		seen[t] = struct{}{}
	}
	for _, t := range defaults {
		if _, dup := seen[t]; !dup {
			tags = append(tags, t)
		}
	}
	return tags
}
