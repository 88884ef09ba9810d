// Package batch runs a submitted list of URLs through the scrape
// pipeline sequentially, with a courtesy delay between items and
// cooperative cancellation checked between items. One batch runs at a
// time.
package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
	"github.com/mealwatch/plan-scraper/internal/pipeline"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// ErrBatchRunning is returned when a batch is started while one is
// already in flight.
var ErrBatchRunning = errors.New("a batch is already running")

// JobRunner executes one scrape attempt for a job record.
type JobRunner interface {
	Run(ctx context.Context, job *db.ScrapeJob) pipeline.Result
}

// Notifier receives a message when a batch finishes.
type Notifier interface {
	Info(title, message string)
}

// Summary is the progress snapshot of the current or last batch.
type Summary struct {
	Running    bool       `json:"running"`
	Total      int        `json:"total"`
	Completed  int        `json:"completed"`
	Succeeded  int        `json:"succeeded"`
	Failed     int        `json:"failed"`
	Cancelled  int        `json:"cancelled"`
	CurrentURL string     `json:"currentUrl,omitempty"`
	StartedAt  *time.Time `json:"startedAt,omitempty"`
	FinishedAt *time.Time `json:"finishedAt,omitempty"`
}

// Runner owns batch execution state.
type Runner struct {
	mu      sync.Mutex
	cancel  context.CancelFunc
	summary Summary

	runner   JobRunner
	jobs     store.JobStore
	catalog  store.CatalogStore
	notifier Notifier
	delay    time.Duration
	log      *logrus.Logger
	now      func() time.Time
}

func NewRunner(runner JobRunner, jobs store.JobStore, catalog store.CatalogStore, notifier Notifier, delay time.Duration, log *logrus.Logger) *Runner {
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	return &Runner{
		runner:   runner,
		jobs:     jobs,
		catalog:  catalog,
		notifier: notifier,
		delay:    delay,
		log:      log,
		now:      time.Now,
	}
}

// Start launches a batch over urls. All job records are created up
// front as pending so a cancelled batch leaves an auditable trail.
func (r *Runner) Start(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return errors.New("batch needs at least one url")
	}

	r.mu.Lock()
	if r.summary.Running {
		r.mu.Unlock()
		return ErrBatchRunning
	}

	jobs := make([]*db.ScrapeJob, 0, len(urls))
	for _, u := range urls {
		job := &db.ScrapeJob{ID: idgen.New(), URL: u, Status: db.JobPending}
		if err := r.jobs.CreateJob(job); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("create batch job: %w", err)
		}
		jobs = append(jobs, job)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	started := r.now()
	r.summary = Summary{Running: true, Total: len(jobs), StartedAt: &started}
	r.mu.Unlock()

	go r.run(runCtx, jobs)
	return nil
}

// Cancel stops the current batch after the in-flight item finishes.
func (r *Runner) Cancel() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.summary.Running || r.cancel == nil {
		return false
	}
	r.cancel()
	return true
}

// Status returns the current progress snapshot.
func (r *Runner) Status() Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.summary
}

func (r *Runner) run(ctx context.Context, jobs []*db.ScrapeJob) {
	defer r.finish()

	for i, job := range jobs {
		if ctx.Err() != nil {
			r.cancelRemaining(jobs[i:])
			return
		}
		if i > 0 {
			select {
			case <-time.After(r.delay):
			case <-ctx.Done():
				r.cancelRemaining(jobs[i:])
				return
			}
		}

		r.mu.Lock()
		r.summary.CurrentURL = job.URL
		r.mu.Unlock()

		result := r.runner.Run(ctx, job)

		r.mu.Lock()
		r.summary.Completed++
		if result.Success {
			r.summary.Succeeded++
		} else {
			r.summary.Failed++
		}
		r.summary.CurrentURL = ""
		r.mu.Unlock()

		if result.Success && result.Data != nil {
			r.createDraft(job.URL, result.Data)
		}
	}
}

// cancelRemaining marks jobs that never started as cancelled. Cancelled
// is a terminal status, so the jobs get a completion timestamp too.
func (r *Runner) cancelRemaining(remaining []*db.ScrapeJob) {
	cancelledAt := r.now()
	for _, job := range remaining {
		if err := r.jobs.UpdateJob(job.ID, map[string]interface{}{
			"status":       db.JobCancelled,
			"completed_at": &cancelledAt,
		}); err != nil {
			r.log.WithError(err).WithField("job_id", job.ID).Warn("failed to cancel batch job")
		}
	}
	r.mu.Lock()
	r.summary.Cancelled += len(remaining)
	r.mu.Unlock()
	r.log.WithField("cancelled", len(remaining)).Info("batch cancelled")
}

func (r *Runner) finish() {
	r.mu.Lock()
	finished := r.now()
	r.summary.Running = false
	r.summary.CurrentURL = ""
	r.summary.FinishedAt = &finished
	r.cancel = nil
	summary := r.summary
	r.mu.Unlock()

	r.log.WithFields(logrus.Fields{
		"total":     summary.Total,
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"cancelled": summary.Cancelled,
	}).Info("batch finished")

	if r.notifier != nil {
		r.notifier.Info("批次抓取完成",
			fmt.Sprintf("共 %d 筆，成功 %d，失敗 %d", summary.Total, summary.Succeeded, summary.Failed))
	}
}

// createDraft adds a catalog entry from an extraction, flagged for
// review, so batch results are editable without re-running anything.
func (r *Runner) createDraft(sourceURL string, fields *pipeline.PlanFields) {
	if r.catalog == nil {
		return
	}
	tags, _ := json.Marshal(fields.Tags)
	dishes, _ := json.Marshal(fields.Dishes)
	plan := &db.Plan{
		ID:            idgen.New(),
		VendorName:    fields.VendorName,
		Title:         fields.Title,
		Description:   fields.Description,
		PriceOriginal: fields.PriceOriginal,
		PriceDiscount: fields.PriceDiscount,
		ShippingFee:   fields.ShippingFee,
		ShippingType:  fields.ShippingType,
		StorageType:   fields.StorageType,
		ServingsMin:   fields.ServingsMin,
		ServingsMax:   fields.ServingsMax,
		OrderDeadline: fields.OrderDeadline,
		Tags:          string(tags),
		Dishes:        string(dishes),
		ImageURL:      fields.ImageURL,
		SourceURL:     sourceURL,
		Status:        db.PlanNeedsReview,
	}
	if err := r.catalog.CreatePlan(plan); err != nil {
		r.log.WithError(err).WithField("url", sourceURL).Warn("failed to create draft plan")
	}
}

// RetryAllFailed starts a new batch over the distinct URLs of failed
// jobs. Returns the number of URLs requeued.
func (r *Runner) RetryAllFailed(ctx context.Context) (int, error) {
	failed, _, err := r.jobs.ListJobs(db.JobFailed, 0, 0)
	if err != nil {
		return 0, err
	}
	seen := make(map[string]struct{}, len(failed))
	var urls []string
	for _, job := range failed {
		if _, dup := seen[job.URL]; dup {
			continue
		}
		seen[job.URL] = struct{}{}
		urls = append(urls, job.URL)
	}
	if len(urls) == 0 {
		return 0, nil
	}
	if err := r.Start(ctx, urls); err != nil {
		return 0, err
	}
	return len(urls), nil
}
