package batch

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/pipeline"
	"github.com/mealwatch/plan-scraper/internal/store"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// scriptedRunner returns success or failure per URL and can trigger a
// callback during a run.
type scriptedRunner struct {
	mu     sync.Mutex
	fail   map[string]bool
	onRun  func(url string)
	ran    []string
	fields *pipeline.PlanFields
}

func (r *scriptedRunner) Run(_ context.Context, job *db.ScrapeJob) pipeline.Result {
	r.mu.Lock()
	r.ran = append(r.ran, job.URL)
	onRun := r.onRun
	shouldFail := r.fail[job.URL]
	r.mu.Unlock()

	if onRun != nil {
		onRun(job.URL)
	}
	if shouldFail {
		return pipeline.Result{Success: false, Err: "scripted failure"}
	}
	return pipeline.Result{Success: true, Data: r.fields}
}

func (r *scriptedRunner) urls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ran))
	copy(out, r.ran)
	return out
}

func waitForFinish(t *testing.T, r *Runner) Summary {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s := r.Status()
		if !s.Running && s.FinishedAt != nil {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("batch did not finish in time")
	return Summary{}
}

func TestBatchRunsAllURLs(t *testing.T) {
	jobs := store.NewMemory()
	runner := &scriptedRunner{
		fail:   map[string]bool{"https://example.com/b": true},
		fields: &pipeline.PlanFields{Title: "套餐", VendorName: "店家"},
	}
	r := NewRunner(runner, jobs, jobs, nil, time.Millisecond, quietLogger())

	urls := []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}
	if err := r.Start(context.Background(), urls); err != nil {
		t.Fatalf("Start: %v", err)
	}

	summary := waitForFinish(t, r)
	if summary.Total != 3 || summary.Completed != 3 {
		t.Errorf("summary = %+v; want 3/3 completed", summary)
	}
	if summary.Succeeded != 2 || summary.Failed != 1 {
		t.Errorf("summary = %+v; want 2 succeeded, 1 failed", summary)
	}

	got := runner.urls()
	for i, want := range urls {
		if got[i] != want {
			t.Errorf("run order[%d] = %s; want %s", i, got[i], want)
		}
	}

	// Successful extractions become catalog entries awaiting review.
	plans, err := jobs.ListPlans()
	if err != nil {
		t.Fatalf("ListPlans: %v", err)
	}
	if len(plans) != 2 {
		t.Fatalf("auto-created plans = %d; want 2", len(plans))
	}
	for _, p := range plans {
		if p.Status != db.PlanNeedsReview {
			t.Errorf("plan %s status = %s; want needs_review", p.SourceURL, p.Status)
		}
	}
}

func TestBatchRejectsConcurrentStart(t *testing.T) {
	jobs := store.NewMemory()
	release := make(chan struct{})
	runner := &scriptedRunner{onRun: func(string) { <-release }}
	r := NewRunner(runner, jobs, nil, nil, time.Millisecond, quietLogger())

	if err := r.Start(context.Background(), []string{"https://example.com/a"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := r.Start(context.Background(), []string{"https://example.com/b"}); err != ErrBatchRunning {
		t.Errorf("second Start = %v; want ErrBatchRunning", err)
	}
	close(release)
	waitForFinish(t, r)
}

func TestBatchCancelMarksRemainingJobsCancelled(t *testing.T) {
	jobs := store.NewMemory()
	runner := &scriptedRunner{}
	r := NewRunner(runner, jobs, nil, nil, time.Millisecond, quietLogger())

	// Cancel while the second URL is running; the remaining three must
	// never start.
	runner.onRun = func(url string) {
		if url == "https://example.com/2" {
			r.Cancel()
		}
	}

	urls := []string{
		"https://example.com/1",
		"https://example.com/2",
		"https://example.com/3",
		"https://example.com/4",
		"https://example.com/5",
	}
	if err := r.Start(context.Background(), urls); err != nil {
		t.Fatalf("Start: %v", err)
	}

	summary := waitForFinish(t, r)
	if summary.Completed != 2 {
		t.Errorf("completed = %d; want 2", summary.Completed)
	}
	if summary.Cancelled != 3 {
		t.Errorf("cancelled = %d; want 3", summary.Cancelled)
	}
	if got := len(runner.urls()); got != 2 {
		t.Errorf("runner executed %d urls; want 2", got)
	}

	cancelled, total, err := jobs.ListJobs(db.JobCancelled, 0, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if total != 3 || len(cancelled) != 3 {
		t.Errorf("cancelled job records = %d; want 3", total)
	}
	// Cancelled is terminal, so every cancelled job carries a
	// completion timestamp.
	for _, job := range cancelled {
		if job.CompletedAt == nil {
			t.Errorf("job %s cancelled without completed_at", job.ID)
		}
	}
	if running, n, _ := jobs.ListJobs(db.JobRunning, 0, 0); n != 0 {
		t.Errorf("running jobs after cancel = %d (%v); want 0", n, running)
	}
}
