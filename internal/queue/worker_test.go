package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mealwatch/plan-scraper/internal/config"
	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/pipeline"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// blockingRunner signals each attempt start and holds it until released.
type blockingRunner struct {
	started chan string
	release chan struct{}
}

func (r *blockingRunner) Run(_ context.Context, job *db.ScrapeJob) pipeline.Result {
	r.started <- job.URL
	<-r.release
	return pipeline.Result{Success: true, Data: &pipeline.PlanFields{Title: "套餐"}}
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, *db.ScrapeJob) pipeline.Result {
	return pipeline.Result{Success: false, Err: "no luck"}
}

type recordingNotifier struct {
	mu     sync.Mutex
	errors []string
}

func (n *recordingNotifier) Error(title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, title+": "+message)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errors)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWorkerRunsConfiguredConcurrentAttempts(t *testing.T) {
	q := newTestQueue(t)
	q.Enqueue("https://example.com/a", db.PriorityNormal)
	q.Enqueue("https://example.com/b", db.PriorityNormal)

	runner := &blockingRunner{
		started: make(chan string, 2),
		release: make(chan struct{}),
	}
	jobs := store.NewMemory()
	w := NewWorker(q, runner, jobs, nil, 5*time.Millisecond, 2, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	// Both items must be in flight at the same time.
	for i := 0; i < 2; i++ {
		select {
		case <-runner.started:
		case <-time.After(5 * time.Second):
			t.Fatalf("attempt %d never started", i+1)
		}
	}
	if stats := q.Stats(); stats.Processing != 2 {
		t.Errorf("in-flight stats = %+v; want 2 processing", stats)
	}

	close(runner.release)
	waitFor(t, "both items done", func() bool { return q.Stats().Completed == 2 })

	if _, total, err := jobs.ListJobs("", 0, 0); err != nil || total != 2 {
		t.Errorf("job records = %d (%v); want 2", total, err)
	}
}

func TestWorkerNotifiesOnTerminalFailure(t *testing.T) {
	persist := store.NewMemory()
	settings, err := config.LoadSettings(store.NewMemory())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	// One allowed attempt so the first failure is terminal.
	if err := settings.SetRetry(config.RetrySettings{
		MaxRetries:  1,
		BaseDelayMs: 1,
		MaxDelayMs:  2,
	}); err != nil {
		t.Fatalf("SetRetry: %v", err)
	}
	q, err := New(settings, persist, quietLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	q.Enqueue("https://example.com/a", db.PriorityNormal)

	notifier := &recordingNotifier{}
	w := NewWorker(q, failingRunner{}, store.NewMemory(), notifier, 5*time.Millisecond, 1, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	waitFor(t, "terminal failure", func() bool { return q.Stats().Failed == 1 })
	waitFor(t, "failure notification", func() bool { return notifier.count() == 1 })
}
