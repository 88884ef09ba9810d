package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
	"github.com/mealwatch/plan-scraper/internal/pipeline"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// Runner executes one scrape attempt for a job record.
type Runner interface {
	Run(ctx context.Context, job *db.ScrapeJob) pipeline.Result
}

// Notifier receives a message when an item fails terminally.
type Notifier interface {
	Error(title, message string)
}

// Worker drains the queue in the background. The number of concurrent
// attempts is bounded by the configured worker count; claiming goes
// through DequeueNext, so an item is only ever attempted by one worker.
type Worker struct {
	queue    *Queue
	runner   Runner
	jobs     store.JobStore
	notifier Notifier
	poll     time.Duration
	workers  int
	log      *logrus.Logger
}

func NewWorker(q *Queue, runner Runner, jobs store.JobStore, notifier Notifier, poll time.Duration, workers int, log *logrus.Logger) *Worker {
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		queue:    q,
		runner:   runner,
		jobs:     jobs,
		notifier: notifier,
		poll:     poll,
		workers:  workers,
		log:      log,
	}
}

// Start runs the drain loops until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.log.WithField("workers", w.workers).Info("queue workers started")
	for i := 0; i < w.workers; i++ {
		go func() {
			ticker := time.NewTicker(w.poll)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					w.drain(ctx)
				}
			}
		}()
	}
}

// drain processes eligible items until the queue has none left.
func (w *Worker) drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		item := w.queue.DequeueNext()
		if item == nil {
			return
		}
		w.process(ctx, item)
	}
}

func (w *Worker) process(ctx context.Context, item *db.QueueItem) {
	job := &db.ScrapeJob{
		ID:     idgen.New(),
		URL:    item.URL,
		Status: db.JobPending,
	}
	if err := w.jobs.CreateJob(job); err != nil {
		w.log.WithError(err).Error("failed to create job record")
	}

	result := w.runner.Run(ctx, job)
	if result.Success {
		if err := w.queue.MarkDone(item.ID); err != nil {
			w.log.WithError(err).WithField("item_id", item.ID).Warn("failed to complete queue item")
		}
		return
	}

	failed, terminal, err := w.queue.MarkFailed(item.ID)
	if err != nil {
		w.log.WithError(err).WithField("item_id", item.ID).Warn("failed to record queue failure")
		return
	}
	if terminal && w.notifier != nil {
		w.notifier.Error("抓取失敗", fmt.Sprintf("%s 已重試 %d 次仍然失敗", failed.URL, failed.RetryCount))
	}
}
