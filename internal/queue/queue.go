// Package queue implements the retryable scrape queue: priority
// ordering, exponential backoff between attempts, and a terminal failed
// state once retries are exhausted. The authoritative state lives in
// memory; every mutation is mirrored to the queue store so a restart
// picks up where it left off.
package queue

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/config"
	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// ErrProcessing is returned when an operation targets an item that is
// mid-attempt.
var ErrProcessing = errors.New("queue item is being processed")

// RetryDelay computes the wait before retry number retryCount+1, in
// milliseconds. With exponential backoff the delay doubles per attempt
// and is capped at MaxDelayMs.
func RetryDelay(settings config.RetrySettings, retryCount int) int {
	if !settings.UseExponentialBackoff {
		return settings.BaseDelayMs
	}
	delay := settings.BaseDelayMs
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= settings.MaxDelayMs {
			return settings.MaxDelayMs
		}
	}
	if delay > settings.MaxDelayMs {
		return settings.MaxDelayMs
	}
	return delay
}

// priorityRank orders high before normal before low.
func priorityRank(p db.QueuePriority) int {
	switch p {
	case db.PriorityHigh:
		return 0
	case db.PriorityLow:
		return 2
	default:
		return 1
	}
}

// Stats is a point-in-time queue summary.
type Stats struct {
	Queued     int `json:"queued"`
	Processing int `json:"processing"`
	Failed     int `json:"failed"`
	Completed  int `json:"completed"`
}

// Queue holds the pending work. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []*db.QueueItem

	settings *config.Settings
	persist  store.QueueStore
	log      *logrus.Logger
	now      func() time.Time
}

// New builds a queue, restoring persisted items. Items that were mid
// attempt when the process died go back to queued.
func New(settings *config.Settings, persist store.QueueStore, log *logrus.Logger) (*Queue, error) {
	q := &Queue{
		settings: settings,
		persist:  persist,
		log:      log,
		now:      time.Now,
	}

	saved, err := persist.ListItems()
	if err != nil {
		return nil, err
	}
	for i := range saved {
		item := saved[i]
		if item.Status == db.QueueProcessing {
			item.Status = db.QueueQueued
			if err := persist.SaveItem(&item); err != nil {
				return nil, err
			}
		}
		q.items = append(q.items, &item)
	}
	if len(q.items) > 0 {
		log.WithField("count", len(q.items)).Info("restored queue items")
	}
	return q, nil
}

// Enqueue adds a URL to the queue. A URL already queued or processing is
// not added twice; the existing item is returned.
func (q *Queue) Enqueue(url string, priority db.QueuePriority) (*db.QueueItem, error) {
	if priority != db.PriorityHigh && priority != db.PriorityLow {
		priority = db.PriorityNormal
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.URL == url && (item.Status == db.QueueQueued || item.Status == db.QueueProcessing) {
			return item, nil
		}
	}

	item := &db.QueueItem{
		ID:         idgen.New(),
		URL:        url,
		Priority:   priority,
		Status:     db.QueueQueued,
		RetryCount: 0,
		MaxRetries: q.settings.Retry().MaxRetries,
		AddedAt:    q.now(),
	}
	if err := q.persist.SaveItem(item); err != nil {
		return nil, err
	}
	q.items = append(q.items, item)
	q.log.WithFields(logrus.Fields{"url": url, "priority": priority}).Info("queued url")
	return item, nil
}

// DequeueNext claims the next eligible item and marks it processing.
// Returns nil when nothing is eligible. Eligible means queued with no
// pending backoff, ordered by priority then by age.
func (q *Queue) DequeueNext() *db.QueueItem {
	now := q.now()

	q.mu.Lock()
	defer q.mu.Unlock()

	var best *db.QueueItem
	for _, item := range q.items {
		if item.Status != db.QueueQueued {
			continue
		}
		if item.NextRetryAt != nil && item.NextRetryAt.After(now) {
			continue
		}
		if best == nil || less(item, best) {
			best = item
		}
	}
	if best == nil {
		return nil
	}

	best.Status = db.QueueProcessing
	if err := q.persist.SaveItem(best); err != nil {
		q.log.WithError(err).Warn("failed to persist queue claim")
	}
	claimed := *best
	return &claimed
}

func less(a, b *db.QueueItem) bool {
	ra, rb := priorityRank(a.Priority), priorityRank(b.Priority)
	if ra != rb {
		return ra < rb
	}
	return a.AddedAt.Before(b.AddedAt)
}

// MarkDone transitions a completed item to done. Done items stay
// visible in listings and stats until removed or cleared explicitly.
func (q *Queue) MarkDone(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.ID == id {
			item.Status = db.QueueDone
			item.NextRetryAt = nil
			return q.persist.SaveItem(item)
		}
	}
	return store.ErrNotFound
}

// MarkFailed records a failed attempt. The item is requeued with a
// backoff delay until its retries run out, then parked as terminally
// failed. The second return value is true when the failure is terminal.
func (q *Queue) MarkFailed(id string) (*db.QueueItem, bool, error) {
	retry := q.settings.Retry()

	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.ID != id {
			continue
		}

		delayMs := RetryDelay(retry, item.RetryCount)
		item.RetryCount++

		if item.RetryCount >= item.MaxRetries {
			item.Status = db.QueueFailed
			item.NextRetryAt = nil
			if err := q.persist.SaveItem(item); err != nil {
				return nil, false, err
			}
			q.log.WithFields(logrus.Fields{"url": item.URL, "retries": item.RetryCount}).
				Warn("queue item failed terminally")
			out := *item
			return &out, true, nil
		}

		next := q.now().Add(time.Duration(delayMs) * time.Millisecond)
		item.Status = db.QueueQueued
		item.NextRetryAt = &next
		if err := q.persist.SaveItem(item); err != nil {
			return nil, false, err
		}
		q.log.WithFields(logrus.Fields{
			"url":      item.URL,
			"retry":    item.RetryCount,
			"delay_ms": delayMs,
		}).Info("queue item scheduled for retry")
		out := *item
		return &out, false, nil
	}
	return nil, false, store.ErrNotFound
}

// Retry requeues a terminally failed item with a fresh retry budget.
func (q *Queue) Retry(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.ID == id {
			if item.Status != db.QueueFailed {
				return store.ErrNotFound
			}
			item.Status = db.QueueQueued
			item.RetryCount = 0
			item.MaxRetries = q.settings.Retry().MaxRetries
			item.NextRetryAt = nil
			return q.persist.SaveItem(item)
		}
	}
	return store.ErrNotFound
}

// Reprioritize changes the priority of a queued item.
func (q *Queue) Reprioritize(id string, priority db.QueuePriority) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, item := range q.items {
		if item.ID == id {
			item.Priority = priority
			return q.persist.SaveItem(item)
		}
	}
	return store.ErrNotFound
}

// Remove deletes an item. Items mid-attempt cannot be removed.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, item := range q.items {
		if item.ID == id {
			if item.Status == db.QueueProcessing {
				return ErrProcessing
			}
			if err := q.persist.DeleteItem(id); err != nil {
				return err
			}
			q.items = append(q.items[:i], q.items[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// Clear drops every item that is not mid-attempt.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	kept := q.items[:0]
	for _, item := range q.items {
		if item.Status == db.QueueProcessing {
			kept = append(kept, item)
			continue
		}
		if err := q.persist.DeleteItem(item.ID); err != nil {
			return err
		}
	}
	q.items = kept
	return nil
}

// Items returns a snapshot sorted by priority then age.
func (q *Queue) Items() []db.QueueItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]db.QueueItem, 0, len(q.items))
	for _, item := range q.items {
		out = append(out, *item)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return less(&out[i], &out[j])
	})
	return out
}

// Stats summarizes the queue.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	var s Stats
	for _, item := range q.items {
		switch item.Status {
		case db.QueueQueued:
			s.Queued++
		case db.QueueProcessing:
			s.Processing++
		case db.QueueFailed:
			s.Failed++
		case db.QueueDone:
			s.Completed++
		}
	}
	return s
}
