// Package monitor keeps standing watches on plan source URLs: periodic
// re-scrapes, price history, and change events when a real price diff
// shows up.
package monitor

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
	"github.com/mealwatch/plan-scraper/internal/pipeline"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// Retention caps for per-plan history and the global change feed.
const (
	MaxHistoryPerPlan = 30
	MaxChangeEvents   = 100
)

// JobRunner executes one scrape attempt for a job record.
type JobRunner interface {
	Run(ctx context.Context, job *db.ScrapeJob) pipeline.Result
}

// Notifier receives price change and error messages.
type Notifier interface {
	PriceDrop(planID, title, message string)
	PriceIncrease(planID, title, message string)
	Error(title, message string)
}

// Engine runs monitor checks.
type Engine struct {
	tasks    store.MonitorStore
	catalog  store.CatalogStore
	jobs     store.JobStore
	runner   JobRunner
	notifier Notifier
	delay    time.Duration // courtesy delay between checks in a sweep
	log      *logrus.Logger
	now      func() time.Time
}

func NewEngine(tasks store.MonitorStore, catalog store.CatalogStore, jobs store.JobStore, runner JobRunner, notifier Notifier, delay time.Duration, log *logrus.Logger) *Engine {
	if delay <= 0 {
		delay = 2 * time.Second
	}
	return &Engine{
		tasks:    tasks,
		catalog:  catalog,
		jobs:     jobs,
		runner:   runner,
		notifier: notifier,
		delay:    delay,
		log:      log,
		now:      time.Now,
	}
}

// AddTask creates a watch on a plan. One task per plan; adding a second
// returns the existing one. The plan's current price is recorded as the
// first history entry so the next check has a baseline.
func (e *Engine) AddTask(planID, sourceURL string, interval db.CheckInterval) (*db.MonitorTask, error) {
	if existing, err := e.tasks.GetTaskByPlan(planID); err == nil {
		return existing, nil
	} else if err != store.ErrNotFound {
		return nil, err
	}

	plan, err := e.catalog.GetPlan(planID)
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", planID, err)
	}
	if sourceURL == "" {
		sourceURL = plan.SourceURL
	}
	if interval != db.IntervalWeekly && interval != db.IntervalManual {
		interval = db.IntervalDaily
	}

	task := &db.MonitorTask{
		ID:            idgen.New(),
		PlanID:        planID,
		SourceURL:     sourceURL,
		Enabled:       true,
		CheckInterval: interval,
		Status:        db.MonitorIdle,
		CreatedAt:     e.now(),
	}
	if err := e.tasks.CreateTask(task); err != nil {
		return nil, err
	}

	entry := &db.PriceHistoryEntry{
		ID:            idgen.New(),
		PlanID:        planID,
		Price:         plan.PriceDiscount,
		OriginalPrice: plan.PriceOriginal,
		RecordedAt:    e.now(),
		Source:        db.SourceManual,
	}
	if err := e.tasks.AppendHistory(entry, MaxHistoryPerPlan); err != nil {
		e.log.WithError(err).WithField("plan_id", planID).Warn("failed to record baseline price")
	}

	e.log.WithFields(logrus.Fields{"plan_id": planID, "interval": interval}).Info("monitor task added")
	return task, nil
}

// RemoveTask deletes a watch.
func (e *Engine) RemoveTask(id string) error {
	return e.tasks.DeleteTask(id)
}

// ToggleTask flips a watch on or off.
func (e *Engine) ToggleTask(id string) (*db.MonitorTask, error) {
	task, err := e.tasks.GetTask(id)
	if err != nil {
		return nil, err
	}
	if err := e.tasks.UpdateTask(id, map[string]interface{}{"enabled": !task.Enabled}); err != nil {
		return nil, err
	}
	return e.tasks.GetTask(id)
}

// SetInterval changes how often a watch is checked.
func (e *Engine) SetInterval(id string, interval db.CheckInterval) error {
	if interval != db.IntervalDaily && interval != db.IntervalWeekly && interval != db.IntervalManual {
		return fmt.Errorf("invalid interval %q", interval)
	}
	return e.tasks.UpdateTask(id, map[string]interface{}{"check_interval": interval})
}

// Tasks lists all watches.
func (e *Engine) Tasks() ([]db.MonitorTask, error) {
	return e.tasks.ListTasks()
}

// History returns a plan's price history, oldest first.
func (e *Engine) History(planID string) ([]db.PriceHistoryEntry, error) {
	return e.tasks.ListHistory(planID)
}

// Changes returns recent change events, newest first.
func (e *Engine) Changes() ([]db.PriceChangeEvent, error) {
	return e.tasks.ListChanges()
}

// CheckOne re-scrapes one watched URL and records the observed price.
// Every successful check appends a history entry; a change event is
// emitted only when both old and new prices are real and they differ.
func (e *Engine) CheckOne(ctx context.Context, taskID string) (*db.MonitorTask, error) {
	task, err := e.tasks.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	if err := e.tasks.UpdateTask(taskID, map[string]interface{}{"status": db.MonitorChecking}); err != nil {
		return nil, err
	}

	job := &db.ScrapeJob{ID: idgen.New(), URL: task.SourceURL, Status: db.JobPending}
	if err := e.jobs.CreateJob(job); err != nil {
		e.log.WithError(err).Warn("failed to create monitor job record")
	}

	result := e.runner.Run(ctx, job)
	checkedAt := e.now()

	if !result.Success {
		updates := map[string]interface{}{
			"status":          db.MonitorError,
			"last_checked_at": &checkedAt,
			"error_message":   result.Err,
		}
		if err := e.tasks.UpdateTask(taskID, updates); err != nil {
			return nil, err
		}
		e.log.WithFields(logrus.Fields{"task_id": taskID, "url": task.SourceURL}).
			WithField("error", result.Err).Warn("monitor check failed")
		return e.tasks.GetTask(taskID)
	}

	newPrice := result.Data.PriceDiscount
	oldPrice, err := e.catalog.CurrentPrice(task.PlanID)
	if err != nil {
		oldPrice = 0
	}

	entry := &db.PriceHistoryEntry{
		ID:            idgen.New(),
		PlanID:        task.PlanID,
		Price:         newPrice,
		OriginalPrice: result.Data.PriceOriginal,
		RecordedAt:    checkedAt,
		Source:        db.SourceScrape,
	}
	if err := e.tasks.AppendHistory(entry, MaxHistoryPerPlan); err != nil {
		e.log.WithError(err).Warn("failed to append price history")
	}

	updates := map[string]interface{}{
		"status":          db.MonitorIdle,
		"last_checked_at": &checkedAt,
		"error_message":   "",
	}

	if newPrice != oldPrice && newPrice > 0 && oldPrice != 0 {
		e.recordChange(task, oldPrice, newPrice, checkedAt)
		updates["status"] = db.MonitorChanged
		updates["last_change_at"] = &checkedAt
	}

	if err := e.tasks.UpdateTask(taskID, updates); err != nil {
		return nil, err
	}
	return e.tasks.GetTask(taskID)
}

func (e *Engine) recordChange(task *db.MonitorTask, oldPrice, newPrice int, at time.Time) {
	plan, err := e.catalog.GetPlan(task.PlanID)
	if err != nil {
		e.log.WithError(err).WithField("plan_id", task.PlanID).Warn("change event without plan")
		plan = &db.Plan{ID: task.PlanID}
	}

	percent := int(math.Round(float64(newPrice-oldPrice) / float64(oldPrice) * 100))
	changeType := db.ChangeIncrease
	if newPrice < oldPrice {
		changeType = db.ChangeDrop
	}

	event := &db.PriceChangeEvent{
		ID:            idgen.New(),
		PlanID:        task.PlanID,
		PlanTitle:     plan.Title,
		VendorName:    plan.VendorName,
		OldPrice:      oldPrice,
		NewPrice:      newPrice,
		ChangePercent: percent,
		ChangeType:    changeType,
		DetectedAt:    at,
	}
	if err := e.tasks.AppendChange(event, MaxChangeEvents); err != nil {
		e.log.WithError(err).Warn("failed to append change event")
	}

	if err := e.catalog.UpdatePlan(task.PlanID, map[string]interface{}{
		"price_discount": newPrice,
	}); err != nil {
		e.log.WithError(err).Warn("failed to update plan price")
	}

	msg := fmt.Sprintf("%s：%d → %d (%+d%%)", plan.Title, oldPrice, newPrice, percent)
	if e.notifier != nil {
		if changeType == db.ChangeDrop {
			e.notifier.PriceDrop(task.PlanID, "價格下降", msg)
		} else {
			e.notifier.PriceIncrease(task.PlanID, "價格上漲", msg)
		}
	}

	e.log.WithFields(logrus.Fields{
		"plan_id":   task.PlanID,
		"old_price": oldPrice,
		"new_price": newPrice,
		"percent":   percent,
	}).Info("price change detected")
}

// CheckAll sweeps every enabled watch sequentially. One failing check
// does not stop the sweep. Returns the number of checks attempted.
func (e *Engine) CheckAll(ctx context.Context) (int, error) {
	tasks, err := e.tasks.ListTasks()
	if err != nil {
		return 0, err
	}

	checked := 0
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		if ctx.Err() != nil {
			return checked, ctx.Err()
		}
		if checked > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return checked, ctx.Err()
			}
		}
		if _, err := e.CheckOne(ctx, task.ID); err != nil {
			e.log.WithError(err).WithField("task_id", task.ID).Warn("monitor check errored")
		}
		checked++
	}
	return checked, nil
}

// due reports whether a task's interval has elapsed since its last check.
func due(task *db.MonitorTask, now time.Time) bool {
	var period time.Duration
	switch task.CheckInterval {
	case db.IntervalDaily:
		period = 24 * time.Hour
	case db.IntervalWeekly:
		period = 7 * 24 * time.Hour
	default: // manual tasks are only checked on demand
		return false
	}
	return task.LastCheckedAt == nil || now.Sub(*task.LastCheckedAt) >= period
}

// StartScheduler wakes up on every tick and checks watches whose
// interval has elapsed.
func (e *Engine) StartScheduler(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Hour
	}
	go func() {
		e.log.WithField("tick", tick.String()).Info("monitor scheduler started")
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.log.Info("monitor scheduler stopped")
				return
			case <-ticker.C:
				e.sweepDue(ctx)
			}
		}
	}()
}

func (e *Engine) sweepDue(ctx context.Context) {
	tasks, err := e.tasks.ListTasks()
	if err != nil {
		e.log.WithError(err).Warn("scheduler could not list tasks")
		return
	}
	now := e.now()
	ran := 0
	for _, task := range tasks {
		if !task.Enabled || !due(&task, now) {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if ran > 0 {
			select {
			case <-time.After(e.delay):
			case <-ctx.Done():
				return
			}
		}
		if _, err := e.CheckOne(ctx, task.ID); err != nil {
			e.log.WithError(err).WithField("task_id", task.ID).Warn("scheduled check errored")
		}
		ran++
	}
}
