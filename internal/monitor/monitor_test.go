package monitor

import (
	"context"
	"io"
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

// priceRunner returns a scripted price per URL.
type priceRunner struct {
	prices map[string]int
	fail   map[string]bool
	runs   int
}

func (r *priceRunner) Run(_ context.Context, job *db.ScrapeJob) pipeline.Result {
	r.runs++
	if r.fail[job.URL] {
		return pipeline.Result{Success: false, Err: "scripted failure"}
	}
	return pipeline.Result{Success: true, Data: &pipeline.PlanFields{
		Title:         "套餐",
		PriceDiscount: r.prices[job.URL],
	}}
}

// recordingNotifier captures dispatched notifications.
type recordingNotifier struct {
	drops     []string
	increases []string
	errors    []string
}

func (n *recordingNotifier) PriceDrop(planID, _, _ string)     { n.drops = append(n.drops, planID) }
func (n *recordingNotifier) PriceIncrease(planID, _, _ string) { n.increases = append(n.increases, planID) }
func (n *recordingNotifier) Error(title, _ string)             { n.errors = append(n.errors, title) }

func seedPlan(t *testing.T, mem *store.Memory, id string, price int) *db.Plan {
	t.Helper()
	plan := &db.Plan{
		ID:            id,
		Title:         "紅燒蹄膀套餐",
		VendorName:    "福容",
		PriceDiscount: price,
		PriceOriginal: price + 500,
		SourceURL:     "https://example.com/" + id,
		Status:        db.PlanPublished,
	}
	if err := mem.CreatePlan(plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	return plan
}

func newTestEngine(t *testing.T, mem *store.Memory, runner JobRunner, notifier Notifier) *Engine {
	t.Helper()
	return NewEngine(mem, mem, mem, runner, notifier, time.Millisecond, quietLogger())
}

func TestAddTaskRecordsBaselineAndIsUniquePerPlan(t *testing.T) {
	mem := store.NewMemory()
	plan := seedPlan(t, mem, "plan-1", 5000)
	engine := newTestEngine(t, mem, &priceRunner{}, nil)

	task, err := engine.AddTask(plan.ID, "", db.IntervalDaily)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	if task.SourceURL != plan.SourceURL {
		t.Errorf("task source url = %q; want plan's", task.SourceURL)
	}

	history, err := engine.History(plan.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 || history[0].Price != 5000 || history[0].Source != db.SourceManual {
		t.Errorf("baseline history = %+v; want one manual entry at 5000", history)
	}

	again, err := engine.AddTask(plan.ID, "", db.IntervalDaily)
	if err != nil {
		t.Fatalf("second AddTask: %v", err)
	}
	if again.ID != task.ID {
		t.Errorf("second AddTask created a new task")
	}
}

func TestCheckOneDetectsPriceDrop(t *testing.T) {
	mem := store.NewMemory()
	plan := seedPlan(t, mem, "plan-1", 5000)
	runner := &priceRunner{prices: map[string]int{plan.SourceURL: 4500}}
	notifier := &recordingNotifier{}
	engine := newTestEngine(t, mem, runner, notifier)

	task, _ := engine.AddTask(plan.ID, "", db.IntervalDaily)

	checked, err := engine.CheckOne(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("CheckOne: %v", err)
	}
	if checked.Status != db.MonitorChanged {
		t.Errorf("task status = %s; want changed", checked.Status)
	}
	if checked.LastChangeAt == nil {
		t.Errorf("last change at not set")
	}

	changes, _ := engine.Changes()
	if len(changes) != 1 {
		t.Fatalf("changes = %d; want 1", len(changes))
	}
	event := changes[0]
	if event.OldPrice != 5000 || event.NewPrice != 4500 {
		t.Errorf("event prices = %d -> %d; want 5000 -> 4500", event.OldPrice, event.NewPrice)
	}
	if event.ChangePercent != -10 {
		t.Errorf("change percent = %d; want -10", event.ChangePercent)
	}
	if event.ChangeType != db.ChangeDrop {
		t.Errorf("change type = %s; want drop", event.ChangeType)
	}

	if len(notifier.drops) != 1 || notifier.drops[0] != plan.ID {
		t.Errorf("drop notifications = %v; want [%s]", notifier.drops, plan.ID)
	}

	// The catalog price follows the observed price.
	if price, _ := mem.CurrentPrice(plan.ID); price != 4500 {
		t.Errorf("catalog price = %d; want 4500", price)
	}
}

func TestCheckOneSamePriceStaysIdle(t *testing.T) {
	mem := store.NewMemory()
	plan := seedPlan(t, mem, "plan-1", 5000)
	runner := &priceRunner{prices: map[string]int{plan.SourceURL: 5000}}
	engine := newTestEngine(t, mem, runner, &recordingNotifier{})

	task, _ := engine.AddTask(plan.ID, "", db.IntervalDaily)
	checked, err := engine.CheckOne(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("CheckOne: %v", err)
	}

	if checked.Status != db.MonitorIdle {
		t.Errorf("task status = %s; want idle", checked.Status)
	}
	if changes, _ := engine.Changes(); len(changes) != 0 {
		t.Errorf("changes = %d; want 0", len(changes))
	}
	// History still grows on every successful check.
	if history, _ := engine.History(plan.ID); len(history) != 2 {
		t.Errorf("history = %d entries; want 2", len(history))
	}
}

func TestCheckOneZeroBaselineRecordsHistoryOnly(t *testing.T) {
	mem := store.NewMemory()
	plan := seedPlan(t, mem, "plan-1", 0)
	runner := &priceRunner{prices: map[string]int{plan.SourceURL: 4500}}
	engine := newTestEngine(t, mem, runner, &recordingNotifier{})

	task, _ := engine.AddTask(plan.ID, "", db.IntervalDaily)
	checked, err := engine.CheckOne(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("CheckOne: %v", err)
	}

	// No baseline price means no change event, just a fresh data point.
	if checked.Status != db.MonitorIdle {
		t.Errorf("task status = %s; want idle", checked.Status)
	}
	if changes, _ := engine.Changes(); len(changes) != 0 {
		t.Errorf("changes = %d; want 0", len(changes))
	}
	history, _ := engine.History(plan.ID)
	if len(history) != 2 || history[1].Price != 4500 {
		t.Errorf("history = %+v; want scrape entry at 4500", history)
	}
}

func TestCheckOneScrapeFailureSetsError(t *testing.T) {
	mem := store.NewMemory()
	plan := seedPlan(t, mem, "plan-1", 5000)
	runner := &priceRunner{fail: map[string]bool{plan.SourceURL: true}}
	engine := newTestEngine(t, mem, runner, &recordingNotifier{})

	task, _ := engine.AddTask(plan.ID, "", db.IntervalDaily)
	checked, err := engine.CheckOne(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("CheckOne: %v", err)
	}

	if checked.Status != db.MonitorError {
		t.Errorf("task status = %s; want error", checked.Status)
	}
	if checked.ErrorMessage == "" {
		t.Errorf("error message not recorded")
	}
	if checked.LastCheckedAt == nil {
		t.Errorf("last checked at not set on failure")
	}
}

func TestCheckAllIsolatesFailures(t *testing.T) {
	mem := store.NewMemory()
	plan1 := seedPlan(t, mem, "plan-1", 5000)
	plan2 := seedPlan(t, mem, "plan-2", 3000)
	plan3 := seedPlan(t, mem, "plan-3", 2000)

	runner := &priceRunner{
		prices: map[string]int{
			plan1.SourceURL: 5000,
			plan3.SourceURL: 1800,
		},
		fail: map[string]bool{plan2.SourceURL: true},
	}
	engine := newTestEngine(t, mem, runner, &recordingNotifier{})

	engine.AddTask(plan1.ID, "", db.IntervalDaily)
	t2, _ := engine.AddTask(plan2.ID, "", db.IntervalDaily)
	engine.AddTask(plan3.ID, "", db.IntervalDaily)

	checked, err := engine.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if checked != 3 {
		t.Errorf("checked = %d; want 3", checked)
	}

	// The failing task reports error, the others complete normally.
	after2, _ := engine.Tasks()
	for _, task := range after2 {
		switch task.ID {
		case t2.ID:
			if task.Status != db.MonitorError {
				t.Errorf("failing task status = %s; want error", task.Status)
			}
		default:
			if task.Status == db.MonitorError || task.Status == db.MonitorChecking {
				t.Errorf("task %s status = %s; want settled", task.PlanID, task.Status)
			}
		}
	}

	if changes, _ := engine.Changes(); len(changes) != 1 {
		t.Errorf("changes = %d; want 1 (plan-3 drop)", len(changes))
	}
}

func TestCheckAllSkipsDisabledTasks(t *testing.T) {
	mem := store.NewMemory()
	plan := seedPlan(t, mem, "plan-1", 5000)
	runner := &priceRunner{prices: map[string]int{plan.SourceURL: 5000}}
	engine := newTestEngine(t, mem, runner, &recordingNotifier{})

	task, _ := engine.AddTask(plan.ID, "", db.IntervalDaily)
	if _, err := engine.ToggleTask(task.ID); err != nil {
		t.Fatalf("ToggleTask: %v", err)
	}

	checked, err := engine.CheckAll(context.Background())
	if err != nil {
		t.Fatalf("CheckAll: %v", err)
	}
	if checked != 0 || runner.runs != 0 {
		t.Errorf("checked=%d runs=%d; want 0/0 for disabled task", checked, runner.runs)
	}
}

func TestDue(t *testing.T) {
	now := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	dayAgo := now.Add(-25 * time.Hour)
	hourAgo := now.Add(-time.Hour)

	tests := []struct {
		name     string
		interval db.CheckInterval
		last     *time.Time
		want     bool
	}{
		{"daily never checked", db.IntervalDaily, nil, true},
		{"daily stale", db.IntervalDaily, &dayAgo, true},
		{"daily fresh", db.IntervalDaily, &hourAgo, false},
		{"weekly stale by a day only", db.IntervalWeekly, &dayAgo, false},
		{"manual never due", db.IntervalManual, nil, false},
	}

	for _, tt := range tests {
		task := &db.MonitorTask{CheckInterval: tt.interval, LastCheckedAt: tt.last}
		if got := due(task, now); got != tt.want {
			t.Errorf("%s: due() = %v; want %v", tt.name, got, tt.want)
		}
	}
}
