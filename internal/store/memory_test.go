package store

import (
	"fmt"
	"testing"
	"time"

	"github.com/mealwatch/plan-scraper/internal/db"
)

func TestMemoryJobUpdateAndStats(t *testing.T) {
	m := NewMemory()

	for i := 0; i < 3; i++ {
		job := &db.ScrapeJob{ID: fmt.Sprintf("job-%d", i), URL: "https://example.com", Status: db.JobPending}
		if err := m.CreateJob(job); err != nil {
			t.Fatalf("CreateJob: %v", err)
		}
	}

	started := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	completed := started.Add(3 * time.Second)
	err := m.UpdateJob("job-0", map[string]interface{}{
		"status":       db.JobSuccess,
		"started_at":   &started,
		"completed_at": &completed,
		"duration_ms":  int64(3000),
		"vendor_name":  "福容",
		"raw_content":  "內容",
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if err := m.UpdateJob("job-1", map[string]interface{}{"status": db.JobFailed, "error": "boom"}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	job, err := m.GetJob("job-0")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != db.JobSuccess || job.DurationMs != 3000 || job.VendorName != "福容" {
		t.Errorf("updated job = %+v", job)
	}
	if job.StartedAt == nil || !job.StartedAt.Equal(started) {
		t.Errorf("started at = %v; want %v", job.StartedAt, started)
	}

	stats, err := m.JobStats()
	if err != nil {
		t.Fatalf("JobStats: %v", err)
	}
	if stats.TotalJobs != 3 || stats.SuccessJobs != 1 || stats.FailedJobs != 1 {
		t.Errorf("stats = %+v; want 3/1/1", stats)
	}

	if err := m.UpdateJob("missing", map[string]interface{}{"status": db.JobFailed}); err != ErrNotFound {
		t.Errorf("UpdateJob(missing) = %v; want ErrNotFound", err)
	}
}

func TestMemoryListJobsFilterAndPagination(t *testing.T) {
	m := NewMemory()
	for i := 0; i < 5; i++ {
		status := db.JobSuccess
		if i%2 == 1 {
			status = db.JobFailed
		}
		m.CreateJob(&db.ScrapeJob{ID: fmt.Sprintf("job-%d", i), Status: status})
		time.Sleep(time.Millisecond)
	}

	all, total, err := m.ListJobs("", 0, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if total != 5 || len(all) != 5 {
		t.Fatalf("ListJobs all = %d/%d; want 5/5", len(all), total)
	}
	// Newest first.
	if all[0].ID != "job-4" {
		t.Errorf("first job = %s; want job-4", all[0].ID)
	}

	failed, total, err := m.ListJobs(db.JobFailed, 1, 1)
	if err != nil {
		t.Fatalf("ListJobs filtered: %v", err)
	}
	if total != 2 {
		t.Errorf("failed total = %d; want 2", total)
	}
	if len(failed) != 1 || failed[0].ID != "job-1" {
		t.Errorf("failed page = %+v; want [job-1]", failed)
	}
}

func TestMemoryHistoryCapPerPlan(t *testing.T) {
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 35; i++ {
		entry := &db.PriceHistoryEntry{
			ID:         fmt.Sprintf("h-%d", i),
			PlanID:     "plan-1",
			Price:      1000 + i,
			RecordedAt: base.Add(time.Duration(i) * time.Hour),
			Source:     db.SourceScrape,
		}
		if err := m.AppendHistory(entry, 30); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}
	// A second plan must not be affected by plan-1's eviction.
	m.AppendHistory(&db.PriceHistoryEntry{ID: "other", PlanID: "plan-2", Price: 500, RecordedAt: base}, 30)

	history, err := m.ListHistory("plan-1")
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(history) != 30 {
		t.Fatalf("history = %d entries; want 30", len(history))
	}
	// Oldest five evicted: first surviving entry is h-5, and order is
	// oldest first.
	if history[0].ID != "h-5" || history[29].ID != "h-34" {
		t.Errorf("history range = %s..%s; want h-5..h-34", history[0].ID, history[29].ID)
	}

	other, _ := m.ListHistory("plan-2")
	if len(other) != 1 {
		t.Errorf("plan-2 history = %d; want 1", len(other))
	}
}

func TestMemoryChangeEventCap(t *testing.T) {
	m := NewMemory()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 105; i++ {
		event := &db.PriceChangeEvent{
			ID:         fmt.Sprintf("c-%d", i),
			PlanID:     "plan-1",
			DetectedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := m.AppendChange(event, 100); err != nil {
			t.Fatalf("AppendChange: %v", err)
		}
	}

	changes, err := m.ListChanges()
	if err != nil {
		t.Fatalf("ListChanges: %v", err)
	}
	if len(changes) != 100 {
		t.Fatalf("changes = %d; want 100", len(changes))
	}
	// Newest first; the five oldest are gone.
	if changes[0].ID != "c-104" || changes[99].ID != "c-5" {
		t.Errorf("changes range = %s..%s; want c-104..c-5", changes[0].ID, changes[99].ID)
	}
}

func TestMemoryUserStore(t *testing.T) {
	m := NewMemory()

	if _, err := m.UserByUsername("admin"); err != ErrNotFound {
		t.Errorf("UserByUsername(missing) = %v; want ErrNotFound", err)
	}

	u := &db.User{Username: "admin", Password: "hash"}
	if err := m.CreateUser(u); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.ID == 0 {
		t.Errorf("user id not assigned")
	}

	got, err := m.UserByUsername("admin")
	if err != nil {
		t.Fatalf("UserByUsername: %v", err)
	}
	if got.Username != "admin" {
		t.Errorf("user = %+v", got)
	}
}
