// Package store defines the repository interfaces the core components
// talk to, with a gorm-backed implementation for production and an
// in-memory implementation for tests.
package store

import (
	"errors"

	"github.com/mealwatch/plan-scraper/internal/db"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// JobStats summarizes scrape job outcomes.
type JobStats struct {
	TotalJobs   int64 `json:"totalJobs"`
	SuccessJobs int64 `json:"successJobs"`
	FailedJobs  int64 `json:"failedJobs"`
}

// JobStore persists scrape job records.
type JobStore interface {
	CreateJob(job *db.ScrapeJob) error
	// UpdateJob applies column updates to one job. Keys are gorm column
	// names (snake_case).
	UpdateJob(id string, updates map[string]interface{}) error
	GetJob(id string) (*db.ScrapeJob, error)
	// ListJobs returns jobs newest-first. An empty status matches all;
	// limit <= 0 disables pagination.
	ListJobs(status db.JobStatus, limit, offset int) ([]db.ScrapeJob, int64, error)
	DeleteJob(id string) error
	ClearJobs() error
	JobStats() (*JobStats, error)
}

// QueueStore mirrors the in-memory queue for restart survival.
type QueueStore interface {
	SaveItem(item *db.QueueItem) error
	ListItems() ([]db.QueueItem, error)
	DeleteItem(id string) error
	ClearItems() error
}

// MonitorStore persists monitor tasks, price history and change events.
type MonitorStore interface {
	CreateTask(task *db.MonitorTask) error
	UpdateTask(id string, updates map[string]interface{}) error
	GetTask(id string) (*db.MonitorTask, error)
	GetTaskByPlan(planID string) (*db.MonitorTask, error)
	ListTasks() ([]db.MonitorTask, error)
	DeleteTask(id string) error

	// AppendHistory inserts an entry and evicts the oldest entries for
	// the plan beyond max.
	AppendHistory(entry *db.PriceHistoryEntry, max int) error
	ListHistory(planID string) ([]db.PriceHistoryEntry, error)

	// AppendChange inserts an event and evicts the oldest beyond max.
	AppendChange(event *db.PriceChangeEvent, max int) error
	ListChanges() ([]db.PriceChangeEvent, error)
}

// NotificationStore persists the capped notification list.
type NotificationStore interface {
	Append(n *db.Notification, max int) error
	List() ([]db.Notification, error)
	MarkRead(id string) error
	MarkAllRead() error
	Clear() error
	UnreadCount() (int64, error)
}

// CatalogStore is the boundary to the persisted plan catalog.
type CatalogStore interface {
	CreatePlan(p *db.Plan) error
	UpdatePlan(id string, updates map[string]interface{}) error
	GetPlan(id string) (*db.Plan, error)
	ListPlans() ([]db.Plan, error)
	// CurrentPrice returns the stored discount price for a plan.
	CurrentPrice(planID string) (int, error)
}

// SettingsStore persists retry settings, domain rules and vendor configs.
type SettingsStore interface {
	RetrySettings() (*db.RetrySettingsRecord, error)
	SaveRetrySettings(r *db.RetrySettingsRecord) error
	ListDomainRules() ([]db.DomainRule, error)
	SaveDomainRule(rule *db.DomainRule) error
	DeleteDomainRule(id string) error
	ListVendorConfigs() ([]db.VendorConfig, error)
	SaveVendorConfig(cfg *db.VendorConfig) error
	DeleteVendorConfig(id string) error
}

// UserStore persists admin users.
type UserStore interface {
	CreateUser(u *db.User) error
	UserByUsername(username string) (*db.User, error)
}
