package store

import (
	"sort"
	"sync"
	"time"

	"github.com/mealwatch/plan-scraper/internal/db"
)

// Memory implements every store interface in process memory. It backs
// tests and mirrors the update semantics of the gorm store: UpdateX
// methods take gorm column names.
type Memory struct {
	mu sync.Mutex

	jobs    []db.ScrapeJob
	items   []db.QueueItem
	tasks   []db.MonitorTask
	history []db.PriceHistoryEntry
	changes []db.PriceChangeEvent
	notifs  []db.Notification
	plans   []db.Plan
	users   []db.User

	retry   *db.RetrySettingsRecord
	rules   []db.DomainRule
	configs []db.VendorConfig
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// ----- JobStore -----

func (m *Memory) CreateJob(job *db.ScrapeJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	job.CreatedAt = now
	job.UpdatedAt = now
	m.jobs = append(m.jobs, *job)
	return nil
}

func (m *Memory) UpdateJob(id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.jobs {
		if m.jobs[i].ID != id {
			continue
		}
		applyJobUpdates(&m.jobs[i], updates)
		m.jobs[i].UpdatedAt = time.Now()
		return nil
	}
	return ErrNotFound
}

func applyJobUpdates(job *db.ScrapeJob, updates map[string]interface{}) {
	for key, val := range updates {
		switch key {
		case "status":
			job.Status = toJobStatus(val)
		case "vendor_name":
			job.VendorName = val.(string)
		case "started_at":
			job.StartedAt = toTimePtr(val)
		case "completed_at":
			job.CompletedAt = toTimePtr(val)
		case "duration_ms":
			job.DurationMs = toInt64(val)
		case "error":
			job.Error = val.(string)
		case "extracted_data":
			job.ExtractedData = val.(string)
		case "raw_content":
			job.RawContent = val.(string)
		case "images":
			job.Images = val.(string)
		case "ocr_text":
			job.OCRText = val.(string)
		}
	}
}

func (m *Memory) GetJob(id string) (*db.ScrapeJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.jobs {
		if m.jobs[i].ID == id {
			job := m.jobs[i]
			return &job, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListJobs(status db.JobStatus, limit, offset int) ([]db.ScrapeJob, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.ScrapeJob
	for _, job := range m.jobs {
		if status == "" || job.Status == status {
			out = append(out, job)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	total := int64(len(out))
	if limit > 0 {
		if offset > len(out) {
			offset = len(out)
		}
		end := offset + limit
		if end > len(out) {
			end = len(out)
		}
		out = out[offset:end]
	}
	return out, total, nil
}

func (m *Memory) DeleteJob(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.jobs {
		if m.jobs[i].ID == id {
			m.jobs = append(m.jobs[:i], m.jobs[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ClearJobs() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs = nil
	return nil
}

func (m *Memory) JobStats() (*JobStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &JobStats{TotalJobs: int64(len(m.jobs))}
	for _, job := range m.jobs {
		switch job.Status {
		case db.JobSuccess:
			stats.SuccessJobs++
		case db.JobFailed:
			stats.FailedJobs++
		}
	}
	return stats, nil
}

// ----- QueueStore -----

func (m *Memory) SaveItem(item *db.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == item.ID {
			m.items[i] = *item
			return nil
		}
	}
	m.items = append(m.items, *item)
	return nil
}

func (m *Memory) ListItems() ([]db.QueueItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.QueueItem, len(m.items))
	copy(out, m.items)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AddedAt.Before(out[j].AddedAt)
	})
	return out, nil
}

func (m *Memory) DeleteItem(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.items {
		if m.items[i].ID == id {
			m.items = append(m.items[:i], m.items[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ClearItems() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	return nil
}

// ----- MonitorStore -----

func (m *Memory) CreateTask(task *db.MonitorTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	task.CreatedAt = time.Now()
	m.tasks = append(m.tasks, *task)
	return nil
}

func (m *Memory) UpdateTask(id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID != id {
			continue
		}
		applyTaskUpdates(&m.tasks[i], updates)
		return nil
	}
	return ErrNotFound
}

func applyTaskUpdates(task *db.MonitorTask, updates map[string]interface{}) {
	for key, val := range updates {
		switch key {
		case "status":
			task.Status = toMonitorStatus(val)
		case "enabled":
			task.Enabled = val.(bool)
		case "check_interval":
			task.CheckInterval = toCheckInterval(val)
		case "last_checked_at":
			task.LastCheckedAt = toTimePtr(val)
		case "last_change_at":
			task.LastChangeAt = toTimePtr(val)
		case "error_message":
			task.ErrorMessage = val.(string)
		}
	}
}

func (m *Memory) GetTask(id string) (*db.MonitorTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			task := m.tasks[i]
			return &task, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) GetTaskByPlan(planID string) (*db.MonitorTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].PlanID == planID {
			task := m.tasks[i]
			return &task, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListTasks() ([]db.MonitorTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.MonitorTask, len(m.tasks))
	copy(out, m.tasks)
	return out, nil
}

func (m *Memory) DeleteTask(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tasks {
		if m.tasks[i].ID == id {
			m.tasks = append(m.tasks[:i], m.tasks[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) AppendHistory(entry *db.PriceHistoryEntry, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *entry)

	var forPlan []int
	for i := range m.history {
		if m.history[i].PlanID == entry.PlanID {
			forPlan = append(forPlan, i)
		}
	}
	if over := len(forPlan) - max; over > 0 {
		// Entries are append-ordered, so the first indexes are oldest.
		drop := make(map[int]bool, over)
		for _, i := range forPlan[:over] {
			drop[i] = true
		}
		kept := m.history[:0]
		for i := range m.history {
			if !drop[i] {
				kept = append(kept, m.history[i])
			}
		}
		m.history = kept
	}
	return nil
}

func (m *Memory) ListHistory(planID string) ([]db.PriceHistoryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.PriceHistoryEntry
	for _, e := range m.history {
		if e.PlanID == planID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RecordedAt.Before(out[j].RecordedAt)
	})
	return out, nil
}

func (m *Memory) AppendChange(event *db.PriceChangeEvent, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.changes = append(m.changes, *event)
	if over := len(m.changes) - max; over > 0 {
		m.changes = m.changes[over:]
	}
	return nil
}

func (m *Memory) ListChanges() ([]db.PriceChangeEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.PriceChangeEvent, len(m.changes))
	copy(out, m.changes)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}

// ----- NotificationStore -----

func (m *Memory) Append(n *db.Notification, max int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifs = append(m.notifs, *n)
	if over := len(m.notifs) - max; over > 0 {
		m.notifs = m.notifs[over:]
	}
	return nil
}

func (m *Memory) List() ([]db.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.Notification, len(m.notifs))
	copy(out, m.notifs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) MarkRead(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifs {
		if m.notifs[i].ID == id {
			m.notifs[i].Read = true
			return nil
		}
	}
	return ErrNotFound
}

func (m *Memory) MarkAllRead() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.notifs {
		m.notifs[i].Read = true
	}
	return nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifs = nil
	return nil
}

func (m *Memory) UnreadCount() (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, n := range m.notifs {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

// ----- CatalogStore -----

func (m *Memory) CreatePlan(p *db.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	p.CreatedAt = now
	p.UpdatedAt = now
	m.plans = append(m.plans, *p)
	return nil
}

func (m *Memory) UpdatePlan(id string, updates map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.plans {
		if m.plans[i].ID != id {
			continue
		}
		for key, val := range updates {
			switch key {
			case "price_discount":
				m.plans[i].PriceDiscount = toInt(val)
			case "price_original":
				m.plans[i].PriceOriginal = toInt(val)
			case "status":
				m.plans[i].Status = db.PlanStatus(val.(string))
			case "title":
				m.plans[i].Title = val.(string)
			case "vendor_name":
				m.plans[i].VendorName = val.(string)
			}
		}
		m.plans[i].UpdatedAt = time.Now()
		return nil
	}
	return ErrNotFound
}

func (m *Memory) GetPlan(id string) (*db.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.plans {
		if m.plans[i].ID == id {
			plan := m.plans[i]
			return &plan, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) ListPlans() ([]db.Plan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.Plan, len(m.plans))
	copy(out, m.plans)
	return out, nil
}

func (m *Memory) CurrentPrice(planID string) (int, error) {
	plan, err := m.GetPlan(planID)
	if err != nil {
		return 0, err
	}
	return plan.PriceDiscount, nil
}

// ----- SettingsStore -----

func (m *Memory) RetrySettings() (*db.RetrySettingsRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retry == nil {
		return nil, ErrNotFound
	}
	rec := *m.retry
	return &rec, nil
}

func (m *Memory) SaveRetrySettings(r *db.RetrySettingsRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := *r
	m.retry = &rec
	return nil
}

func (m *Memory) ListDomainRules() ([]db.DomainRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.DomainRule, len(m.rules))
	copy(out, m.rules)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) SaveDomainRule(rule *db.DomainRule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}
	for i := range m.rules {
		if m.rules[i].ID == rule.ID {
			m.rules[i] = *rule
			return nil
		}
	}
	m.rules = append(m.rules, *rule)
	return nil
}

func (m *Memory) DeleteDomainRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.rules {
		if m.rules[i].ID == id {
			m.rules = append(m.rules[:i], m.rules[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Memory) ListVendorConfigs() ([]db.VendorConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]db.VendorConfig, len(m.configs))
	copy(out, m.configs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) SaveVendorConfig(cfg *db.VendorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now()
	}
	for i := range m.configs {
		if m.configs[i].ID == cfg.ID {
			m.configs[i] = *cfg
			return nil
		}
	}
	m.configs = append(m.configs, *cfg)
	return nil
}

func (m *Memory) DeleteVendorConfig(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.configs {
		if m.configs[i].ID == id {
			m.configs = append(m.configs[:i], m.configs[i+1:]...)
			return nil
		}
	}
	return nil
}

// ----- UserStore -----

func (m *Memory) CreateUser(u *db.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.ID = uint(len(m.users) + 1)
	u.CreatedAt = time.Now()
	m.users = append(m.users, *u)
	return nil
}

func (m *Memory) UserByUsername(username string) (*db.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Username == username {
			user := m.users[i]
			return &user, nil
		}
	}
	return nil, ErrNotFound
}

// ----- conversion helpers -----

func toTimePtr(val interface{}) *time.Time {
	switch v := val.(type) {
	case nil:
		return nil
	case time.Time:
		return &v
	case *time.Time:
		return v
	}
	return nil
}

func toInt64(val interface{}) int64 {
	switch v := val.(type) {
	case int:
		return int64(v)
	case int64:
		return v
	}
	return 0
}

func toInt(val interface{}) int {
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func toJobStatus(val interface{}) db.JobStatus {
	switch v := val.(type) {
	case db.JobStatus:
		return v
	case string:
		return db.JobStatus(v)
	}
	return ""
}

func toMonitorStatus(val interface{}) db.MonitorStatus {
	switch v := val.(type) {
	case db.MonitorStatus:
		return v
	case string:
		return db.MonitorStatus(v)
	}
	return ""
}

func toCheckInterval(val interface{}) db.CheckInterval {
	switch v := val.(type) {
	case db.CheckInterval:
		return v
	case string:
		return db.CheckInterval(v)
	}
	return ""
}
