package store

import (
	"errors"

	"gorm.io/gorm"

	"github.com/mealwatch/plan-scraper/internal/db"
)

// Gorm implements every store interface on top of a gorm connection.
type Gorm struct {
	db *gorm.DB
}

// NewGorm creates a gorm-backed store.
func NewGorm(conn *gorm.DB) *Gorm {
	return &Gorm{db: conn}
}

func wrapNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// ----- JobStore -----

func (s *Gorm) CreateJob(job *db.ScrapeJob) error {
	return s.db.Create(job).Error
}

func (s *Gorm) UpdateJob(id string, updates map[string]interface{}) error {
	return s.db.Model(&db.ScrapeJob{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Gorm) GetJob(id string) (*db.ScrapeJob, error) {
	var job db.ScrapeJob
	if err := s.db.First(&job, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &job, nil
}

func (s *Gorm) ListJobs(status db.JobStatus, limit, offset int) ([]db.ScrapeJob, int64, error) {
	query := s.db.Model(&db.ScrapeJob{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}

	var jobs []db.ScrapeJob
	if err := query.Find(&jobs).Error; err != nil {
		return nil, 0, err
	}
	return jobs, total, nil
}

func (s *Gorm) DeleteJob(id string) error {
	return s.db.Delete(&db.ScrapeJob{}, "id = ?", id).Error
}

func (s *Gorm) ClearJobs() error {
	return s.db.Where("1 = 1").Delete(&db.ScrapeJob{}).Error
}

func (s *Gorm) JobStats() (*JobStats, error) {
	stats := &JobStats{}
	if err := s.db.Model(&db.ScrapeJob{}).Count(&stats.TotalJobs).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.ScrapeJob{}).Where("status = ?", db.JobSuccess).Count(&stats.SuccessJobs).Error; err != nil {
		return nil, err
	}
	if err := s.db.Model(&db.ScrapeJob{}).Where("status = ?", db.JobFailed).Count(&stats.FailedJobs).Error; err != nil {
		return nil, err
	}
	return stats, nil
}

// ----- QueueStore -----

func (s *Gorm) SaveItem(item *db.QueueItem) error {
	return s.db.Save(item).Error
}

func (s *Gorm) ListItems() ([]db.QueueItem, error) {
	var items []db.QueueItem
	if err := s.db.Order("added_at asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Gorm) DeleteItem(id string) error {
	return s.db.Delete(&db.QueueItem{}, "id = ?", id).Error
}

func (s *Gorm) ClearItems() error {
	return s.db.Where("1 = 1").Delete(&db.QueueItem{}).Error
}

// ----- MonitorStore -----

func (s *Gorm) CreateTask(task *db.MonitorTask) error {
	return s.db.Create(task).Error
}

func (s *Gorm) UpdateTask(id string, updates map[string]interface{}) error {
	return s.db.Model(&db.MonitorTask{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Gorm) GetTask(id string) (*db.MonitorTask, error) {
	var task db.MonitorTask
	if err := s.db.First(&task, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &task, nil
}

func (s *Gorm) GetTaskByPlan(planID string) (*db.MonitorTask, error) {
	var task db.MonitorTask
	if err := s.db.First(&task, "plan_id = ?", planID).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &task, nil
}

func (s *Gorm) ListTasks() ([]db.MonitorTask, error) {
	var tasks []db.MonitorTask
	if err := s.db.Order("created_at asc").Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (s *Gorm) DeleteTask(id string) error {
	return s.db.Delete(&db.MonitorTask{}, "id = ?", id).Error
}

func (s *Gorm) AppendHistory(entry *db.PriceHistoryEntry, max int) error {
	if err := s.db.Create(entry).Error; err != nil {
		return err
	}
	// Evict the oldest entries beyond the cap for this plan.
	return s.db.Exec(`DELETE FROM price_history_entries WHERE plan_id = ? AND id NOT IN (
		SELECT id FROM price_history_entries WHERE plan_id = ? ORDER BY recorded_at DESC, id DESC LIMIT ?
	)`, entry.PlanID, entry.PlanID, max).Error
}

func (s *Gorm) ListHistory(planID string) ([]db.PriceHistoryEntry, error) {
	var entries []db.PriceHistoryEntry
	if err := s.db.Where("plan_id = ?", planID).Order("recorded_at asc").Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Gorm) AppendChange(event *db.PriceChangeEvent, max int) error {
	if err := s.db.Create(event).Error; err != nil {
		return err
	}
	return s.db.Exec(`DELETE FROM price_change_events WHERE id NOT IN (
		SELECT id FROM price_change_events ORDER BY detected_at DESC, id DESC LIMIT ?
	)`, max).Error
}

func (s *Gorm) ListChanges() ([]db.PriceChangeEvent, error) {
	var events []db.PriceChangeEvent
	if err := s.db.Order("detected_at desc").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// ----- NotificationStore -----

func (s *Gorm) Append(n *db.Notification, max int) error {
	if err := s.db.Create(n).Error; err != nil {
		return err
	}
	return s.db.Exec(`DELETE FROM notifications WHERE id NOT IN (
		SELECT id FROM notifications ORDER BY created_at DESC, id DESC LIMIT ?
	)`, max).Error
}

func (s *Gorm) List() ([]db.Notification, error) {
	var notifs []db.Notification
	if err := s.db.Order("created_at desc").Find(&notifs).Error; err != nil {
		return nil, err
	}
	return notifs, nil
}

func (s *Gorm) MarkRead(id string) error {
	return s.db.Model(&db.Notification{}).Where("id = ?", id).Update("read", true).Error
}

func (s *Gorm) MarkAllRead() error {
	return s.db.Model(&db.Notification{}).Where("read = ?", false).Update("read", true).Error
}

func (s *Gorm) Clear() error {
	return s.db.Where("1 = 1").Delete(&db.Notification{}).Error
}

func (s *Gorm) UnreadCount() (int64, error) {
	var count int64
	err := s.db.Model(&db.Notification{}).Where("read = ?", false).Count(&count).Error
	return count, err
}

// ----- CatalogStore -----

func (s *Gorm) CreatePlan(p *db.Plan) error {
	return s.db.Create(p).Error
}

func (s *Gorm) UpdatePlan(id string, updates map[string]interface{}) error {
	return s.db.Model(&db.Plan{}).Where("id = ?", id).Updates(updates).Error
}

func (s *Gorm) GetPlan(id string) (*db.Plan, error) {
	var plan db.Plan
	if err := s.db.First(&plan, "id = ?", id).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &plan, nil
}

func (s *Gorm) ListPlans() ([]db.Plan, error) {
	var plans []db.Plan
	if err := s.db.Order("created_at desc").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Gorm) CurrentPrice(planID string) (int, error) {
	plan, err := s.GetPlan(planID)
	if err != nil {
		return 0, err
	}
	return plan.PriceDiscount, nil
}

// ----- SettingsStore -----

func (s *Gorm) RetrySettings() (*db.RetrySettingsRecord, error) {
	var rec db.RetrySettingsRecord
	if err := s.db.First(&rec).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &rec, nil
}

func (s *Gorm) SaveRetrySettings(r *db.RetrySettingsRecord) error {
	r.ID = 1
	return s.db.Save(r).Error
}

func (s *Gorm) ListDomainRules() ([]db.DomainRule, error) {
	var rules []db.DomainRule
	if err := s.db.Order("created_at desc").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *Gorm) SaveDomainRule(rule *db.DomainRule) error {
	return s.db.Save(rule).Error
}

func (s *Gorm) DeleteDomainRule(id string) error {
	return s.db.Delete(&db.DomainRule{}, "id = ?", id).Error
}

func (s *Gorm) ListVendorConfigs() ([]db.VendorConfig, error) {
	var configs []db.VendorConfig
	if err := s.db.Order("created_at desc").Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}

func (s *Gorm) SaveVendorConfig(cfg *db.VendorConfig) error {
	return s.db.Save(cfg).Error
}

func (s *Gorm) DeleteVendorConfig(id string) error {
	return s.db.Delete(&db.VendorConfig{}, "id = ?", id).Error
}

// ----- UserStore -----

func (s *Gorm) CreateUser(u *db.User) error {
	return s.db.Create(u).Error
}

func (s *Gorm) UserByUsername(username string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, wrapNotFound(err)
	}
	return &user, nil
}
