package db

import "time"

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSuccess   JobStatus = "success"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

type QueuePriority string

const (
	PriorityHigh   QueuePriority = "high"
	PriorityNormal QueuePriority = "normal"
	PriorityLow    QueuePriority = "low"
)

type QueueStatus string

const (
	QueueQueued     QueueStatus = "queued"
	QueueProcessing QueueStatus = "processing"
	QueueDone       QueueStatus = "done"
	QueueFailed     QueueStatus = "failed"
)

type MonitorStatus string

const (
	MonitorIdle     MonitorStatus = "idle"
	MonitorChecking MonitorStatus = "checking"
	MonitorChanged  MonitorStatus = "changed"
	MonitorError    MonitorStatus = "error"
)

type CheckInterval string

const (
	IntervalDaily  CheckInterval = "daily"
	IntervalWeekly CheckInterval = "weekly"
	IntervalManual CheckInterval = "manual"
)

type NotificationType string

const (
	NotifyPriceDrop     NotificationType = "price_drop"
	NotifyPriceIncrease NotificationType = "price_increase"
	NotifyError         NotificationType = "error"
	NotifyInfo          NotificationType = "info"
)

type PriceSource string

const (
	SourceManual PriceSource = "manual"
	SourceScrape PriceSource = "scrape"
)

type ChangeType string

const (
	ChangeDrop     ChangeType = "drop"
	ChangeIncrease ChangeType = "increase"
)

type PlanStatus string

const (
	PlanDraft       PlanStatus = "draft"
	PlanPublished   PlanStatus = "published"
	PlanNeedsReview PlanStatus = "needs_review"
)

// ScrapeJob records one attempt to extract data from one URL. Artifacts
// (raw content, images, OCR text) are kept even on failure so a failed
// job stays diagnosable.
type ScrapeJob struct {
	ID            string     `gorm:"primaryKey;size:32" json:"id"`
	URL           string     `gorm:"not null;size:768;index" json:"url"`
	Status        JobStatus  `gorm:"index;default:'pending'" json:"status"`
	VendorName    string     `gorm:"size:255" json:"vendor_name"`
	StartedAt     *time.Time `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	DurationMs    int64      `json:"duration_ms"`
	Error         string     `json:"error"`
	ExtractedData string     `json:"extracted_data"` // JSON: PlanFields
	RawContent    string     `json:"raw_content"`    // capped at 50,000 chars
	Images        string     `json:"images"`         // JSON: []string, capped at 20
	OCRText       string     `json:"ocr_text"`       // capped at 30,000 chars
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// QueueItem is a schedulable, retryable unit of work. One item may spawn
// several ScrapeJob attempts before it is done or terminally failed.
type QueueItem struct {
	ID          string        `gorm:"primaryKey;size:32" json:"id"`
	URL         string        `gorm:"not null;size:768" json:"url"`
	Priority    QueuePriority `gorm:"index;default:'normal'" json:"priority"`
	Status      QueueStatus   `gorm:"index;default:'queued'" json:"status"`
	RetryCount  int           `json:"retry_count"`
	MaxRetries  int           `json:"max_retries"`
	AddedAt     time.Time     `json:"added_at"`
	NextRetryAt *time.Time    `json:"next_retry_at"`
}

// MonitorTask is a standing watch on one plan's source URL. One task per
// plan, enforced by the unique index.
type MonitorTask struct {
	ID            string        `gorm:"primaryKey;size:32" json:"id"`
	PlanID        string        `gorm:"uniqueIndex;not null;size:32" json:"plan_id"`
	SourceURL     string        `gorm:"not null;size:768" json:"source_url"`
	Enabled       bool          `gorm:"default:true" json:"enabled"`
	CheckInterval CheckInterval `gorm:"size:16;default:'daily'" json:"check_interval"`
	Status        MonitorStatus `gorm:"size:16;default:'idle'" json:"status"`
	LastCheckedAt *time.Time    `json:"last_checked_at"`
	LastChangeAt  *time.Time    `json:"last_change_at"`
	ErrorMessage  string        `json:"error_message"`
	CreatedAt     time.Time     `json:"created_at"`
}

// PriceHistoryEntry is one price observation for a plan. At most the 30
// most recent entries per plan are kept, oldest evicted first.
type PriceHistoryEntry struct {
	ID            string      `gorm:"primaryKey;size:32" json:"id"`
	PlanID        string      `gorm:"index;not null;size:32" json:"plan_id"`
	Price         int         `json:"price"`
	OriginalPrice int         `json:"original_price"`
	RecordedAt    time.Time   `json:"recorded_at"`
	Source        PriceSource `gorm:"size:16" json:"source"`
}

// PriceChangeEvent is emitted when a check observes a real price diff.
// The 100 most recent events are kept.
type PriceChangeEvent struct {
	ID            string     `gorm:"primaryKey;size:32" json:"id"`
	PlanID        string     `gorm:"index;not null;size:32" json:"plan_id"`
	PlanTitle     string     `json:"plan_title"`
	VendorName    string     `json:"vendor_name"`
	OldPrice      int        `json:"old_price"`
	NewPrice      int        `json:"new_price"`
	ChangePercent int        `json:"change_percent"`
	ChangeType    ChangeType `gorm:"size:16" json:"change_type"`
	DetectedAt    time.Time  `json:"detected_at"`
	Acknowledged  bool       `json:"acknowledged"`
}

// Notification is a user-facing message. The 50 most recent are kept.
type Notification struct {
	ID        string           `gorm:"primaryKey;size:32" json:"id"`
	Type      NotificationType `gorm:"size:32" json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	PlanID    string           `gorm:"size:32" json:"plan_id,omitempty"`
	Read      bool             `gorm:"index" json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}

// RetrySettingsRecord persists the process-wide retry configuration as a
// single row.
type RetrySettingsRecord struct {
	ID                    uint `gorm:"primaryKey" json:"-"`
	MaxRetries            int  `json:"maxRetries"`
	BaseDelayMs           int  `json:"baseDelayMs"`
	UseExponentialBackoff bool `json:"useExponentialBackoff"`
	MaxDelayMs            int  `json:"maxDelayMs"`
}

// DomainRule holds per-domain extraction hints, matched by hostname
// substring containment. First enabled match wins.
type DomainRule struct {
	ID            string    `gorm:"primaryKey;size:32" json:"id"`
	Domain        string    `gorm:"not null;size:255" json:"domain"`
	TitleSelector string    `json:"title_selector"`
	PriceSelector string    `json:"price_selector"`
	WaitTimeMs    int       `json:"wait_time_ms"`
	UseJavaScript bool      `json:"use_javascript"`
	Enabled       bool      `gorm:"default:true" json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

// VendorConfig holds per-URL-substring extraction hints.
type VendorConfig struct {
	ID            string    `gorm:"primaryKey;size:32" json:"id"`
	Name          string    `gorm:"not null;size:255" json:"name"`
	URLPattern    string    `gorm:"not null;size:768" json:"url_pattern"`
	AIPromptHints string    `json:"ai_prompt_hints"`
	DefaultTags   string    `json:"default_tags"` // JSON: []string
	Enabled       bool      `gorm:"default:true" json:"enabled"`
	CreatedAt     time.Time `json:"created_at"`
}

// Plan is a catalog entry created from successful extractions. The core
// only touches it through the catalog store; browsing and editing live in
// the UI layer.
type Plan struct {
	ID            string     `gorm:"primaryKey;size:32" json:"id"`
	VendorName    string     `gorm:"size:255;index" json:"vendor_name"`
	Title         string     `gorm:"not null;size:512" json:"title"`
	Description   string     `json:"description"`
	PriceOriginal int        `json:"price_original"`
	PriceDiscount int        `json:"price_discount"`
	ShippingFee   int        `json:"shipping_fee"`
	ShippingType  string     `gorm:"size:32;default:'delivery'" json:"shipping_type"`
	StorageType   string     `gorm:"size:32;default:'frozen'" json:"storage_type"`
	ServingsMin   int        `json:"servings_min"`
	ServingsMax   int        `json:"servings_max"`
	OrderDeadline string     `gorm:"size:32" json:"order_deadline"`
	Tags          string     `json:"tags"`   // JSON: []string
	Dishes        string     `json:"dishes"` // JSON: []string
	ImageURL      string     `gorm:"size:768" json:"image_url"`
	SourceURL     string     `gorm:"size:768;index" json:"source_url"`
	Status        PlanStatus `gorm:"size:32;default:'draft'" json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// User represents an authenticated admin user
type User struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"uniqueIndex;not null;size:100" json:"username"`
	Password  string    `gorm:"not null;size:255" json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
