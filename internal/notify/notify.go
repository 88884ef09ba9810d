// Package notify dispatches user-facing notifications. The store keeps
// the 50 most recent; older ones are evicted on append.
package notify

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// MaxNotifications bounds the stored notification list.
const MaxNotifications = 50

// Dispatcher appends notifications to the store.
type Dispatcher struct {
	store store.NotificationStore
	log   *logrus.Logger
	now   func() time.Time
}

func NewDispatcher(s store.NotificationStore, log *logrus.Logger) *Dispatcher {
	return &Dispatcher{store: s, log: log, now: time.Now}
}

func (d *Dispatcher) push(typ db.NotificationType, title, message, planID string) {
	n := &db.Notification{
		ID:        idgen.New(),
		Type:      typ,
		Title:     title,
		Message:   message,
		PlanID:    planID,
		Read:      false,
		CreatedAt: d.now(),
	}
	if err := d.store.Append(n, MaxNotifications); err != nil {
		d.log.WithError(err).Warn("failed to store notification")
		return
	}
	d.log.WithFields(logrus.Fields{"type": typ, "title": title}).Debug("notification dispatched")
}

// PriceDrop reports a price decrease on a monitored plan.
func (d *Dispatcher) PriceDrop(planID, title, message string) {
	d.push(db.NotifyPriceDrop, title, message, planID)
}

// PriceIncrease reports a price increase on a monitored plan.
func (d *Dispatcher) PriceIncrease(planID, title, message string) {
	d.push(db.NotifyPriceIncrease, title, message, planID)
}

// Error reports a failure the user should look at.
func (d *Dispatcher) Error(title, message string) {
	d.push(db.NotifyError, title, message, "")
}

// Info reports a routine event.
func (d *Dispatcher) Info(title, message string) {
	d.push(db.NotifyInfo, title, message, "")
}
