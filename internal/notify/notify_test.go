package notify

import (
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/store"
)

func newTestDispatcher() (*Dispatcher, *store.Memory) {
	mem := store.NewMemory()
	log := logrus.New()
	log.SetOutput(io.Discard)
	d := NewDispatcher(mem, log)

	// Deterministic, strictly increasing timestamps.
	base := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)
	tick := 0
	d.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	return d, mem
}

func TestDispatcherTypes(t *testing.T) {
	d, mem := newTestDispatcher()

	d.PriceDrop("plan-1", "價格下降", "5000 -> 4500")
	d.PriceIncrease("plan-2", "價格上漲", "3000 -> 3300")
	d.Error("抓取失敗", "連線逾時")
	d.Info("批次完成", "10 筆")

	list, err := mem.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 4 {
		t.Fatalf("stored %d notifications; want 4", len(list))
	}

	// Newest first.
	wantTypes := []db.NotificationType{db.NotifyInfo, db.NotifyError, db.NotifyPriceIncrease, db.NotifyPriceDrop}
	for i, want := range wantTypes {
		if list[i].Type != want {
			t.Errorf("list[%d].Type = %s; want %s", i, list[i].Type, want)
		}
	}
	if list[3].PlanID != "plan-1" {
		t.Errorf("price drop plan id = %q; want plan-1", list[3].PlanID)
	}

	unread, _ := mem.UnreadCount()
	if unread != 4 {
		t.Errorf("unread = %d; want 4", unread)
	}
}

func TestDispatcherEvictsBeyondCap(t *testing.T) {
	d, mem := newTestDispatcher()

	for i := 0; i < MaxNotifications+10; i++ {
		d.Info("通知", fmt.Sprintf("message %d", i))
	}

	list, err := mem.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != MaxNotifications {
		t.Fatalf("stored %d notifications; want %d", len(list), MaxNotifications)
	}

	// The newest survives, the oldest are gone.
	if list[0].Message != fmt.Sprintf("message %d", MaxNotifications+9) {
		t.Errorf("newest = %q; want the last pushed", list[0].Message)
	}
	for _, n := range list {
		if n.Message == "message 0" {
			t.Errorf("oldest notification survived eviction")
		}
	}
}

func TestMarkReadInvariant(t *testing.T) {
	d, mem := newTestDispatcher()

	d.Info("一", "1")
	d.Info("二", "2")
	d.Info("三", "3")

	list, _ := mem.List()
	if err := mem.MarkRead(list[1].ID); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if unread, _ := mem.UnreadCount(); unread != 2 {
		t.Errorf("unread after one read = %d; want 2", unread)
	}

	if err := mem.MarkAllRead(); err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if unread, _ := mem.UnreadCount(); unread != 0 {
		t.Errorf("unread after mark all = %d; want 0", unread)
	}

	if err := mem.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if list, _ := mem.List(); len(list) != 0 {
		t.Errorf("list after clear = %d; want 0", len(list))
	}
}
