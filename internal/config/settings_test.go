package config

import (
	"testing"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/store"
)

func newTestSettings(t *testing.T) *Settings {
	t.Helper()
	s, err := LoadSettings(store.NewMemory())
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}
	return s
}

func TestLoadSettingsDefaults(t *testing.T) {
	s := newTestSettings(t)

	retry := s.Retry()
	want := DefaultRetrySettings()
	if retry != want {
		t.Errorf("Retry() = %+v; want defaults %+v", retry, want)
	}
}

func TestSetRetryValidatesAndPersists(t *testing.T) {
	persist := store.NewMemory()
	s, err := LoadSettings(persist)
	if err != nil {
		t.Fatalf("LoadSettings: %v", err)
	}

	bad := []RetrySettings{
		{MaxRetries: -1, BaseDelayMs: 1000, MaxDelayMs: 30000},
		{MaxRetries: 3, BaseDelayMs: 0, MaxDelayMs: 30000},
		{MaxRetries: 3, BaseDelayMs: 5000, MaxDelayMs: 1000},
	}
	for _, r := range bad {
		if err := s.SetRetry(r); err == nil {
			t.Errorf("SetRetry(%+v) accepted invalid settings", r)
		}
	}

	good := RetrySettings{MaxRetries: 5, BaseDelayMs: 2000, UseExponentialBackoff: true, MaxDelayMs: 60000}
	if err := s.SetRetry(good); err != nil {
		t.Fatalf("SetRetry: %v", err)
	}

	// A fresh Settings over the same store sees the update.
	reloaded, err := LoadSettings(persist)
	if err != nil {
		t.Fatalf("LoadSettings after save: %v", err)
	}
	if reloaded.Retry() != good {
		t.Errorf("reloaded retry = %+v; want %+v", reloaded.Retry(), good)
	}
}

func TestMatchDomainRule(t *testing.T) {
	s := newTestSettings(t)

	first, err := s.AddDomainRule(db.DomainRule{Domain: "example.com", WaitTimeMs: 500})
	if err != nil {
		t.Fatalf("AddDomainRule: %v", err)
	}
	shop, err := s.AddDomainRule(db.DomainRule{Domain: "shop.example.com", WaitTimeMs: 2000})
	if err != nil {
		t.Fatalf("AddDomainRule: %v", err)
	}

	tests := []struct {
		url    string
		wantID string
	}{
		// Newest rule first, so the more specific one wins here.
		{"https://shop.example.com/plan/1", shop.ID},
		{"https://www.example.com/plan/2", first.ID},
		{"https://other.site/plan", ""},
		{"://not a url", ""},
	}

	for _, tt := range tests {
		rule := s.MatchDomainRule(tt.url)
		gotID := ""
		if rule != nil {
			gotID = rule.ID
		}
		if gotID != tt.wantID {
			t.Errorf("MatchDomainRule(%q) = %q; want %q", tt.url, gotID, tt.wantID)
		}
	}

	// Disabled rules never match.
	shop.Enabled = false
	if err := s.UpdateDomainRule(*shop); err != nil {
		t.Fatalf("UpdateDomainRule: %v", err)
	}
	rule := s.MatchDomainRule("https://shop.example.com/plan/1")
	if rule == nil || rule.ID != first.ID {
		t.Errorf("disabled rule still matched, got %+v", rule)
	}
}

func TestMatchVendorConfig(t *testing.T) {
	s := newTestSettings(t)

	cfg, err := s.AddVendorConfig(db.VendorConfig{
		Name:          "欣葉",
		URLPattern:    "hsinyeh.com",
		AIPromptHints: "台菜餐廳",
	})
	if err != nil {
		t.Fatalf("AddVendorConfig: %v", err)
	}

	if got := s.MatchVendorConfig("https://www.hsinyeh.com/menu/1"); got == nil || got.ID != cfg.ID {
		t.Errorf("MatchVendorConfig missed %q", cfg.URLPattern)
	}
	if got := s.MatchVendorConfig("https://other.com/menu"); got != nil {
		t.Errorf("MatchVendorConfig(%q) = %+v; want nil", "https://other.com/menu", got)
	}
}

func TestDomainRuleCRUD(t *testing.T) {
	s := newTestSettings(t)

	if _, err := s.AddDomainRule(db.DomainRule{Domain: "  "}); err == nil {
		t.Error("AddDomainRule accepted an empty domain")
	}

	rule, err := s.AddDomainRule(db.DomainRule{Domain: "example.com"})
	if err != nil {
		t.Fatalf("AddDomainRule: %v", err)
	}
	if rule.ID == "" || !rule.Enabled {
		t.Errorf("new rule = %+v; want id assigned and enabled", rule)
	}

	if err := s.DeleteDomainRule(rule.ID); err != nil {
		t.Fatalf("DeleteDomainRule: %v", err)
	}
	if err := s.DeleteDomainRule(rule.ID); err != store.ErrNotFound {
		t.Errorf("second delete = %v; want ErrNotFound", err)
	}
	if got := len(s.DomainRules()); got != 0 {
		t.Errorf("rules after delete = %d; want 0", got)
	}
}
