package config

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// RetrySettings is the retry policy handed to the queue.
type RetrySettings struct {
	MaxRetries            int  `json:"maxRetries"`
	BaseDelayMs           int  `json:"baseDelayMs"`
	UseExponentialBackoff bool `json:"useExponentialBackoff"`
	MaxDelayMs            int  `json:"maxDelayMs"`
}

// DefaultRetrySettings returns the reference retry policy.
func DefaultRetrySettings() RetrySettings {
	return RetrySettings{
		MaxRetries:            3,
		BaseDelayMs:           1000,
		UseExponentialBackoff: true,
		MaxDelayMs:            30000,
	}
}

// Settings is the runtime-mutable scraper configuration: the retry
// policy plus the domain rule and vendor config lists. All reads and
// writes go through the mutex; mutations are mirrored to the settings
// store so they survive restarts.
type Settings struct {
	mu      sync.RWMutex
	retry   RetrySettings
	rules   []db.DomainRule
	configs []db.VendorConfig
	persist store.SettingsStore
}

// LoadSettings builds a Settings object from the persisted state,
// falling back to defaults when nothing has been saved yet.
func LoadSettings(persist store.SettingsStore) (*Settings, error) {
	s := &Settings{
		retry:   DefaultRetrySettings(),
		persist: persist,
	}

	rec, err := persist.RetrySettings()
	if err == nil {
		s.retry = RetrySettings{
			MaxRetries:            rec.MaxRetries,
			BaseDelayMs:           rec.BaseDelayMs,
			UseExponentialBackoff: rec.UseExponentialBackoff,
			MaxDelayMs:            rec.MaxDelayMs,
		}
	} else if err != store.ErrNotFound {
		return nil, fmt.Errorf("load retry settings: %w", err)
	}

	if s.rules, err = persist.ListDomainRules(); err != nil {
		return nil, fmt.Errorf("load domain rules: %w", err)
	}
	if s.configs, err = persist.ListVendorConfigs(); err != nil {
		return nil, fmt.Errorf("load vendor configs: %w", err)
	}
	return s, nil
}

// Retry returns the current retry policy.
func (s *Settings) Retry() RetrySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retry
}

// SetRetry replaces the retry policy and persists it.
func (s *Settings) SetRetry(r RetrySettings) error {
	if r.MaxRetries < 0 || r.BaseDelayMs <= 0 || r.MaxDelayMs < r.BaseDelayMs {
		return fmt.Errorf("invalid retry settings: %+v", r)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.retry = r
	return s.persist.SaveRetrySettings(&db.RetrySettingsRecord{
		MaxRetries:            r.MaxRetries,
		BaseDelayMs:           r.BaseDelayMs,
		UseExponentialBackoff: r.UseExponentialBackoff,
		MaxDelayMs:            r.MaxDelayMs,
	})
}

// DomainRules returns a copy of the current rule list, newest first.
func (s *Settings) DomainRules() []db.DomainRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]db.DomainRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// AddDomainRule stores a rule at the head of the list.
func (s *Settings) AddDomainRule(rule db.DomainRule) (*db.DomainRule, error) {
	if strings.TrimSpace(rule.Domain) == "" {
		return nil, fmt.Errorf("domain cannot be empty")
	}
	rule.ID = idgen.New()
	rule.Enabled = true
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist.SaveDomainRule(&rule); err != nil {
		return nil, err
	}
	s.rules = append([]db.DomainRule{rule}, s.rules...)
	return &rule, nil
}

// UpdateDomainRule replaces a rule by ID.
func (s *Settings) UpdateDomainRule(rule db.DomainRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == rule.ID {
			rule.CreatedAt = s.rules[i].CreatedAt
			if err := s.persist.SaveDomainRule(&rule); err != nil {
				return err
			}
			s.rules[i] = rule
			return nil
		}
	}
	return store.ErrNotFound
}

// DeleteDomainRule removes a rule by ID.
func (s *Settings) DeleteDomainRule(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rules {
		if s.rules[i].ID == id {
			if err := s.persist.DeleteDomainRule(id); err != nil {
				return err
			}
			s.rules = append(s.rules[:i], s.rules[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// MatchDomainRule returns the first enabled rule whose domain is
// contained in the URL's hostname, or nil.
func (s *Settings) MatchDomainRule(rawURL string) *db.DomainRule {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil
	}
	host := parsed.Hostname()

	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.rules {
		if s.rules[i].Enabled && strings.Contains(host, s.rules[i].Domain) {
			rule := s.rules[i]
			return &rule
		}
	}
	return nil
}

// VendorConfigs returns a copy of the current config list, newest first.
func (s *Settings) VendorConfigs() []db.VendorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]db.VendorConfig, len(s.configs))
	copy(out, s.configs)
	return out
}

// AddVendorConfig stores a config at the head of the list.
func (s *Settings) AddVendorConfig(cfg db.VendorConfig) (*db.VendorConfig, error) {
	if strings.TrimSpace(cfg.Name) == "" || strings.TrimSpace(cfg.URLPattern) == "" {
		return nil, fmt.Errorf("vendor config needs a name and a url pattern")
	}
	cfg.ID = idgen.New()
	cfg.Enabled = true
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persist.SaveVendorConfig(&cfg); err != nil {
		return nil, err
	}
	s.configs = append([]db.VendorConfig{cfg}, s.configs...)
	return &cfg, nil
}

// UpdateVendorConfig replaces a config by ID.
func (s *Settings) UpdateVendorConfig(cfg db.VendorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.configs {
		if s.configs[i].ID == cfg.ID {
			cfg.CreatedAt = s.configs[i].CreatedAt
			if err := s.persist.SaveVendorConfig(&cfg); err != nil {
				return err
			}
			s.configs[i] = cfg
			return nil
		}
	}
	return store.ErrNotFound
}

// DeleteVendorConfig removes a config by ID.
func (s *Settings) DeleteVendorConfig(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.configs {
		if s.configs[i].ID == id {
			if err := s.persist.DeleteVendorConfig(id); err != nil {
				return err
			}
			s.configs = append(s.configs[:i], s.configs[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

// MatchVendorConfig returns the first enabled config whose URL pattern
// is contained in the URL, or nil.
func (s *Settings) MatchVendorConfig(rawURL string) *db.VendorConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.configs {
		if s.configs[i].Enabled && strings.Contains(rawURL, s.configs[i].URLPattern) {
			cfg := s.configs[i]
			return &cfg
		}
	}
	return nil
}
