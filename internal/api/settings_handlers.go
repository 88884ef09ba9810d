package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/config"
	"github.com/mealwatch/plan-scraper/internal/db"
)

// DomainRuleRequest represents a domain rule create/update payload
type DomainRuleRequest struct {
	Domain        string `json:"domain" binding:"required"`
	TitleSelector string `json:"title_selector"`
	PriceSelector string `json:"price_selector"`
	WaitTimeMs    int    `json:"wait_time_ms" binding:"omitempty,min=0,max=30000"`
	UseJavaScript bool   `json:"use_javascript"`
	Enabled       *bool  `json:"enabled"`
}

// VendorConfigRequest represents a vendor config create/update payload
type VendorConfigRequest struct {
	Name          string `json:"name" binding:"required"`
	URLPattern    string `json:"url_pattern" binding:"required"`
	AIPromptHints string `json:"ai_prompt_hints"`
	DefaultTags   string `json:"default_tags"`
	Enabled       *bool  `json:"enabled"`
}

// GetRetrySettingsHandler returns the current retry policy
func GetRetrySettingsHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, settings.Retry())
	}
}

// PutRetrySettingsHandler replaces the retry policy
func PutRetrySettingsHandler(settings *config.Settings, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req config.RetrySettings
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid retry settings",
				"details": err.Error(),
			})
			return
		}
		if err := settings.SetRetry(req); err != nil {
			log.WithError(err).Warn("rejected retry settings")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, settings.Retry())
	}
}

// ListDomainRulesHandler lists domain rules
func ListDomainRulesHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, settings.DomainRules())
	}
}

// CreateDomainRuleHandler adds a domain rule
func CreateDomainRuleHandler(settings *config.Settings, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DomainRuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid domain rule",
				"details": err.Error(),
			})
			return
		}
		rule, err := settings.AddDomainRule(db.DomainRule{
			Domain:        req.Domain,
			TitleSelector: req.TitleSelector,
			PriceSelector: req.PriceSelector,
			WaitTimeMs:    req.WaitTimeMs,
			UseJavaScript: req.UseJavaScript,
		})
		if err != nil {
			log.WithError(err).Error("failed to add domain rule")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save rule"})
			return
		}
		c.JSON(http.StatusCreated, rule)
	}
}

// UpdateDomainRuleHandler updates a domain rule
func UpdateDomainRuleHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req DomainRuleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid domain rule",
				"details": err.Error(),
			})
			return
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		err := settings.UpdateDomainRule(db.DomainRule{
			ID:            c.Param("id"),
			Domain:        req.Domain,
			TitleSelector: req.TitleSelector,
			PriceSelector: req.PriceSelector,
			WaitTimeMs:    req.WaitTimeMs,
			UseJavaScript: req.UseJavaScript,
			Enabled:       enabled,
		})
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DeleteDomainRuleHandler removes a domain rule
func DeleteDomainRuleHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := settings.DeleteDomainRule(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Rule not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ListVendorConfigsHandler lists vendor configs
func ListVendorConfigsHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, settings.VendorConfigs())
	}
}

// CreateVendorConfigHandler adds a vendor config
func CreateVendorConfigHandler(settings *config.Settings, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VendorConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid vendor config",
				"details": err.Error(),
			})
			return
		}
		cfg, err := settings.AddVendorConfig(db.VendorConfig{
			Name:          req.Name,
			URLPattern:    req.URLPattern,
			AIPromptHints: req.AIPromptHints,
			DefaultTags:   req.DefaultTags,
		})
		if err != nil {
			log.WithError(err).Error("failed to add vendor config")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save config"})
			return
		}
		c.JSON(http.StatusCreated, cfg)
	}
}

// UpdateVendorConfigHandler updates a vendor config
func UpdateVendorConfigHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req VendorConfigRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid vendor config",
				"details": err.Error(),
			})
			return
		}
		enabled := true
		if req.Enabled != nil {
			enabled = *req.Enabled
		}
		err := settings.UpdateVendorConfig(db.VendorConfig{
			ID:            c.Param("id"),
			Name:          req.Name,
			URLPattern:    req.URLPattern,
			AIPromptHints: req.AIPromptHints,
			DefaultTags:   req.DefaultTags,
			Enabled:       enabled,
		})
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Config not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DeleteVendorConfigHandler removes a vendor config
func DeleteVendorConfigHandler(settings *config.Settings) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := settings.DeleteVendorConfig(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Config not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
