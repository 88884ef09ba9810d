package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/monitor"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// CreateMonitorRequest represents a monitor creation request
type CreateMonitorRequest struct {
	PlanID        string `json:"plan_id" binding:"required"`
	SourceURL     string `json:"source_url" binding:"omitempty,url"`
	CheckInterval string `json:"check_interval" binding:"omitempty,oneof=daily weekly manual"`
}

// IntervalRequest represents a check interval change request
type IntervalRequest struct {
	CheckInterval string `json:"check_interval" binding:"required,oneof=daily weekly manual"`
}

// CreateMonitorHandler creates a watch on a plan
func CreateMonitorHandler(engine *monitor.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateMonitorRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid monitor request",
				"details": err.Error(),
			})
			return
		}

		task, err := engine.AddTask(req.PlanID, req.SourceURL, db.CheckInterval(req.CheckInterval))
		if err != nil {
			if err == store.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Plan not found"})
				return
			}
			log.WithError(err).Error("failed to create monitor task")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create monitor"})
			return
		}
		c.JSON(http.StatusCreated, task)
	}
}

// ListMonitorsHandler lists all monitor tasks
func ListMonitorsHandler(engine *monitor.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := engine.Tasks()
		if err != nil {
			log.WithError(err).Error("failed to list monitors")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, tasks)
	}
}

// ToggleMonitorHandler flips a monitor on or off
func ToggleMonitorHandler(engine *monitor.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := engine.ToggleTask(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Monitor not found"})
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// SetMonitorIntervalHandler changes a monitor's check interval
func SetMonitorIntervalHandler(engine *monitor.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req IntervalRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid interval",
				"details": err.Error(),
			})
			return
		}
		if err := engine.SetInterval(c.Param("id"), db.CheckInterval(req.CheckInterval)); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Monitor not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// DeleteMonitorHandler removes a monitor task
func DeleteMonitorHandler(engine *monitor.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := engine.RemoveTask(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Monitor not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// CheckMonitorHandler runs one manual check
func CheckMonitorHandler(engine *monitor.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := engine.CheckOne(c.Request.Context(), c.Param("id"))
		if err != nil {
			if err == store.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Monitor not found"})
				return
			}
			log.WithError(err).Error("monitor check failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Check failed"})
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// CheckAllMonitorsHandler sweeps all enabled monitors in the background
func CheckAllMonitorsHandler(engine *monitor.Engine, appCtx context.Context, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		go func() {
			if _, err := engine.CheckAll(appCtx); err != nil {
				log.WithError(err).Warn("monitor sweep interrupted")
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"success": true})
	}
}

// MonitorHistoryHandler returns a plan's price history
func MonitorHistoryHandler(engine *monitor.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		history, err := engine.History(c.Param("planId"))
		if err != nil {
			log.WithError(err).Error("failed to list price history")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, history)
	}
}

// MonitorChangesHandler returns recent price change events
func MonitorChangesHandler(engine *monitor.Engine, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		changes, err := engine.Changes()
		if err != nil {
			log.WithError(err).Error("failed to list price changes")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, changes)
	}
}
