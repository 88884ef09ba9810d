package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/queue"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// EnqueueRequest represents a queue add request
type EnqueueRequest struct {
	URL      string `json:"url" binding:"required,url"`
	Priority string `json:"priority" binding:"omitempty,oneof=high normal low"`
}

// PriorityRequest represents a priority change request
type PriorityRequest struct {
	Priority string `json:"priority" binding:"required,oneof=high normal low"`
}

// EnqueueHandler adds a URL to the scrape queue
func EnqueueHandler(q *queue.Queue, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req EnqueueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid queue request",
				"details": err.Error(),
			})
			return
		}

		item, err := q.Enqueue(strings.TrimSpace(req.URL), db.QueuePriority(req.Priority))
		if err != nil {
			log.WithError(err).Error("failed to enqueue url")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to enqueue URL"})
			return
		}
		c.JSON(http.StatusCreated, item)
	}
}

// ListQueueHandler returns queue items and stats
func ListQueueHandler(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"items": q.Items(),
			"stats": q.Stats(),
		})
	}
}

// RetryQueueItemHandler requeues a terminally failed item
func RetryQueueItemHandler(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := q.Retry(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Failed queue item not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ReprioritizeHandler changes a queue item's priority
func ReprioritizeHandler(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PriorityRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid priority",
				"details": err.Error(),
			})
			return
		}
		if err := q.Reprioritize(c.Param("id"), db.QueuePriority(req.Priority)); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Queue item not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// RemoveQueueItemHandler deletes a queue item
func RemoveQueueItemHandler(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := q.Remove(c.Param("id"))
		switch err {
		case nil:
			c.JSON(http.StatusOK, gin.H{"success": true})
		case queue.ErrProcessing:
			c.JSON(http.StatusConflict, gin.H{"error": "Item is being processed"})
		case store.ErrNotFound:
			c.JSON(http.StatusNotFound, gin.H{"error": "Queue item not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
	}
}

// ClearQueueHandler drops all items not being processed
func ClearQueueHandler(q *queue.Queue, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := q.Clear(); err != nil {
			log.WithError(err).Error("failed to clear queue")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to clear queue"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
