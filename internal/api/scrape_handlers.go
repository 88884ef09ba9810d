package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/batch"
	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/idgen"
	"github.com/mealwatch/plan-scraper/internal/pipeline"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// JobRunner executes one scrape attempt for a job record.
type JobRunner interface {
	Run(ctx context.Context, job *db.ScrapeJob) pipeline.Result
}

// ScrapeRequest represents a single-URL scrape request
type ScrapeRequest struct {
	URL string `json:"url" binding:"required,url"`
}

// BatchScrapeRequest represents a batch scrape request
type BatchScrapeRequest struct {
	URLs []string `json:"urls" binding:"required,min=1,max=100,dive,url"`
}

// ScrapeURLHandler runs a synchronous scrape of one URL and returns the
// finished job with its extraction
func ScrapeURLHandler(runner JobRunner, jobs store.JobStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid URL format",
				"details": err.Error(),
			})
			return
		}
		req.URL = strings.TrimSpace(req.URL)

		job := &db.ScrapeJob{ID: idgen.New(), URL: req.URL, Status: db.JobPending}
		if err := jobs.CreateJob(job); err != nil {
			log.WithError(err).Error("failed to create job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
			return
		}

		result := runner.Run(c.Request.Context(), job)

		finished, err := jobs.GetJob(job.ID)
		if err != nil {
			log.WithError(err).Error("failed to reload job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"success":   result.Success,
			"job":       finished,
			"extracted": extractedPreview(finished),
			"error":     result.Err,
		})
	}
}

// StartBatchHandler launches a batch scrape over a URL list
func StartBatchHandler(runner *batch.Runner, appCtx context.Context, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchScrapeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid batch request",
				"details": err.Error(),
			})
			return
		}

		// Deduplicate while preserving order.
		seen := make(map[string]struct{}, len(req.URLs))
		var urls []string
		for _, u := range req.URLs {
			u = strings.TrimSpace(u)
			if u == "" {
				continue
			}
			if _, dup := seen[u]; dup {
				continue
			}
			seen[u] = struct{}{}
			urls = append(urls, u)
		}

		if err := runner.Start(appCtx, urls); err != nil {
			if err == batch.ErrBatchRunning {
				c.JSON(http.StatusConflict, gin.H{"error": "A batch is already running"})
				return
			}
			log.WithError(err).Error("failed to start batch")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start batch"})
			return
		}

		c.JSON(http.StatusAccepted, gin.H{"success": true, "total": len(urls)})
	}
}

// BatchStatusHandler returns the current batch progress
func BatchStatusHandler(runner *batch.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, runner.Status())
	}
}

// CancelBatchHandler cancels the running batch
func CancelBatchHandler(runner *batch.Runner) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !runner.Cancel() {
			c.JSON(http.StatusConflict, gin.H{"error": "No batch is running"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// RetryFailedHandler requeues all failed jobs as a new batch
func RetryFailedHandler(runner *batch.Runner, appCtx context.Context, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := runner.RetryAllFailed(appCtx)
		if err != nil {
			if err == batch.ErrBatchRunning {
				c.JSON(http.StatusConflict, gin.H{"error": "A batch is already running"})
				return
			}
			log.WithError(err).Error("failed to retry failed jobs")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry jobs"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "requeued": count})
	}
}
