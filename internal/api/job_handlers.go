package api

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/db"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// PaginatedResponse represents a paginated response
type PaginatedResponse struct {
	Data  interface{} `json:"data"`
	Page  int         `json:"page"`
	Size  int         `json:"size"`
	Total int64       `json:"total"`
	Pages int         `json:"pages"`
}

// ListJobsHandler handles job listing with pagination and status filter
func ListJobsHandler(jobs store.JobStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
		if err != nil || page < 1 {
			page = 1
		}
		pageSize, err := strconv.Atoi(c.DefaultQuery("size", "20"))
		if err != nil || pageSize < 1 || pageSize > 100 {
			pageSize = 20
		}

		status := db.JobStatus(strings.TrimSpace(c.Query("status")))
		switch status {
		case "", db.JobPending, db.JobRunning, db.JobSuccess, db.JobFailed, db.JobCancelled:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status filter"})
			return
		}

		offset := (page - 1) * pageSize
		list, total, err := jobs.ListJobs(status, pageSize, offset)
		if err != nil {
			log.WithError(err).Error("failed to list jobs")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		pages := int((total + int64(pageSize) - 1) / int64(pageSize))
		c.JSON(http.StatusOK, PaginatedResponse{
			Data:  list,
			Page:  page,
			Size:  pageSize,
			Total: total,
			Pages: pages,
		})
	}
}

// GetJobHandler handles retrieving a single job with its artifacts
func GetJobHandler(jobs store.JobStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		job, err := jobs.GetJob(c.Param("id"))
		if err != nil {
			if err == store.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
				return
			}
			log.WithError(err).Error("failed to fetch job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, job)
	}
}

// DeleteJobHandler handles deleting a single job record
func DeleteJobHandler(jobs store.JobStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := jobs.DeleteJob(c.Param("id")); err != nil {
			if err == store.ErrNotFound {
				c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
				return
			}
			log.WithError(err).Error("failed to delete job")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ClearJobsHandler handles clearing the job history
func ClearJobsHandler(jobs store.JobStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := jobs.ClearJobs(); err != nil {
			log.WithError(err).Error("failed to clear jobs")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// JobStatsHandler returns job outcome counts
func JobStatsHandler(jobs store.JobStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := jobs.JobStats()
		if err != nil {
			log.WithError(err).Error("failed to compute job stats")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

// ExportJobsHandler exports job history as JSON or CSV
func ExportJobsHandler(jobs store.JobStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		format := c.DefaultQuery("format", "json")
		list, _, err := jobs.ListJobs("", 0, 0)
		if err != nil {
			log.WithError(err).Error("failed to export jobs")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}

		filename := "scrape-jobs-" + time.Now().Format("20060102-150405")
		switch format {
		case "json":
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.json", filename))
			c.JSON(http.StatusOK, list)
		case "csv":
			c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s.csv", filename))
			c.Header("Content-Type", "text/csv")
			w := csv.NewWriter(c.Writer)
			_ = w.Write([]string{"id", "url", "status", "vendor_name", "duration_ms", "error", "created_at"})
			for _, job := range list {
				_ = w.Write([]string{
					job.ID,
					job.URL,
					string(job.Status),
					job.VendorName,
					strconv.FormatInt(job.DurationMs, 10),
					job.Error,
					job.CreatedAt.Format(time.RFC3339),
				})
			}
			w.Flush()
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported export format"})
		}
	}
}

// extractedPreview decodes the stored extraction JSON for responses that
// want structured data instead of a raw string.
func extractedPreview(job *db.ScrapeJob) interface{} {
	if job.ExtractedData == "" {
		return nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(job.ExtractedData), &out); err != nil {
		return nil
	}
	return out
}
