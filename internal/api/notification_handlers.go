package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/store"
)

// ListNotificationsHandler returns notifications, newest first
func ListNotificationsHandler(notifications store.NotificationStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		list, err := notifications.List()
		if err != nil {
			log.WithError(err).Error("failed to list notifications")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		unread, err := notifications.UnreadCount()
		if err != nil {
			log.WithError(err).Error("failed to count unread notifications")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"notifications": list,
			"unread":        unread,
		})
	}
}

// MarkNotificationReadHandler marks one notification read
func MarkNotificationReadHandler(notifications store.NotificationStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := notifications.MarkRead(c.Param("id")); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// MarkAllNotificationsReadHandler marks every notification read
func MarkAllNotificationsReadHandler(notifications store.NotificationStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := notifications.MarkAllRead(); err != nil {
			log.WithError(err).Error("failed to mark notifications read")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// ClearNotificationsHandler deletes all notifications
func ClearNotificationsHandler(notifications store.NotificationStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := notifications.Clear(); err != nil {
			log.WithError(err).Error("failed to clear notifications")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}
