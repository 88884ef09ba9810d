package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/mealwatch/plan-scraper/internal/dedup"
	"github.com/mealwatch/plan-scraper/internal/store"
)

// FindDuplicatesHandler scans the catalog for likely duplicate plans
func FindDuplicatesHandler(catalog store.CatalogStore, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		plans, err := catalog.ListPlans()
		if err != nil {
			log.WithError(err).Error("failed to list plans")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		groups := dedup.FindGroups(plans)
		c.JSON(http.StatusOK, gin.H{
			"groups": groups,
			"count":  len(groups),
		})
	}
}
