package api

import (
	"net/http"
	"strconv"

	"StoryReel-server/store"

	"github.com/gin-gonic/gin"
)

func ListLogs(c *gin.Context) {
	filter := store.LogFilter{
		Level:     c.Query("level"),
		Category:  c.Query("category"),
		ProjectID: c.Query("project_id"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		filter.Limit = limit
	}

	entries, err := projectStore.ListLogs(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "total": len(entries)})
}

func ClearLogs(c *gin.Context) {
	if err := projectStore.ClearLogs(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
