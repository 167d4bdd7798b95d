package api

import (
	"net/http"
	"time"

	"StoryReel-server/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func CreateProject(c *gin.Context) {
	var req struct {
		Title          string `json:"title" binding:"required"`
		ScriptText     string `json:"script_text"`
		VoiceID        string `json:"voice_id"`
		ImageStyle     string `json:"image_style"`
		ImageGenerator string `json:"image_generator"`
		TargetSeconds  int    `json:"target_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.TargetSeconds <= 0 {
		req.TargetSeconds = 30
	}

	project := models.Project{
		ID:             uuid.NewString(),
		Title:          req.Title,
		ScriptText:     req.ScriptText,
		Status:         models.ProjectStatusDraft,
		VoiceID:        req.VoiceID,
		ImageStyle:     req.ImageStyle,
		ImageGenerator: req.ImageGenerator,
		TargetSeconds:  req.TargetSeconds,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := projectStore.SaveProject(c.Request.Context(), &project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create project failed: " + err.Error()})
		return
	}
	emitter.Info(c.Request.Context(), models.LogCategoryAPI, project.ID, "project created: %s", project.Title)
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func ListProjects(c *gin.Context) {
	projects, err := projectStore.ListProjects(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "total": len(projects)})
}

func GetProject(c *gin.Context) {
	project, err := projectStore.LoadProject(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": "project not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

// UpdateProject mutates draft-state fields only. Projects with an active
// generation run reject edits with a conflict.
func UpdateProject(c *gin.Context) {
	projectID := c.Param("project_id")
	var req struct {
		Title          string `json:"title"`
		ScriptText     string `json:"script_text"`
		VoiceID        string `json:"voice_id"`
		ImageStyle     string `json:"image_style"`
		ImageGenerator string `json:"image_generator"`
		TargetSeconds  int    `json:"target_seconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := projectStore.LoadProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": "project not found: " + err.Error()})
		return
	}
	if project.Status == models.ProjectStatusQueued || project.Status == models.ProjectStatusGenerating {
		c.JSON(http.StatusConflict, gin.H{"error": "project has a generation run in progress"})
		return
	}

	if req.Title != "" {
		project.Title = req.Title
	}
	if req.ScriptText != "" {
		project.ScriptText = req.ScriptText
	}
	if req.VoiceID != "" {
		project.VoiceID = req.VoiceID
	}
	if req.ImageStyle != "" {
		project.ImageStyle = req.ImageStyle
	}
	if req.ImageGenerator != "" {
		project.ImageGenerator = req.ImageGenerator
	}
	if req.TargetSeconds > 0 {
		project.TargetSeconds = req.TargetSeconds
	}
	if err := projectStore.SaveProject(c.Request.Context(), project); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update project failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"project": project})
}

func DeleteProject(c *gin.Context) {
	projectID := c.Param("project_id")
	if err := projectStore.DeleteProject(c.Request.Context(), projectID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete project failed: " + err.Error()})
		return
	}
	emitter.Info(c.Request.Context(), models.LogCategoryAPI, "", "project %s deleted", projectID)
	c.JSON(http.StatusOK, gin.H{"success": true, "deletedAt": time.Now()})
}

// GetProjectStatus is the polling endpoint: always returns the latest
// persisted status/progress fields.
func GetProjectStatus(c *gin.Context) {
	project, err := projectStore.LoadProject(c.Request.Context(), c.Param("project_id"))
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": "project not found: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":          project.Status,
		"progress":        project.Progress,
		"progressMessage": project.ProgressMessage,
		"errorMessage":    project.ErrorMessage,
	})
}
