package api

import (
	"net/http"

	"StoryReel-server/errs"
	"StoryReel-server/models"
	"StoryReel-server/pipeline"
	"StoryReel-server/render"
	"StoryReel-server/service"

	"github.com/gin-gonic/gin"
)

// GenerateProject claims a new run and hands it to the queue. A project that
// already has a run in flight gets superseded, not rejected.
func GenerateProject(c *gin.Context) {
	projectID := c.Param("project_id")
	var req struct {
		RegenerateScript bool                  `json:"regenerate_script"`
		RenderNow        bool                  `json:"render_now"`
		Quality          *render.ExportQuality `json:"quality"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := pipeline.Options{
		RegenerateScript: req.RegenerateScript,
		RenderNow:        req.RenderNow,
		Quality:          req.Quality,
	}
	runID, err := orchestrator.StartGeneration(c.Request.Context(), projectID, opts)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err := service.EnqueueGeneration(projectID, runID, opts); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue generation failed: " + err.Error()})
		return
	}
	emitter.Info(c.Request.Context(), models.LogCategoryAPI, projectID, "generation run %s queued", runID)
	c.JSON(http.StatusOK, gin.H{"run_id": runID, "status": models.ProjectStatusQueued})
}

// RegenerateScene replaces a single scene asset synchronously.
func RegenerateScene(c *gin.Context) {
	projectID := c.Param("project_id")
	sceneID := c.Param("scene_id")
	var req struct {
		Field string `json:"field" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := orchestrator.RegenerateScene(c.Request.Context(), projectID, sceneID, req.Field); err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	project, err := projectStore.LoadProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	var scene *models.Scene
	if idx := project.Manifest.SceneByID(sceneID); idx >= 0 {
		scene = &project.Manifest.Scenes[idx]
	}
	c.JSON(http.StatusOK, gin.H{"scene": scene})
}

// RenderProject queues a render of the project's current manifest.
func RenderProject(c *gin.Context) {
	projectID := c.Param("project_id")
	var req struct {
		Width   int `json:"width"`
		Height  int `json:"height"`
		Bitrate int `json:"bitrate"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	project, err := projectStore.LoadProject(c.Request.Context(), projectID)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": "project not found: " + err.Error()})
		return
	}
	if project.Manifest == nil || len(project.Manifest.Scenes) == 0 {
		err := errs.New(errs.InvalidState, "project %s has no manifest to render", projectID)
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	quality := render.ExportQuality{Width: req.Width, Height: req.Height, Bitrate: req.Bitrate}
	if quality.Width <= 0 || quality.Height <= 0 {
		quality.Width, quality.Height = project.Manifest.Width, project.Manifest.Height
	}
	if err := service.EnqueueRender(projectID, quality); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enqueue render failed: " + err.Error()})
		return
	}
	emitter.Info(c.Request.Context(), models.LogCategoryAPI, projectID, "render queued at %dx%d", quality.Width, quality.Height)
	c.JSON(http.StatusOK, gin.H{"queued": true, "width": quality.Width, "height": quality.Height})
}
