package routers

import (
	"StoryReel-server/routers/api"

	"github.com/gin-gonic/gin"
)

func InitRouter() *gin.Engine {
	r := gin.Default()
	v1 := r.Group("/v1/api")
	{
		v1.POST("/projects", api.CreateProject)
		v1.GET("/projects", api.ListProjects)
		v1.GET("/projects/:project_id", api.GetProject)
		v1.PUT("/projects/:project_id", api.UpdateProject)
		v1.DELETE("/projects/:project_id", api.DeleteProject)

		v1.POST("/projects/:project_id/generate", api.GenerateProject)
		v1.POST("/projects/:project_id/scenes/:scene_id/regenerate", api.RegenerateScene)
		v1.POST("/projects/:project_id/render", api.RenderProject)
		v1.GET("/projects/:project_id/status", api.GetProjectStatus)

		v1.GET("/logs", api.ListLogs)
		v1.DELETE("/logs", api.ClearLogs)
		v1.GET("/system/stats", api.SystemStats)
	}
	r.GET("/projects/:project_id/progress/wss", api.ProjectProgressWebSocket)
	return r
}
