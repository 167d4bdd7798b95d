package api

import (
	"log"
	"net/http"
	"time"

	"StoryReel-server/models"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type progressFrame struct {
	Status          string `json:"status"`
	Progress        int    `json:"progress"`
	ProgressMessage string `json:"progressMessage"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

// ProjectProgressWebSocket pushes progress frames until the project reaches a
// terminal state or the client goes away. Frames are only sent on change.
func ProjectProgressWebSocket(c *gin.Context) {
	projectID := c.Param("project_id")
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var last progressFrame
	sent := false
	for {
		p, err := projectStore.LoadProject(c.Request.Context(), projectID)
		if err != nil {
			conn.WriteJSON(gin.H{"error": "project not found"})
			return
		}
		frame := progressFrame{
			Status:          p.Status,
			Progress:        p.Progress,
			ProgressMessage: p.ProgressMessage,
			ErrorMessage:    p.ErrorMessage,
		}
		if !sent || frame != last {
			if err := conn.WriteJSON(frame); err != nil {
				return
			}
			last, sent = frame, true
		}
		if p.Status == models.ProjectStatusReady || p.Status == models.ProjectStatusError {
			return
		}

		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
