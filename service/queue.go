package service

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"StoryReel-server/config"
	"StoryReel-server/pipeline"
	"StoryReel-server/render"

	"github.com/hibiken/asynq"
)

const (
	TypeGenerationRun = "pipeline:generate"
	TypeRenderRun     = "pipeline:render"
)

type GenerationPayload struct {
	ProjectID string           `json:"project_id"`
	RunID     string           `json:"run_id"`
	Options   pipeline.Options `json:"options"`
}

type RenderPayload struct {
	ProjectID string               `json:"project_id"`
	Quality   render.ExportQuality `json:"quality"`
}

var QueueClient *asynq.Client

func InitQueue() {
	QueueClient = asynq.NewClient(asynq.RedisClientOpt{
		Addr:     config.AppConfig.Redis.Addr,
		Password: config.AppConfig.Redis.Password,
	})
}

// EnqueueGeneration hands a started run to the worker. Asynq-level retry is
// disabled: the orchestrator owns the retry policy and a re-executed stale
// run would just be discarded anyway.
func EnqueueGeneration(projectID, runID string, opts pipeline.Options) error {
	payload, err := json.Marshal(GenerationPayload{ProjectID: projectID, RunID: runID, Options: opts})
	if err != nil {
		return fmt.Errorf("marshal generation payload: %w", err)
	}
	task := asynq.NewTask(TypeGenerationRun, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue generation: %w", err)
	}
	log.Printf("[queue] generation run enqueued: project=%s run=%s queue_id=%s", projectID, runID, info.ID)
	return nil
}

func EnqueueRender(projectID string, quality render.ExportQuality) error {
	payload, err := json.Marshal(RenderPayload{ProjectID: projectID, Quality: quality})
	if err != nil {
		return fmt.Errorf("marshal render payload: %w", err)
	}
	task := asynq.NewTask(TypeRenderRun, payload,
		asynq.MaxRetry(0),
		asynq.Timeout(60*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	info, err := QueueClient.Enqueue(task)
	if err != nil {
		return fmt.Errorf("enqueue render: %w", err)
	}
	log.Printf("[queue] render enqueued: project=%s queue_id=%s", projectID, info.ID)
	return nil
}
