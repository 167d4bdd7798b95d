package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"StoryReel-server/config"
	"StoryReel-server/errs"
	"StoryReel-server/pipeline"
	"StoryReel-server/render"
	"StoryReel-server/store"

	"github.com/hibiken/asynq"
)

// Worker consumes queued generation and render runs.
type Worker struct {
	store        store.Store
	orchestrator *pipeline.Orchestrator
	renderStage  *render.Stage
}

func NewWorker(s store.Store, orch *pipeline.Orchestrator, stage *render.Stage) *Worker {
	return &Worker{store: s, orchestrator: orch, renderStage: stage}
}

// Start runs the asynq consumer in the background.
func (w *Worker) Start(concurrency int) {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     config.AppConfig.Redis.Addr,
			Password: config.AppConfig.Redis.Password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeGenerationRun, w.handleGeneration)
	mux.HandleFunc(TypeRenderRun, w.handleRender)

	log.Printf("starting pipeline worker with concurrency %d", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			log.Fatalf("could not run worker: %v", err)
		}
	}()
}

func (w *Worker) handleGeneration(ctx context.Context, t *asynq.Task) error {
	var payload GenerationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	log.Printf("executing generation run: project=%s run=%s", payload.ProjectID, payload.RunID)
	// Execute reports failure through project state; queue-level errors would
	// only cause pointless re-runs of superseded work.
	if err := w.orchestrator.Execute(ctx, payload.ProjectID, payload.RunID, payload.Options); err != nil {
		log.Printf("generation run %s finished with error: %v", payload.RunID, err)
	}
	return nil
}

func (w *Worker) handleRender(ctx context.Context, t *asynq.Task) error {
	var payload RenderPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	p, err := w.store.LoadProject(ctx, payload.ProjectID)
	if err != nil {
		log.Printf("render skipped, project %s unreadable: %v", payload.ProjectID, err)
		return nil
	}
	if p.Manifest == nil {
		// should have been rejected at the API boundary
		log.Printf("render skipped: %v", errs.New(errs.InvalidState, "project %s has no manifest", p.ID))
		return nil
	}

	quality := payload.Quality
	if quality.Width <= 0 || quality.Height <= 0 {
		quality.Width, quality.Height = p.Manifest.Width, p.Manifest.Height
	}
	log.Printf("executing render: project=%s %dx%d", payload.ProjectID, quality.Width, quality.Height)
	if err := w.renderStage.Render(ctx, payload.ProjectID, p.Manifest.Clone(), quality); err != nil {
		log.Printf("render for project %s failed: %v", payload.ProjectID, err)
	}
	return nil
}
