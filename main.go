package main

import (
	"log"
	"os"

	"StoryReel-server/config"
	"StoryReel-server/logging"
	"StoryReel-server/pipeline"
	"StoryReel-server/provider"
	"StoryReel-server/render"
	"StoryReel-server/routers"
	"StoryReel-server/routers/api"
	"StoryReel-server/service"
	"StoryReel-server/store"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig

	var st store.Store
	if cfg.MySQL.DSN != "" {
		st = store.InitDB(cfg.MySQL.DSN)
	} else {
		log.Println("no mysql dsn configured, using in-memory store")
		st = store.NewMemoryStore()
	}

	emitter := logging.NewEmitter(st)
	service.InitMinIO()
	service.InitQueue()

	if err := os.MkdirAll(cfg.Render.WorkDir, 0o755); err != nil {
		log.Fatalf("failed to create work dir: %v", err)
	}

	providers := provider.NewRegistry()
	providers.RegisterScript(provider.DefaultID, provider.NewHTTPScriptProvider(
		cfg.Providers.Script.Endpoint, cfg.Providers.Script.Model, cfg.Providers.Script.APIKeyEnv))
	providers.RegisterSpeech(provider.DefaultID, provider.NewHTTPSpeechProvider(
		cfg.Providers.TTS.Endpoint, cfg.Providers.TTS.APIKeyEnv, cfg.Render.WorkDir))
	providers.RegisterImage(provider.DefaultID, provider.NewHTTPImageProvider(
		cfg.Providers.Image.Endpoint, cfg.Providers.Image.APIKeyEnv, cfg.Render.WorkDir))

	encoder := render.NewFFmpegEncoder(cfg.Render.FFBin, cfg.ExtraEncoderArgList())
	renderStage := render.NewStage(st, emitter, encoder, service.MinioUploader{}, cfg.Render.WorkDir)

	orchestrator := pipeline.NewOrchestrator(st, providers, emitter, renderStage, pipeline.Policy{
		FanOut:          cfg.Pipeline.FanOut,
		MaxRetries:      cfg.Pipeline.MaxRetries,
		BackoffBase:     cfg.BackoffBase(),
		ProviderTimeout: cfg.ProviderTimeout(),
		MinSceneSeconds: cfg.Pipeline.MinSceneSeconds,
		FPS:             cfg.Render.FPS,
		Width:           cfg.Render.Width,
		Height:          cfg.Render.Height,
		TransitionSec:   cfg.Render.TransitionSeconds,
	})

	worker := service.NewWorker(st, orchestrator, renderStage)
	worker.Start(cfg.Worker.Concurrency)

	api.Setup(st, orchestrator, emitter)
	r := routers.InitRouter()
	if err := r.Run(cfg.Server.Port); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
