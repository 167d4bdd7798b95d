package pipeline

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"StoryReel-server/errs"
	"StoryReel-server/logging"
	"StoryReel-server/models"
	"StoryReel-server/provider"
	"StoryReel-server/render"
	"StoryReel-server/store"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// errStale marks a commit attempt from a superseded run. It is swallowed:
// the newer run owns the project state now.
var errStale = errors.New("generation run superseded")

// Progress checkpoints per stage. Audio and image stages advance
// proportionally to completed scenes inside their window.
const (
	progressScript     = 10
	progressAudioEnd   = 50
	progressImageEnd   = 90
	progressAssembling = 95
	progressDone       = 100
)

// Policy holds the numeric knobs of the orchestrator. All of them come from
// configuration; see config.ApplyDefaults for the defaults.
type Policy struct {
	FanOut          int
	MaxRetries      int
	BackoffBase     time.Duration
	ProviderTimeout time.Duration
	MinSceneSeconds float64
	FPS             int
	Width           int
	Height          int
	TransitionSec   float64
}

// Options selects per-run behavior of a generation run.
type Options struct {
	RegenerateScript bool                  `json:"regenerateScript"`
	RenderNow        bool                  `json:"renderNow"`
	Quality          *render.ExportQuality `json:"quality,omitempty"`
}

// RenderStage is the consumer contract of the render stage, narrowed to what
// the orchestrator needs for the renderNow handoff. The orchestrator commits
// the result itself so the stale-run guard covers the render outcome too.
type RenderStage interface {
	RenderManifest(ctx context.Context, projectID string, manifest *models.Manifest, quality render.ExportQuality) (*render.Result, error)
}

// Orchestrator drives a project from script through per-scene asset
// generation to a complete manifest.
type Orchestrator struct {
	store     store.Store
	providers *provider.Registry
	emit      *logging.Emitter
	renderer  RenderStage
	policy    Policy
	runs      *runRegistry
}

func NewOrchestrator(s store.Store, providers *provider.Registry, emit *logging.Emitter, renderer RenderStage, policy Policy) *Orchestrator {
	if policy.FanOut <= 0 {
		policy.FanOut = 3
	}
	return &Orchestrator{
		store:     s,
		providers: providers,
		emit:      emit,
		renderer:  renderer,
		policy:    policy,
		runs:      newRunRegistry(),
	}
}

// StartGeneration accepts a new generation run for the project and returns
// its run id. Any previous active run is superseded immediately; the actual
// stage work happens in Execute, normally on a queue worker.
func (o *Orchestrator) StartGeneration(ctx context.Context, projectID string, opts Options) (string, error) {
	p, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		return "", err
	}

	switch p.Status {
	case models.ProjectStatusDraft, models.ProjectStatusError:
		if err := p.Transition(models.ProjectStatusQueued); err != nil {
			return "", err
		}
	case models.ProjectStatusReady:
		if err := p.Transition(models.ProjectStatusGenerating); err != nil {
			return "", err
		}
	case models.ProjectStatusQueued, models.ProjectStatusGenerating:
		// already running: the new run supersedes the old one in place
	default:
		return "", errs.New(errs.InvalidTransition, "cannot start generation from status %q", p.Status)
	}

	runID := shortuuid.New()
	p.RunSeq++
	p.Progress = 0
	p.ProgressMessage = "queued for generation"
	p.ErrorMessage = ""
	// previous render artifacts no longer describe what this run will produce
	p.OutputPath = ""
	p.ThumbnailPath = ""
	p.Chapters = nil
	p.DurationSec = 0

	// register before persisting the reset so the run being superseded cannot
	// slip a commit in between
	o.runs.begin(projectID, runID)
	if err := o.store.SaveProject(ctx, p); err != nil {
		o.runs.finish(projectID, runID)
		return "", err
	}

	o.emit.Info(ctx, models.LogCategorySystem, projectID, "generation run %s started (seq %d)", runID, p.RunSeq)
	return runID, nil
}

// Execute runs the stage sequence for a previously started run. A stale run
// returns nil: its work is simply discarded.
func (o *Orchestrator) Execute(ctx context.Context, projectID, runID string, opts Options) error {
	defer o.runs.finish(projectID, runID)

	err := o.commit(ctx, projectID, runID, func(p *models.Project) error {
		if p.Status == models.ProjectStatusQueued {
			if err := p.Transition(models.ProjectStatusGenerating); err != nil {
				return err
			}
		}
		p.ProgressMessage = "starting generation"
		return nil
	})
	if err != nil {
		return o.finishErr(ctx, projectID, runID, models.LogCategorySystem, err, nil)
	}

	// stage 1: script
	script, err := o.scriptStage(ctx, projectID, runID, opts)
	if err != nil {
		return o.finishErr(ctx, projectID, runID, models.LogCategoryScript, err, nil)
	}

	// stage 2: segmentation (pure, deterministic)
	p, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		return o.finishErr(ctx, projectID, runID, models.LogCategorySystem, err, nil)
	}
	target := float64(p.TargetSeconds)
	if target <= 0 {
		target = 30
	}
	segments := SegmentScript(script, target, o.policy.MinSceneSeconds)
	if len(segments) == 0 {
		err := errs.New(errs.InvalidInput, "script produced no scenes")
		return o.finishErr(ctx, projectID, runID, models.LogCategoryScript, err, nil)
	}

	scenes := make([]models.Scene, len(segments))
	for i, seg := range segments {
		scenes[i] = models.Scene{
			ID:          uuid.NewString(),
			Text:        seg.Text,
			DurationSec: seg.DurationSec,
			Motion:      models.MotionCycle[i%len(models.MotionCycle)],
			Transition:  models.TransitionFade,
		}
	}

	// stage 3: audio, 10-50
	if err := o.audioStage(ctx, projectID, runID, p.VoiceID, scenes); err != nil {
		return o.finishErr(ctx, projectID, runID, models.LogCategoryTTS, err, o.buildManifest(scenes))
	}

	// stage 4: images, 50-90
	if err := o.imageStage(ctx, projectID, runID, p.ImageStyle, p.ImageGenerator, scenes); err != nil {
		return o.finishErr(ctx, projectID, runID, models.LogCategoryImage, err, o.buildManifest(scenes))
	}

	// stage 5: manifest assembly
	manifest := o.buildManifest(scenes)
	err = o.commit(ctx, projectID, runID, func(p *models.Project) error {
		p.Manifest = manifest
		p.Progress = progressAssembling
		p.ProgressMessage = "assembling manifest"
		return nil
	})
	if err != nil {
		return o.finishErr(ctx, projectID, runID, models.LogCategorySystem, err, manifest)
	}

	// stage 6: completion
	if opts.RenderNow {
		quality := render.ExportQuality{Width: manifest.Width, Height: manifest.Height}
		if opts.Quality != nil {
			quality = *opts.Quality
		}
		o.emit.Info(ctx, models.LogCategoryRender, projectID, "generation complete, handing off to render")
		res, rerr := o.renderer.RenderManifest(ctx, projectID, manifest, quality)
		if rerr != nil {
			return o.finishErr(ctx, projectID, runID, models.LogCategoryRender, rerr, manifest)
		}
		err = o.commit(ctx, projectID, runID, func(p *models.Project) error {
			if err := p.Transition(models.ProjectStatusReady); err != nil {
				return err
			}
			res.Apply(p, manifest)
			return nil
		})
		if err != nil {
			return o.finishErr(ctx, projectID, runID, models.LogCategoryRender, err, manifest)
		}
		o.emit.Info(ctx, models.LogCategoryRender, projectID, "render complete: %s (%.1fs)", res.OutputRef, res.DurationSec)
		return nil
	}

	err = o.commit(ctx, projectID, runID, func(p *models.Project) error {
		if err := p.Transition(models.ProjectStatusDraft); err != nil {
			return err
		}
		p.Progress = progressDone
		p.ProgressMessage = "generation complete"
		return nil
	})
	if err != nil {
		return o.finishErr(ctx, projectID, runID, models.LogCategorySystem, err, manifest)
	}
	o.emit.Info(ctx, models.LogCategorySystem, projectID, "generation run %s complete (%d scenes)", runID, len(scenes))
	return nil
}

func (o *Orchestrator) scriptStage(ctx context.Context, projectID, runID string, opts Options) (string, error) {
	p, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		return "", err
	}
	script := p.ScriptText

	if script == "" || opts.RegenerateScript {
		sp, err := o.providers.Script(provider.DefaultID)
		if err != nil {
			return "", err
		}
		req := provider.ScriptRequest{
			Topic:         p.Title,
			Style:         p.ImageStyle,
			TargetSeconds: p.TargetSeconds,
		}
		err = o.withRetry(ctx, func(cctx context.Context) error {
			var genErr error
			script, genErr = sp.GenerateScript(cctx, req)
			return genErr
		})
		if err != nil {
			return "", err
		}
	}

	err = o.commit(ctx, projectID, runID, func(p *models.Project) error {
		p.ScriptText = script
		p.Progress = progressScript
		p.ProgressMessage = "script ready"
		return nil
	})
	if err != nil {
		return "", err
	}
	return script, nil
}

func (o *Orchestrator) audioStage(ctx context.Context, projectID, runID, voiceID string, scenes []models.Scene) error {
	sp, err := o.providers.Speech(provider.DefaultID)
	if err != nil {
		return err
	}
	return o.forEachScene(ctx, projectID, runID, len(scenes), progressScript, progressAudioEnd,
		"narrating scene", func(i int) error {
			var asset *provider.AudioAsset
			err := o.withRetry(ctx, func(cctx context.Context) error {
				var synthErr error
				asset, synthErr = sp.SynthesizeSpeech(cctx, scenes[i].Text, voiceID)
				return synthErr
			})
			if err != nil {
				return fmt.Errorf("scene %d audio: %w", i+1, err)
			}
			scenes[i].AudioPath = asset.Path
			// the measured narration length overrides the estimate
			if asset.DurationSec > 0 {
				scenes[i].DurationSec = asset.DurationSec
			}
			return nil
		})
}

func (o *Orchestrator) imageStage(ctx context.Context, projectID, runID, style, generator string, scenes []models.Scene) error {
	if generator == "" {
		generator = provider.DefaultID
	}
	ip, err := o.providers.Image(generator)
	if err != nil {
		return err
	}
	return o.forEachScene(ctx, projectID, runID, len(scenes), progressAudioEnd, progressImageEnd,
		"illustrating scene", func(i int) error {
			var asset *provider.ImageAsset
			err := o.withRetry(ctx, func(cctx context.Context) error {
				var synthErr error
				asset, synthErr = ip.SynthesizeImage(cctx, scenes[i].Text, style,
					o.policy.Width, o.policy.Height, sceneSeed(scenes[i].Text))
				return synthErr
			})
			if err != nil {
				return fmt.Errorf("scene %d image: %w", i+1, err)
			}
			scenes[i].ImagePath = asset.Path
			return nil
		})
}

// forEachScene runs fn over all scene indexes with bounded fan-out and
// commits proportional progress inside [base, end] as scenes complete. The
// stage waits for all in-flight calls even after the first fatal failure;
// later results for an aborted stage are simply never committed.
func (o *Orchestrator) forEachScene(ctx context.Context, projectID, runID string, n, base, end int, verb string, fn func(i int) error) error {
	sem := make(chan struct{}, o.policy.FanOut)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	done := 0

	for i := 0; i < n; i++ {
		mu.Lock()
		aborted := firstErr != nil
		mu.Unlock()
		if aborted {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()

			err := fn(i)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			done++
			progress := base + (end-base)*done/n
			commitErr := o.commit(ctx, projectID, runID, func(p *models.Project) error {
				if progress > p.Progress {
					p.Progress = progress
				}
				p.ProgressMessage = fmt.Sprintf("%s %d/%d", verb, done, n)
				return nil
			})
			if commitErr != nil && firstErr == nil {
				firstErr = commitErr
			}
		}(i)
	}

	wg.Wait()
	return firstErr
}

func (o *Orchestrator) buildManifest(scenes []models.Scene) *models.Manifest {
	out := make([]models.Scene, len(scenes))
	copy(out, scenes)
	return &models.Manifest{
		FPS:           o.policy.FPS,
		Width:         o.policy.Width,
		Height:        o.policy.Height,
		TransitionSec: o.policy.TransitionSec,
		Scenes:        out,
	}
}

// RegenerateScene re-runs a single provider call for one scene and patches
// the existing manifest in place. Project status is untouched.
func (o *Orchestrator) RegenerateScene(ctx context.Context, projectID, sceneID, field string) error {
	if field != "audio" && field != "image" {
		return errs.New(errs.InvalidInput, "unknown regeneration field %q", field)
	}
	if !o.runs.lockScene(projectID, sceneID) {
		return errs.New(errs.Conflict, "scene %s is already being regenerated", sceneID)
	}
	defer o.runs.unlockScene(projectID, sceneID)

	p, err := o.store.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Status == models.ProjectStatusQueued || p.Status == models.ProjectStatusGenerating {
		return errs.New(errs.Conflict, "project %s has a generation run in progress", projectID)
	}
	if p.Manifest == nil {
		return errs.New(errs.InvalidState, "project %s has no manifest to patch", projectID)
	}
	idx := p.Manifest.SceneByID(sceneID)
	if idx < 0 {
		return errs.New(errs.InvalidInput, "scene %s not found in manifest", sceneID)
	}
	scene := p.Manifest.Scenes[idx]

	var audioAsset *provider.AudioAsset
	var imageAsset *provider.ImageAsset
	category := models.LogCategoryTTS
	switch field {
	case "audio":
		sp, err := o.providers.Speech(provider.DefaultID)
		if err != nil {
			return err
		}
		err = o.withRetry(ctx, func(cctx context.Context) error {
			var synthErr error
			audioAsset, synthErr = sp.SynthesizeSpeech(cctx, scene.Text, p.VoiceID)
			return synthErr
		})
		if err != nil {
			return err
		}
	case "image":
		category = models.LogCategoryImage
		generator := p.ImageGenerator
		if generator == "" {
			generator = provider.DefaultID
		}
		ip, err := o.providers.Image(generator)
		if err != nil {
			return err
		}
		err = o.withRetry(ctx, func(cctx context.Context) error {
			var synthErr error
			imageAsset, synthErr = ip.SynthesizeImage(cctx, scene.Text, p.ImageStyle,
				o.policy.Width, o.policy.Height, sceneSeed(scene.Text))
			return synthErr
		})
		if err != nil {
			return err
		}
	}

	// reload before patching so a concurrent regeneration of a different
	// scene is not overwritten
	p, err = o.store.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if p.Manifest == nil {
		return errs.New(errs.InvalidState, "project %s lost its manifest", projectID)
	}
	idx = p.Manifest.SceneByID(sceneID)
	if idx < 0 {
		return errs.New(errs.InvalidInput, "scene %s not found in manifest", sceneID)
	}
	if audioAsset != nil {
		p.Manifest.Scenes[idx].AudioPath = audioAsset.Path
		if audioAsset.DurationSec > 0 {
			p.Manifest.Scenes[idx].DurationSec = audioAsset.DurationSec
		}
	}
	if imageAsset != nil {
		p.Manifest.Scenes[idx].ImagePath = imageAsset.Path
	}
	if err := o.store.SaveProject(ctx, p); err != nil {
		return err
	}
	o.emit.Info(ctx, category, projectID, "scene %s %s regenerated", sceneID, field)
	return nil
}

// commit applies a mutation to the project, but only while runID is still the
// active run. Superseded runs get errStale and their change is dropped.
func (o *Orchestrator) commit(ctx context.Context, projectID, runID string, mutate func(*models.Project) error) error {
	ok, err := o.runs.withActive(projectID, runID, func() error {
		p, err := o.store.LoadProject(ctx, projectID)
		if err != nil {
			return err
		}
		if err := mutate(p); err != nil {
			return err
		}
		return o.store.SaveProject(ctx, p)
	})
	if !ok {
		return errStale
	}
	return err
}

// finishErr moves the project to error state, preserving any partially
// completed manifest so regeneration can resume instead of restarting. A
// stale run's failure is discarded entirely.
func (o *Orchestrator) finishErr(ctx context.Context, projectID, runID, category string, cause error, partial *models.Manifest) error {
	if errors.Is(cause, errStale) {
		o.emit.Debug(ctx, models.LogCategorySystem, projectID, "run %s superseded, result dropped", runID)
		return nil
	}

	commitErr := o.commit(ctx, projectID, runID, func(p *models.Project) error {
		if p.Status != models.ProjectStatusError {
			if err := p.Transition(models.ProjectStatusError); err != nil {
				return err
			}
		}
		p.ErrorMessage = cause.Error()
		p.ProgressMessage = "generation failed"
		if partial != nil {
			p.Manifest = partial
		}
		return nil
	})
	if errors.Is(commitErr, errStale) {
		return nil
	}
	o.emit.Error(ctx, category, projectID, "generation run %s failed: %v", runID, cause)
	return cause
}

// withRetry applies the bounded retry policy: only Transient failures are
// retried, with exponential backoff, and each attempt carries the provider
// timeout.
func (o *Orchestrator) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		cctx, cancel := ctx, func() {}
		if o.policy.ProviderTimeout > 0 {
			cctx, cancel = context.WithTimeout(ctx, o.policy.ProviderTimeout)
		}
		err = fn(cctx)
		cancel()
		if err == nil {
			return nil
		}
		if !errs.Retryable(err) || attempt >= o.policy.MaxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(o.policy.BackoffBase * time.Duration(1<<attempt)):
		}
	}
}

// sceneSeed derives a stable image seed from the scene text so re-running a
// generation reproduces the same image for unchanged narration.
func sceneSeed(text string) int {
	h := fnv.New32a()
	h.Write([]byte(text))
	return int(h.Sum32() % 1_000_000)
}
