package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"StoryReel-server/errs"
	"StoryReel-server/logging"
	"StoryReel-server/models"
	"StoryReel-server/store"

	"github.com/lithammer/shortuuid/v4"
)

// Uploader pushes a rendered artifact to object storage and returns its
// reference. A nil uploader keeps local paths (dev mode).
type Uploader interface {
	Upload(ctx context.Context, localPath, objectName string) (string, error)
}

// Stage consumes a complete manifest and produces the output file, total
// duration and derived chapters. It owns the generating->ready and
// generating->error transitions.
type Stage struct {
	store    store.Store
	emit     *logging.Emitter
	encoder  Encoder
	uploader Uploader
	workDir  string
}

func NewStage(s store.Store, emit *logging.Emitter, encoder Encoder, uploader Uploader, workDir string) *Stage {
	return &Stage{store: s, emit: emit, encoder: encoder, uploader: uploader, workDir: workDir}
}

func (s *Stage) Render(ctx context.Context, projectID string, manifest *models.Manifest, quality ExportQuality) error {
	p, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	// a render triggered outside a generation run walks the project through
	// queued into generating first
	if p.Status != models.ProjectStatusGenerating {
		if p.Status == models.ProjectStatusDraft || p.Status == models.ProjectStatusError {
			if err := p.Transition(models.ProjectStatusQueued); err != nil {
				return err
			}
		}
		if err := p.Transition(models.ProjectStatusGenerating); err != nil {
			return err
		}
		p.ProgressMessage = "rendering"
		if err := s.store.SaveProject(ctx, p); err != nil {
			return err
		}
	}

	if err := s.render(ctx, projectID, manifest, quality); err != nil {
		s.fail(ctx, projectID, err)
		return err
	}
	return nil
}

func (s *Stage) render(ctx context.Context, projectID string, manifest *models.Manifest, quality ExportQuality) error {
	res, err := s.RenderManifest(ctx, projectID, manifest, quality)
	if err != nil {
		return err
	}

	p, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	if err := p.Transition(models.ProjectStatusReady); err != nil {
		return err
	}
	res.Apply(p, manifest)
	if err := s.store.SaveProject(ctx, p); err != nil {
		return err
	}
	s.emit.Info(ctx, models.LogCategoryRender, projectID, "render complete: %s (%.1fs, %d chapters)", res.OutputRef, res.DurationSec, len(res.Chapters))
	return nil
}

// Result is what a successful render produces besides the file itself.
type Result struct {
	OutputRef    string
	ThumbnailRef string
	Chapters     models.ChapterList
	DurationSec  float64
}

// Apply writes the render outcome onto the project record. Status is the
// caller's responsibility.
func (r *Result) Apply(p *models.Project, manifest *models.Manifest) {
	p.Manifest = manifest
	p.OutputPath = r.OutputRef
	p.ThumbnailPath = r.ThumbnailRef
	p.Chapters = r.Chapters
	p.DurationSec = r.DurationSec
	p.Progress = 100
	p.ProgressMessage = "render complete"
	p.ErrorMessage = ""
}

// RenderManifest does the encode and upload work without touching project
// state. The generation orchestrator calls this directly and commits the
// result itself, under the same guard as every other run write, so a
// superseded run's render can never overwrite a newer run's state.
func (s *Stage) RenderManifest(ctx context.Context, projectID string, manifest *models.Manifest, quality ExportQuality) (*Result, error) {
	// completeness check before any encoding work
	for i, scene := range manifest.Scenes {
		if !scene.Renderable() {
			return nil, errs.New(errs.IncompleteScene, "scene %d (%s) has neither audio nor image", i+1, scene.ID)
		}
	}

	chapters, total := Timeline(manifest)

	if err := os.MkdirAll(s.workDir, 0755); err != nil {
		return nil, fmt.Errorf("create render work dir: %w", err)
	}
	outputPath := filepath.Join(s.workDir, fmt.Sprintf("%s_%s.mp4", projectID, shortuuid.New()))

	job := EncodeJob{Manifest: manifest, Quality: quality, OutputPath: outputPath}
	s.emit.Info(ctx, models.LogCategoryRender, projectID, "encoding %d scenes, %.1fs total", len(manifest.Scenes), total)

	err := s.encoder.Encode(ctx, job)
	if err != nil && errs.IsKind(err, errs.EncodeFailure) {
		// one automatic retry before surfacing
		s.emit.Warn(ctx, models.LogCategoryRender, projectID, "encode failed, retrying once: %v", err)
		err = s.encoder.Encode(ctx, job)
	}
	if err != nil {
		return nil, err
	}

	outputRef := outputPath
	thumbnailRef := firstImage(manifest)
	if s.uploader != nil {
		outputRef, err = s.uploader.Upload(ctx, outputPath, fmt.Sprintf("projects/%s/output.mp4", projectID))
		if err != nil {
			return nil, errs.Wrap(errs.EncodeFailure, err, "upload rendered output")
		}
		if thumbnailRef != "" {
			uploaded, upErr := s.uploader.Upload(ctx, thumbnailRef, fmt.Sprintf("projects/%s/thumbnail.png", projectID))
			if upErr != nil {
				s.emit.Warn(ctx, models.LogCategoryRender, projectID, "thumbnail upload failed: %v", upErr)
			} else {
				thumbnailRef = uploaded
			}
		}
	}

	return &Result{
		OutputRef:    outputRef,
		ThumbnailRef: thumbnailRef,
		Chapters:     chapters,
		DurationSec:  total,
	}, nil
}

func (s *Stage) fail(ctx context.Context, projectID string, cause error) {
	p, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		s.emit.Error(ctx, models.LogCategoryRender, projectID, "render failed and project unreadable: %v", err)
		return
	}
	if p.Status != models.ProjectStatusError {
		if err := p.Transition(models.ProjectStatusError); err != nil {
			s.emit.Error(ctx, models.LogCategoryRender, projectID, "render failed in status %s: %v", p.Status, cause)
			return
		}
	}
	p.ErrorMessage = cause.Error()
	p.ProgressMessage = "render failed"
	if err := s.store.SaveProject(ctx, p); err != nil {
		s.emit.Error(ctx, models.LogCategoryRender, projectID, "persist render failure: %v", err)
	}
	s.emit.Error(ctx, models.LogCategoryRender, projectID, "render failed: %v", cause)
}

func firstImage(m *models.Manifest) string {
	for _, scene := range m.Scenes {
		if scene.ImagePath != "" {
			return scene.ImagePath
		}
	}
	return ""
}
