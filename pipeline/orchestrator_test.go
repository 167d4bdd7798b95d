package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"StoryReel-server/errs"
	"StoryReel-server/logging"
	"StoryReel-server/models"
	"StoryReel-server/provider"
	"StoryReel-server/render"
	"StoryReel-server/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test doubles for the three provider capabilities. The jitter makes the
// fan-out complete scenes out of order, which is exactly what the ordering
// assertions are for.

type fakeScript struct {
	script string
	calls  int32
}

func (f *fakeScript) GenerateScript(ctx context.Context, req provider.ScriptRequest) (string, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.script, nil
}

type fakeSpeech struct {
	calls    int32
	failures int32 // first N calls fail
	failKind errs.Kind
	jitter   bool
	onCall   func(n int32)
}

func (f *fakeSpeech) SynthesizeSpeech(ctx context.Context, text, voiceID string) (*provider.AudioAsset, error) {
	n := atomic.AddInt32(&f.calls, 1)
	if f.onCall != nil {
		f.onCall(n)
	}
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}
	if n <= f.failures {
		return nil, errs.New(f.failKind, "synthetic speech failure %d", n)
	}
	return &provider.AudioAsset{
		Path:        fmt.Sprintf("audio/%s.mp3", hashText(text)),
		DurationSec: 3.5,
	}, nil
}

type fakeImage struct {
	calls  int32
	jitter bool
}

func (f *fakeImage) SynthesizeImage(ctx context.Context, prompt, style string, width, height, seed int) (*provider.ImageAsset, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.jitter {
		time.Sleep(time.Duration(rand.Intn(5)) * time.Millisecond)
	}
	return &provider.ImageAsset{Path: fmt.Sprintf("images/%d.png", seed)}, nil
}

func hashText(text string) string {
	return fmt.Sprintf("%06d", sceneSeed(text))
}

type fakeRenderStage struct {
	calls  int32
	err    error
	onCall func()
}

func (f *fakeRenderStage) RenderManifest(ctx context.Context, projectID string, m *models.Manifest, q render.ExportQuality) (*render.Result, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.onCall != nil {
		f.onCall()
	}
	if f.err != nil {
		return nil, f.err
	}
	chapters, total := render.Timeline(m)
	return &render.Result{
		OutputRef:    "media/" + projectID + ".mp4",
		ThumbnailRef: "media/" + projectID + ".png",
		Chapters:     chapters,
		DurationSec:  total,
	}, nil
}

// hookedStore intercepts project writes for the persistence-fault scenarios.
type hookedStore struct {
	store.Store
	onSave    func(p *models.Project)
	failSaves int
}

func (s *hookedStore) SaveProject(ctx context.Context, p *models.Project) error {
	if s.onSave != nil {
		s.onSave(p)
	}
	if s.failSaves > 0 {
		s.failSaves--
		return errors.New("simulated store outage")
	}
	return s.Store.SaveProject(ctx, p)
}

func testRegistry() *provider.Registry {
	reg := provider.NewRegistry()
	reg.RegisterScript(provider.DefaultID, &fakeScript{script: "Fallback script."})
	reg.RegisterSpeech(provider.DefaultID, &fakeSpeech{})
	reg.RegisterImage(provider.DefaultID, &fakeImage{})
	return reg
}

func testPolicy() Policy {
	return Policy{
		FanOut:          3,
		MaxRetries:      2,
		BackoffBase:     time.Millisecond,
		MinSceneSeconds: 2,
		FPS:             24,
		Width:           640,
		Height:          360,
		TransitionSec:   0.5,
	}
}

func newTestOrchestrator(t *testing.T, speech *fakeSpeech, image *fakeImage) (*Orchestrator, *store.MemoryStore) {
	t.Helper()
	st := store.NewMemoryStore()
	reg := provider.NewRegistry()
	reg.RegisterScript(provider.DefaultID, &fakeScript{script: "Fallback script."})
	reg.RegisterSpeech(provider.DefaultID, speech)
	reg.RegisterImage(provider.DefaultID, image)
	o := NewOrchestrator(st, reg, logging.NewEmitter(st), nil, testPolicy())
	return o, st
}

func seedProject(t *testing.T, st store.Store, script string) *models.Project {
	t.Helper()
	p := &models.Project{
		ID:            "proj-1",
		Title:         "A tiny story",
		ScriptText:    script,
		Status:        models.ProjectStatusDraft,
		TargetSeconds: 30,
	}
	require.NoError(t, st.SaveProject(context.Background(), p))
	return p
}

const testScript = "The river froze overnight. Children skated before school! " +
	"An old man watched from the bridge. Nobody noticed the first crack? " +
	"By noon the ice was gone."

func TestExecuteFullRun(t *testing.T) {
	speech := &fakeSpeech{jitter: true}
	image := &fakeImage{jitter: true}
	o, st := newTestOrchestrator(t, speech, image)
	seedProject(t, st, testScript)
	ctx := context.Background()

	runID, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	require.NoError(t, o.Execute(ctx, "proj-1", runID, Options{}))

	p, err := st.LoadProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusDraft, p.Status)
	assert.Equal(t, 100, p.Progress)
	assert.Empty(t, p.ErrorMessage)

	require.NotNil(t, p.Manifest)
	segments := SegmentScript(testScript, 30, 2)
	require.Len(t, p.Manifest.Scenes, len(segments))

	// scene order must match the script regardless of asset completion order
	for i, scene := range p.Manifest.Scenes {
		assert.Equal(t, segments[i].Text, scene.Text, "scene %d out of order", i)
		assert.NotEmpty(t, scene.AudioPath)
		assert.NotEmpty(t, scene.ImagePath)
		// measured narration length replaces the estimate
		assert.Equal(t, 3.5, scene.DurationSec)
		assert.Equal(t, models.MotionCycle[i%len(models.MotionCycle)], scene.Motion)
	}
	assert.Equal(t, int32(len(segments)), speech.calls)
	assert.Equal(t, int32(len(segments)), image.calls)
}

func TestExecuteIsReproducible(t *testing.T) {
	run := func(projectID string) *models.Manifest {
		o, st := newTestOrchestrator(t, &fakeSpeech{jitter: true}, &fakeImage{jitter: true})
		p := &models.Project{ID: projectID, Title: "t", ScriptText: testScript,
			Status: models.ProjectStatusDraft, TargetSeconds: 30}
		ctx := context.Background()
		require.NoError(t, st.SaveProject(ctx, p))
		runID, err := o.StartGeneration(ctx, projectID, Options{})
		require.NoError(t, err)
		require.NoError(t, o.Execute(ctx, projectID, runID, Options{}))
		out, err := st.LoadProject(ctx, projectID)
		require.NoError(t, err)
		return out.Manifest
	}

	a := run("proj-a")
	b := run("proj-b")
	require.Len(t, b.Scenes, len(a.Scenes))
	for i := range a.Scenes {
		// ids are fresh but everything derived from the text is identical
		assert.Equal(t, a.Scenes[i].Text, b.Scenes[i].Text)
		assert.Equal(t, a.Scenes[i].AudioPath, b.Scenes[i].AudioPath)
		assert.Equal(t, a.Scenes[i].ImagePath, b.Scenes[i].ImagePath)
		assert.Equal(t, a.Scenes[i].DurationSec, b.Scenes[i].DurationSec)
	}
}

func TestTransientFailureRetriedThenSucceeds(t *testing.T) {
	speech := &fakeSpeech{failures: 2, failKind: errs.Transient}
	o, st := newTestOrchestrator(t, speech, &fakeImage{})
	seedProject(t, st, "Just one sentence.")
	ctx := context.Background()

	runID, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	require.NoError(t, o.Execute(ctx, "proj-1", runID, Options{}))

	p, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusDraft, p.Status)
	// two transient failures, third attempt lands within MaxRetries=2
	assert.Equal(t, int32(3), speech.calls)
}

func TestRetriesExhaustedMovesToError(t *testing.T) {
	speech := &fakeSpeech{failures: 99, failKind: errs.Transient}
	o, st := newTestOrchestrator(t, speech, &fakeImage{})
	seedProject(t, st, "Just one sentence.")
	ctx := context.Background()

	runID, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	err = o.Execute(ctx, "proj-1", runID, Options{})
	require.Error(t, err)
	assert.True(t, errs.Retryable(err) || errs.IsKind(err, errs.Transient))

	p, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusError, p.Status)
	assert.NotEmpty(t, p.ErrorMessage)
	// 1 attempt + MaxRetries retries, then give up
	assert.Equal(t, int32(3), speech.calls)
	// the partial manifest survives so scene regeneration can resume
	require.NotNil(t, p.Manifest)
	assert.Len(t, p.Manifest.Scenes, 1)
}

func TestNonRetryableFailureFailsFast(t *testing.T) {
	speech := &fakeSpeech{failures: 99, failKind: errs.InvalidInput}
	o, st := newTestOrchestrator(t, speech, &fakeImage{})
	seedProject(t, st, "Just one sentence.")
	ctx := context.Background()

	runID, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	require.Error(t, o.Execute(ctx, "proj-1", runID, Options{}))

	assert.Equal(t, int32(1), speech.calls)
	p, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusError, p.Status)
}

func TestScriptStageGeneratesWhenEmpty(t *testing.T) {
	o, st := newTestOrchestrator(t, &fakeSpeech{}, &fakeImage{})
	seedProject(t, st, "")
	ctx := context.Background()

	runID, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	require.NoError(t, o.Execute(ctx, "proj-1", runID, Options{}))

	p, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, "Fallback script.", p.ScriptText)
	require.NotNil(t, p.Manifest)
	assert.Len(t, p.Manifest.Scenes, 1)
}

func TestSupersededRunIsDiscarded(t *testing.T) {
	o, st := newTestOrchestrator(t, &fakeSpeech{}, &fakeImage{})
	seedProject(t, st, testScript)
	ctx := context.Background()

	runA, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	runB, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	require.NotEqual(t, runA, runB)

	// the stale run executes without error and without leaving a trace
	require.NoError(t, o.Execute(ctx, "proj-1", runA, Options{}))
	p, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusQueued, p.Status)
	assert.Equal(t, 0, p.Progress)
	assert.Nil(t, p.Manifest)
	assert.Equal(t, 2, p.RunSeq)

	// the live run completes normally
	require.NoError(t, o.Execute(ctx, "proj-1", runB, Options{}))
	p, _ = st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusDraft, p.Status)
	assert.Equal(t, 100, p.Progress)
	require.NotNil(t, p.Manifest)
}

func TestSupersessionMidRun(t *testing.T) {
	o, st := newTestOrchestrator(t, &fakeSpeech{}, &fakeImage{})

	var runB atomic.Value
	speech := &fakeSpeech{onCall: func(n int32) {
		if n == 1 {
			id, err := o.StartGeneration(context.Background(), "proj-1", Options{})
			require.NoError(t, err)
			runB.Store(id)
		}
	}}
	// rebuild with the superseding speech double
	reg := provider.NewRegistry()
	reg.RegisterScript(provider.DefaultID, &fakeScript{script: "s"})
	reg.RegisterSpeech(provider.DefaultID, speech)
	reg.RegisterImage(provider.DefaultID, &fakeImage{})
	o = NewOrchestrator(st, reg, logging.NewEmitter(st), nil, testPolicy())

	seedProject(t, st, "Only sentence here.")
	ctx := context.Background()
	runA, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)

	// run A is overtaken while its first speech call is in flight; its
	// results must never reach the store
	require.NoError(t, o.Execute(ctx, "proj-1", runA, Options{}))
	p, _ := st.LoadProject(ctx, "proj-1")
	assert.Nil(t, p.Manifest)
	assert.NotEqual(t, models.ProjectStatusDraft, p.Status)

	require.NoError(t, o.Execute(ctx, "proj-1", runB.Load().(string), Options{}))
	p, _ = st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusDraft, p.Status)
	require.NotNil(t, p.Manifest)
}

func TestRenderNowEndsReady(t *testing.T) {
	st := store.NewMemoryStore()
	stage := &fakeRenderStage{}
	o := NewOrchestrator(st, testRegistry(), logging.NewEmitter(st), stage, testPolicy())
	seedProject(t, st, testScript)
	ctx := context.Background()

	opts := Options{RenderNow: true}
	runID, err := o.StartGeneration(ctx, "proj-1", opts)
	require.NoError(t, err)
	require.NoError(t, o.Execute(ctx, "proj-1", runID, opts))

	p, err := st.LoadProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.Equal(t, models.ProjectStatusReady, p.Status)
	assert.Equal(t, 100, p.Progress)
	assert.Equal(t, "media/proj-1.mp4", p.OutputPath)
	assert.Equal(t, "media/proj-1.png", p.ThumbnailPath)
	require.NotNil(t, p.Manifest)
	assert.Len(t, p.Chapters, len(p.Manifest.Scenes))
	assert.Greater(t, p.DurationSec, 0.0)
	assert.Equal(t, int32(1), stage.calls)
}

func TestRenderNowSupersededResultDropped(t *testing.T) {
	st := store.NewMemoryStore()
	stage := &fakeRenderStage{}
	o := NewOrchestrator(st, testRegistry(), logging.NewEmitter(st), stage, testPolicy())
	// a second run takes over while the first one's encode is in flight
	stage.onCall = func() {
		_, err := o.StartGeneration(context.Background(), "proj-1", Options{})
		require.NoError(t, err)
	}
	seedProject(t, st, "Only sentence here.")
	ctx := context.Background()

	opts := Options{RenderNow: true}
	runA, err := o.StartGeneration(ctx, "proj-1", opts)
	require.NoError(t, err)
	require.NoError(t, o.Execute(ctx, "proj-1", runA, opts))

	// the finished render belongs to a stale run: it must not become ready
	p, err := st.LoadProject(ctx, "proj-1")
	require.NoError(t, err)
	assert.NotEqual(t, models.ProjectStatusReady, p.Status)
	assert.Empty(t, p.OutputPath)
	assert.Equal(t, 0, p.Progress)
}

func TestRenderNowFailureEndsInError(t *testing.T) {
	st := store.NewMemoryStore()
	stage := &fakeRenderStage{err: errs.New(errs.EncodeFailure, "encode blew up")}
	o := NewOrchestrator(st, testRegistry(), logging.NewEmitter(st), stage, testPolicy())
	seedProject(t, st, "Only sentence here.")
	ctx := context.Background()

	opts := Options{RenderNow: true}
	runID, err := o.StartGeneration(ctx, "proj-1", opts)
	require.NoError(t, err)
	require.Error(t, o.Execute(ctx, "proj-1", runID, opts))

	p, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusError, p.Status)
	assert.NotEmpty(t, p.ErrorMessage)
	// the assembled manifest survives the failed render
	require.NotNil(t, p.Manifest)
}

func TestStartGenerationGuardsResetFromOldRun(t *testing.T) {
	base := store.NewMemoryStore()
	hooked := &hookedStore{Store: base}
	o := NewOrchestrator(hooked, testRegistry(), logging.NewEmitter(base), nil, testPolicy())
	ctx := context.Background()
	p := &models.Project{ID: "proj-1", Title: "t", ScriptText: testScript,
		Status: models.ProjectStatusDraft, TargetSeconds: 30}
	require.NoError(t, base.SaveProject(ctx, p))

	runA, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)

	// while the superseding run's reset is being persisted, a commit from the
	// run it replaces must already be rejected
	var staleErr error
	hooked.onSave = func(saved *models.Project) {
		if saved.RunSeq == 2 {
			hooked.onSave = nil
			staleErr = o.commit(ctx, "proj-1", runA, func(p *models.Project) error {
				p.Progress = 77
				return nil
			})
		}
	}
	_, err = o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, staleErr, errStale)
	got, _ := base.LoadProject(ctx, "proj-1")
	assert.Equal(t, 0, got.Progress)
}

func TestStartGenerationClearsPreviousOutput(t *testing.T) {
	o, st := newTestOrchestrator(t, &fakeSpeech{}, &fakeImage{})
	ctx := context.Background()
	p := seedProject(t, st, testScript)
	end := 6.5
	p.Status = models.ProjectStatusReady
	p.OutputPath = "media/old.mp4"
	p.ThumbnailPath = "media/old.png"
	p.Chapters = models.ChapterList{{Title: "old", StartSec: 0, EndSec: &end}}
	p.DurationSec = 6.5
	p.Progress = 100
	require.NoError(t, st.SaveProject(ctx, p))

	_, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)

	got, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusGenerating, got.Status)
	assert.Empty(t, got.OutputPath)
	assert.Empty(t, got.ThumbnailPath)
	assert.Nil(t, got.Chapters)
	assert.Equal(t, 0.0, got.DurationSec)
	assert.Equal(t, 0, got.Progress)
}

func TestFirstCommitFailureEndsInError(t *testing.T) {
	base := store.NewMemoryStore()
	hooked := &hookedStore{Store: base}
	o := NewOrchestrator(hooked, testRegistry(), logging.NewEmitter(base), nil, testPolicy())
	ctx := context.Background()
	require.NoError(t, base.SaveProject(ctx, &models.Project{ID: "proj-1", Title: "t",
		ScriptText: "One line.", Status: models.ProjectStatusDraft, TargetSeconds: 30}))

	runID, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)

	// the queued -> generating write fails before anything else happens; the
	// project must surface the failure instead of sitting in queued forever
	hooked.failSaves = 1
	require.Error(t, o.Execute(ctx, "proj-1", runID, Options{}))

	p, _ := base.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusError, p.Status)
	assert.Contains(t, p.ErrorMessage, "simulated store outage")
}

func TestStartGenerationFromReadyAndError(t *testing.T) {
	o, st := newTestOrchestrator(t, &fakeSpeech{}, &fakeImage{})
	ctx := context.Background()

	p := seedProject(t, st, testScript)
	p.Status = models.ProjectStatusReady
	require.NoError(t, st.SaveProject(ctx, p))
	_, err := o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	got, _ := st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusGenerating, got.Status)

	p.Status = models.ProjectStatusError
	require.NoError(t, st.SaveProject(ctx, p))
	_, err = o.StartGeneration(ctx, "proj-1", Options{})
	require.NoError(t, err)
	got, _ = st.LoadProject(ctx, "proj-1")
	assert.Equal(t, models.ProjectStatusQueued, got.Status)
}

func TestRegenerateScenePatchesOnlyTarget(t *testing.T) {
	speech := &fakeSpeech{}
	o, st := newTestOrchestrator(t, speech, &fakeImage{})
	ctx := context.Background()

	p := seedProject(t, st, testScript)
	p.Manifest = &models.Manifest{
		FPS: 24, Width: 640, Height: 360, TransitionSec: 0.5,
		Scenes: []models.Scene{
			{ID: "s1", Text: "First scene.", AudioPath: "audio/old1.mp3", ImagePath: "images/1.png", DurationSec: 3},
			{ID: "s2", Text: "Second scene.", AudioPath: "audio/old2.mp3", ImagePath: "images/2.png", DurationSec: 4},
			{ID: "s3", Text: "Third scene.", AudioPath: "audio/old3.mp3", ImagePath: "images/3.png", DurationSec: 5},
		},
	}
	require.NoError(t, st.SaveProject(ctx, p))
	before, _ := st.LoadProject(ctx, "proj-1")

	require.NoError(t, o.RegenerateScene(ctx, "proj-1", "s2", "audio"))

	after, _ := st.LoadProject(ctx, "proj-1")
	assert.NotEqual(t, before.Manifest.Scenes[1].AudioPath, after.Manifest.Scenes[1].AudioPath)
	assert.Equal(t, 3.5, after.Manifest.Scenes[1].DurationSec)
	// untouched scenes are byte for byte identical
	assert.Equal(t, before.Manifest.Scenes[0], after.Manifest.Scenes[0])
	assert.Equal(t, before.Manifest.Scenes[2], after.Manifest.Scenes[2])
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, int32(1), speech.calls)
}

func TestRegenerateSceneValidation(t *testing.T) {
	o, st := newTestOrchestrator(t, &fakeSpeech{}, &fakeImage{})
	ctx := context.Background()
	p := seedProject(t, st, testScript)

	err := o.RegenerateScene(ctx, "proj-1", "s1", "script")
	assert.True(t, errs.IsKind(err, errs.InvalidInput), "unknown field: %v", err)

	// no manifest yet
	err = o.RegenerateScene(ctx, "proj-1", "s1", "audio")
	assert.True(t, errs.IsKind(err, errs.InvalidState), "missing manifest: %v", err)

	p.Manifest = &models.Manifest{Scenes: []models.Scene{{ID: "s1", Text: "x", AudioPath: "a.mp3"}}}
	require.NoError(t, st.SaveProject(ctx, p))

	err = o.RegenerateScene(ctx, "proj-1", "nope", "audio")
	assert.True(t, errs.IsKind(err, errs.InvalidInput), "unknown scene: %v", err)

	p.Status = models.ProjectStatusGenerating
	require.NoError(t, st.SaveProject(ctx, p))
	err = o.RegenerateScene(ctx, "proj-1", "s1", "audio")
	assert.True(t, errs.IsKind(err, errs.Conflict), "active run: %v", err)
}
