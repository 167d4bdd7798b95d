package provider

import (
	"context"
	"sync"

	"StoryReel-server/errs"
)

// The three generation capabilities. Implementations classify their failures
// (Transient / InvalidInput / ProviderUnavailable) so the orchestrator can
// apply its retry policy without knowing the provider.

type ScriptRequest struct {
	Topic         string
	Style         string
	TargetSeconds int
}

type AudioAsset struct {
	Path        string
	DurationSec float64
}

type ImageAsset struct {
	Path string
}

type ScriptProvider interface {
	GenerateScript(ctx context.Context, req ScriptRequest) (string, error)
}

type SpeechProvider interface {
	SynthesizeSpeech(ctx context.Context, text, voiceID string) (*AudioAsset, error)
}

type ImageProvider interface {
	SynthesizeImage(ctx context.Context, prompt, style string, width, height, seed int) (*ImageAsset, error)
}

// Registry maps provider ids to implementations. Adding a provider means
// registering it here; the orchestrator's control flow never changes.
type Registry struct {
	mu     sync.RWMutex
	script map[string]ScriptProvider
	speech map[string]SpeechProvider
	image  map[string]ImageProvider
}

func NewRegistry() *Registry {
	return &Registry{
		script: make(map[string]ScriptProvider),
		speech: make(map[string]SpeechProvider),
		image:  make(map[string]ImageProvider),
	}
}

func (r *Registry) RegisterScript(id string, p ScriptProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.script[id] = p
}

func (r *Registry) RegisterSpeech(id string, p SpeechProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.speech[id] = p
}

func (r *Registry) RegisterImage(id string, p ImageProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.image[id] = p
}

func (r *Registry) Script(id string) (ScriptProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.script[id]; ok {
		return p, nil
	}
	return nil, errs.New(errs.ProviderUnavailable, "no script provider registered as %q", id)
}

func (r *Registry) Speech(id string) (SpeechProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.speech[id]; ok {
		return p, nil
	}
	return nil, errs.New(errs.ProviderUnavailable, "no speech provider registered as %q", id)
}

func (r *Registry) Image(id string) (ImageProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.image[id]; ok {
		return p, nil
	}
	return nil, errs.New(errs.ProviderUnavailable, "no image provider registered as %q", id)
}
