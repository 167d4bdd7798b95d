package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"StoryReel-server/errs"

	"github.com/google/uuid"
)

// HTTPSpeechProvider synthesizes narration audio through an HTTP TTS service
// that responds with a downloadable audio URL plus the measured duration.
type HTTPSpeechProvider struct {
	Endpoint  string
	APIKeyEnv string
	WorkDir   string
	Client    *http.Client
}

func NewHTTPSpeechProvider(endpoint, apiKeyEnv, workDir string) *HTTPSpeechProvider {
	return &HTTPSpeechProvider{
		Endpoint:  endpoint,
		APIKeyEnv: apiKeyEnv,
		WorkDir:   workDir,
		Client:    &http.Client{Timeout: 120 * time.Second},
	}
}

type ttsRequest struct {
	Text   string `json:"text"`
	Voice  string `json:"voice"`
	Format string `json:"format"`
}

type ttsResponse struct {
	AudioURL    string  `json:"audio_url"`
	DurationSec float64 `json:"duration_sec"`
}

func (p *HTTPSpeechProvider) SynthesizeSpeech(ctx context.Context, text, voiceID string) (*AudioAsset, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errs.New(errs.InvalidInput, "tts text is empty")
	}
	key, err := apiKeyFromEnv(p.APIKeyEnv)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(ttsRequest{Text: text, Voice: voiceID, Format: "mp3"})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build tts request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, classifyHTTP(resp.StatusCode, readBodySnippet(resp.Body))
	}

	var parsed ttsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errs.Wrap(errs.Transient, err, "decode tts response")
	}
	if parsed.AudioURL == "" {
		return nil, errs.New(errs.Transient, "tts response missing audio_url")
	}
	if parsed.DurationSec <= 0 {
		return nil, errs.New(errs.Transient, "tts response missing duration")
	}

	dest := filepath.Join(p.WorkDir, "audio", uuid.NewString()+".mp3")
	if err := downloadAsset(ctx, p.Client, parsed.AudioURL, dest); err != nil {
		return nil, err
	}
	return &AudioAsset{Path: dest, DurationSec: parsed.DurationSec}, nil
}
