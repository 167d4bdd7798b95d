package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"StoryReel-server/errs"

	"github.com/google/uuid"
)

// HTTPImageProvider fetches a synthesized image from a prompt-in-the-URL
// image service (pollinations style). The seed keeps repeated generations of
// the same prompt reproducible.
type HTTPImageProvider struct {
	Endpoint  string
	APIKeyEnv string
	WorkDir   string
	Client    *http.Client
}

func NewHTTPImageProvider(endpoint, apiKeyEnv, workDir string) *HTTPImageProvider {
	return &HTTPImageProvider{
		Endpoint:  endpoint,
		APIKeyEnv: apiKeyEnv,
		WorkDir:   workDir,
		Client:    &http.Client{Timeout: 180 * time.Second},
	}
}

func (p *HTTPImageProvider) SynthesizeImage(ctx context.Context, prompt, style string, width, height, seed int) (*ImageAsset, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errs.New(errs.InvalidInput, "image prompt is empty")
	}
	key, err := apiKeyFromEnv(p.APIKeyEnv)
	if err != nil {
		return nil, err
	}

	full := prompt
	if style != "" {
		full = fmt.Sprintf("%s, %s style", prompt, style)
	}
	reqURL := fmt.Sprintf("%s/%s?width=%d&height=%d&seed=%d&nologo=true",
		strings.TrimRight(p.Endpoint, "/"), url.PathEscape(full), width, height, seed)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
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

	dest := filepath.Join(p.WorkDir, "images", uuid.NewString()+".png")
	if err := saveStream(resp.Body, dest); err != nil {
		return nil, err
	}
	return &ImageAsset{Path: dest}, nil
}
