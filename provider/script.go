package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"StoryReel-server/errs"
)

// HTTPScriptProvider generates narration scripts through a chat-completions
// style endpoint.
type HTTPScriptProvider struct {
	Endpoint  string
	Model     string
	APIKeyEnv string
	Client    *http.Client
}

func NewHTTPScriptProvider(endpoint, model, apiKeyEnv string) *HTTPScriptProvider {
	return &HTTPScriptProvider{
		Endpoint:  endpoint,
		Model:     model,
		APIKeyEnv: apiKeyEnv,
		Client:    &http.Client{Timeout: 120 * time.Second},
	}
}

const scriptSystemPrompt = `You are a narration scriptwriter for short videos. Write plain spoken prose, one thought per sentence, no markdown, no stage directions. Match the requested length when read aloud at a natural pace (~130 words per minute).`

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (p *HTTPScriptProvider) GenerateScript(ctx context.Context, req ScriptRequest) (string, error) {
	if strings.TrimSpace(req.Topic) == "" {
		return "", errs.New(errs.InvalidInput, "script topic is empty")
	}
	key, err := apiKeyFromEnv(p.APIKeyEnv)
	if err != nil {
		return "", err
	}

	userPrompt := fmt.Sprintf("Topic: %s", req.Topic)
	if req.Style != "" {
		userPrompt += fmt.Sprintf("\nStyle: %s", req.Style)
	}
	if req.TargetSeconds > 0 {
		userPrompt += fmt.Sprintf("\nTarget length when spoken: about %d seconds", req.TargetSeconds)
	}

	body, err := json.Marshal(chatRequest{
		Model: p.Model,
		Messages: []chatMessage{
			{Role: "system", Content: scriptSystemPrompt},
			{Role: "user", Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal script request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build script request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if key != "" {
		httpReq.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return "", classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", classifyHTTP(resp.StatusCode, readBodySnippet(resp.Body))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", errs.Wrap(errs.Transient, err, "decode script response")
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", errs.New(errs.Transient, "script response contained no text")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
