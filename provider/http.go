package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"StoryReel-server/errs"
)

// DefaultID is the provider id used when a project does not pick one.
const DefaultID = "default"

// classifyHTTP maps a provider response status to the failure taxonomy.
// 429 and 5xx are retryable; auth problems mean a bad credential; any other
// 4xx is the caller's fault.
func classifyHTTP(status int, body string) error {
	switch {
	case status == http.StatusTooManyRequests || status >= 500:
		return errs.New(errs.Transient, "provider status %d: %s", status, body)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.New(errs.ProviderUnavailable, "provider rejected credential (status %d)", status)
	case status >= 400:
		return errs.New(errs.InvalidInput, "provider status %d: %s", status, body)
	}
	return nil
}

// classifyTransport wraps network-level errors. Timeouts and connection
// faults are Transient; context cancellation passes through unwrapped so a
// superseded run is not retried.
func classifyTransport(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.Transient, err, "provider call timed out")
	}
	return errs.Wrap(errs.Transient, err, "provider request failed")
}

func readBodySnippet(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 512))
	return string(b)
}

// apiKeyFromEnv resolves a credential. Missing credential is a
// ProviderUnavailable failure, never a crash.
func apiKeyFromEnv(envName string) (string, error) {
	if envName == "" {
		return "", nil
	}
	key := os.Getenv(envName)
	if key == "" {
		return "", errs.New(errs.ProviderUnavailable, "credential %s is not set", envName)
	}
	return key, nil
}

// downloadAsset fetches a generated asset to the local work dir.
func downloadAsset(ctx context.Context, client *http.Client, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.InvalidInput, err, "bad asset url")
	}
	resp, err := client.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return classifyHTTP(resp.StatusCode, readBodySnippet(resp.Body))
	}

	return saveStream(resp.Body, destPath)
}

// saveStream writes an asset body to the local work dir.
func saveStream(r io.Reader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create asset dir: %w", err)
	}
	f, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(destPath)
		return errs.Wrap(errs.Transient, err, "asset download interrupted")
	}
	return nil
}
