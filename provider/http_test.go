package provider

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"StoryReel-server/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyHTTP(t *testing.T) {
	assert.NoError(t, classifyHTTP(200, ""))
	assert.True(t, errs.IsKind(classifyHTTP(429, "slow down"), errs.Transient))
	assert.True(t, errs.IsKind(classifyHTTP(500, "boom"), errs.Transient))
	assert.True(t, errs.IsKind(classifyHTTP(503, ""), errs.Transient))
	assert.True(t, errs.IsKind(classifyHTTP(401, ""), errs.ProviderUnavailable))
	assert.True(t, errs.IsKind(classifyHTTP(403, ""), errs.ProviderUnavailable))
	assert.True(t, errs.IsKind(classifyHTTP(400, "bad"), errs.InvalidInput))
	assert.True(t, errs.IsKind(classifyHTTP(422, ""), errs.InvalidInput))
}

func TestClassifyTransportKeepsCancellation(t *testing.T) {
	// a superseded run's cancellation must not look retryable
	err := classifyTransport(context.Canceled)
	assert.False(t, errs.Retryable(err))
	assert.True(t, errors.Is(err, context.Canceled))

	err = classifyTransport(context.DeadlineExceeded)
	assert.True(t, errs.Retryable(err))
}

func TestAPIKeyFromEnv(t *testing.T) {
	key, err := apiKeyFromEnv("")
	require.NoError(t, err)
	assert.Empty(t, key)

	_, err = apiKeyFromEnv("STORYREEL_TEST_MISSING_KEY")
	assert.True(t, errs.IsKind(err, errs.ProviderUnavailable))

	t.Setenv("STORYREEL_TEST_KEY", "sk-test")
	key, err = apiKeyFromEnv("STORYREEL_TEST_KEY")
	require.NoError(t, err)
	assert.Equal(t, "sk-test", key)
}

func TestHTTPScriptProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"content":"A short story. The end."}}]}`))
	}))
	defer srv.Close()
	t.Setenv("STORYREEL_TEST_KEY", "sk-test")

	p := NewHTTPScriptProvider(srv.URL, "test-model", "STORYREEL_TEST_KEY")
	script, err := p.GenerateScript(context.Background(), ScriptRequest{Topic: "winter", TargetSeconds: 30})
	require.NoError(t, err)
	assert.Equal(t, "A short story. The end.", script)
}

func TestHTTPScriptProviderEmptyTopic(t *testing.T) {
	p := NewHTTPScriptProvider("http://unused", "m", "")
	_, err := p.GenerateScript(context.Background(), ScriptRequest{Topic: "   "})
	assert.True(t, errs.IsKind(err, errs.InvalidInput))
}

func TestHTTPScriptProviderRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewHTTPScriptProvider(srv.URL, "m", "")
	_, err := p.GenerateScript(context.Background(), ScriptRequest{Topic: "winter"})
	assert.True(t, errs.Retryable(err), "429 should be retryable: %v", err)
}

func TestHTTPImageProviderSavesAsset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "seed=42")
		w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	p := NewHTTPImageProvider(srv.URL, "", t.TempDir())
	asset, err := p.SynthesizeImage(context.Background(), "a frozen river", "watercolor", 640, 360, 42)
	require.NoError(t, err)
	assert.FileExists(t, asset.Path)
}

func TestRegistryUnknownProvider(t *testing.T) {
	reg := NewRegistry()
	_, err := reg.Script("nope")
	assert.True(t, errs.IsKind(err, errs.ProviderUnavailable))
	_, err = reg.Speech("nope")
	assert.True(t, errs.IsKind(err, errs.ProviderUnavailable))
	_, err = reg.Image("nope")
	assert.True(t, errs.IsKind(err, errs.ProviderUnavailable))
}
