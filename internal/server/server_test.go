package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/llm-proxy/internal/accounting"
	"github.com/nulzo/llm-proxy/internal/config"
	"github.com/nulzo/llm-proxy/internal/gateway"
	"github.com/nulzo/llm-proxy/internal/llm"
	"github.com/nulzo/llm-proxy/internal/registry"
	"github.com/nulzo/llm-proxy/internal/store"
	"github.com/nulzo/llm-proxy/internal/store/model"
	"github.com/nulzo/llm-proxy/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubUsage struct{}

func (stubUsage) GetUsageOverview(context.Context, int) ([]model.DailyStats, error) {
	return []model.DailyStats{}, nil
}

func (stubUsage) GetRecord(_ context.Context, id string) (*model.UsageRecord, error) {
	return nil, store.ErrNotFound
}

func (stubUsage) GetRecent(context.Context, int64, int) ([]model.UsageRecord, error) {
	return []model.UsageRecord{}, nil
}

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// anthropic-shaped stream that fails after its first event
		if r.Header.Get("x-api-key") != "" {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte(
				"event: message_start\ndata: {\"type\":\"message_start\"}\n\n" +
					"event: error\ndata: {\"type\":\"error\",\"error\":{\"type\":\"overloaded_error\",\"message\":\"Overloaded\"}}\n\n"))
			return
		}
		if r.Header.Get("Authorization") == "Bearer broken" {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":{"message":"model overloaded"}}`))
			return
		}

		var body struct {
			Stream bool `json:"stream"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		if body.Stream {
			w.Header().Set("Content-Type", "text/event-stream")
			_, _ = w.Write([]byte("data: {\"choices\":[{\"delta\":{\"content\":\"4\"}}]}\n\ndata: [DONE]\n\n"))
			return
		}
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","created":1,"choices":[{"index":0,"message":{"role":"assistant","content":"4"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestServer(t *testing.T, mutate func(*config.Config)) http.Handler {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", Env: "test"},
	}
	if mutate != nil {
		mutate(cfg)
	}

	reg, err := registry.New(registry.Defaults()...)
	require.NoError(t, err)
	acct := accounting.New(reg)

	up := upstream(t)
	dispatcher := gateway.New(gateway.Options{
		Registry:   reg,
		Accountant: acct,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		Providers: map[api.Provider]gateway.ProviderOptions{
			api.OpenAI:    {Endpoint: llm.Endpoint{BaseURL: up.URL}},
			api.Anthropic: {Endpoint: llm.Endpoint{BaseURL: up.URL}},
		},
	})

	return New(cfg, zap.NewNop(), Deps{
		Dispatcher: dispatcher,
		Models:     reg,
		Accountant: acct,
		Usage:      stubUsage{},
		Version:    "0.7.0",
	}).Handler()
}

func do(h http.Handler, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

const chatBody = `{"model":"gpt-3.5-turbo","provider":"openai","messages":[{"role":"user","content":"2+2?"}]}`

func TestHealthAndIndex(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "llm-proxy", body["service"])
	assert.Len(t, body["supported_providers"], 6)

	w = do(h, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body = decode(t, w)
	assert.Equal(t, "LLM Proxy Service v0.7.0", body["message"])
	assert.Len(t, body["models"], 9)
}

func TestListModels(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodGet, "/models", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var list struct {
		Models []map[string]interface{} `json:"models"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list.Models, 9)
	assert.Equal(t, "claude-3-haiku-20240307", list.Models[0]["name"])
	assert.Contains(t, list.Models[0], "max_tokens")
}

func TestChatCompletion(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodPost, "/chat/completions", chatBody, map[string]string{"X-OPENAI-API-KEY": "sk-test"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	body := decode(t, w)
	assert.Equal(t, "0.0000115", body["cost"])
	assert.Equal(t, "openai", body["provider"])
	assert.Equal(t, "chatcmpl-1", body["request_id"])
}

func TestChatCompletion_Errors(t *testing.T) {
	h := newTestServer(t, nil)

	cases := []struct {
		name    string
		body    string
		headers map[string]string
		status  int
	}{
		{"missing credential", chatBody, nil, http.StatusUnauthorized},
		{"unknown model", strings.Replace(chatBody, "gpt-3.5-turbo", "not-a-real-model", 1), nil, http.StatusBadRequest},
		{"unknown provider", strings.Replace(chatBody, `"openai"`, `"mistral"`, 1), map[string]string{"X-OPENAI-API-KEY": "k"}, http.StatusBadRequest},
		{"bad role", strings.Replace(chatBody, `"user"`, `"robot"`, 1), nil, http.StatusBadRequest},
		{"empty messages", `{"model":"gpt-4","provider":"openai","messages":[]}`, nil, http.StatusBadRequest},
		{"malformed json", `{"model":`, nil, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := do(h, http.MethodPost, "/chat/completions", tc.body, tc.headers)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			assert.EqualValues(t, tc.status, decode(t, w)["status"])
		})
	}
}

func TestChatCompletion_ValidationFieldNames(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodPost, "/chat/completions", strings.Replace(chatBody, `"user"`, `"robot"`, 1), nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	fields, ok := decode(t, w)["errors"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, fields, "messages[0].role")
}

func TestChatCompletion_UpstreamFailureIs502(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodPost, "/chat/completions", chatBody, map[string]string{"X-OPENAI-API-KEY": "broken"})
	require.Equal(t, http.StatusBadGateway, w.Code)

	body := decode(t, w)
	assert.Equal(t, "model overloaded", body["detail"])
	assert.EqualValues(t, 500, body["upstream_status"])
	assert.NotContains(t, w.Body.String(), "broken")
}

func TestChatCompletion_Stream(t *testing.T) {
	h := newTestServer(t, nil)

	// c.Stream needs a real connection, a recorder cannot close-notify
	srv := httptest.NewServer(h)
	defer srv.Close()

	body := strings.Replace(chatBody, `"messages"`, `"stream":true,"messages"`, 1)
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat/completions", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OPENAI-API-KEY", "k")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))
	assert.Equal(t,
		"data: {\"choices\":[{\"delta\":{\"content\":\"4\"}}]}\n\ndata: [DONE]\n\n",
		string(raw))
}

func TestChatCompletion_StreamErrorAfterFirstChunk(t *testing.T) {
	srv := httptest.NewServer(newTestServer(t, nil))
	defer srv.Close()

	body := `{"model":"claude-3-haiku-20240307","provider":"anthropic","stream":true,"messages":[{"role":"user","content":"Hi"}]}`
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/chat/completions", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-ANTHROPIC-API-KEY", "k")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	// headers were already sent, so the failure arrives as a final frame
	require.Equal(t, http.StatusOK, resp.StatusCode)

	frames := strings.Split(strings.TrimSuffix(string(raw), "\n\n"), "\n\n")
	require.Len(t, frames, 2, string(raw))
	assert.Equal(t, `data: {"type":"message_start"}`, frames[0])

	var last struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frames[1], "data: ")), &last))
	assert.Equal(t, "upstream_error", last.Error.Type)
	assert.Contains(t, last.Error.Message, "Overloaded")
	assert.NotContains(t, string(raw), "[DONE]")
}

func TestChatCompletion_StreamErrorBeforeFirstChunk(t *testing.T) {
	h := newTestServer(t, nil)

	body := strings.Replace(chatBody, `"messages"`, `"stream":true,"messages"`, 1)
	w := do(h, http.MethodPost, "/chat/completions", body, map[string]string{"X-OPENAI-API-KEY": "broken"})

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
}

func TestTokensCount(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodPost, "/tokens/count", `{"text":"hello world"}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "gpt-3.5-turbo", body["model"])
	assert.EqualValues(t, 2, body["tokens"])
	assert.EqualValues(t, 11, body["characters"])
	assert.Equal(t, "tiktoken", body["method"])

	w = do(h, http.MethodPost, "/tokens/count?text=one+two+three&model=claude-3-haiku-20240307", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body = decode(t, w)
	assert.EqualValues(t, 4, body["tokens"])
	assert.Equal(t, "fallback", body["method"])
}

func TestCostEstimate(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodPost, "/cost/estimate", `{"model":"gpt-3.5-turbo","input_tokens":5,"output_tokens":2}`, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "0.0000075", body["input_cost"])
	assert.Equal(t, "0.000004", body["output_cost"])
	assert.Equal(t, "0.0000115", body["total_cost"])
	assert.EqualValues(t, 7, body["total_tokens"])
	assert.Equal(t, "USD", body["currency"])

	w = do(h, http.MethodPost, "/cost/estimate", `{"model":"nope","input_tokens":1,"output_tokens":1}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUsageRecordNotFound(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodGet, "/usage/missing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(h, http.MethodGet, "/usage?days=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(h, http.MethodGet, "/usage?days=3", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.Server.APIKeys = []string{"gateway-key"}
	})

	w := do(h, http.MethodGet, "/models", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodGet, "/models", "", map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(h, http.MethodGet, "/models", "", map[string]string{"Authorization": "Bearer gateway-key"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, func(c *config.Config) {
		c.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerSecond: 0.001, Burst: 1}
	})

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/models", "", nil).Code)

	w := do(h, http.MethodGet, "/models", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, nil)

	w := do(h, http.MethodOptions, "/chat/completions", "", map[string]string{
		"Origin":                         "http://localhost:3000",
		"Access-Control-Request-Headers": "x-openai-api-key, content-type",
	})
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "x-openai-api-key, content-type", w.Header().Get("Access-Control-Allow-Headers"))
}
