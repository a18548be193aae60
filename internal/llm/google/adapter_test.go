package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nulzo/llm-proxy/internal/accounting"
	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/internal/llm"
	"github.com/nulzo/llm-proxy/internal/registry"
	"github.com/nulzo/llm-proxy/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeps(t *testing.T, client *http.Client) llm.Deps {
	t.Helper()
	reg, err := registry.New(registry.Defaults()...)
	require.NoError(t, err)
	return llm.Deps{
		Client:     client,
		Accountant: accounting.New(reg),
		Now:        func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func geminiRequest() *api.ChatRequest {
	req := api.NewChatRequest()
	req.Model = "gemini-pro"
	req.Provider = api.Google
	req.Temperature = 0.2
	req.MaxTokens = 256
	req.Messages = []api.ChatMessage{
		{Role: "system", Content: "Be kind"},
		{Role: "user", Content: "Hi"},
		{Role: "assistant", Content: "Hello"},
		{Role: "user", Content: "How are you"},
	}
	return &req
}

func TestPayload_DefaultRoleMapping(t *testing.T) {
	a := New(llm.Endpoint{}, testDeps(t, nil))

	p := a.payload(geminiRequest())

	require.Len(t, p.Contents, 4)
	roles := []string{p.Contents[0].Role, p.Contents[1].Role, p.Contents[2].Role, p.Contents[3].Role}
	assert.Equal(t, []string{"model", "user", "model", "user"}, roles)
	assert.Nil(t, p.SystemInstruction)
	assert.Equal(t, generationConfig{Temperature: 0.2, MaxOutputTokens: 256, TopP: 1.0, TopK: 1}, p.GenerationConfig)
}

func TestPayload_SystemInstruction(t *testing.T) {
	a := New(llm.Endpoint{SystemInstruction: true}, testDeps(t, nil))

	p := a.payload(geminiRequest())

	require.Len(t, p.Contents, 3)
	assert.Equal(t, "user", p.Contents[0].Role)
	require.NotNil(t, p.SystemInstruction)
	assert.Equal(t, "Be kind", p.SystemInstruction.Parts[0].Text)
}

func TestChat_KeyInQueryAndLocalUsage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-pro:generateContent", r.URL.Path)
		assert.Equal(t, "g-key", r.URL.Query().Get("key"))
		assert.Empty(t, r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "generationConfig")

		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"I am well"}]},"finishReason":"STOP"}]}`))
	}))
	defer server.Close()

	a := New(llm.Endpoint{BaseURL: server.URL + "/v1beta"}, testDeps(t, server.Client()))

	resp, err := a.Chat(context.Background(), geminiRequest(), "g-key")
	require.NoError(t, err)

	assert.Equal(t, "google-1700000000", resp.ID)
	assert.Equal(t, resp.ID, resp.RequestID)
	assert.Equal(t, api.Google, resp.Provider)
	assert.Equal(t, "I am well", resp.Choices[0].Message.Content)
	assert.Equal(t, "stop", resp.Choices[0].FinishReason)
	// "Be kind Hi Hello How are you" = 6 words -> 8, "I am well" = 3 -> 4
	assert.Equal(t, api.Usage{PromptTokens: 8, CompletionTokens: 4, TotalTokens: 12}, resp.Usage)
	assert.Equal(t, "0.00001", resp.Cost.String())
}

func TestChat_NoCandidatesIsUpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer server.Close()

	a := New(llm.Endpoint{BaseURL: server.URL}, testDeps(t, server.Client()))

	_, err := a.Chat(context.Background(), geminiRequest(), "g-key")

	var upstream *httpclient.UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Equal(t, "No response from Google API", upstream.Message())
	assert.NotContains(t, upstream.Error(), "g-key")
}

func TestStream_SSEUntilClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-pro:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		_, _ = w.Write([]byte(
			"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"I \"}]}}]}\n\n" +
				"data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"am\"}]}}]}\n\n"))
	}))
	defer server.Close()

	a := New(llm.Endpoint{BaseURL: server.URL}, testDeps(t, server.Client()))

	ch, err := a.Stream(context.Background(), geminiRequest(), "g-key")
	require.NoError(t, err)

	n := 0
	for c := range ch {
		require.NoError(t, c.Err)
		n++
	}
	assert.Equal(t, 2, n)
}
