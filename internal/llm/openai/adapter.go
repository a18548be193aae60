package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/internal/llm"
	"github.com/nulzo/llm-proxy/pkg/api"
)

const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DeepSeekBaseURL   = "https://api.deepseek.com/v1"
	OpenRouterBaseURL = "https://openrouter.ai/api/v1"
	RunPodBaseURL     = "https://api.runpod.ai"

	OpenRouterReferer = "https://llm-frontend.local"
	OpenRouterTitle   = "LLM Frontend"
)

// Adapter speaks the OpenAI chat-completions wire format. DeepSeek,
// OpenRouter and RunPod expose the same format behind different endpoints.
type Adapter struct {
	provider api.Provider
	url      string
	headers  map[string]string
	deps     llm.Deps
}

func newAdapter(p api.Provider, baseURL, path string, headers map[string]string, deps llm.Deps) *Adapter {
	return &Adapter{
		provider: p,
		url:      strings.TrimRight(baseURL, "/") + path,
		headers:  headers,
		deps:     deps.WithDefaults(),
	}
}

// New returns the OpenAI adapter.
func New(ep llm.Endpoint, deps llm.Deps) *Adapter {
	return newAdapter(api.OpenAI, ep.BaseURLOr(DefaultBaseURL), "/chat/completions", ep.Headers, deps)
}

func NewDeepSeek(ep llm.Endpoint, deps llm.Deps) *Adapter {
	return newAdapter(api.DeepSeek, ep.BaseURLOr(DeepSeekBaseURL), "/chat/completions", ep.Headers, deps)
}

// NewOpenRouter adds the attribution headers OpenRouter expects. Configured
// headers take precedence.
func NewOpenRouter(ep llm.Endpoint, deps llm.Deps) *Adapter {
	headers := map[string]string{
		"HTTP-Referer": OpenRouterReferer,
		"X-Title":      OpenRouterTitle,
	}
	for k, v := range ep.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	return newAdapter(api.OpenRouter, ep.BaseURLOr(OpenRouterBaseURL), "/chat/completions", headers, deps)
}

// NewRunPod targets a RunPod endpoint exposing the OpenAI-compatible route.
func NewRunPod(ep llm.Endpoint, deps llm.Deps) *Adapter {
	return newAdapter(api.RunPod, ep.BaseURLOr(RunPodBaseURL), "/v1/chat/completions", ep.Headers, deps)
}

func (a *Adapter) Provider() api.Provider {
	return a.provider
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatPayload struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Created int64  `json:"created"`
	Choices []struct {
		Index        int     `json:"index"`
		Message      message `json:"message"`
		FinishReason string  `json:"finish_reason"`
	} `json:"choices"`
	Usage *api.Usage `json:"usage"`
}

func (a *Adapter) payload(req *api.ChatRequest, stream bool) chatPayload {
	msgs := make([]message, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, message{Role: m.Role, Content: m.Content})
	}
	return chatPayload{
		Model:       req.Model,
		Messages:    msgs,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
}

func (a *Adapter) requestHeaders(credential string) map[string]string {
	headers := make(map[string]string, len(a.headers)+1)
	for k, v := range a.headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + credential
	return headers
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest, credential string) (*api.ChatResponse, error) {
	var upstream chatResponse
	if err := httpclient.SendRequest(ctx, a.deps.Client, http.MethodPost, a.url, a.requestHeaders(credential), a.payload(req, false), &upstream); err != nil {
		return nil, err
	}

	now := a.deps.Now()
	resp := &api.ChatResponse{
		ID:       upstream.ID,
		Object:   "chat.completion",
		Created:  upstream.Created,
		Model:    req.Model,
		Provider: a.provider,
		Choices:  make([]api.Choice, 0, len(upstream.Choices)),
	}
	if resp.ID == "" {
		resp.ID = fmt.Sprintf("%s-%d", a.provider, now.Unix())
	}
	if resp.Created == 0 {
		resp.Created = now.Unix()
	}
	resp.RequestID = resp.ID

	for _, c := range upstream.Choices {
		resp.Choices = append(resp.Choices, api.Choice{
			Index:        c.Index,
			Message:      &api.ChatMessage{Role: c.Message.Role, Content: c.Message.Content},
			FinishReason: c.FinishReason,
		})
	}

	if upstream.Usage != nil {
		resp.Usage = api.NewUsage(upstream.Usage.PromptTokens, upstream.Usage.CompletionTokens)
	} else {
		var completion string
		if len(upstream.Choices) > 0 {
			completion = upstream.Choices[0].Message.Content
		}
		resp.Usage = a.deps.Accountant.LocalUsage(req.Model, req.Messages, completion)
	}

	resp.Cost = a.deps.Accountant.Cost(req.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

// Stream forwards each "data:" JSON chunk verbatim until [DONE].
func (a *Adapter) Stream(ctx context.Context, req *api.ChatRequest, credential string) (<-chan api.StreamChunk, error) {
	body, err := httpclient.OpenStream(ctx, a.deps.Client, http.MethodPost, a.url, a.requestHeaders(credential), a.payload(req, true))
	if err != nil {
		return nil, err
	}
	return llm.Pump(ctx, body, llm.DataJSON), nil
}
