package google

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/internal/llm"
	"github.com/nulzo/llm-proxy/pkg/api"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Adapter calls the Gemini generateContent API. The credential travels as
// the key query parameter.
//
// By default every non-user turn, system included, is sent with role
// "model". With SystemInstruction set, system turns go to the
// systemInstruction field instead.
type Adapter struct {
	baseURL           string
	systemInstruction bool
	deps              llm.Deps
}

func New(ep llm.Endpoint, deps llm.Deps) *Adapter {
	return &Adapter{
		baseURL:           strings.TrimRight(ep.BaseURLOr(DefaultBaseURL), "/"),
		systemInstruction: ep.SystemInstruction,
		deps:              deps.WithDefaults(),
	}
}

func (a *Adapter) Provider() api.Provider {
	return api.Google
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
	TopP            float64 `json:"topP"`
	TopK            int     `json:"topK"`
}

type generateRequest struct {
	Contents          []content        `json:"contents"`
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
}

func (a *Adapter) payload(req *api.ChatRequest) generateRequest {
	p := generateRequest{
		Contents: make([]content, 0, len(req.Messages)),
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
			TopP:            1.0,
			TopK:            1,
		},
	}

	relabelled := 0
	for _, m := range req.Messages {
		if m.Role == "system" && a.systemInstruction {
			continue
		}
		role := "model"
		if m.Role == "user" {
			role = "user"
		}
		if m.Role == "system" {
			relabelled++
		}
		p.Contents = append(p.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}

	if a.systemInstruction {
		if sys := req.System(); len(sys) > 0 {
			p.SystemInstruction = &content{Parts: []part{{Text: strings.Join(sys, "\n\n")}}}
		}
	}

	if relabelled > 0 {
		a.deps.Logger.Warn("System messages sent to Google as model turns",
			zap.String("model", req.Model),
			zap.Int("count", relabelled),
		)
	}

	return p
}

func (a *Adapter) endpoint(model, method, credential string, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	query.Set("key", credential)
	return fmt.Sprintf("%s/models/%s:%s?%s", a.baseURL, url.PathEscape(model), method, query.Encode())
}

func finishReason(reason string) string {
	if reason == "MAX_TOKENS" {
		return "length"
	}
	return "stop"
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest, credential string) (*api.ChatResponse, error) {
	target := a.endpoint(req.Model, "generateContent", credential, nil)

	var upstream generateResponse
	if err := httpclient.SendRequest(ctx, a.deps.Client, http.MethodPost, target, nil, a.payload(req), &upstream); err != nil {
		return nil, err
	}

	if len(upstream.Candidates) == 0 {
		return nil, &httpclient.UpstreamError{
			StatusCode: http.StatusBadGateway,
			Body:       []byte(`{"error":{"message":"No response from Google API"}}`),
			URL:        target,
		}
	}

	candidate := upstream.Candidates[0]
	var text strings.Builder
	for _, p := range candidate.Content.Parts {
		text.WriteString(p.Text)
	}
	completion := text.String()

	usage := a.deps.Accountant.LocalUsage(req.Model, req.Messages, completion)
	now := a.deps.Now().Unix()
	id := fmt.Sprintf("google-%d", now)

	return &api.ChatResponse{
		ID:       id,
		Object:   "chat.completion",
		Created:  now,
		Model:    req.Model,
		Provider: api.Google,
		Choices: []api.Choice{{
			Index:        0,
			Message:      &api.ChatMessage{Role: "assistant", Content: completion},
			FinishReason: finishReason(candidate.FinishReason),
		}},
		Usage:     usage,
		Cost:      a.deps.Accountant.Cost(req.Model, usage.PromptTokens, usage.CompletionTokens),
		RequestID: id,
	}, nil
}

// Stream uses the SSE variant of streamGenerateContent, which has no
// terminal sentinel; the stream ends when the connection closes.
func (a *Adapter) Stream(ctx context.Context, req *api.ChatRequest, credential string) (<-chan api.StreamChunk, error) {
	target := a.endpoint(req.Model, "streamGenerateContent", credential, url.Values{"alt": {"sse"}})

	body, err := httpclient.OpenStream(ctx, a.deps.Client, http.MethodPost, target, nil, a.payload(req))
	if err != nil {
		return nil, err
	}
	return llm.Pump(ctx, body, llm.DataJSON), nil
}
