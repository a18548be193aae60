package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/internal/llm"
	"github.com/nulzo/llm-proxy/pkg/api"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1"
	APIVersion     = "2023-06-01"
)

type Adapter struct {
	url     string
	headers map[string]string
	deps    llm.Deps
}

func New(ep llm.Endpoint, deps llm.Deps) *Adapter {
	headers := map[string]string{"anthropic-version": APIVersion}
	for k, v := range ep.Headers {
		headers[strings.ToLower(k)] = v
	}
	return &Adapter{
		url:     strings.TrimRight(ep.BaseURLOr(DefaultBaseURL), "/") + "/messages",
		headers: headers,
		deps:    deps.WithDefaults(),
	}
}

func (a *Adapter) Provider() api.Provider {
	return api.Anthropic
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	Temperature float64   `json:"temperature"`
	Messages    []message `json:"messages"`
	System      string    `json:"system,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type messagesResponse struct {
	ID      string `json:"id"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// payload lifts system turns out of the conversation into the top-level
// system field; the Messages API rejects a system role inside messages.
func payload(req *api.ChatRequest, stream bool) messagesRequest {
	p := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      stream,
		Messages:    make([]message, 0, len(req.Messages)),
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			continue
		}
		p.Messages = append(p.Messages, message{Role: m.Role, Content: m.Content})
	}
	p.System = strings.Join(req.System(), "\n\n")

	return p
}

func (a *Adapter) requestHeaders(credential string) map[string]string {
	headers := make(map[string]string, len(a.headers)+1)
	for k, v := range a.headers {
		headers[k] = v
	}
	headers["x-api-key"] = credential
	return headers
}

func finishReason(stop string) string {
	switch stop {
	case "max_tokens":
		return "length"
	default:
		return "stop"
	}
}

func (a *Adapter) Chat(ctx context.Context, req *api.ChatRequest, credential string) (*api.ChatResponse, error) {
	var upstream messagesResponse
	if err := httpclient.SendRequest(ctx, a.deps.Client, http.MethodPost, a.url, a.requestHeaders(credential), payload(req, false), &upstream); err != nil {
		return nil, err
	}

	var text strings.Builder
	for _, block := range upstream.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	completion := text.String()

	usage := a.deps.Accountant.LocalUsage(req.Model, req.Messages, completion)

	return &api.ChatResponse{
		ID:       upstream.ID,
		Object:   "chat.completion",
		Created:  a.deps.Now().Unix(),
		Model:    req.Model,
		Provider: api.Anthropic,
		Choices: []api.Choice{{
			Index:        0,
			Message:      &api.ChatMessage{Role: "assistant", Content: completion},
			FinishReason: finishReason(upstream.StopReason),
		}},
		Usage:     usage,
		Cost:      a.deps.Accountant.Cost(req.Model, usage.PromptTokens, usage.CompletionTokens),
		RequestID: upstream.ID,
	}, nil
}

type streamEvent struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// extractor follows the "event:" line that precedes each payload so an error
// event is recognised even when its data omits the type.
type extractor struct {
	event string
}

func newExtractor() *extractor {
	return &extractor{}
}

// extract forwards every JSON event payload and ends after message_stop. An
// error event ends the stream with a *llm.StreamError.
func (x *extractor) extract(line string) ([]byte, bool, error) {
	if name, ok := httpclient.EventName(line); ok {
		x.event = name
		return nil, false, nil
	}

	data, ok := httpclient.DataPayload(line)
	if !ok {
		return nil, false, nil
	}
	event := x.event
	x.event = ""

	var ev streamEvent
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		if event == "error" {
			return nil, false, &llm.StreamError{Message: data}
		}
		return nil, false, nil
	}

	if ev.Type == "error" || event == "error" {
		msg := ev.Error.Message
		if msg == "" {
			msg = data
		}
		return nil, false, &llm.StreamError{Type: ev.Error.Type, Message: msg}
	}

	return []byte(data), ev.Type == "message_stop", nil
}
