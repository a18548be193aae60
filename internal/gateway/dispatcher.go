package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/internal/llm"
	"github.com/nulzo/llm-proxy/internal/llm/anthropic"
	"github.com/nulzo/llm-proxy/internal/llm/google"
	"github.com/nulzo/llm-proxy/internal/llm/openai"
	"github.com/nulzo/llm-proxy/internal/metrics"
	"github.com/nulzo/llm-proxy/internal/store/model"
	"github.com/nulzo/llm-proxy/pkg/api"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	modeChat   = "chat"
	modeStream = "stream"
)

// ModelResolver validates model names. *registry.Registry satisfies it.
type ModelResolver interface {
	Resolve(name string) (api.ModelDescriptor, error)
}

// UsageReporter receives a record per completed non-streamed request. Log
// must not block; failures stay inside the reporter.
type UsageReporter interface {
	Log(rec *model.UsageRecord)
}

// ProviderOptions is the process-wide configuration for one upstream.
type ProviderOptions struct {
	Endpoint llm.Endpoint
	// APIKey is the default credential, used when the request carries none.
	APIKey string
}

type Options struct {
	Logger     *zap.Logger
	Registry   ModelResolver
	Accountant llm.Accountant
	HTTPClient httpclient.HTTPClient
	Providers  map[api.Provider]ProviderOptions
	Reporter   UsageReporter
	Breaker    BreakerSettings
	Now        func() time.Time
}

// Dispatcher validates a chat request, resolves its credential and routes it
// to the adapter for request.provider. It holds no per-request state.
type Dispatcher struct {
	logger   *zap.Logger
	models   ModelResolver
	reporter UsageReporter
	defaults StaticCredentials
	adapters map[api.Provider]llm.Adapter
	breakers map[api.Provider]*gobreaker.CircuitBreaker[any]
	tracer   trace.Tracer
	now      func() time.Time
}

func New(opts Options) *Dispatcher {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	deps := llm.Deps{
		Client:     opts.HTTPClient,
		Accountant: opts.Accountant,
		Logger:     opts.Logger,
		Now:        opts.Now,
	}

	d := &Dispatcher{
		logger:   opts.Logger,
		models:   opts.Registry,
		reporter: opts.Reporter,
		defaults: make(StaticCredentials),
		adapters: make(map[api.Provider]llm.Adapter),
		tracer:   otel.Tracer("github.com/nulzo/llm-proxy/internal/gateway"),
		now:      opts.Now,
	}

	for _, p := range api.Providers() {
		po := opts.Providers[p]
		d.adapters[p] = newAdapter(p, po.Endpoint, deps)
		if po.APIKey != "" {
			d.defaults[p] = po.APIKey
		}
	}

	if opts.Breaker.Enabled {
		d.breakers = make(map[api.Provider]*gobreaker.CircuitBreaker[any])
		for _, p := range api.Providers() {
			d.breakers[p] = newBreaker(p, opts.Breaker, opts.Logger)
		}
	}

	return d
}

// newAdapter is the fixed provider table. p has already been checked
// against api.Providers.
func newAdapter(p api.Provider, ep llm.Endpoint, deps llm.Deps) llm.Adapter {
	switch p {
	case api.OpenAI:
		return openai.New(ep, deps)
	case api.Anthropic:
		return anthropic.New(ep, deps)
	case api.Google:
		return google.New(ep, deps)
	case api.DeepSeek:
		return openai.NewDeepSeek(ep, deps)
	case api.OpenRouter:
		return openai.NewOpenRouter(ep, deps)
	case api.RunPod:
		return openai.NewRunPod(ep, deps)
	default:
		panic(fmt.Sprintf("gateway: no adapter for provider %q", p))
	}
}

// Configured reports which providers have a default credential.
func (d *Dispatcher) Configured() []api.Provider {
	var out []api.Provider
	for _, p := range api.Providers() {
		if d.defaults[p] != "" {
			out = append(out, p)
		}
	}
	return out
}

type rejection struct {
	err     error
	outcome string
}

// admit runs every check that must pass before any upstream call: model,
// then provider, then credential.
func (d *Dispatcher) admit(req *api.ChatRequest, creds CredentialSource) (llm.Adapter, string, *rejection) {
	if _, err := d.models.Resolve(req.Model); err != nil {
		return nil, "", &rejection{err: err, outcome: metrics.OutcomeUnsupportedModel}
	}

	adapter, ok := d.adapters[req.Provider]
	if !ok {
		return nil, "", &rejection{
			err:     fmt.Errorf("%w: %q", ErrUnsupportedProvider, req.Provider),
			outcome: metrics.OutcomeUnsupportedProvider,
		}
	}

	credential := ""
	if creds != nil {
		credential = creds.Credential(req.Provider)
	}
	if credential == "" {
		credential = d.defaults.Credential(req.Provider)
	}
	if credential == "" {
		return nil, "", &rejection{
			err: fmt.Errorf("%w: set %s or %s",
				ErrMissingCredential, req.Provider.CredentialHeader(), req.Provider.CredentialEnv()),
			outcome: metrics.OutcomeMissingCredential,
		}
	}

	return adapter, credential, nil
}

func (d *Dispatcher) startSpan(ctx context.Context, name string, req *api.ChatRequest) (context.Context, trace.Span) {
	return d.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("llm.provider", req.Provider.String()),
		attribute.String("llm.model", req.Model),
		attribute.Bool("llm.stream", req.Stream),
	))
}

func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// call runs fn through the provider's breaker when one is configured.
func call[T any](d *Dispatcher, p api.Provider, fn func() (T, error)) (T, error) {
	cb, ok := d.breakers[p]
	if !ok {
		return fn()
	}
	out, err := cb.Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out.(T), nil
}

func (d *Dispatcher) upstreamFailure(p api.Provider, mode string, err error) error {
	outcome := metrics.OutcomeUpstreamError
	if isOpen(err) {
		outcome = metrics.OutcomeCircuitOpen
		err = errors.New("circuit open")
	}
	metrics.DispatchTotal.WithLabelValues(p.String(), mode, outcome).Inc()
	return fmt.Errorf("%w: %s: %w", ErrUpstream, p, err)
}

// Chat performs a single non-streamed completion and reports its usage.
func (d *Dispatcher) Chat(ctx context.Context, req *api.ChatRequest, creds CredentialSource) (*api.ChatResponse, error) {
	ctx, span := d.startSpan(ctx, "gateway.chat", req)
	defer span.End()

	adapter, credential, rej := d.admit(req, creds)
	if rej != nil {
		metrics.DispatchTotal.WithLabelValues(req.Provider.String(), modeChat, rej.outcome).Inc()
		failSpan(span, rej.err)
		return nil, rej.err
	}

	start := d.now()
	resp, err := call(d, req.Provider, func() (*api.ChatResponse, error) {
		return adapter.Chat(ctx, req, credential)
	})
	latency := d.now().Sub(start)
	metrics.UpstreamDuration.WithLabelValues(req.Provider.String(), modeChat).Observe(latency.Seconds())

	if err != nil {
		err = d.upstreamFailure(req.Provider, modeChat, err)
		failSpan(span, err)
		d.logger.Warn("Upstream chat failed",
			zap.String("provider", req.Provider.String()),
			zap.String("model", req.Model),
			zap.Error(err),
		)
		return nil, err
	}

	metrics.DispatchTotal.WithLabelValues(req.Provider.String(), modeChat, metrics.OutcomeSuccess).Inc()
	metrics.TokensTotal.WithLabelValues(req.Provider.String(), req.Model, "prompt").Add(float64(resp.Usage.PromptTokens))
	metrics.TokensTotal.WithLabelValues(req.Provider.String(), req.Model, "completion").Add(float64(resp.Usage.CompletionTokens))
	metrics.CostTotal.WithLabelValues(req.Provider.String(), req.Model).Add(resp.Cost.InexactFloat64())

	span.SetAttributes(
		attribute.Int("llm.usage.prompt_tokens", resp.Usage.PromptTokens),
		attribute.Int("llm.usage.completion_tokens", resp.Usage.CompletionTokens),
	)

	d.logger.Debug("Completion generated",
		zap.String("provider", req.Provider.String()),
		zap.String("model", req.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.String("cost", resp.Cost.String()),
		zap.Duration("latency", latency),
	)

	d.report(req, resp, latency)

	return resp, nil
}

func (d *Dispatcher) report(req *api.ChatRequest, resp *api.ChatResponse, latency time.Duration) {
	if d.reporter == nil {
		return
	}

	rec := &model.UsageRecord{
		ID:               uuid.NewString(),
		RequestID:        resp.RequestID,
		UserID:           req.UserID,
		ChatID:           req.ChatID,
		Provider:         req.Provider.String(),
		Model:            req.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Cost:             resp.Cost,
		LatencyMS:        latency.Milliseconds(),
		CreatedAt:        d.now().UTC(),
	}
	if len(resp.Choices) > 0 {
		rec.FinishReason = resp.Choices[0].FinishReason
	}

	d.reporter.Log(rec)
}

// Stream opens the upstream stream and returns a single-use channel of raw
// provider chunks, terminated by api.DoneChunk. Errors opening the stream
// are returned directly; errors mid-stream arrive as a chunk with Err set,
// after which the channel closes without the sentinel.
func (d *Dispatcher) Stream(ctx context.Context, req *api.ChatRequest, creds CredentialSource) (<-chan api.StreamChunk, error) {
	ctx, span := d.startSpan(ctx, "gateway.stream", req)

	adapter, credential, rej := d.admit(req, creds)
	if rej != nil {
		metrics.DispatchTotal.WithLabelValues(req.Provider.String(), modeStream, rej.outcome).Inc()
		failSpan(span, rej.err)
		span.End()
		return nil, rej.err
	}

	start := d.now()
	upstream, err := call(d, req.Provider, func() (<-chan api.StreamChunk, error) {
		return adapter.Stream(ctx, req, credential)
	})
	metrics.UpstreamDuration.WithLabelValues(req.Provider.String(), modeStream).Observe(d.now().Sub(start).Seconds())

	if err != nil {
		err = d.upstreamFailure(req.Provider, modeStream, err)
		failSpan(span, err)
		span.End()
		d.logger.Warn("Upstream stream failed",
			zap.String("provider", req.Provider.String()),
			zap.String("model", req.Model),
			zap.Error(err),
		)
		return nil, err
	}

	out := make(chan api.StreamChunk)

	go func() {
		defer span.End()
		defer close(out)

		chunks := 0
		for chunk := range upstream {
			if chunk.Err != nil {
				err := fmt.Errorf("%w: %s: %w", ErrUpstream, req.Provider, chunk.Err)
				failSpan(span, err)
				metrics.DispatchTotal.WithLabelValues(req.Provider.String(), modeStream, metrics.OutcomeUpstreamError).Inc()
				send(ctx, out, api.StreamChunk{Err: err})
				return
			}
			if !send(ctx, out, chunk) {
				return
			}
			chunks++
		}

		span.SetAttributes(attribute.Int("llm.stream.chunks", chunks))
		metrics.DispatchTotal.WithLabelValues(req.Provider.String(), modeStream, metrics.OutcomeSuccess).Inc()
		send(ctx, out, api.DoneChunk)
	}()

	return out, nil
}

func send(ctx context.Context, out chan<- api.StreamChunk, c api.StreamChunk) bool {
	select {
	case out <- c:
		return true
	case <-ctx.Done():
		return false
	}
}
