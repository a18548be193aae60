package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/nulzo/llm-proxy/internal/config"
	"github.com/nulzo/llm-proxy/pkg/api"
	"github.com/shopspring/decimal"
)

// ErrUnsupportedModel indicates the requested model is not registered.
var ErrUnsupportedModel = errors.New("unsupported model")

// ErrDuplicateModel indicates an attempt to register the same model twice.
var ErrDuplicateModel = errors.New("model already registered")

// Registry maps model names to their descriptors. It is built once and never
// mutated afterwards, so concurrent reads need no locking.
type Registry struct {
	models map[string]api.ModelDescriptor
	names  []string
}

// New builds a registry from descriptors. Names must be unique and every
// descriptor must name a supported provider.
func New(descriptors ...api.ModelDescriptor) (*Registry, error) {
	r := &Registry{models: make(map[string]api.ModelDescriptor, len(descriptors))}

	for _, d := range descriptors {
		if d.Name == "" {
			return nil, errors.New("model descriptor without a name")
		}
		if !d.Provider.Valid() {
			return nil, fmt.Errorf("model %s: unknown provider %q", d.Name, d.Provider)
		}
		if _, exists := r.models[d.Name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, d.Name)
		}
		r.models[d.Name] = d
		r.names = append(r.names, d.Name)
	}

	sort.Strings(r.names)
	return r, nil
}

// Load returns the built-in table overlaid with models declared in config.
// A configured model replaces the built-in entry of the same name.
func Load(models []config.ModelConfig) (*Registry, error) {
	merged := make(map[string]api.ModelDescriptor)
	order := make([]string, 0)

	for _, d := range Defaults() {
		merged[d.Name] = d
		order = append(order, d.Name)
	}

	for _, m := range models {
		d, err := fromConfig(m)
		if err != nil {
			return nil, err
		}
		if _, exists := merged[d.Name]; !exists {
			order = append(order, d.Name)
		}
		merged[d.Name] = d
	}

	descriptors := make([]api.ModelDescriptor, 0, len(order))
	for _, name := range order {
		descriptors = append(descriptors, merged[name])
	}
	return New(descriptors...)
}

func fromConfig(m config.ModelConfig) (api.ModelDescriptor, error) {
	in, err := decimal.NewFromString(m.InputCostPerToken)
	if err != nil {
		return api.ModelDescriptor{}, fmt.Errorf("model %s: input_cost_per_token: %w", m.Name, err)
	}
	out, err := decimal.NewFromString(m.OutputCostPerToken)
	if err != nil {
		return api.ModelDescriptor{}, fmt.Errorf("model %s: output_cost_per_token: %w", m.Name, err)
	}
	if in.IsNegative() || out.IsNegative() {
		return api.ModelDescriptor{}, fmt.Errorf("model %s: negative price", m.Name)
	}

	return api.ModelDescriptor{
		Name:               m.Name,
		Provider:           api.Provider(m.Provider),
		InputCostPerToken:  in,
		OutputCostPerToken: out,
		MaxOutputTokens:    m.MaxTokens,
		ContextWindow:      m.ContextWindow,
		SupportsStreaming:  m.SupportsStreaming,
		SupportsFunctions:  m.SupportsFunctions,
	}, nil
}

// Resolve looks a model up by exact name.
func (r *Registry) Resolve(name string) (api.ModelDescriptor, error) {
	d, ok := r.models[name]
	if !ok {
		return api.ModelDescriptor{}, fmt.Errorf("%w: %s", ErrUnsupportedModel, name)
	}
	return d, nil
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []api.ModelDescriptor {
	out := make([]api.ModelDescriptor, 0, len(r.names))
	for _, n := range r.names {
		out = append(out, r.models[n])
	}
	return out
}

func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}
