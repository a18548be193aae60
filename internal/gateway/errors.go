package gateway

import (
	"errors"

	"github.com/nulzo/llm-proxy/internal/registry"
)

var (
	ErrUnsupportedModel    = registry.ErrUnsupportedModel
	ErrUnsupportedProvider = errors.New("unsupported provider")
	ErrMissingCredential   = errors.New("missing provider credential")
	ErrUpstream            = errors.New("upstream provider error")
)
