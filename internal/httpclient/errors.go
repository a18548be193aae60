package httpclient

import (
	"encoding/json"
	"fmt"
)

// UpstreamError represents an error returned by an upstream service
type UpstreamError struct {
	StatusCode int
	Body       []byte
	URL        string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d from %s", e.StatusCode, redact(e.URL))
}

// Message returns the provider's own error message when the body carries one
// in a common shape, otherwise the raw body.
func (e *UpstreamError) Message() string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(e.Body, &nested) == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}

	var flat struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Body, &flat) == nil {
		if flat.Error != "" {
			return flat.Error
		}
		if flat.Message != "" {
			return flat.Message
		}
	}

	return string(e.Body)
}
