package llm

import (
	"context"
	"encoding/json"
	"io"

	"github.com/nulzo/llm-proxy/internal/httpclient"
	"github.com/nulzo/llm-proxy/pkg/api"
)

// ExtractFunc inspects one upstream line. A non-nil payload is forwarded;
// stop ends the stream after it. A non-nil err ends the stream with an error
// chunk instead of forwarding anything.
type ExtractFunc func(line string) (payload []byte, stop bool, err error)

// StreamError is an error event reported by the provider inside an otherwise
// healthy stream.
type StreamError struct {
	Type    string
	Message string
}

func (e *StreamError) Error() string {
	if e.Type == "" {
		return "stream error: " + e.Message
	}
	return e.Type + ": " + e.Message
}

// Pump reads body line by line on its own goroutine and forwards extracted
// payloads in upstream order. The channel is unbuffered, so at most one chunk
// is in flight. Cancelling ctx closes the body and ends the goroutine.
func Pump(ctx context.Context, body io.ReadCloser, extract ExtractFunc) <-chan api.StreamChunk {
	ch := make(chan api.StreamChunk)

	go func() {
		defer close(ch)
		defer func() {
			_ = body.Close()
		}()

		err := httpclient.ScanLines(body, func(line string) error {
			payload, stop, err := extract(line)
			if err != nil {
				return err
			}
			if payload != nil {
				select {
				case ch <- api.StreamChunk{Data: payload}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			if stop {
				return httpclient.ErrStopStream
			}
			return nil
		})

		if err != nil && ctx.Err() == nil {
			select {
			case ch <- api.StreamChunk{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}

// DataJSON handles "data: " framed streams terminated by a literal [DONE].
// Lines that are not data lines, and data that is not valid JSON, are skipped.
func DataJSON(line string) ([]byte, bool, error) {
	payload, ok := httpclient.DataPayload(line)
	if !ok {
		return nil, false, nil
	}
	if payload == "[DONE]" {
		return nil, true, nil
	}
	if !json.Valid([]byte(payload)) {
		return nil, false, nil
	}
	return []byte(payload), false, nil
}
