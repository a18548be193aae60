package httpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// HTTPClient defines the interface for an HTTP client
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// maxLineSize bounds a single SSE line; provider chunks are far smaller.
const maxLineSize = 1 << 20

// ErrStopStream may be returned by a LineProcessor to end the stream cleanly.
var ErrStopStream = errors.New("stop stream")

func newRequest(ctx context.Context, method, url string, headers map[string]string, body interface{}) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func checkStatus(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxLineSize))
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		Body:       respBody,
		URL:        url,
	}
}

// SendRequest issues one JSON request and decodes a 2xx body into response.
// Any other status yields an *UpstreamError.
func SendRequest(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, body interface{}, response interface{}) error {
	req, err := newRequest(ctx, method, url, headers, body)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if err := checkStatus(resp, url); err != nil {
		return err
	}

	if response != nil {
		if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// OpenStream issues a streaming request and returns the body once the
// upstream has answered with a 2xx status. The caller must close it.
func OpenStream(ctx context.Context, client HTTPClient, method, url string, headers map[string]string, body interface{}) (io.ReadCloser, error) {
	req, err := newRequest(ctx, method, url, headers, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("stream request failed: %w", err)
	}

	if err := checkStatus(resp, url); err != nil {
		_ = resp.Body.Close()
		return nil, err
	}

	return resp.Body, nil
}

type LineProcessor func(line string) error

// ScanLines feeds every non-empty line of r to processLine until EOF, an
// error, or ErrStopStream.
func ScanLines(r io.Reader, processLine LineProcessor) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		if err := processLine(line); err != nil {
			if errors.Is(err, ErrStopStream) {
				return nil
			}
			return err
		}
	}

	return scanner.Err()
}
