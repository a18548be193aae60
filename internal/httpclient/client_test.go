package httpclient

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendRequest_DecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "v", r.Header.Get("X-Test"))
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	var out struct {
		OK bool `json:"ok"`
	}
	err := SendRequest(context.Background(), server.Client(), http.MethodPost, server.URL, map[string]string{"X-Test": "v"}, map[string]string{"a": "b"}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestSendRequest_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer server.Close()

	err := SendRequest(context.Background(), server.Client(), http.MethodPost, server.URL+"?key=secret", nil, nil, nil)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, http.StatusTooManyRequests, upstream.StatusCode)
	assert.Equal(t, "slow down", upstream.Message())
	assert.NotContains(t, upstream.Error(), "secret")
}

func TestOpenStream_StatusCheckedBeforeBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
	}))
	defer server.Close()

	body, err := OpenStream(context.Background(), server.Client(), http.MethodPost, server.URL, nil, nil)
	assert.Nil(t, body)

	var upstream *UpstreamError
	require.True(t, errors.As(err, &upstream))
	assert.Equal(t, "bad key", upstream.Message())
}

func TestScanLines_SkipsBlankAndStops(t *testing.T) {
	input := "data: 1\n\n\ndata: 2\n\ndata: 3\n"

	var got []string
	err := ScanLines(strings.NewReader(input), func(line string) error {
		got = append(got, line)
		if line == "data: 2" {
			return ErrStopStream
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"data: 1", "data: 2"}, got)
}

func TestScanLines_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	err := ScanLines(io.NopCloser(strings.NewReader("x\n")), func(string) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestDataPayload(t *testing.T) {
	p, ok := DataPayload(`data: {"a":1}`)
	assert.True(t, ok)
	assert.Equal(t, `{"a":1}`, p)

	p, ok = DataPayload(`data:[DONE]`)
	assert.True(t, ok)
	assert.Equal(t, "[DONE]", p)

	_, ok = DataPayload(`event: ping`)
	assert.False(t, ok)

	name, ok := EventName("event: message_stop")
	assert.True(t, ok)
	assert.Equal(t, "message_stop", name)
}
