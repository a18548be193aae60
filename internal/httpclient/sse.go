package httpclient

import "strings"

// DataPayload extracts the payload of an SSE "data:" line.
func DataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "data:")), true
}

// EventName extracts the name of an SSE "event:" line.
func EventName(line string) (string, bool) {
	if !strings.HasPrefix(line, "event:") {
		return "", false
	}
	return strings.TrimSpace(strings.TrimPrefix(line, "event:")), true
}
