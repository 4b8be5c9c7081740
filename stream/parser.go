// Package stream decodes the incremental wire format of a streamed chat
// completion response.
//
// The endpoint delivers chunks containing zero or more newline-delimited
// frames of the form "data: <JSON>", terminated by a final "data: [DONE]"
// sentinel frame. Each JSON frame may carry an incremental content fragment
// under choices[0].delta.content; frames without one (role announcements,
// the sentinel) contribute nothing to the reply.
package stream

import (
	"encoding/json"
	"strings"
)

const (
	frameMarker  = "data: "
	doneSentinel = "[DONE]"
)

type frame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// ParseChunk extracts the content deltas carried by the complete frames in
// one received chunk, in order. Concatenating the deltas of successive
// chunks left-to-right reconstructs the assistant's reply.
//
// Parsing is stateless per call: a frame that is split across two chunks is
// not recombined, it fails to parse and is skipped. Malformed frames fail
// per-frame, never per-stream.
func ParseChunk(chunk string) []string {
	var deltas []string

	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, frameMarker) {
			continue
		}

		payload := strings.TrimSpace(line[len(frameMarker):])
		if payload == doneSentinel {
			continue
		}

		var f frame
		if err := json.Unmarshal([]byte(payload), &f); err != nil {
			continue // Skip malformed frames
		}

		if len(f.Choices) == 0 {
			continue
		}

		if content := f.Choices[0].Delta.Content; content != "" {
			deltas = append(deltas, content)
		}
	}

	return deltas
}

// Done reports whether the chunk contains the terminal sentinel frame.
func Done(chunk string) bool {
	for _, line := range strings.Split(chunk, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, frameMarker) &&
			strings.TrimSpace(line[len(frameMarker):]) == doneSentinel {
			return true
		}
	}
	return false
}
