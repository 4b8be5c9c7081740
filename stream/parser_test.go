package stream

import (
	"strings"
	"testing"
)

func TestParseChunk(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  []string
	}{
		{
			name:  "single content frame",
			chunk: "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n",
			want:  []string{"Hello"},
		},
		{
			name: "multiple frames preserve order",
			chunk: "data: {\"choices\":[{\"delta\":{\"content\":\"one \"}}]}\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n",
			want: []string{"one ", "two"},
		},
		{
			name:  "sentinel frame produces no delta",
			chunk: "data: [DONE]\n",
			want:  nil,
		},
		{
			name: "content followed by sentinel",
			chunk: "data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n" +
				"data: [DONE]\n",
			want: []string{"lo"},
		},
		{
			name:  "role-only frame produces no delta",
			chunk: "data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n",
			want:  nil,
		},
		{
			name: "malformed frame is skipped not fatal",
			chunk: "data: {not json at all\n" +
				"data: {\"choices\":[{\"delta\":{\"content\":\"ok\"}}]}\n",
			want: []string{"ok"},
		},
		{
			name:  "frame without choices is skipped",
			chunk: "data: {\"choices\":[]}\n",
			want:  nil,
		},
		{
			name:  "partial trailing frame is dropped",
			chunk: "data: {\"choices\":[{\"delta\":{\"content\":\"kept\"}}]}\ndata: {\"choi",
			want:  []string{"kept"},
		},
		{
			name:  "lines without the marker are ignored",
			chunk: ": keep-alive comment\n\nevent: ping\n",
			want:  nil,
		},
		{
			name:  "empty chunk",
			chunk: "",
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseChunk(tt.chunk)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseChunk() = %q, want %q", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("ParseChunk()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

// Feeding successive chunks and concatenating the emitted deltas must
// reconstruct the reply exactly.
func TestParseChunkReconstruction(t *testing.T) {
	chunks := []string{
		"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n",
		"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\ndata: [DONE]\n",
	}

	var reply strings.Builder
	for _, chunk := range chunks {
		for _, delta := range ParseChunk(chunk) {
			reply.WriteString(delta)
		}
	}

	if reply.String() != "Hello" {
		t.Errorf("reconstructed reply = %q, want %q", reply.String(), "Hello")
	}
}

func TestDone(t *testing.T) {
	tests := []struct {
		name  string
		chunk string
		want  bool
	}{
		{"sentinel alone", "data: [DONE]\n", true},
		{"sentinel after content", "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\ndata: [DONE]\n", true},
		{"no sentinel", "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n", false},
		{"sentinel without marker", "[DONE]\n", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Done(tt.chunk); got != tt.want {
				t.Errorf("Done(%q) = %v, want %v", tt.chunk, got, tt.want)
			}
		})
	}
}
