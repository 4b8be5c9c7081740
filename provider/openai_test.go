package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatsync/storage"
)

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient("", ""); err == nil {
		t.Error("NewClient() with empty key expected error, got nil")
	}
}

func TestClientStream(t *testing.T) {
	var gotRequest chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-key" {
			t.Errorf("Authorization = %q", auth)
		}

		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotRequest); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range []string{
			"data: {\"choices\":[{\"delta\":{\"role\":\"assistant\"}}]}\n\n",
			"data: {\"choices\":[{\"delta\":{\"content\":\"Hel\"}}]}\n\n",
			"data: {\"choices\":[{\"delta\":{\"content\":\"lo\"}}]}\n\n",
			"data: [DONE]\n\n",
		} {
			io.WriteString(w, frame)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	messages := []storage.Message{
		{Role: "user", Content: "Say hello"},
	}

	var reply strings.Builder
	err = client.Stream(context.Background(), "gpt-3.5-turbo", messages, func(delta string) error {
		reply.WriteString(delta)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	if reply.String() != "Hello" {
		t.Errorf("reply = %q, want %q", reply.String(), "Hello")
	}

	// Ensure the handler finished before inspecting the captured request
	srv.Close()

	if !gotRequest.Stream {
		t.Error("request did not set stream: true")
	}
	if gotRequest.Model != "gpt-3.5-turbo" {
		t.Errorf("request model = %q", gotRequest.Model)
	}
	if len(gotRequest.Messages) != 1 || gotRequest.Messages[0].Content != "Say hello" {
		t.Errorf("request messages = %+v", gotRequest.Messages)
	}
}

func TestClientStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "bad-key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	err = client.Stream(context.Background(), "gpt-3.5-turbo", nil, func(string) error { return nil })
	if err == nil {
		t.Fatal("Stream() with 401 expected error, got nil")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("Stream() error = %v, want status code in message", err)
	}
}

func TestClientStreamCallbackErrorAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"x\"}}]}\n")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"y\"}}]}\n")
		io.WriteString(w, "data: [DONE]\n")
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	sentinel := errors.New("stop now")
	calls := 0
	err = client.Stream(context.Background(), "gpt-3.5-turbo", nil, func(string) error {
		calls++
		return sentinel
	})

	if !errors.Is(err, sentinel) {
		t.Errorf("Stream() error = %v, want callback error", err)
	}
	if calls != 1 {
		t.Errorf("callback called %d times after aborting, want 1", calls)
	}
}

func TestClientSummarize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-3.5-turbo",
			"choices": [
				{
					"index": 0,
					"finish_reason": "stop",
					"message": {"role": "assistant", "content": "\"Greeting the Assistant\""}
				}
			]
		}`)
	}))
	defer srv.Close()

	client, err := NewClient(srv.URL, "test-key")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	title, err := client.Summarize(context.Background(), "Hello there!")
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	// Surrounding quotes from the model are stripped
	if title != "Greeting the Assistant" {
		t.Errorf("Summarize() = %q, want %q", title, "Greeting the Assistant")
	}
}
