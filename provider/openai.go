// Package provider talks to an OpenAI-compatible chat completion endpoint.
//
// Two call shapes are used:
//   - Stream issues the streamed completion request and feeds every received
//     chunk through the stream package's frame parser, reporting the joined
//     deltas of each chunk to the caller.
//   - Summarize issues the non-streaming call used for title generation and
//     returns choices[0].message.content.
//
// The sync engine consumes this through the chat.Completer interface, which
// keeps it provider-agnostic and easy to fake in tests.
package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"chatsync/storage"
	"chatsync/stream"
)

const (
	// Request tuning carried on every streamed completion.
	defaultTemperature      = 0.5
	defaultFrequencyPenalty = 0
	defaultPresencePenalty  = 0

	// titleModel generates conversation titles regardless of the model the
	// conversation itself runs on.
	titleModel = "gpt-3.5-turbo"

	titleSystemPrompt = "You are titleGPT a chat assistant, you receive a message and give a great title for a conversation that starts with that message."
)

// Client is a chat completion client for one endpoint and credential.
type Client struct {
	client     openai.Client
	httpClient *http.Client
	baseURL    string
	apiKey     string

	Temperature      float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

// NewClient creates a completion client.
//
// Parameters:
//   - baseURL: API base URL (default: "https://api.openai.com/v1")
//   - apiKey: API key (required)
//
// Returns an error if the API key is missing.
func NewClient(baseURL, apiKey string) (*Client, error) {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client := openai.NewClient(
		option.WithBaseURL(baseURL),
		option.WithAPIKey(apiKey),
	)

	return &Client{
		client:           client,
		httpClient:       &http.Client{},
		baseURL:          strings.TrimRight(baseURL, "/"),
		apiKey:           apiKey,
		Temperature:      defaultTemperature,
		FrequencyPenalty: defaultFrequencyPenalty,
		PresencePenalty:  defaultPresencePenalty,
	}, nil
}

// SetAPIKey swaps the credential, rebuilding the underlying SDK client.
func (c *Client) SetAPIKey(apiKey string) {
	c.apiKey = apiKey
	c.client = openai.NewClient(
		option.WithBaseURL(c.baseURL),
		option.WithAPIKey(apiKey),
	)
}

// Summarize asks the endpoint for a short descriptive title for a
// conversation opening with prompt.
func (c *Client) Summarize(ctx context.Context, prompt string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(titleModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(titleSystemPrompt),
			openai.UserMessage("Generate a title for a conversation that starts with this message:\n\n" + prompt),
		},
	})
	if err != nil {
		return "", fmt.Errorf("title request failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("title request returned no choices")
	}

	title := strings.TrimSpace(resp.Choices[0].Message.Content)
	title = strings.Trim(title, `"`)
	if title == "" {
		return "", fmt.Errorf("title request returned no text")
	}

	return title, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
	Stream           bool          `json:"stream"`
}

// Stream issues a streamed completion request carrying the full message
// history and reports content deltas to onDelta as chunks arrive. Each
// invocation of onDelta carries the joined deltas of one chunk; the caller
// concatenates them onto its running reply.
//
// The body is read line by line, so a frame never spans two parser calls
// even when the transport fragments it. A non-nil error from onDelta aborts
// the stream and is returned as-is.
func (c *Client) Stream(ctx context.Context, model string, messages []storage.Message, onDelta func(delta string) error) error {
	req := chatRequest{
		Model:            model,
		Messages:         make([]chatMessage, 0, len(messages)),
		Temperature:      c.Temperature,
		FrequencyPenalty: c.FrequencyPenalty,
		PresencePenalty:  c.PresencePenalty,
		Stream:           true,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("completion request failed with status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	reader := bufio.NewReader(resp.Body)
	for {
		line, readErr := reader.ReadString('\n')

		if line != "" {
			if deltas := stream.ParseChunk(line); len(deltas) > 0 {
				if err := onDelta(strings.Join(deltas, "")); err != nil {
					return err
				}
			}
			if stream.Done(line) {
				return nil
			}
		}

		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("completion stream interrupted: %w", readErr)
		}
	}
}

// ListModels returns the model ids the endpoint advertises.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	modelsPage, err := c.client.Models.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	result := make([]string, 0, len(modelsPage.Data))
	for _, m := range modelsPage.Data {
		result = append(result, m.ID)
	}

	return result, nil
}

// Ping checks if the endpoint is reachable by attempting to list models.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.client.Models.List(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}
