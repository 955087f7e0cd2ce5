package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"triage-assistant/internal/config"
)

// ChatAPI is the slice of the OpenAI client the agents call.
type ChatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Client wraps chat completions for the NLU, responder, translator and
// checker agents. It holds no per-session state.
type Client struct {
	api   ChatAPI
	model string
}

// NewOpenAIAPI builds the SDK client shared by the chat agents and the
// Whisper transcriber.
func NewOpenAIAPI(cfg config.OpenAI) *openai.Client {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	return openai.NewClientWithConfig(oc)
}

func NewClient(api ChatAPI, model string) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &Client{api: api, model: model}
}

var errEmptyCompletion = errors.New("empty completion")

func (c *Client) complete(ctx context.Context, system, user string, temperature float32) (string, error) {
	return c.send(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: temperature,
	})
}

// completeJSON asks for a JSON object and decodes it into out.
func (c *Client) completeJSON(ctx context.Context, system, user string, out interface{}) error {
	content, err := c.send(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature:    0,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(stripFence(content)), out); err != nil {
		return fmt.Errorf("decoding model output: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	if c == nil || c.api == nil {
		return "", errors.New("openai client not initialized")
	}
	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", errEmptyCompletion
	}
	return content, nil
}

// stripFence removes a ```json ... ``` wrapper some models add even in JSON
// mode.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
