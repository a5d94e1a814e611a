// Package llm implements the delegated interpretation ports on top of a chat
// completion model. Providers are reduced to a Completer so prompts and reply
// parsing are shared.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	openaiopt "github.com/openai/openai-go/option"
)

// Default models per provider.
const (
	DefaultAnthropicModel = "claude-sonnet-4-5"
	DefaultOpenAIModel    = openai.ChatModelGPT4oMini
)

const defaultMaxTokens = 1024

// ErrEmptyCompletion is returned when a provider answers with no text.
var ErrEmptyCompletion = errors.New("empty completion")

// Completer sends one system prompt and one user message and returns the
// model's text reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, system, user string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, system, user string) (string, error) {
	return f(ctx, system, user)
}

// AnthropicCompleter talks to the Anthropic Messages API.
type AnthropicCompleter struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic creates a completer for Claude models. An empty model selects
// DefaultAnthropicModel.
func NewAnthropic(apiKey, model string, opts ...anthropicopt.RequestOption) *AnthropicCompleter {
	if model == "" {
		model = DefaultAnthropicModel
	}
	opts = append([]anthropicopt.RequestOption{anthropicopt.WithAPIKey(apiKey)}, opts...)
	return &AnthropicCompleter{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

func (c *AnthropicCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   defaultMaxTokens,
		Temperature: anthropic.Float(0),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("anthropic request failed: %w", err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return "", ErrEmptyCompletion
	}

	var sb strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}

// OpenAICompleter talks to the OpenAI Chat Completions API.
type OpenAICompleter struct {
	client openai.Client
	model  openai.ChatModel
}

// NewOpenAI creates a completer for OpenAI chat models. An empty model
// selects DefaultOpenAIModel.
func NewOpenAI(apiKey, model string, opts ...openaiopt.RequestOption) *OpenAICompleter {
	m := openai.ChatModel(model)
	if model == "" {
		m = DefaultOpenAIModel
	}
	opts = append([]openaiopt.RequestOption{openaiopt.WithAPIKey(apiKey)}, opts...)
	return &OpenAICompleter{
		client: openai.NewClient(opts...),
		model:  m,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:               c.model,
		Temperature:         openai.Float(0),
		MaxCompletionTokens: openai.Int(defaultMaxTokens),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return resp.Choices[0].Message.Content, nil
}
