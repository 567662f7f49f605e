// Package openai adapts the OpenAI Chat Completions API to eino's
// model.ChatModel so it can sit in the same chains as the Ark model.
package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Config configures the adapter.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
	MaxTokens   *int
	// RequestOptions are appended to the client options, mainly for tests.
	RequestOptions []option.RequestOption
}

// ChatModel implements model.ChatModel on top of the official client.
type ChatModel struct {
	client *openai.Client
	cfg    Config
}

var _ model.ChatModel = (*ChatModel)(nil)

// New creates the adapter.
func New(cfg Config) *ChatModel {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	opts = append(opts, cfg.RequestOptions...)
	client := openai.NewClient(opts...)
	return &ChatModel{client: &client, cfg: cfg}
}

// Generate sends one non-streaming completion request.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	params := m.buildParams(input, opts...)

	resp, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai returned no choices")
	}
	return schema.AssistantMessage(resp.Choices[0].Message.Content, nil), nil
}

// Stream wraps Generate in a single-chunk stream.
func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

// BindTools is a no-op; the engine never hands tools to the model.
func (m *ChatModel) BindTools(_ []*schema.ToolInfo) error {
	return nil
}

func (m *ChatModel) buildParams(input []*schema.Message, opts ...model.Option) openai.ChatCompletionNewParams {
	var temperature *float32
	if m.cfg.Temperature != nil {
		val := float32(*m.cfg.Temperature)
		temperature = &val
	}
	common := model.GetCommonOptions(&model.Options{
		Model:       &m.cfg.Model,
		Temperature: temperature,
		MaxTokens:   m.cfg.MaxTokens,
	}, opts...)

	params := openai.ChatCompletionNewParams{
		Messages: toMessages(input),
		Model:    m.cfg.Model,
	}
	if common.Model != nil && *common.Model != "" {
		params.Model = *common.Model
	}
	if common.Temperature != nil {
		params.Temperature = openai.Float(float64(*common.Temperature))
	}
	if common.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*common.MaxTokens))
	}
	return params
}

func toMessages(input []*schema.Message) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(input))
	for _, msg := range input {
		if msg == nil {
			continue
		}
		switch msg.Role {
		case schema.System:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case schema.Assistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}
	return messages
}
