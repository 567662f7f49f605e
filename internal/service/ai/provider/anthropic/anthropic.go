// Package anthropic adapts the Anthropic Messages API to eino's
// model.ChatModel.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultMaxTokens = 1024

// Config configures the adapter.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	Temperature    *float64
	MaxTokens      *int
	RequestOptions []option.RequestOption
}

// ChatModel implements model.ChatModel on top of the Messages API.
type ChatModel struct {
	client *anthropic.Client
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
	client := anthropic.NewClient(opts...)
	return &ChatModel{client: &client, cfg: cfg}
}

// Generate sends one non-streaming message request.
func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	maxTokens := defaultMaxTokens
	if m.cfg.MaxTokens != nil {
		maxTokens = *m.cfg.MaxTokens
	}
	var temperature *float32
	if m.cfg.Temperature != nil {
		val := float32(*m.cfg.Temperature)
		temperature = &val
	}
	common := model.GetCommonOptions(&model.Options{
		Model:       &m.cfg.Model,
		Temperature: temperature,
		MaxTokens:   &maxTokens,
	}, opts...)

	system, messages := splitMessages(input)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(*common.Model),
		MaxTokens: int64(*common.MaxTokens),
		Messages:  messages,
	}
	if len(system) > 0 {
		params.System = system
	}
	if common.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*common.Temperature))
	}

	resp, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}
	if text.Len() == 0 {
		return nil, errors.New("anthropic returned no text content")
	}
	return schema.AssistantMessage(text.String(), nil), nil
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

// splitMessages moves system messages into the dedicated system blocks and
// guarantees the conversation opens with a user turn.
func splitMessages(input []*schema.Message) ([]anthropic.TextBlockParam, []anthropic.MessageParam) {
	var system []anthropic.TextBlockParam
	var messages []anthropic.MessageParam
	for _, msg := range input {
		if msg == nil || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		switch msg.Role {
		case schema.System:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case schema.Assistant:
			if len(messages) == 0 {
				continue
			}
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return system, messages
}
