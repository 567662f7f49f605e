package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/finpilot/backend/internal/model/chat"
)

var (
	// ErrModelUnavailable wraps any failure to reach the model. It is fatal
	// for the turn.
	ErrModelUnavailable = errors.New("model unavailable")
	// ErrInvalidOutput marks a reply that could not be decoded into the
	// requested shape. Callers fall back instead of failing the turn.
	ErrInvalidOutput = errors.New("invalid model output")
)

// Model is the extraction/classification model used by the engine.
type Model interface {
	// Invoke returns free text for a system instruction and history.
	Invoke(ctx context.Context, system string, history []chat.Message) (chat.ReplyContent, error)
	// InvokeStructured decodes a JSON object shaped like out into out.
	InvokeStructured(ctx context.Context, system string, history []chat.Message, out any) error
}

// Config controls the model service.
type Config struct {
	HistoryLimit int
}

// Service runs the prompt chain against the configured chat model.
type Service struct {
	chatModel    model.ChatModel
	chain        compose.Runnable[map[string]any, *schema.Message]
	historyLimit int
}

var _ Model = (*Service)(nil)

// NewService compiles the prompt chain once for the given chat model.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 10
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile model chain: %w", err)
	}

	return &Service{
		chatModel:    chatModel,
		chain:        runnable,
		historyLimit: historyLimit,
	}, nil
}

// GetChatModel returns the underlying chat model.
func (s *Service) GetChatModel() model.ChatModel {
	return s.chatModel
}

// Invoke runs the chain and tags the reply shape.
func (s *Service) Invoke(ctx context.Context, system string, history []chat.Message) (chat.ReplyContent, error) {
	content, err := s.run(ctx, system, history)
	if err != nil {
		return chat.ReplyContent{}, err
	}

	reply := chat.ParseReplyContent(content)
	if reply.IsList() {
		log.Warn().Str("component", "ai").Str("raw", content).Msg("model replied with a list, reducing to first element")
	}
	return reply, nil
}

// InvokeStructured appends the JSON schema of out to the instruction and
// decodes the first JSON object of the reply.
func (s *Service) InvokeStructured(ctx context.Context, system string, history []chat.Message, out any) error {
	schemaJSON, err := json.Marshal(CreateSchema(out))
	if err != nil {
		return fmt.Errorf("failed to marshal output schema: %w", err)
	}

	instruction := system + "\n\nRespond with a single JSON object and nothing else. It must match this JSON schema:\n" + string(schemaJSON)
	content, err := s.run(ctx, instruction, history)
	if err != nil {
		return err
	}
	return DecodeJSONObject(content, out)
}

func (s *Service) run(ctx context.Context, system string, history []chat.Message) (string, error) {
	input := map[string]any{
		"system":  system,
		"history": s.buildHistoryMessages(history),
	}

	msg, err := s.chain.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: empty response", ErrModelUnavailable)
	}

	log.Debug().Str("component", "ai").Int("history", len(history)).Int("length", len(msg.Content)).Msg("model replied")
	return msg.Content, nil
}

func (s *Service) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	messages = chat.Tail(messages, s.historyLimit)
	if len(messages) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		case chat.RoleSystem:
			history = append(history, schema.UserMessage("[system notice] "+msg.Content))
		}
	}
	return history
}

// DecodeJSONObject extracts the outermost JSON object from content and
// decodes it into out.
func DecodeJSONObject(content string, out any) error {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return fmt.Errorf("%w: missing json object", ErrInvalidOutput)
	}

	if err := json.Unmarshal([]byte(trimmed[start:end+1]), out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}
	return nil
}
