package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/document"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/adapters/awsauth"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

const defaultBedrockModel = "anthropic.claude-3-5-sonnet-20240620-v1:0"

// BedrockConfig holds configuration for the AWS Bedrock adapter.
type BedrockConfig struct {
	APIKey    string
	APISecret string
	Region    string

	Model       string
	Temperature float32
	MaxTokens   int32
	Tools       []repositories.ToolSpec
}

// BedrockLargeLanguageModel implements LargeLanguageModel using the Bedrock
// Converse API.
type BedrockLargeLanguageModel struct {
	client *bedrockruntime.Client
	opts   BedrockConfig
	logger *zap.Logger
}

var _ repositories.LargeLanguageModel = (*BedrockLargeLanguageModel)(nil)

func NewBedrockLargeLanguageModel(ctx context.Context, cfg BedrockConfig, logger *zap.Logger) (*BedrockLargeLanguageModel, error) {
	awsCfg, err := awsauth.LoadConfig(ctx, awsauth.Options{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Model == "" {
		cfg.Model = defaultBedrockModel
	}

	return &BedrockLargeLanguageModel{
		client: bedrockruntime.NewFromConfig(awsCfg),
		opts:   cfg,
		logger: logger,
	}, nil
}

func (b *BedrockLargeLanguageModel) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	session := &bedrockChatSession{
		model:   b,
		history: append([]repositories.ChatMessage(nil), history...),
	}
	return session, nil
}

type bedrockChatSession struct {
	model *BedrockLargeLanguageModel

	mu      sync.Mutex
	history []repositories.ChatMessage
}

func (s *bedrockChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	s.mu.Lock()
	s.history = append(s.history, message)
	messages, system, err := toBedrockMessages(s.history)
	s.mu.Unlock()
	if err != nil {
		return repositories.ChatMessage{}, err
	}

	input := &bedrockruntime.ConverseInput{
		ModelId:  aws.String(s.model.opts.Model),
		Messages: messages,
		System:   system,
	}
	if cfg := s.inferenceConfig(); cfg != nil {
		input.InferenceConfig = cfg
	}
	if tools := toBedrockTools(s.model.opts.Tools); tools != nil {
		input.ToolConfig = tools
	}

	out, err := s.model.client.Converse(ctx, input)
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("bedrock converse failed: %w", awsauth.StatusError(err))
	}

	reply, err := fromBedrockOutput(out.Output)
	if err != nil {
		return repositories.ChatMessage{}, err
	}

	s.mu.Lock()
	s.history = append(s.history, reply)
	s.mu.Unlock()
	return reply, nil
}

func (s *bedrockChatSession) History() ([]repositories.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repositories.ChatMessage(nil), s.history...), nil
}

func (s *bedrockChatSession) inferenceConfig() *types.InferenceConfiguration {
	cfg := &types.InferenceConfiguration{}
	set := false
	if s.model.opts.Temperature > 0 {
		cfg.Temperature = aws.Float32(s.model.opts.Temperature)
		set = true
	}
	if s.model.opts.MaxTokens > 0 {
		cfg.MaxTokens = aws.Int32(s.model.opts.MaxTokens)
		set = true
	}
	if !set {
		return nil
	}
	return cfg
}

// toBedrockMessages converts conversation history to the Converse wire
// shape. System messages are lifted out, adjacent messages with the same
// effective role are merged into one turn, and the list always starts with a
// user turn as the API requires.
func toBedrockMessages(history []repositories.ChatMessage) ([]types.Message, []types.SystemContentBlock, error) {
	var messages []types.Message
	var system []types.SystemContentBlock

	var currentRole types.ConversationRole
	var currentContent []types.ContentBlock
	haveRole := false

	finalize := func() {
		if haveRole && len(currentContent) > 0 {
			messages = append(messages, types.Message{
				Role:    currentRole,
				Content: currentContent,
			})
		}
		currentContent = nil
	}

	for _, msg := range history {
		if msg.Kind == repositories.MessageKindText && msg.Role == repositories.SystemRole {
			system = []types.SystemContentBlock{
				&types.SystemContentBlockMemberText{Value: msg.Content},
			}
			continue
		}

		role := types.ConversationRoleUser
		switch {
		case msg.Kind == repositories.MessageKindToolCall:
			role = types.ConversationRoleAssistant
		case msg.Kind == repositories.MessageKindToolCallOutput:
			role = types.ConversationRoleUser
		case msg.Role == repositories.AssistantRole:
			role = types.ConversationRoleAssistant
		}

		if !haveRole || role != currentRole {
			finalize()
			currentRole = role
			haveRole = true
		}

		switch msg.Kind {
		case repositories.MessageKindToolCall:
			var input map[string]interface{}
			args := msg.Arguments
			if args == "" {
				args = "{}"
			}
			if err := json.Unmarshal([]byte(args), &input); err != nil {
				return nil, nil, fmt.Errorf("invalid tool call arguments: %w", err)
			}
			currentContent = append(currentContent, &types.ContentBlockMemberToolUse{
				Value: types.ToolUseBlock{
					ToolUseId: aws.String(msg.CallID),
					Name:      aws.String(msg.Name),
					Input:     document.NewLazyDocument(input),
				},
			})
		case repositories.MessageKindToolCallOutput:
			currentContent = append(currentContent, &types.ContentBlockMemberToolResult{
				Value: types.ToolResultBlock{
					ToolUseId: aws.String(msg.CallID),
					Status:    types.ToolResultStatusSuccess,
					Content: []types.ToolResultContentBlock{
						&types.ToolResultContentBlockMemberText{Value: msg.Content},
					},
				},
			})
		default:
			if msg.Content != "" {
				currentContent = append(currentContent, &types.ContentBlockMemberText{Value: msg.Content})
			}
		}
	}
	finalize()

	if len(messages) == 0 || messages[0].Role != types.ConversationRoleUser {
		messages = append([]types.Message{{
			Role:    types.ConversationRoleUser,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: "(empty)"}},
		}}, messages...)
	}

	return messages, system, nil
}

func toBedrockTools(specs []repositories.ToolSpec) *types.ToolConfiguration {
	if len(specs) == 0 {
		return nil
	}

	tools := make([]types.Tool, 0, len(specs))
	for _, spec := range specs {
		schema := spec.InputSchema
		if schema == nil {
			schema = map[string]interface{}{}
		}
		ts := types.ToolSpecification{
			Name: aws.String(spec.Name),
			InputSchema: &types.ToolInputSchemaMemberJson{
				Value: document.NewLazyDocument(schema),
			},
		}
		if spec.Description != "" {
			ts.Description = aws.String(spec.Description)
		}
		tools = append(tools, &types.ToolMemberToolSpec{Value: ts})
	}
	return &types.ToolConfiguration{Tools: tools}
}

// fromBedrockOutput maps the model reply back to a ChatMessage. A tool use
// block takes precedence over any text in the same reply.
func fromBedrockOutput(output types.ConverseOutput) (repositories.ChatMessage, error) {
	msg, ok := output.(*types.ConverseOutputMemberMessage)
	if !ok {
		return repositories.ChatMessage{}, fmt.Errorf("unexpected bedrock output type %T", output)
	}

	var text strings.Builder
	for _, block := range msg.Value.Content {
		switch b := block.(type) {
		case *types.ContentBlockMemberText:
			text.WriteString(b.Value)
		case *types.ContentBlockMemberToolUse:
			var input map[string]interface{}
			if b.Value.Input != nil {
				if err := b.Value.Input.UnmarshalSmithyDocument(&input); err != nil {
					return repositories.ChatMessage{}, fmt.Errorf("failed to decode tool input: %w", err)
				}
			}
			args, err := json.Marshal(input)
			if err != nil {
				return repositories.ChatMessage{}, fmt.Errorf("failed to encode tool input: %w", err)
			}
			return repositories.ChatMessage{
				Kind:      repositories.MessageKindToolCall,
				Role:      repositories.AssistantRole,
				CallID:    aws.ToString(b.Value.ToolUseId),
				Name:      aws.ToString(b.Value.Name),
				Arguments: string(args),
			}, nil
		}
	}

	return repositories.ChatMessage{
		Kind:    repositories.MessageKindText,
		Role:    repositories.AssistantRole,
		Content: text.String(),
	}, nil
}
