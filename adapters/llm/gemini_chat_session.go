package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// GeminiChatSession implements the ChatSession interface
type GeminiChatSession struct {
	client          *genai.Client
	logger          *zap.Logger
	model           string
	temperature     float32
	topP            float32
	topK            float32
	maxOutputTokens int
	timeoutSeconds  int
	systemPrompt    string

	mu      sync.Mutex
	history []*genai.Content
}

var _ repositories.ChatSession = (*GeminiChatSession)(nil)

// NewGeminiChatSession creates a new chat session with config and history
func NewGeminiChatSession(client *genai.Client, config GeminiConfig, logger *zap.Logger, history []repositories.ChatMessage) (*GeminiChatSession, error) {
	if err := ValidateGeminiConfig(config); err != nil {
		return nil, err
	}

	model := config.Model
	if model == "" {
		model = defaultGeminiModel
	}
	temperature := config.Temperature
	if temperature == 0 {
		temperature = float32(defaultTemperature)
	}
	topP := config.TopP
	if topP == 0 {
		topP = float32(defaultTopP)
	}
	topK := config.TopK
	if topK == 0 {
		topK = float32(defaultTopK)
	}
	maxOutputTokens := config.MaxOutputTokens
	if maxOutputTokens == 0 {
		maxOutputTokens = defaultMaxTokens
	}
	timeoutSeconds := config.TimeoutSeconds
	if timeoutSeconds == 0 {
		timeoutSeconds = defaultTimeoutSeconds
	}

	return &GeminiChatSession{
		client:          client,
		logger:          logger,
		model:           model,
		temperature:     temperature,
		topP:            topP,
		topK:            topK,
		maxOutputTokens: maxOutputTokens,
		timeoutSeconds:  timeoutSeconds,
		systemPrompt:    config.SystemPrompt,
		history:         convertRepositoryToGeminiFormat(history),
	}, nil
}

// SendMessage sends a message and gets a response, updating the history
func (s *GeminiChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	s.mu.Lock()
	var contents []*genai.Content
	if s.systemPrompt != "" {
		contents = append(contents, genai.NewContentFromText(s.systemPrompt, genai.RoleUser))
	}
	contents = append(contents, s.history...)
	userContent := genai.NewContentFromText(message.Content, genai.RoleUser)
	contents = append(contents, userContent)
	s.mu.Unlock()

	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(s.temperature),
		TopP:            genai.Ptr(s.topP),
		TopK:            genai.Ptr(s.topK),
		MaxOutputTokens: int32(s.maxOutputTokens),
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeoutSeconds)*time.Second)
	defer cancel()

	// Transient API failures are common enough to warrant a short retry.
	var response *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		response, err = s.client.Models.GenerateContent(ctx, s.model, contents, config)
		if err == nil {
			break
		}

		s.logger.Warn("Failed to generate content, retrying",
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		if attempt < 2 {
			select {
			case <-time.After(time.Duration(attempt+1) * time.Second):
			case <-ctx.Done():
				return repositories.ChatMessage{}, ctx.Err()
			}
		}
	}
	if err != nil {
		return repositories.ChatMessage{}, fmt.Errorf("gemini generate content failed: %w", err)
	}

	if len(response.Candidates) == 0 || response.Candidates[0].Content == nil || len(response.Candidates[0].Content.Parts) == 0 {
		return repositories.ChatMessage{}, fmt.Errorf("gemini returned no content")
	}

	var responseText string
	for _, part := range response.Candidates[0].Content.Parts {
		if part.Text != "" {
			responseText += part.Text
		}
	}
	if responseText == "" {
		return repositories.ChatMessage{}, fmt.Errorf("gemini returned empty response")
	}

	responseContent := genai.NewContentFromText(responseText, genai.RoleModel)

	s.mu.Lock()
	s.history = append(s.history, userContent, responseContent)
	historyLen := len(s.history)
	s.mu.Unlock()

	s.logger.Debug("Chat session message processed",
		zap.String("user_message", message.Content[:min(50, len(message.Content))]),
		zap.String("response_preview", responseText[:min(50, len(responseText))]),
		zap.Int("history_length", historyLen))

	return repositories.ChatMessage{
		Kind:    repositories.MessageKindText,
		Role:    repositories.AssistantRole,
		Content: responseText,
	}, nil
}

// History returns the current conversation history
func (s *GeminiChatSession) History() ([]repositories.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return convertGeminiToRepositoryFormat(s.history), nil
}

// convertRepositoryToGeminiFormat converts repository messages to Gemini format
func convertRepositoryToGeminiFormat(messages []repositories.ChatMessage) []*genai.Content {
	var contents []*genai.Content

	for _, msg := range messages {
		var role genai.Role
		switch msg.Role {
		case repositories.AssistantRole:
			role = genai.RoleModel
		default:
			// System messages become user turns; Gemini has no system role
			// in chat history.
			role = genai.RoleUser
		}

		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}

	return contents
}

// convertGeminiToRepositoryFormat converts Gemini content to repository messages
func convertGeminiToRepositoryFormat(contents []*genai.Content) []repositories.ChatMessage {
	var messages []repositories.ChatMessage

	for _, content := range contents {
		role := repositories.UserRole
		if content.Role == genai.RoleModel {
			role = repositories.AssistantRole
		}

		var text string
		for _, part := range content.Parts {
			if part.Text != "" {
				text += part.Text
			}
		}

		if text != "" {
			messages = append(messages, repositories.ChatMessage{
				Kind:    repositories.MessageKindText,
				Role:    role,
				Content: text,
			})
		}
	}

	return messages
}
