package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// MockLargeLanguageModel echoes user messages back. Useful for development
// without provider credentials.
type MockLargeLanguageModel struct {
	// Reply overrides the echo response when set.
	Reply string
}

var _ repositories.LargeLanguageModel = (*MockLargeLanguageModel)(nil)

func NewMockLargeLanguageModel() *MockLargeLanguageModel {
	return &MockLargeLanguageModel{}
}

func (m *MockLargeLanguageModel) GenerateChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	return &mockChatSession{
		reply:   m.Reply,
		history: append([]repositories.ChatMessage(nil), history...),
	}, nil
}

type mockChatSession struct {
	reply string

	mu      sync.Mutex
	history []repositories.ChatMessage
}

func (s *mockChatSession) SendMessage(ctx context.Context, message repositories.ChatMessage) (repositories.ChatMessage, error) {
	content := s.reply
	if content == "" {
		content = fmt.Sprintf("You said: %s", message.Content)
	}
	response := repositories.ChatMessage{
		Kind:    repositories.MessageKindText,
		Role:    repositories.AssistantRole,
		Content: content,
	}

	s.mu.Lock()
	s.history = append(s.history, message, response)
	s.mu.Unlock()
	return response, nil
}

func (s *mockChatSession) History() ([]repositories.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]repositories.ChatMessage(nil), s.history...), nil
}
