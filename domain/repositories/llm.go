package repositories

import "context"

// LargeLanguageModel abstracts any chat/LLM provider
type LargeLanguageModel interface {
	// GenerateChat creates a chat session seeded with history
	GenerateChat(ctx context.Context, history []ChatMessage) (ChatSession, error)
}

// ChatSession represents an ongoing conversation session
type ChatSession interface {
	SendMessage(ctx context.Context, message ChatMessage) (ChatMessage, error)
	History() ([]ChatMessage, error)
}

// MessageKind distinguishes plain messages from tool traffic
type MessageKind string

const (
	MessageKindText           MessageKind = "message"
	MessageKindToolCall       MessageKind = "tool_call"
	MessageKindToolCallOutput MessageKind = "tool_call_output"
)

// ChatMessage represents a single item in a conversation. Tool calls carry
// CallID/Name/Arguments; tool outputs carry CallID and Content.
type ChatMessage struct {
	Kind      MessageKind `json:"kind,omitempty"`
	Role      Role        `json:"role"`
	Content   string      `json:"content"`
	CallID    string      `json:"call_id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
}

// Role defines the type of message sender
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)

// ToolSpec declares a callable tool for providers that support tool use
type ToolSpec struct {
	Name        string
	Description string
	// InputSchema is a JSON schema object describing the tool parameters
	InputSchema map[string]interface{}
}
