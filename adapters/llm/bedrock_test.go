package llm

import (
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/aurelia-labs/voicekit/domain/repositories"
)

func TestToBedrockMessagesExtractsSystem(t *testing.T) {
	messages, system, err := toBedrockMessages([]repositories.ChatMessage{
		{Kind: repositories.MessageKindText, Role: repositories.SystemRole, Content: "be brief"},
		{Kind: repositories.MessageKindText, Role: repositories.UserRole, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("toBedrockMessages failed: %v", err)
	}

	if len(system) != 1 {
		t.Fatalf("Expected 1 system block, got %d", len(system))
	}
	sys, ok := system[0].(*types.SystemContentBlockMemberText)
	if !ok || sys.Value != "be brief" {
		t.Errorf("Unexpected system block: %#v", system[0])
	}

	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Role != types.ConversationRoleUser {
		t.Errorf("Expected user role, got %s", messages[0].Role)
	}
}

func TestToBedrockMessagesMergesAdjacentRoles(t *testing.T) {
	messages, _, err := toBedrockMessages([]repositories.ChatMessage{
		{Kind: repositories.MessageKindText, Role: repositories.UserRole, Content: "first"},
		{Kind: repositories.MessageKindText, Role: repositories.UserRole, Content: "second"},
		{Kind: repositories.MessageKindText, Role: repositories.AssistantRole, Content: "reply"},
	})
	if err != nil {
		t.Fatalf("toBedrockMessages failed: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("Expected 2 merged turns, got %d", len(messages))
	}
	if len(messages[0].Content) != 2 {
		t.Errorf("Expected 2 content blocks in first turn, got %d", len(messages[0].Content))
	}
	if messages[1].Role != types.ConversationRoleAssistant {
		t.Errorf("Expected assistant role on second turn, got %s", messages[1].Role)
	}
}

func TestToBedrockMessagesInsertsLeadingUserTurn(t *testing.T) {
	messages, _, err := toBedrockMessages([]repositories.ChatMessage{
		{Kind: repositories.MessageKindText, Role: repositories.AssistantRole, Content: "hello, how can I help?"},
	})
	if err != nil {
		t.Fatalf("toBedrockMessages failed: %v", err)
	}

	if len(messages) != 2 {
		t.Fatalf("Expected 2 messages, got %d", len(messages))
	}
	if messages[0].Role != types.ConversationRoleUser {
		t.Fatalf("Expected leading user turn, got %s", messages[0].Role)
	}
	text, ok := messages[0].Content[0].(*types.ContentBlockMemberText)
	if !ok || text.Value != "(empty)" {
		t.Errorf("Expected placeholder text block, got %#v", messages[0].Content[0])
	}
}

func TestToBedrockMessagesToolTraffic(t *testing.T) {
	messages, _, err := toBedrockMessages([]repositories.ChatMessage{
		{Kind: repositories.MessageKindText, Role: repositories.UserRole, Content: "what's the weather?"},
		{
			Kind:      repositories.MessageKindToolCall,
			Role:      repositories.AssistantRole,
			CallID:    "call-1",
			Name:      "get_weather",
			Arguments: `{"city":"Jakarta"}`,
		},
		{
			Kind:    repositories.MessageKindToolCallOutput,
			Role:    repositories.UserRole,
			CallID:  "call-1",
			Content: "sunny, 31C",
		},
	})
	if err != nil {
		t.Fatalf("toBedrockMessages failed: %v", err)
	}

	if len(messages) != 3 {
		t.Fatalf("Expected 3 turns, got %d", len(messages))
	}

	toolUse, ok := messages[1].Content[0].(*types.ContentBlockMemberToolUse)
	if !ok {
		t.Fatalf("Expected tool use block, got %#v", messages[1].Content[0])
	}
	if aws.ToString(toolUse.Value.ToolUseId) != "call-1" {
		t.Errorf("Expected tool use id call-1, got %s", aws.ToString(toolUse.Value.ToolUseId))
	}
	if aws.ToString(toolUse.Value.Name) != "get_weather" {
		t.Errorf("Expected tool name get_weather, got %s", aws.ToString(toolUse.Value.Name))
	}

	toolResult, ok := messages[2].Content[0].(*types.ContentBlockMemberToolResult)
	if !ok {
		t.Fatalf("Expected tool result block, got %#v", messages[2].Content[0])
	}
	if toolResult.Value.Status != types.ToolResultStatusSuccess {
		t.Errorf("Expected success status, got %s", toolResult.Value.Status)
	}
}

func TestToBedrockMessagesRejectsBadToolArguments(t *testing.T) {
	_, _, err := toBedrockMessages([]repositories.ChatMessage{
		{Kind: repositories.MessageKindToolCall, CallID: "c", Name: "f", Arguments: "{not json"},
	})
	if err == nil {
		t.Fatal("Expected error for malformed tool arguments")
	}
}

func TestToBedrockTools(t *testing.T) {
	if toBedrockTools(nil) != nil {
		t.Error("Expected nil config for no tools")
	}

	cfg := toBedrockTools([]repositories.ToolSpec{
		{Name: "get_weather", Description: "look up weather"},
		{Name: "hang_up"},
	})
	if cfg == nil || len(cfg.Tools) != 2 {
		t.Fatalf("Expected 2 tools, got %#v", cfg)
	}

	first, ok := cfg.Tools[0].(*types.ToolMemberToolSpec)
	if !ok {
		t.Fatalf("Expected tool spec member, got %#v", cfg.Tools[0])
	}
	if aws.ToString(first.Value.Name) != "get_weather" {
		t.Errorf("Expected name get_weather, got %s", aws.ToString(first.Value.Name))
	}

	second, ok := cfg.Tools[1].(*types.ToolMemberToolSpec)
	if !ok {
		t.Fatalf("Expected tool spec member, got %#v", cfg.Tools[1])
	}
	if second.Value.Description != nil {
		t.Error("Empty description should be omitted")
	}
}

func TestFromBedrockOutputText(t *testing.T) {
	reply, err := fromBedrockOutput(&types.ConverseOutputMemberMessage{
		Value: types.Message{
			Role: types.ConversationRoleAssistant,
			Content: []types.ContentBlock{
				&types.ContentBlockMemberText{Value: "hello "},
				&types.ContentBlockMemberText{Value: "there"},
			},
		},
	})
	if err != nil {
		t.Fatalf("fromBedrockOutput failed: %v", err)
	}
	if reply.Content != "hello there" {
		t.Errorf("Expected concatenated text, got %q", reply.Content)
	}
	if reply.Role != repositories.AssistantRole {
		t.Errorf("Expected assistant role, got %s", reply.Role)
	}
}
