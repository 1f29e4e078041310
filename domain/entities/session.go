package entities

import (
	"errors"
	"time"
)

// SessionStatus represents the status of a transcript session
type SessionStatus string

const (
	SessionStatusActive     SessionStatus = "active"
	SessionStatusExpired    SessionStatus = "expired"
	SessionStatusTerminated SessionStatus = "terminated"
)

// MessageRole represents the role of a message sender
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// TranscriptMessage represents one transcribed or synthesized turn
type TranscriptMessage struct {
	Timestamp  time.Time          `json:"timestamp" bson:"timestamp"`
	Role       MessageRole        `json:"role" bson:"role"`
	Content    string             `json:"content" bson:"content"`
	DurationMs int64              `json:"duration_ms" bson:"duration_ms"`
	Metadata   TranscriptMetadata `json:"metadata" bson:"metadata"`
}

// TranscriptMetadata contains additional metadata for a transcript message
type TranscriptMetadata struct {
	Confidence  *float64 `json:"confidence,omitempty" bson:"confidence,omitempty"`
	Interrupted bool     `json:"interrupted,omitempty" bson:"interrupted,omitempty"`
	Provider    string   `json:"provider,omitempty" bson:"provider,omitempty"`
}

// SessionMetadata contains session-level metadata
type SessionMetadata struct {
	Language string `json:"language" bson:"language"`
	Model    string `json:"model,omitempty" bson:"model,omitempty"`
}

// Session represents the transcript of one agent job inside a room,
// scoped to a single remote participant.
type Session struct {
	ID            string              `json:"id" bson:"-"`
	RoomID        string              `json:"room_id" bson:"room_id"`
	Participant   string              `json:"participant" bson:"participant"`
	CreatedAt     time.Time           `json:"created_at" bson:"created_at"`
	LastActiveAt  time.Time           `json:"last_active_at" bson:"last_active_at"`
	LastMessageAt *time.Time          `json:"last_message_at" bson:"last_message_at"`
	ExpiresAt     time.Time           `json:"expires_at" bson:"expires_at"`
	Status        SessionStatus       `json:"status" bson:"status"`
	Messages      []TranscriptMessage `json:"messages" bson:"messages"`
	Metadata      SessionMetadata     `json:"metadata" bson:"metadata"`
}

const (
	sessionLifetime = 24 * time.Hour

	// A session is resumable only if the participant spoke recently.
	sessionResumeWindow = 30 * time.Minute
)

// NewSession creates a new transcript session for a participant in a room
func NewSession(roomID, participant string) *Session {
	now := time.Now()
	return &Session{
		RoomID:       roomID,
		Participant:  participant,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(sessionLifetime),
		Status:       SessionStatusActive,
		Messages:     make([]TranscriptMessage, 0),
		Metadata: SessionMetadata{
			Language: "en-US",
		},
	}
}

// AddMessage appends a transcript message to the session
func (s *Session) AddMessage(role MessageRole, content string, duration time.Duration, metadata TranscriptMetadata) {
	now := time.Now()
	s.Messages = append(s.Messages, TranscriptMessage{
		Timestamp:  now,
		Role:       role,
		Content:    content,
		DurationMs: duration.Milliseconds(),
		Metadata:   metadata,
	})
	s.LastMessageAt = &now
	s.UpdateLastActive()
}

// UpdateLastActive updates the last active timestamp and extends expiration
func (s *Session) UpdateLastActive() {
	s.LastActiveAt = time.Now()
	s.ExpiresAt = s.LastActiveAt.Add(sessionLifetime)
}

// IsExpired checks if the session has expired
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt) || s.Status != SessionStatusActive
}

// CanContinue reports whether a new turn may be appended to this session
// instead of opening a fresh one.
func (s *Session) CanContinue() bool {
	if s.IsExpired() {
		return false
	}
	if s.LastMessageAt == nil {
		return true
	}
	return time.Since(*s.LastMessageAt) <= sessionResumeWindow
}

// Terminate marks the session as terminated
func (s *Session) Terminate() {
	s.Status = SessionStatusTerminated
	s.UpdateLastActive()
}

// Expire marks the session as expired
func (s *Session) Expire() {
	s.Status = SessionStatusExpired
}

// Validate validates the session data
func (s *Session) Validate() error {
	if s.RoomID == "" {
		return errors.New("room_id is required")
	}
	if s.Participant == "" {
		return errors.New("participant is required")
	}
	if s.Status != SessionStatusActive && s.Status != SessionStatusExpired && s.Status != SessionStatusTerminated {
		return errors.New("invalid session status")
	}
	return nil
}
