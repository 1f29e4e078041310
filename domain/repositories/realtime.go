package repositories

import (
	"context"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

// RealtimeModel abstracts speech-to-speech models that take audio in and
// produce audio plus text out over a long-lived session.
type RealtimeModel interface {
	// Session opens a realtime session
	Session(ctx context.Context) (RealtimeSession, error)
	Close() error
}

// RealtimeSession is a live bidirectional session with a realtime model.
type RealtimeSession interface {
	// PushAudio forwards captured audio to the model
	PushAudio(frame entities.AudioFrame) error
	// GenerateReply asks the model to respond using the accumulated context
	GenerateReply() error
	// Interrupt requests that the current generation stop
	Interrupt()
	// Events returns the generation event stream
	Events() <-chan RealtimeEvent
	Close() error
}

// RealtimeEventType classifies realtime session events
type RealtimeEventType string

const (
	RealtimeEventGenerationStarted  RealtimeEventType = "generation_started"
	RealtimeEventText               RealtimeEventType = "text"
	RealtimeEventAudio              RealtimeEventType = "audio"
	RealtimeEventToolCall           RealtimeEventType = "tool_call"
	RealtimeEventToolCallCancelled  RealtimeEventType = "tool_call_cancelled"
	RealtimeEventGenerationFinished RealtimeEventType = "generation_finished"
	RealtimeEventInputTranscript    RealtimeEventType = "input_transcript"
	RealtimeEventOutputTranscript   RealtimeEventType = "output_transcript"
)

// RealtimeEvent is one event emitted by a realtime session. MessageID groups
// events belonging to the same generation.
type RealtimeEvent struct {
	Type      RealtimeEventType
	MessageID string
	Text      string
	Frame     entities.AudioFrame
	ToolCall  *ChatMessage
	// Interrupted is set on generation_finished when the turn was cut short
	Interrupted bool
}
