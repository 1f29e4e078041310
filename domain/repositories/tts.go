package repositories

import (
	"context"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

// TextToSpeech abstracts speech synthesis services
type TextToSpeech interface {
	// Synthesize converts a complete text into a stream of audio frames.
	// The returned channel is closed once synthesis finishes.
	Synthesize(ctx context.Context, text string) (<-chan entities.SynthesizedAudio, error)
	// Capabilities describes what the provider supports
	Capabilities() TTSCapabilities
}

// StreamingTextToSpeech is implemented by providers that can synthesize text
// incrementally, before the full reply is known.
type StreamingTextToSpeech interface {
	TextToSpeech
	// NewStream opens an incremental synthesis session
	NewStream(ctx context.Context) (SynthesizeStream, error)
}

// TTSCapabilities describes a text-to-speech provider
type TTSCapabilities struct {
	Streaming   bool
	SampleRate  int
	NumChannels int
}

// SynthesizeStream is an active incremental synthesis session. Text tokens
// are pushed as they are produced; Flush closes the current segment so audio
// for it can be emitted while more text arrives.
type SynthesizeStream interface {
	// PushText appends text to the current segment
	PushText(text string) error
	// Flush marks the current segment complete
	Flush() error
	// EndInput signals that no more text will be pushed
	EndInput() error
	// Events returns synthesized audio frames. Closed after EndInput once all
	// segments have been synthesized.
	Events() <-chan entities.SynthesizedAudio
	// Close aborts the session
	Close() error
}
