package repositories

import (
	"context"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

// SpeechToText abstracts streaming speech recognition services
type SpeechToText interface {
	// TranscribeAudio converts a complete audio buffer to text
	TranscribeAudio(ctx context.Context, audioData []byte, config AudioConfig) (string, error)
	// NewStream opens a streaming transcription session
	NewStream(ctx context.Context, config AudioConfig) (SpeechStream, error)
	// Capabilities describes what the provider supports
	Capabilities() STTCapabilities
}

// AudioConfig represents audio configuration for speech recognition
type AudioConfig struct {
	SampleRate  int    `json:"sample_rate"`
	NumChannels int    `json:"num_channels"`
	Encoding    string `json:"encoding"`
	Language    string `json:"language"`
	// InterimResults requests partial transcripts while speech is ongoing.
	InterimResults bool `json:"interim_results"`
}

// STTCapabilities describes a speech-to-text provider
type STTCapabilities struct {
	Streaming      bool
	InterimResults bool
}

// SpeechStream is an active streaming transcription session. Audio is pushed
// with Push; recognition results arrive on Events. After CloseSend no interim
// event follows the final one.
type SpeechStream interface {
	// Push sends a chunk of audio to the recognizer
	Push(data []byte) error
	// Events returns the channel of recognition events. It is closed once the
	// provider has delivered the final result.
	Events() <-chan entities.SpeechEvent
	// CloseSend signals end of audio and waits for the final transcript
	CloseSend() (string, error)
	// Close tears the session down without waiting for a result
	Close() error
}
