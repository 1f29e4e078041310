package entities

import "time"

// SpeechEventType classifies speech recognition events.
type SpeechEventType int

const (
	// SpeechEventInterim is a partial transcript that may still change.
	SpeechEventInterim SpeechEventType = iota
	// SpeechEventFinal is a transcript segment that will not change.
	SpeechEventFinal
	// SpeechEventEndOfSpeech signals the provider detected end of the utterance.
	SpeechEventEndOfSpeech
)

// SpeechEvent is a single speech recognition result.
type SpeechEvent struct {
	Type       SpeechEventType `json:"type"`
	Text       string          `json:"text"`
	Language   string          `json:"language,omitempty"`
	Confidence float64         `json:"confidence,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// SynthesizedAudio is one frame of synthesized speech. Frames belonging to
// the same request share RequestID; streaming synthesis additionally groups
// frames into segments, with exactly one frame per segment marked final.
type SynthesizedAudio struct {
	RequestID string
	SegmentID string
	Frame     AudioFrame
	IsFinal   bool
}
