package stt

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// MockSpeechToText returns canned transcripts for development and tests.
type MockSpeechToText struct {
	// Transcript is returned as the final result of every stream.
	Transcript string
	logger     *zap.Logger
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

func NewMockSpeechToText(logger *zap.Logger) *MockSpeechToText {
	return &MockSpeechToText{
		Transcript: "this is a mock transcription",
		logger:     logger,
	}
}

func (m *MockSpeechToText) Capabilities() repositories.STTCapabilities {
	return repositories.STTCapabilities{Streaming: true, InterimResults: true}
}

func (m *MockSpeechToText) NewStream(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechStream, error) {
	return &mockSpeechStream{
		ctx:        ctx,
		transcript: m.Transcript,
		language:   config.Language,
		interim:    config.InterimResults,
		events:     make(chan entities.SpeechEvent, 16),
	}, nil
}

func (m *MockSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	m.logger.Debug("Mock transcription", zap.Int("bytes", len(audioData)))
	return m.Transcript, nil
}

type mockSpeechStream struct {
	ctx        context.Context
	transcript string
	language   string
	interim    bool

	mu       sync.Mutex
	received int
	closed   bool
	events   chan entities.SpeechEvent
}

func (s *mockSpeechStream) Push(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.received += len(data)

	// Emit word-by-word interims as audio accumulates.
	if s.interim {
		words := strings.Fields(s.transcript)
		idx := s.received / 3200
		if idx > 0 && idx <= len(words) {
			select {
			case s.events <- entities.SpeechEvent{
				Type:      entities.SpeechEventInterim,
				Text:      strings.Join(words[:idx], " "),
				Language:  s.language,
				Timestamp: time.Now(),
			}:
			default:
			}
		}
	}
	return nil
}

func (s *mockSpeechStream) Events() <-chan entities.SpeechEvent {
	return s.events
}

func (s *mockSpeechStream) CloseSend() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", nil
	}
	s.closed = true

	s.events <- entities.SpeechEvent{
		Type:      entities.SpeechEventFinal,
		Text:      s.transcript,
		Language:  s.language,
		Timestamp: time.Now(),
	}
	close(s.events)
	return s.transcript, nil
}

func (s *mockSpeechStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}
