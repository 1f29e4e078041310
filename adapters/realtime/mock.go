package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// MockRealtimeModel produces a fixed spoken reply for every GenerateReply.
// Useful for development without provider credentials.
type MockRealtimeModel struct {
	// ReplyText is emitted as the output transcript of each generation.
	ReplyText string
	// ReplyFrames is the number of audio frames emitted per generation.
	ReplyFrames int
}

var _ repositories.RealtimeModel = (*MockRealtimeModel)(nil)

func NewMockRealtimeModel() *MockRealtimeModel {
	return &MockRealtimeModel{
		ReplyText:   "this is a mock reply",
		ReplyFrames: 3,
	}
}

func (m *MockRealtimeModel) Close() error { return nil }

func (m *MockRealtimeModel) Session(ctx context.Context) (repositories.RealtimeSession, error) {
	return &mockRealtimeSession{
		ctx:    ctx,
		model:  m,
		events: make(chan repositories.RealtimeEvent, 64),
	}, nil
}

type mockRealtimeSession struct {
	ctx   context.Context
	model *MockRealtimeModel

	mu          sync.Mutex
	closed      bool
	interrupted bool
	pushed      time.Duration

	events chan repositories.RealtimeEvent
}

func (s *mockRealtimeSession) PushAudio(frame entities.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushed += frame.Duration()
	return nil
}

func (s *mockRealtimeSession) GenerateReply() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.interrupted = false
	s.mu.Unlock()

	id := "mock-turn-" + uuid.NewString()
	s.emit(repositories.RealtimeEvent{
		Type:      repositories.RealtimeEventGenerationStarted,
		MessageID: id,
	})

	samples := OutputSampleRate / 10 // 100ms frames
	for i := 0; i < s.model.ReplyFrames; i++ {
		s.mu.Lock()
		interrupted := s.interrupted
		s.mu.Unlock()
		if interrupted {
			break
		}
		s.emit(repositories.RealtimeEvent{
			Type:      repositories.RealtimeEventAudio,
			MessageID: id,
			Frame:     entities.NewAudioFrame(make([]byte, samples*2), OutputSampleRate, 1),
		})
	}

	s.emit(repositories.RealtimeEvent{
		Type:      repositories.RealtimeEventOutputTranscript,
		MessageID: id,
		Text:      s.model.ReplyText,
	})

	s.mu.Lock()
	interrupted := s.interrupted
	s.mu.Unlock()
	s.emit(repositories.RealtimeEvent{
		Type:        repositories.RealtimeEventGenerationFinished,
		MessageID:   id,
		Interrupted: interrupted,
	})
	return nil
}

func (s *mockRealtimeSession) Interrupt() {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()
}

func (s *mockRealtimeSession) Events() <-chan repositories.RealtimeEvent {
	return s.events
}

func (s *mockRealtimeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.events)
	}
	return nil
}

// emit holds the mutex while sending so Close cannot close the events
// channel underneath an in-flight send.
func (s *mockRealtimeSession) emit(ev repositories.RealtimeEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
