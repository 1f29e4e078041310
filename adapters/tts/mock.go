package tts

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// MockTextToSpeech emits silence proportional to the input text length.
// Useful for development without provider credentials.
type MockTextToSpeech struct {
	SampleRate int
	// FrameDuration controls emitted frame size. Zero selects 100ms.
	FrameDuration time.Duration
}

var _ repositories.StreamingTextToSpeech = (*MockTextToSpeech)(nil)

func NewMockTextToSpeech() *MockTextToSpeech {
	return &MockTextToSpeech{SampleRate: 24000}
}

func (m *MockTextToSpeech) Capabilities() repositories.TTSCapabilities {
	return repositories.TTSCapabilities{
		Streaming:   true,
		SampleRate:  m.SampleRate,
		NumChannels: 1,
	}
}

func (m *MockTextToSpeech) frameFor(text string) entities.AudioFrame {
	dur := m.FrameDuration
	if dur <= 0 {
		dur = 100 * time.Millisecond
	}
	samples := int(time.Duration(m.SampleRate) * dur / time.Second)
	return entities.NewAudioFrame(make([]byte, samples*2), m.SampleRate, 1)
}

func (m *MockTextToSpeech) Synthesize(ctx context.Context, text string) (<-chan entities.SynthesizedAudio, error) {
	requestID := uuid.NewString()
	out := make(chan entities.SynthesizedAudio, 4)
	go func() {
		defer close(out)
		// Roughly one frame per 10 characters, at least one.
		n := len(text)/10 + 1
		for i := 0; i < n; i++ {
			select {
			case out <- entities.SynthesizedAudio{
				RequestID: requestID,
				Frame:     m.frameFor(text),
				IsFinal:   i == n-1,
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (m *MockTextToSpeech) NewStream(ctx context.Context) (repositories.SynthesizeStream, error) {
	return &mockSynthesizeStream{
		ctx:    ctx,
		tts:    m,
		events: make(chan entities.SynthesizedAudio, 32),
	}, nil
}

type mockSynthesizeStream struct {
	ctx    context.Context
	tts    *MockTextToSpeech
	events chan entities.SynthesizedAudio

	mu        sync.Mutex
	segmentID string
	buffered  string
	ended     bool
}

func (s *mockSynthesizeStream) PushText(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.segmentID == "" {
		s.segmentID = uuid.NewString()
	}
	s.buffered += text
	return nil
}

func (s *mockSynthesizeStream) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	return nil
}

func (s *mockSynthesizeStream) flushLocked() {
	if s.segmentID == "" {
		return
	}
	n := len(s.buffered)/10 + 1
	for i := 0; i < n; i++ {
		select {
		case s.events <- entities.SynthesizedAudio{
			RequestID: s.segmentID,
			SegmentID: s.segmentID,
			Frame:     s.tts.frameFor(s.buffered),
			IsFinal:   i == n-1,
		}:
		case <-s.ctx.Done():
			return
		}
	}
	s.segmentID = ""
	s.buffered = ""
}

func (s *mockSynthesizeStream) EndInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return nil
	}
	s.flushLocked()
	s.ended = true
	close(s.events)
	return nil
}

func (s *mockSynthesizeStream) Events() <-chan entities.SynthesizedAudio {
	return s.events
}

func (s *mockSynthesizeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ended {
		s.ended = true
		close(s.events)
	}
	return nil
}
