package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/adapters/llm"
	"github.com/aurelia-labs/voicekit/adapters/memory"
	"github.com/aurelia-labs/voicekit/adapters/stt"
	"github.com/aurelia-labs/voicekit/adapters/tts"
	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
	"github.com/aurelia-labs/voicekit/usecase"
)

type captureSink struct {
	mu      sync.Mutex
	frames  int
	flushes int
	clears  int
}

func (s *captureSink) CaptureFrame(frame entities.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames++
	return nil
}

func (s *captureSink) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
}

func (s *captureSink) ClearBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
}

// scriptedSpeechToText hands recognition events straight from the test to
// the service.
type scriptedSpeechToText struct {
	events chan entities.SpeechEvent
}

func (s *scriptedSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	return "", nil
}

func (s *scriptedSpeechToText) NewStream(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechStream, error) {
	return &scriptedSpeechStream{events: s.events}, nil
}

func (s *scriptedSpeechToText) Capabilities() repositories.STTCapabilities {
	return repositories.STTCapabilities{Streaming: true}
}

type scriptedSpeechStream struct {
	events chan entities.SpeechEvent
}

func (s *scriptedSpeechStream) Push(data []byte) error              { return nil }
func (s *scriptedSpeechStream) Events() <-chan entities.SpeechEvent { return s.events }
func (s *scriptedSpeechStream) CloseSend() (string, error)          { return "", nil }
func (s *scriptedSpeechStream) Close() error                        { return nil }

// pacedTextToSpeech spaces frames out in time so a reply is still playing
// when the next utterance arrives.
type pacedTextToSpeech struct {
	frames int
	gap    time.Duration
}

func (p *pacedTextToSpeech) Synthesize(ctx context.Context, text string) (<-chan entities.SynthesizedAudio, error) {
	out := make(chan entities.SynthesizedAudio)
	go func() {
		defer close(out)
		for i := 0; i < p.frames; i++ {
			ev := entities.SynthesizedAudio{
				Frame:   entities.NewAudioFrame(make([]byte, 3200), 16000, 1),
				IsFinal: i == p.frames-1,
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			select {
			case <-time.After(p.gap):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (p *pacedTextToSpeech) Capabilities() repositories.TTSCapabilities {
	return repositories.TTSCapabilities{SampleRate: 16000, NumChannels: 1}
}

func newService(transcript string) (*usecase.ConversationService, *memory.TranscriptRepository) {
	logger := zap.NewNop()
	mockSTT := stt.NewMockSpeechToText(logger)
	mockSTT.Transcript = transcript
	repo := memory.NewTranscriptRepository()
	service := usecase.NewConversationService(
		mockSTT,
		llm.NewMockLargeLanguageModel(),
		tts.NewMockTextToSpeech(),
		repo,
		usecase.Config{Provider: "mock"},
		logger,
	)
	return service, repo
}

func TestRunCompletesTurn(t *testing.T) {
	service, repo := newService("hello agent")
	sink := &captureSink{}

	input := make(chan entities.AudioFrame, 4)
	input <- entities.NewAudioFrame(make([]byte, 3200), 16000, 1)
	close(input)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := service.Run(ctx, input, sink, "room-1", "alice"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.frames == 0 {
		t.Error("Expected synthesized frames to reach the sink")
	}
	if sink.flushes != 1 {
		t.Errorf("Expected 1 flush, got %d", sink.flushes)
	}

	session, err := repo.GetLastByRoom(context.Background(), "room-1", "alice")
	if err != nil {
		t.Fatalf("GetLastByRoom failed: %v", err)
	}
	if session == nil {
		t.Fatal("Expected a persisted session")
	}
	if len(session.Messages) != 2 {
		t.Fatalf("Expected 2 transcript messages, got %d", len(session.Messages))
	}
	if session.Messages[0].Role != entities.MessageRoleUser || session.Messages[0].Content != "hello agent" {
		t.Errorf("Unexpected user message: %+v", session.Messages[0])
	}
	if session.Messages[1].Role != entities.MessageRoleAssistant {
		t.Errorf("Expected assistant reply, got %+v", session.Messages[1])
	}
	if session.Messages[1].Content != "You said: hello agent" {
		t.Errorf("Unexpected reply content: %q", session.Messages[1].Content)
	}
}

func TestRunRecordsUtteranceDuration(t *testing.T) {
	service, repo := newService("one two")
	sink := &captureSink{}

	input := make(chan entities.AudioFrame, 4)
	// Two 100ms frames at 16kHz mono.
	input <- entities.NewAudioFrame(make([]byte, 3200), 16000, 1)
	input <- entities.NewAudioFrame(make([]byte, 3200), 16000, 1)
	close(input)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := service.Run(ctx, input, sink, "room-1", "alice"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	session, err := repo.GetLastByRoom(context.Background(), "room-1", "alice")
	if err != nil || session == nil {
		t.Fatalf("GetLastByRoom failed: %v", err)
	}
	if session.Messages[0].DurationMs != 200 {
		t.Errorf("Expected 200ms utterance, got %dms", session.Messages[0].DurationMs)
	}
}

func TestRunBargeInInterruptsReply(t *testing.T) {
	events := make(chan entities.SpeechEvent)
	repo := memory.NewTranscriptRepository()
	service := usecase.NewConversationService(
		&scriptedSpeechToText{events: events},
		llm.NewMockLargeLanguageModel(),
		&pacedTextToSpeech{frames: 20, gap: 20 * time.Millisecond},
		repo,
		usecase.Config{Provider: "mock"},
		zap.NewNop(),
	)

	sink := &captureSink{}
	input := make(chan entities.AudioFrame)
	close(input)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	runErr := make(chan error, 1)
	go func() { runErr <- service.Run(ctx, input, sink, "room-1", "alice") }()

	events <- entities.SpeechEvent{Type: entities.SpeechEventFinal, Text: "tell me a story"}

	// Wait until the first reply is audibly playing before barging in.
	deadline := time.Now().Add(2 * time.Second)
	for {
		sink.mu.Lock()
		playing := sink.frames > 0
		sink.mu.Unlock()
		if playing {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("First reply never reached the sink")
		}
		time.Sleep(5 * time.Millisecond)
	}

	events <- entities.SpeechEvent{Type: entities.SpeechEventFinal, Text: "actually, stop"}
	close(events)

	if err := <-runErr; err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sink.mu.Lock()
	clears, flushes := sink.clears, sink.flushes
	sink.mu.Unlock()
	if clears != 1 {
		t.Errorf("Expected the barge-in to clear the sink once, got %d", clears)
	}
	if flushes != 1 {
		t.Errorf("Expected only the uninterrupted reply to flush, got %d", flushes)
	}

	session, err := repo.GetLastByRoom(context.Background(), "room-1", "alice")
	if err != nil || session == nil {
		t.Fatalf("GetLastByRoom failed: %v", err)
	}
	if len(session.Messages) != 4 {
		t.Fatalf("Expected 4 transcript messages, got %d", len(session.Messages))
	}
	if !session.Messages[1].Metadata.Interrupted {
		t.Error("Expected the first reply to be marked interrupted")
	}
	if session.Messages[3].Metadata.Interrupted {
		t.Error("Expected the second reply to complete uninterrupted")
	}
}

func TestRunNotifiesObserver(t *testing.T) {
	logger := zap.NewNop()
	mockSTT := stt.NewMockSpeechToText(logger)
	mockSTT.Transcript = "hello"

	var mu sync.Mutex
	var observed []entities.TranscriptMessage
	service := usecase.NewConversationService(
		mockSTT,
		llm.NewMockLargeLanguageModel(),
		tts.NewMockTextToSpeech(),
		memory.NewTranscriptRepository(),
		usecase.Config{
			OnMessage: func(roomID, participant string, msg entities.TranscriptMessage) {
				mu.Lock()
				observed = append(observed, msg)
				mu.Unlock()
			},
		},
		logger,
	)

	input := make(chan entities.AudioFrame, 1)
	input <- entities.NewAudioFrame(make([]byte, 3200), 16000, 1)
	close(input)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := service.Run(ctx, input, &captureSink{}, "room-1", "alice"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(observed) != 2 {
		t.Fatalf("Expected 2 observed messages, got %d", len(observed))
	}
	if observed[0].Role != entities.MessageRoleUser || observed[1].Role != entities.MessageRoleAssistant {
		t.Errorf("Unexpected observed roles: %s, %s", observed[0].Role, observed[1].Role)
	}
}

func TestResumeOrCreateSession(t *testing.T) {
	service, repo := newService("hi")
	ctx := context.Background()

	first, err := service.ResumeOrCreateSession(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("ResumeOrCreateSession failed: %v", err)
	}

	// A recent active session is resumed rather than replaced.
	second, err := service.ResumeOrCreateSession(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("ResumeOrCreateSession failed: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Expected to resume session %s, got %s", first.ID, second.ID)
	}

	// A terminated session forces a new one.
	second.Terminate()
	if err := repo.Update(ctx, second); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	third, err := service.ResumeOrCreateSession(ctx, "room-1", "alice")
	if err != nil {
		t.Fatalf("ResumeOrCreateSession failed: %v", err)
	}
	if third.ID == first.ID {
		t.Error("Expected a fresh session after termination")
	}
}
