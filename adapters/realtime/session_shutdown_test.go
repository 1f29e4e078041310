package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// Senders blocked on a full message channel must unblock with an error once
// the session shuts down, not panic.
func TestLiveSessionSendAfterShutdown(t *testing.T) {
	s := &geminiLiveSession{
		ctx:   context.Background(),
		msgCh: make(chan liveClientMessage),
		done:  make(chan struct{}),
	}

	pushed := make(chan error, 1)
	go func() {
		frame := entities.NewAudioFrame(make([]byte, 640), InputSampleRate, 1)
		pushed <- s.PushAudio(frame)
	}()

	close(s.done)

	select {
	case err := <-pushed:
		if err == nil {
			t.Error("Expected PushAudio to fail after shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("PushAudio stayed blocked after shutdown")
	}

	if err := s.GenerateReply(); err == nil {
		t.Error("Expected GenerateReply to fail after shutdown")
	}
}

func TestMockEmitAfterClose(t *testing.T) {
	s := &mockRealtimeSession{
		ctx:    context.Background(),
		model:  NewMockRealtimeModel(),
		events: make(chan repositories.RealtimeEvent, 1),
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	s.emit(repositories.RealtimeEvent{Type: repositories.RealtimeEventAudio})

	if _, ok := <-s.events; ok {
		t.Error("Expected no events after close")
	}
}
