package worker_test

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/adapters/llm"
	"github.com/aurelia-labs/voicekit/adapters/memory"
	"github.com/aurelia-labs/voicekit/adapters/stt"
	"github.com/aurelia-labs/voicekit/adapters/tts"
	"github.com/aurelia-labs/voicekit/usecase"
	"github.com/aurelia-labs/voicekit/worker"
)

func newService() *usecase.ConversationService {
	logger := zap.NewNop()
	return usecase.NewConversationService(
		stt.NewMockSpeechToText(logger),
		llm.NewMockLargeLanguageModel(),
		tts.NewMockTextToSpeech(),
		memory.NewTranscriptRepository(),
		usecase.Config{},
		logger,
	)
}

func TestOptionsValidate(t *testing.T) {
	cases := []struct {
		name    string
		opts    worker.Options
		wantErr bool
	}{
		{"valid", worker.Options{URL: "wss://x", APIKey: "k", APISecret: "s"}, false},
		{"missing url", worker.Options{APIKey: "k", APISecret: "s"}, true},
		{"missing key", worker.Options{URL: "wss://x", APISecret: "s"}, true},
		{"missing secret", worker.Options{URL: "wss://x", APIKey: "k"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.opts.Validate()
			if tc.wantErr && err == nil {
				t.Error("Expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := worker.New(worker.Options{}, newService(), zap.NewNop())
	if err == nil {
		t.Fatal("Expected error for empty options")
	}
}

func TestDrainWithNoJobs(t *testing.T) {
	w, err := worker.New(worker.Options{
		URL:          "wss://example.livekit.cloud",
		APIKey:       "key",
		APISecret:    "secret",
		DrainTimeout: time.Second,
	}, newService(), zap.NewNop())
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if w.ActiveJobs() != 0 {
		t.Errorf("Expected 0 active jobs, got %d", w.ActiveJobs())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Drain(ctx); err != nil {
		t.Fatalf("Drain failed: %v", err)
	}

	// After drain, new jobs are rejected.
	if err := w.Launch(context.Background(), "room-1", ""); err == nil {
		t.Error("Expected Launch to fail while draining")
	}

	state := w.State()
	if state["draining"] != true {
		t.Errorf("Expected draining state, got %v", state["draining"])
	}
}
