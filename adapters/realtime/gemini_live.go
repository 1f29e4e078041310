// Package realtime adapts speech-to-speech models to the RealtimeModel
// interface.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

const (
	defaultLiveModel = "gemini-2.0-flash-exp"
	defaultLiveVoice = "Puck"

	// InputSampleRate is the PCM rate the model expects on PushAudio.
	InputSampleRate = 16000
	// OutputSampleRate is the PCM rate of frames the model produces.
	OutputSampleRate = 24000
)

// GeminiLiveConfig holds configuration for the Gemini Live adapter.
type GeminiLiveConfig struct {
	// APIKey falls back to the GOOGLE_API_KEY environment variable.
	APIKey string
	Model  string
	Voice  string
	// Instructions is the system prompt sent on connect.
	Instructions    string
	Temperature     float32
	MaxOutputTokens int32
}

// GeminiLiveModel implements RealtimeModel on the Gemini Live API.
type GeminiLiveModel struct {
	client *genai.Client
	opts   GeminiLiveConfig
	logger *zap.Logger
}

var _ repositories.RealtimeModel = (*GeminiLiveModel)(nil)

func NewGeminiLiveModel(ctx context.Context, cfg GeminiLiveConfig, logger *zap.Logger) (*GeminiLiveModel, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GOOGLE_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("GOOGLE_API_KEY must be set")
	}
	if cfg.Model == "" {
		cfg.Model = defaultLiveModel
	}
	if cfg.Voice == "" {
		cfg.Voice = defaultLiveVoice
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1alpha"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiLiveModel{client: client, opts: cfg, logger: logger}, nil
}

func (m *GeminiLiveModel) Close() error {
	return nil
}

// Session connects to the live API and starts the send/receive loops.
func (m *GeminiLiveModel) Session(ctx context.Context) (repositories.RealtimeSession, error) {
	config := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: m.opts.Voice},
			},
		},
	}
	if m.opts.Instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(m.opts.Instructions, genai.RoleUser)
	}
	if m.opts.Temperature > 0 {
		config.Temperature = genai.Ptr(m.opts.Temperature)
	}
	if m.opts.MaxOutputTokens > 0 {
		config.MaxOutputTokens = m.opts.MaxOutputTokens
	}

	session, err := m.client.Live.Connect(ctx, m.opts.Model, config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect live session: %w", err)
	}

	s := &geminiLiveSession{
		ctx:     ctx,
		model:   m,
		session: session,
		msgCh:   make(chan liveClientMessage, 64),
		events:  make(chan repositories.RealtimeEvent, 64),
		done:    make(chan struct{}),
		logger:  m.logger,
	}
	go s.sendLoop()
	go s.recvLoop()

	return s, nil
}

// liveClientMessage is one outbound message: either realtime audio or a
// client content turn.
type liveClientMessage struct {
	realtime *genai.LiveRealtimeInput
	content  *genai.LiveClientContentInput
}

type geminiLiveSession struct {
	ctx     context.Context
	model   *GeminiLiveModel
	session *genai.Session

	msgCh  chan liveClientMessage
	events chan repositories.RealtimeEvent
	// done signals shutdown to senders. msgCh is never closed so a
	// concurrent PushAudio or GenerateReply cannot send on a closed channel.
	done chan struct{}

	mu          sync.Mutex
	closed      bool
	interrupted bool
	activeID    string

	logger *zap.Logger
}

func (s *geminiLiveSession) PushAudio(frame entities.AudioFrame) error {
	msg := liveClientMessage{
		realtime: &genai.LiveRealtimeInput{
			Media: &genai.Blob{Data: frame.Data, MIMEType: "audio/pcm"},
		},
	}
	select {
	case s.msgCh <- msg:
		return nil
	case <-s.done:
		return fmt.Errorf("live session is closed")
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// GenerateReply completes the current turn so the model responds with the
// context accumulated so far.
func (s *geminiLiveSession) GenerateReply() error {
	msg := liveClientMessage{
		content: &genai.LiveClientContentInput{
			Turns:        []*genai.Content{genai.NewContentFromText(".", genai.RoleUser)},
			TurnComplete: genai.Ptr(true),
		},
	}
	select {
	case s.msgCh <- msg:
		return nil
	case <-s.done:
		return fmt.Errorf("live session is closed")
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

// Interrupt marks the active generation as cut short. Gemini has no direct
// cancellation; the flag is reported on generation_finished.
func (s *geminiLiveSession) Interrupt() {
	s.mu.Lock()
	s.interrupted = true
	s.mu.Unlock()
}

func (s *geminiLiveSession) Events() <-chan repositories.RealtimeEvent {
	return s.events
}

func (s *geminiLiveSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.done)
	s.mu.Unlock()
	return s.session.Close()
}

func (s *geminiLiveSession) sendLoop() {
	for {
		var msg liveClientMessage
		select {
		case msg = <-s.msgCh:
		case <-s.done:
			return
		}

		var err error
		switch {
		case msg.realtime != nil:
			err = s.session.SendRealtimeInput(*msg.realtime)
		case msg.content != nil:
			err = s.session.SendClientContent(*msg.content)
		}
		if err != nil {
			s.logger.Error("Failed to send to live session", zap.Error(err))
			return
		}
	}
}

func (s *geminiLiveSession) recvLoop() {
	defer close(s.events)

	for {
		msg, err := s.session.Receive()
		if err != nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if !closed {
				s.logger.Error("Live session receive failed", zap.Error(err))
			}
			return
		}

		if msg.ServerContent != nil {
			s.handleServerContent(msg.ServerContent)
		}
		if msg.ToolCall != nil {
			s.handleToolCall(msg.ToolCall)
		}
		if msg.ToolCallCancellation != nil {
			for _, id := range msg.ToolCallCancellation.IDs {
				s.emit(repositories.RealtimeEvent{
					Type:      repositories.RealtimeEventToolCallCancelled,
					MessageID: id,
				})
			}
		}
	}
}

// ensureGeneration starts a generation if none is active and returns its id.
func (s *geminiLiveSession) ensureGeneration() string {
	s.mu.Lock()
	if s.activeID == "" {
		s.activeID = "gemini-turn-" + uuid.NewString()
		s.interrupted = false
		id := s.activeID
		s.mu.Unlock()
		s.emit(repositories.RealtimeEvent{
			Type:      repositories.RealtimeEventGenerationStarted,
			MessageID: id,
		})
		return id
	}
	id := s.activeID
	s.mu.Unlock()
	return id
}

func (s *geminiLiveSession) handleServerContent(content *genai.LiveServerContent) {
	id := s.ensureGeneration()

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.Text != "" {
				s.emit(repositories.RealtimeEvent{
					Type:      repositories.RealtimeEventText,
					MessageID: id,
					Text:      part.Text,
				})
			}
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				s.emit(repositories.RealtimeEvent{
					Type:      repositories.RealtimeEventAudio,
					MessageID: id,
					Frame:     entities.NewAudioFrame(part.InlineData.Data, OutputSampleRate, 1),
				})
			}
		}
	}

	if content.InputTranscription != nil && content.InputTranscription.Text != "" {
		s.emit(repositories.RealtimeEvent{
			Type:      repositories.RealtimeEventInputTranscript,
			MessageID: id,
			Text:      content.InputTranscription.Text,
		})
	}
	if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
		s.emit(repositories.RealtimeEvent{
			Type:      repositories.RealtimeEventOutputTranscript,
			MessageID: id,
			Text:      content.OutputTranscription.Text,
		})
	}

	if content.Interrupted || content.TurnComplete {
		s.mu.Lock()
		interrupted := s.interrupted || content.Interrupted
		s.activeID = ""
		s.mu.Unlock()
		s.emit(repositories.RealtimeEvent{
			Type:        repositories.RealtimeEventGenerationFinished,
			MessageID:   id,
			Interrupted: interrupted,
		})
	}
}

func (s *geminiLiveSession) handleToolCall(toolCall *genai.LiveServerToolCall) {
	id := s.ensureGeneration()
	for _, call := range toolCall.FunctionCalls {
		args, err := json.Marshal(call.Args)
		if err != nil {
			s.logger.Warn("Failed to encode tool call arguments", zap.Error(err))
			continue
		}
		s.emit(repositories.RealtimeEvent{
			Type:      repositories.RealtimeEventToolCall,
			MessageID: id,
			ToolCall: &repositories.ChatMessage{
				Kind:      repositories.MessageKindToolCall,
				Role:      repositories.AssistantRole,
				CallID:    call.ID,
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
}

func (s *geminiLiveSession) emit(ev repositories.RealtimeEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
