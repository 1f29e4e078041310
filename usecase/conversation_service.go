// Package usecase orchestrates the voice agent pipeline: speech in, chat
// reply, speech out, transcript persisted.
package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// AudioSink is where synthesized audio goes. roomio.RoomAudioSink satisfies
// this; tests use lighter implementations.
type AudioSink interface {
	CaptureFrame(frame entities.AudioFrame) error
	// Flush marks the current reply complete
	Flush()
	// ClearBuffer drops queued audio, cutting the current reply short
	ClearBuffer()
}

// Config tunes the conversation pipeline.
type Config struct {
	Language string
	// InputSampleRate matches the rate of frames arriving from the room.
	InputSampleRate int
	// Provider is recorded on transcript messages.
	Provider string
	// OnMessage, when set, observes every transcript message as it is
	// recorded. Used to feed live dashboards.
	OnMessage func(roomID, participant string, msg entities.TranscriptMessage)
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = "en-US"
	}
	if c.InputSampleRate == 0 {
		c.InputSampleRate = 16000
	}
}

// notify hands the newest transcript message to the OnMessage observer.
func (c *Config) notify(session *entities.Session) {
	if c.OnMessage == nil || len(session.Messages) == 0 {
		return
	}
	c.OnMessage(session.RoomID, session.Participant, session.Messages[len(session.Messages)-1])
}

// ConversationService runs the turn loop for one participant: transcribe,
// generate a reply, speak it, and persist the transcript.
type ConversationService struct {
	speechToText  repositories.SpeechToText
	languageModel repositories.LargeLanguageModel
	textToSpeech  repositories.TextToSpeech
	transcripts   repositories.TranscriptRepository
	config        Config
	logger        *zap.Logger

	mu       sync.Mutex
	speaking bool
}

// NewConversationService creates a new conversation service
func NewConversationService(
	stt repositories.SpeechToText,
	llm repositories.LargeLanguageModel,
	tts repositories.TextToSpeech,
	transcripts repositories.TranscriptRepository,
	config Config,
	logger *zap.Logger,
) *ConversationService {
	config.applyDefaults()
	return &ConversationService{
		speechToText:  stt,
		languageModel: llm,
		textToSpeech:  tts,
		transcripts:   transcripts,
		config:        config,
		logger:        logger,
	}
}

// ResumeOrCreateSession returns the participant's recent transcript session
// when it can still be continued, or creates a fresh one.
func (s *ConversationService) ResumeOrCreateSession(ctx context.Context, roomID, participant string) (*entities.Session, error) {
	return resumeOrCreateSession(ctx, s.transcripts, s.config.Language, s.logger, roomID, participant)
}

func resumeOrCreateSession(ctx context.Context, transcripts repositories.TranscriptRepository, language string, logger *zap.Logger, roomID, participant string) (*entities.Session, error) {
	last, err := transcripts.GetLastByRoom(ctx, roomID, participant)
	if err != nil {
		return nil, fmt.Errorf("failed to load last session: %w", err)
	}
	if last != nil && last.CanContinue() {
		logger.Info("Resuming transcript session",
			zap.String("session_id", last.ID),
			zap.String("room", roomID))
		return last, nil
	}

	session := entities.NewSession(roomID, participant)
	session.Metadata.Language = language
	if err := transcripts.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	logger.Info("Created transcript session",
		zap.String("session_id", session.ID),
		zap.String("room", roomID))
	return session, nil
}

// Run drives the agent loop until the input closes or the context ends.
// Each final transcript becomes one conversation turn; a new utterance
// arriving while the agent is speaking interrupts the reply.
func (s *ConversationService) Run(ctx context.Context, input <-chan entities.AudioFrame, sink AudioSink, roomID, participant string) error {
	session, err := s.ResumeOrCreateSession(ctx, roomID, participant)
	if err != nil {
		return err
	}

	chat, err := s.languageModel.GenerateChat(ctx, historyFromSession(session))
	if err != nil {
		return fmt.Errorf("failed to start chat session: %w", err)
	}

	sttStream, err := s.speechToText.NewStream(ctx, repositories.AudioConfig{
		SampleRate:     s.config.InputSampleRate,
		NumChannels:    1,
		Language:       s.config.Language,
		InterimResults: true,
	})
	if err != nil {
		return fmt.Errorf("failed to open speech stream: %w", err)
	}
	defer sttStream.Close()

	// Forward room audio into the recognizer, tracking utterance duration.
	var spoken time.Duration
	var spokenMu sync.Mutex
	go func() {
		for frame := range input {
			spokenMu.Lock()
			spoken += frame.Duration()
			spokenMu.Unlock()
			if err := sttStream.Push(frame.Data); err != nil {
				s.logger.Error("Failed to push audio", zap.Error(err))
				return
			}
		}
		if _, err := sttStream.CloseSend(); err != nil {
			s.logger.Debug("Speech stream close", zap.Error(err))
		}
	}()

	// Replies run on their own goroutine so the loop keeps reading speech
	// events while the agent talks. At most one turn is in flight.
	var turnCancel context.CancelFunc
	turnDone := make(chan struct{})
	close(turnDone)

	// interrupt cancels the in-flight turn and waits for it to unwind. The
	// queued audio is dropped only when the agent was mid-reply.
	interrupt := func() {
		if turnCancel == nil {
			return
		}
		s.mu.Lock()
		speaking := s.speaking
		s.mu.Unlock()
		turnCancel()
		if speaking {
			sink.ClearBuffer()
		}
		<-turnDone
		turnCancel = nil
	}

	for {
		select {
		case <-ctx.Done():
			<-turnDone
			return ctx.Err()
		case ev, ok := <-sttStream.Events():
			if !ok {
				<-turnDone
				return nil
			}
			if ev.Type != entities.SpeechEventFinal || ev.Text == "" {
				continue
			}

			interrupt()

			spokenMu.Lock()
			utterance := spoken
			spoken = 0
			spokenMu.Unlock()

			turnCtx, cancel := context.WithCancel(ctx)
			turnCancel = cancel
			done := make(chan struct{})
			turnDone = done
			go func() {
				defer close(done)
				defer cancel()
				if err := s.respond(turnCtx, session, chat, ev, utterance, sink); err != nil && turnCtx.Err() == nil {
					s.logger.Error("Turn failed", zap.Error(err))
				}
			}()
		}
	}
}

// respond runs one turn: record the utterance, ask the model, speak the
// reply, and persist both sides.
func (s *ConversationService) respond(
	ctx context.Context,
	session *entities.Session,
	chat repositories.ChatSession,
	ev entities.SpeechEvent,
	utterance time.Duration,
	sink AudioSink,
) error {
	meta := entities.TranscriptMetadata{Provider: s.config.Provider}
	if ev.Confidence > 0 {
		confidence := ev.Confidence
		meta.Confidence = &confidence
	}
	session.AddMessage(entities.MessageRoleUser, ev.Text, utterance, meta)
	s.config.notify(session)

	reply, err := chat.SendMessage(ctx, repositories.ChatMessage{
		Kind:    repositories.MessageKindText,
		Role:    repositories.UserRole,
		Content: ev.Text,
	})
	if err != nil {
		return fmt.Errorf("chat failed: %w", err)
	}

	s.mu.Lock()
	s.speaking = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.speaking = false
		s.mu.Unlock()
	}()

	audio, err := s.textToSpeech.Synthesize(ctx, reply.Content)
	if err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	var playback time.Duration
	interrupted := false
	for frame := range audio {
		// Keep draining after an interruption so the synthesizer can finish.
		if interrupted {
			continue
		}
		if ctx.Err() != nil {
			interrupted = true
			continue
		}
		playback += frame.Frame.Duration()
		if err := sink.CaptureFrame(frame.Frame); err != nil {
			return fmt.Errorf("failed to play audio: %w", err)
		}
	}
	if ctx.Err() != nil {
		interrupted = true
	}
	if !interrupted {
		sink.Flush()
	}

	session.AddMessage(entities.MessageRoleAssistant, reply.Content, playback, entities.TranscriptMetadata{
		Provider:    s.config.Provider,
		Interrupted: interrupted,
	})
	s.config.notify(session)
	// Persist even when the turn was cancelled by a barge-in.
	if err := s.transcripts.Update(context.WithoutCancel(ctx), session); err != nil {
		return fmt.Errorf("failed to persist transcript: %w", err)
	}

	s.logger.Info("Turn completed",
		zap.String("session_id", session.ID),
		zap.Duration("utterance", utterance),
		zap.Duration("reply_audio", playback))
	return nil
}

// historyFromSession rebuilds the chat history from persisted transcripts.
func historyFromSession(session *entities.Session) []repositories.ChatMessage {
	history := make([]repositories.ChatMessage, 0, len(session.Messages))
	for _, msg := range session.Messages {
		role := repositories.UserRole
		if msg.Role == entities.MessageRoleAssistant {
			role = repositories.AssistantRole
		}
		history = append(history, repositories.ChatMessage{
			Kind:    repositories.MessageKindText,
			Role:    role,
			Content: msg.Content,
		})
	}
	return history
}
