package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// RealtimeService drives a speech-to-speech session: room audio goes
// straight to the model, spoken replies and transcripts come back. The
// model detects turns itself, so there is no separate STT/LLM/TTS hop.
type RealtimeService struct {
	model       repositories.RealtimeModel
	transcripts repositories.TranscriptRepository
	config      Config
	logger      *zap.Logger
}

// NewRealtimeService creates a new realtime service
func NewRealtimeService(
	model repositories.RealtimeModel,
	transcripts repositories.TranscriptRepository,
	config Config,
	logger *zap.Logger,
) *RealtimeService {
	config.applyDefaults()
	return &RealtimeService{
		model:       model,
		transcripts: transcripts,
		config:      config,
		logger:      logger,
	}
}

// Run forwards input audio to the model and plays generations back on the
// sink until the session ends. A final reply is requested once the input
// closes, then the session is torn down after it finishes.
func (s *RealtimeService) Run(ctx context.Context, input <-chan entities.AudioFrame, sink AudioSink, roomID, participant string) error {
	session, err := resumeOrCreateSession(ctx, s.transcripts, s.config.Language, s.logger, roomID, participant)
	if err != nil {
		return err
	}

	rt, err := s.model.Session(ctx)
	if err != nil {
		return fmt.Errorf("failed to open realtime session: %w", err)
	}
	defer rt.Close()

	var spoken time.Duration
	var spokenMu sync.Mutex
	inputDone := make(chan struct{})
	go func() {
		for frame := range input {
			spokenMu.Lock()
			spoken += frame.Duration()
			spokenMu.Unlock()
			if err := rt.PushAudio(frame); err != nil {
				s.logger.Error("Failed to push audio", zap.Error(err))
				break
			}
		}
		close(inputDone)
		if err := rt.GenerateReply(); err != nil {
			s.logger.Error("Failed to request final reply", zap.Error(err))
		}
	}()

	var userText, replyText strings.Builder
	var playback time.Duration
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-rt.Events():
			if !ok {
				return nil
			}
			switch ev.Type {
			case repositories.RealtimeEventInputTranscript:
				userText.WriteString(ev.Text)
			case repositories.RealtimeEventText, repositories.RealtimeEventOutputTranscript:
				replyText.WriteString(ev.Text)
			case repositories.RealtimeEventAudio:
				playback += ev.Frame.Duration()
				if err := sink.CaptureFrame(ev.Frame); err != nil {
					s.logger.Error("Failed to play audio", zap.Error(err))
				}
			case repositories.RealtimeEventGenerationFinished:
				if ev.Interrupted {
					sink.ClearBuffer()
				} else {
					sink.Flush()
				}

				spokenMu.Lock()
				utterance := spoken
				spoken = 0
				spokenMu.Unlock()

				s.persistTurn(ctx, session, userText.String(), replyText.String(), utterance, playback, ev.Interrupted)
				userText.Reset()
				replyText.Reset()
				playback = 0

				select {
				case <-inputDone:
					// No more input, wind the session down. The closed
					// event channel ends the loop.
					rt.Close()
				default:
				}
			}
		}
	}
}

// persistTurn records both sides of a finished generation.
func (s *RealtimeService) persistTurn(
	ctx context.Context,
	session *entities.Session,
	userText, replyText string,
	utterance, playback time.Duration,
	interrupted bool,
) {
	if userText == "" && replyText == "" {
		return
	}

	if userText != "" {
		session.AddMessage(entities.MessageRoleUser, userText, utterance, entities.TranscriptMetadata{
			Provider: s.config.Provider,
		})
		s.config.notify(session)
	}
	if replyText != "" {
		session.AddMessage(entities.MessageRoleAssistant, replyText, playback, entities.TranscriptMetadata{
			Provider:    s.config.Provider,
			Interrupted: interrupted,
		})
		s.config.notify(session)
	}

	if err := s.transcripts.Update(ctx, session); err != nil {
		s.logger.Error("Failed to persist transcript", zap.Error(err))
		return
	}
	s.logger.Info("Realtime turn completed",
		zap.String("session_id", session.ID),
		zap.Duration("reply_audio", playback),
		zap.Bool("interrupted", interrupted))
}
