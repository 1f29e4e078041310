package stt

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming"
	"github.com/aws/aws-sdk-go-v2/service/transcribestreaming/types"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/adapters/awsauth"
	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

const (
	defaultTranscribeLanguage = "en-US"
	// Transcribe streaming caps a single audio event at 32KB.
	maxAudioEventBytes = 32 * 1024
)

// TranscribeConfig holds configuration for the AWS Transcribe adapter.
// Credentials follow the awsauth resolution order.
type TranscribeConfig struct {
	APIKey    string
	APISecret string
	Region    string
	// VocabularyName optionally selects a custom vocabulary.
	VocabularyName string
	// EnablePartialResultsStabilization trades latency for stable interims.
	EnablePartialResultsStabilization bool
}

// TranscribeSpeechToText implements SpeechToText using AWS Transcribe
// streaming.
type TranscribeSpeechToText struct {
	client *transcribestreaming.Client
	opts   TranscribeConfig
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*TranscribeSpeechToText)(nil)

// NewTranscribeSpeechToText creates the adapter, resolving AWS credentials
// up front so misconfiguration surfaces at startup.
func NewTranscribeSpeechToText(ctx context.Context, cfg TranscribeConfig, logger *zap.Logger) (*TranscribeSpeechToText, error) {
	awsCfg, err := awsauth.LoadConfig(ctx, awsauth.Options{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	return &TranscribeSpeechToText{
		client: transcribestreaming.NewFromConfig(awsCfg),
		opts:   cfg,
		logger: logger,
	}, nil
}

func (t *TranscribeSpeechToText) Capabilities() repositories.STTCapabilities {
	return repositories.STTCapabilities{Streaming: true, InterimResults: true}
}

// NewStream opens a streaming transcription session.
func (t *TranscribeSpeechToText) NewStream(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechStream, error) {
	language := config.Language
	if language == "" {
		language = defaultTranscribeLanguage
	}
	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}

	input := &transcribestreaming.StartStreamTranscriptionInput{
		LanguageCode:         types.LanguageCode(language),
		MediaEncoding:        types.MediaEncodingPcm,
		MediaSampleRateHertz: aws.Int32(int32(sampleRate)),
	}
	if t.opts.VocabularyName != "" {
		input.VocabularyName = aws.String(t.opts.VocabularyName)
	}
	if t.opts.EnablePartialResultsStabilization {
		input.EnablePartialResultsStabilization = true
		input.PartialResultsStability = types.PartialResultsStabilityHigh
	}

	out, err := t.client.StartStreamTranscription(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to start stream transcription: %w", err)
	}

	s := &transcribeStream{
		ctx:      ctx,
		stream:   out.GetStream(),
		language: language,
		events:   make(chan entities.SpeechEvent, 16),
		done:     make(chan struct{}),
		logger:   t.logger,
	}
	go s.receive()

	return s, nil
}

// TranscribeAudio converts a complete buffer using a one-shot stream.
func (t *TranscribeSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	stream, err := t.NewStream(ctx, config)
	if err != nil {
		return "", err
	}
	if err := stream.Push(audioData); err != nil {
		stream.Close()
		return "", err
	}
	return stream.CloseSend()
}

type transcribeStream struct {
	ctx      context.Context
	stream   *transcribestreaming.StartStreamTranscriptionEventStream
	language string

	events chan entities.SpeechEvent
	done   chan struct{}

	mu         sync.Mutex
	sendClosed bool
	final      string
	recvErr    error

	logger *zap.Logger
}

func (s *transcribeStream) Push(data []byte) error {
	s.mu.Lock()
	closed := s.sendClosed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("cannot push audio after CloseSend")
	}

	for len(data) > 0 {
		chunk := data
		if len(chunk) > maxAudioEventBytes {
			chunk = chunk[:maxAudioEventBytes]
		}
		data = data[len(chunk):]

		err := s.stream.Send(s.ctx, &types.AudioStreamMemberAudioEvent{
			Value: types.AudioEvent{AudioChunk: chunk},
		})
		if err != nil {
			return fmt.Errorf("failed to send audio event: %w", err)
		}
	}
	return nil
}

func (s *transcribeStream) Events() <-chan entities.SpeechEvent {
	return s.events
}

func (s *transcribeStream) CloseSend() (string, error) {
	s.mu.Lock()
	if s.sendClosed {
		s.mu.Unlock()
		return "", fmt.Errorf("stream already closed")
	}
	s.sendClosed = true
	s.mu.Unlock()

	if err := s.stream.Close(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-s.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for transcript: %w", s.ctx.Err())
	case <-s.done:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.recvErr != nil {
		return "", s.recvErr
	}
	return s.final, nil
}

func (s *transcribeStream) Close() error {
	s.mu.Lock()
	s.sendClosed = true
	s.mu.Unlock()
	return s.stream.Close()
}

func (s *transcribeStream) receive() {
	defer close(s.events)
	defer close(s.done)

	var finalText string
	for event := range s.stream.Events() {
		te, ok := event.(*types.TranscriptResultStreamMemberTranscriptEvent)
		if !ok {
			s.logger.Warn("Unexpected transcribe event type", zap.Any("event", event))
			continue
		}
		if te.Value.Transcript == nil {
			continue
		}

		for _, result := range te.Value.Transcript.Results {
			if len(result.Alternatives) == 0 || result.Alternatives[0].Transcript == nil {
				continue
			}
			text := *result.Alternatives[0].Transcript
			ev := entities.SpeechEvent{
				Type:      entities.SpeechEventInterim,
				Text:      text,
				Language:  s.language,
				Timestamp: time.Now(),
			}
			if !result.IsPartial {
				ev.Type = entities.SpeechEventFinal
				if finalText != "" {
					finalText += " "
				}
				finalText += text
			}
			s.emit(ev)
		}
	}

	if err := s.stream.Err(); err != nil {
		s.mu.Lock()
		s.recvErr = fmt.Errorf("transcribe stream failed: %w", awsauth.StatusError(err))
		s.mu.Unlock()
		return
	}

	s.mu.Lock()
	s.final = finalText
	s.mu.Unlock()
}

func (s *transcribeStream) emit(ev entities.SpeechEvent) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}
