package stt

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText for Google Cloud. Credentials
// come from GOOGLE_APPLICATION_CREDENTIALS.
type GoogleSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{logger: logger}
}

func (g *GoogleSpeechToText) Capabilities() repositories.STTCapabilities {
	return repositories.STTCapabilities{Streaming: true, InterimResults: true}
}

// NewStream opens a streaming recognize session.
func (g *GoogleSpeechToText) NewStream(ctx context.Context, config repositories.AudioConfig) (repositories.SpeechStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to create streaming recognize: %w", err)
	}

	encoding, err := getAudioEncoding(config.Encoding)
	if err != nil {
		stream.CloseSend()
		client.Close()
		return nil, err
	}

	sampleRate := config.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	language := config.Language
	if language == "" {
		language = "en-US"
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:          encoding,
					SampleRateHertz:   int32(sampleRate),
					AudioChannelCount: int32(max(config.NumChannels, 1)),
					LanguageCode:      language,
				},
				InterimResults: config.InterimResults,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("failed to send streaming config: %w", err)
	}

	s := &googleSpeechStream{
		ctx:      ctx,
		client:   client,
		stream:   stream,
		language: language,
		events:   make(chan entities.SpeechEvent, 16),
		done:     make(chan struct{}),
		logger:   g.logger,
	}
	go s.receive()

	return s, nil
}

// TranscribeAudio converts audio data to text using a one-shot stream.
func (g *GoogleSpeechToText) TranscribeAudio(ctx context.Context, audioData []byte, config repositories.AudioConfig) (string, error) {
	stream, err := g.NewStream(ctx, config)
	if err != nil {
		return "", fmt.Errorf("failed to initialize streaming: %w", err)
	}
	if err := stream.Push(audioData); err != nil {
		stream.Close()
		return "", err
	}
	return stream.CloseSend()
}

type googleSpeechStream struct {
	ctx      context.Context
	client   *speech.Client
	stream   speechpb.Speech_StreamingRecognizeClient
	language string

	events chan entities.SpeechEvent
	done   chan struct{}

	mu            sync.Mutex
	audioReceived bool
	sendClosed    bool

	// final and recvErr are written by receive before done closes.
	final   string
	recvErr error

	logger *zap.Logger
}

func (s *googleSpeechStream) Push(data []byte) error {
	s.mu.Lock()
	if s.sendClosed {
		s.mu.Unlock()
		return fmt.Errorf("cannot push audio after CloseSend")
	}
	if len(data) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.audioReceived = true
	s.mu.Unlock()

	if err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: data,
		},
	}); err != nil {
		return fmt.Errorf("failed to send audio data: %w", err)
	}
	return nil
}

func (s *googleSpeechStream) Events() <-chan entities.SpeechEvent {
	return s.events
}

func (s *googleSpeechStream) CloseSend() (string, error) {
	defer s.client.Close()

	s.mu.Lock()
	if s.sendClosed {
		s.mu.Unlock()
		return "", fmt.Errorf("stream already closed")
	}
	s.sendClosed = true
	audioReceived := s.audioReceived
	s.mu.Unlock()

	if !audioReceived {
		s.stream.CloseSend()
		return "", fmt.Errorf("no audio data received")
	}

	if err := s.stream.CloseSend(); err != nil {
		return "", fmt.Errorf("failed to close send stream: %w", err)
	}

	select {
	case <-s.ctx.Done():
		return "", fmt.Errorf("context cancelled while waiting for result: %w", s.ctx.Err())
	case <-s.done:
	}

	if s.recvErr != nil {
		return "", s.recvErr
	}
	if s.final == "" {
		return "", fmt.Errorf("no speech detected in audio")
	}
	return s.final, nil
}

func (s *googleSpeechStream) Close() error {
	s.mu.Lock()
	s.sendClosed = true
	s.mu.Unlock()
	s.stream.CloseSend()
	return s.client.Close()
}

func (s *googleSpeechStream) receive() {
	defer close(s.events)
	defer close(s.done)

	var finalTranscription string
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF || status.Code(err) == codes.Canceled {
			s.final = finalTranscription
			return
		}
		if err != nil {
			s.recvErr = fmt.Errorf("failed to receive response: %w", err)
			return
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			best := result.Alternatives[0]
			ev := entities.SpeechEvent{
				Type:       entities.SpeechEventInterim,
				Text:       best.Transcript,
				Language:   s.language,
				Confidence: float64(best.Confidence),
				Timestamp:  time.Now(),
			}
			if result.IsFinal {
				ev.Type = entities.SpeechEventFinal
				if finalTranscription != "" {
					finalTranscription += " "
				}
				finalTranscription += best.Transcript
			}

			select {
			case s.events <- ev:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// getAudioEncoding converts string encoding to Google Speech API enum
func getAudioEncoding(encoding string) (speechpb.RecognitionConfig_AudioEncoding, error) {
	switch encoding {
	case "", "WAV", "LINEAR16", "PCM":
		return speechpb.RecognitionConfig_LINEAR16, nil
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC, nil
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW, nil
	case "AMR":
		return speechpb.RecognitionConfig_AMR, nil
	case "AMR_WB":
		return speechpb.RecognitionConfig_AMR_WB, nil
	case "OGG_OPUS":
		return speechpb.RecognitionConfig_OGG_OPUS, nil
	case "SPEEX_WITH_HEADER_BYTE":
		return speechpb.RecognitionConfig_SPEEX_WITH_HEADER_BYTE, nil
	case "WEBM_OPUS":
		return speechpb.RecognitionConfig_WEBM_OPUS, nil
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED, fmt.Errorf("unsupported encoding: %s", encoding)
	}
}
