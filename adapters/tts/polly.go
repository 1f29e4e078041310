package tts

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/adapters/awsauth"
	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
	"github.com/aurelia-labs/voicekit/internal/audio"
)

const (
	defaultPollyVoice      = "Joanna"
	defaultPollySampleRate = 16000
)

// PollyConfig holds configuration for the AWS Polly adapter.
type PollyConfig struct {
	APIKey    string
	APISecret string
	Region    string

	Voice      string
	Language   string
	SampleRate int
	// UseStandardEngine falls back from the neural engine.
	UseStandardEngine bool
}

// PollyTextToSpeech synthesizes complete texts with AWS Polly. Polly has no
// incremental text input, so only the non-streaming interface is implemented.
type PollyTextToSpeech struct {
	client *polly.Client
	opts   PollyConfig
	logger *zap.Logger
}

var _ repositories.TextToSpeech = (*PollyTextToSpeech)(nil)

func NewPollyTextToSpeech(ctx context.Context, cfg PollyConfig, logger *zap.Logger) (*PollyTextToSpeech, error) {
	awsCfg, err := awsauth.LoadConfig(ctx, awsauth.Options{
		APIKey:    cfg.APIKey,
		APISecret: cfg.APISecret,
		Region:    cfg.Region,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Voice == "" {
		cfg.Voice = defaultPollyVoice
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = defaultPollySampleRate
	}

	return &PollyTextToSpeech{
		client: polly.NewFromConfig(awsCfg),
		opts:   cfg,
		logger: logger,
	}, nil
}

func (p *PollyTextToSpeech) Capabilities() repositories.TTSCapabilities {
	return repositories.TTSCapabilities{
		Streaming:   false,
		SampleRate:  p.opts.SampleRate,
		NumChannels: 1,
	}
}

// Synthesize requests PCM audio and streams it out as fixed-duration frames.
func (p *PollyTextToSpeech) Synthesize(ctx context.Context, text string) (<-chan entities.SynthesizedAudio, error) {
	engine := types.EngineNeural
	if p.opts.UseStandardEngine {
		engine = types.EngineStandard
	}

	input := &polly.SynthesizeSpeechInput{
		OutputFormat: types.OutputFormatPcm,
		SampleRate:   aws.String(strconv.Itoa(p.opts.SampleRate)),
		Text:         aws.String(text),
		TextType:     types.TextTypeText,
		VoiceId:      types.VoiceId(p.opts.Voice),
		Engine:       engine,
	}
	if p.opts.Language != "" {
		input.LanguageCode = types.LanguageCode(p.opts.Language)
	}

	out, err := p.client.SynthesizeSpeech(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to synthesize speech: %w", awsauth.StatusError(err))
	}

	requestID := uuid.NewString()
	events := make(chan entities.SynthesizedAudio, 16)

	go func() {
		defer close(events)
		defer out.AudioStream.Close()

		bstream := audio.NewByteStream(p.opts.SampleRate, 1, 0)
		buf := make([]byte, 8192)
		for {
			n, readErr := out.AudioStream.Read(buf)
			if n > 0 {
				for _, frame := range bstream.Write(buf[:n]) {
					select {
					case events <- entities.SynthesizedAudio{RequestID: requestID, Frame: frame}:
					case <-ctx.Done():
						return
					}
				}
			}
			if readErr == io.EOF {
				break
			}
			if readErr != nil {
				p.logger.Error("Polly audio stream read failed", zap.Error(readErr))
				return
			}
		}
		for _, frame := range bstream.Flush() {
			select {
			case events <- entities.SynthesizedAudio{RequestID: requestID, Frame: frame, IsFinal: true}:
			case <-ctx.Done():
			}
		}
	}()

	return events, nil
}
