// voicekit is the agent CLI: run a worker with the HTTP surface, connect
// to a single room, or prefetch plugin files.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/adapters/llm"
	"github.com/aurelia-labs/voicekit/adapters/memory"
	adaptermongo "github.com/aurelia-labs/voicekit/adapters/mongo"
	"github.com/aurelia-labs/voicekit/adapters/realtime"
	"github.com/aurelia-labs/voicekit/adapters/stt"
	"github.com/aurelia-labs/voicekit/adapters/tts"
	"github.com/aurelia-labs/voicekit/domain/entities"
	"github.com/aurelia-labs/voicekit/domain/repositories"
	"github.com/aurelia-labs/voicekit/internal/api"
	"github.com/aurelia-labs/voicekit/plugin"
	"github.com/aurelia-labs/voicekit/usecase"
	"github.com/aurelia-labs/voicekit/worker"
)

var (
	flagURL          string
	flagAPIKey       string
	flagAPISecret    string
	flagIdentity     string
	flagDev          bool
	flagHTTPPort     string
	flagDrainTimeout time.Duration

	flagRoom                string
	flagParticipantIdentity string
)

func main() {
	// Optional; production deployments use real environment variables.
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:   "voicekit",
		Short: "Real-time voice agent for LiveKit rooms",
	}
	root.PersistentFlags().StringVar(&flagURL, "url", "", "LiveKit server URL (env: LIVEKIT_URL)")
	root.PersistentFlags().StringVar(&flagAPIKey, "api-key", "", "LiveKit API key (env: LIVEKIT_API_KEY)")
	root.PersistentFlags().StringVar(&flagAPISecret, "api-secret", "", "LiveKit API secret (env: LIVEKIT_API_SECRET)")
	root.PersistentFlags().StringVar(&flagIdentity, "identity", "", "Agent participant identity")
	root.PersistentFlags().BoolVar(&flagDev, "dev", false, "Development logging")

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Run the worker with the HTTP API, dispatching jobs on request",
		RunE:  runStart,
	}
	startCmd.Flags().StringVar(&flagHTTPPort, "http-port", "", "HTTP listen port (env: PORT, default 8080)")
	startCmd.Flags().DurationVar(&flagDrainTimeout, "drain-timeout", time.Minute, "How long to wait for running jobs on shutdown")

	connectCmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect to a specific room and serve one job",
		RunE:  runConnect,
	}
	connectCmd.Flags().StringVar(&flagRoom, "room", "", "Room to connect to (required)")
	connectCmd.Flags().StringVar(&flagParticipantIdentity, "participant-identity", "", "Participant to link to, defaults to the first to join")
	connectCmd.MarkFlagRequired("room")

	downloadCmd := &cobra.Command{
		Use:   "download-files",
		Short: "Prefetch files required by registered plugins",
		RunE:  runDownloadFiles,
	}

	root.AddCommand(startCmd, connectCmd, downloadCmd)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() (*zap.Logger, error) {
	if flagDev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(value, key string) string {
	if value != "" {
		return value
	}
	return os.Getenv(key)
}

func workerOptions() worker.Options {
	return worker.Options{
		URL:          envOr(flagURL, "LIVEKIT_URL"),
		APIKey:       envOr(flagAPIKey, "LIVEKIT_API_KEY"),
		APISecret:    envOr(flagAPISecret, "LIVEKIT_API_SECRET"),
		Identity:     flagIdentity,
		DrainTimeout: flagDrainTimeout,
	}
}

// buildProviders assembles the conversation pipeline and transcript storage
// from VOICEKIT_* environment variables. VOICEKIT_PIPELINE selects between
// the STT/LLM/TTS pipeline (default) and the realtime speech-to-speech one.
func buildProviders(ctx context.Context, logger *zap.Logger, onMessage func(string, string, entities.TranscriptMessage)) (worker.Runner, repositories.TranscriptRepository, func(), error) {
	cleanup := func() {}

	var transcripts repositories.TranscriptRepository
	switch strings.ToLower(os.Getenv("VOICEKIT_STORAGE")) {
	case "", "memory":
		transcripts = memory.NewTranscriptRepository()
	case "mongo":
		client, err := adaptermongo.NewClient(ctx, adaptermongo.Config{}, logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		transcripts = adaptermongo.NewTranscriptRepository(client.Database())
		cleanup = func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			client.Close(ctx)
		}
	default:
		return nil, nil, cleanup, fmt.Errorf("unknown storage %q", os.Getenv("VOICEKIT_STORAGE"))
	}

	if strings.ToLower(os.Getenv("VOICEKIT_PIPELINE")) == "realtime" {
		model, provider, err := buildRealtimeModel(ctx, logger)
		if err != nil {
			return nil, nil, cleanup, err
		}
		service := usecase.NewRealtimeService(model, transcripts, usecase.Config{
			Language:  os.Getenv("VOICEKIT_LANGUAGE"),
			Provider:  provider,
			OnMessage: onMessage,
		}, logger)
		return service, transcripts, cleanup, nil
	}

	speechToText, err := buildSpeechToText(ctx, logger)
	if err != nil {
		return nil, nil, cleanup, err
	}
	languageModel, llmProvider, err := buildLanguageModel(ctx, logger)
	if err != nil {
		return nil, nil, cleanup, err
	}
	textToSpeech, err := buildTextToSpeech(ctx, logger)
	if err != nil {
		return nil, nil, cleanup, err
	}

	service := usecase.NewConversationService(speechToText, languageModel, textToSpeech, transcripts, usecase.Config{
		Language:  os.Getenv("VOICEKIT_LANGUAGE"),
		Provider:  llmProvider,
		OnMessage: onMessage,
	}, logger)
	return service, transcripts, cleanup, nil
}

func buildRealtimeModel(ctx context.Context, logger *zap.Logger) (repositories.RealtimeModel, string, error) {
	provider := strings.ToLower(os.Getenv("VOICEKIT_REALTIME"))
	switch provider {
	case "", "gemini-live":
		model, err := realtime.NewGeminiLiveModel(ctx, realtime.GeminiLiveConfig{
			Instructions: os.Getenv("VOICEKIT_SYSTEM_PROMPT"),
		}, logger)
		return model, "gemini-live", err
	case "mock":
		return realtime.NewMockRealtimeModel(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unknown realtime provider %q", provider)
	}
}

func buildSpeechToText(ctx context.Context, logger *zap.Logger) (repositories.SpeechToText, error) {
	provider := strings.ToLower(os.Getenv("VOICEKIT_STT"))
	switch provider {
	case "", "google":
		return stt.NewGoogleSpeechToText(logger), nil
	case "transcribe":
		return stt.NewTranscribeSpeechToText(ctx, stt.TranscribeConfig{}, logger)
	case "mock":
		return stt.NewMockSpeechToText(logger), nil
	default:
		return nil, fmt.Errorf("unknown STT provider %q", provider)
	}
}

func buildLanguageModel(ctx context.Context, logger *zap.Logger) (repositories.LargeLanguageModel, string, error) {
	provider := strings.ToLower(os.Getenv("VOICEKIT_LLM"))
	switch provider {
	case "", "gemini":
		model, err := llm.NewGeminiLargeLanguageModel(ctx, llm.GeminiConfig{
			SystemPrompt: os.Getenv("VOICEKIT_SYSTEM_PROMPT"),
		}, logger)
		return model, "gemini", err
	case "bedrock":
		model, err := llm.NewBedrockLargeLanguageModel(ctx, llm.BedrockConfig{}, logger)
		return model, "bedrock", err
	case "mock":
		return llm.NewMockLargeLanguageModel(), "mock", nil
	default:
		return nil, "", fmt.Errorf("unknown LLM provider %q", provider)
	}
}

func buildTextToSpeech(ctx context.Context, logger *zap.Logger) (repositories.TextToSpeech, error) {
	provider := strings.ToLower(os.Getenv("VOICEKIT_TTS"))
	switch provider {
	case "", "cartesia":
		return tts.NewCartesiaTextToSpeech(tts.CartesiaConfig{}, logger)
	case "polly":
		return tts.NewPollyTextToSpeech(ctx, tts.PollyConfig{}, logger)
	case "mock":
		return tts.NewMockTextToSpeech(), nil
	default:
		return nil, fmt.Errorf("unknown TTS provider %q", provider)
	}
}

func runStart(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := api.NewFeed(logger)
	go feed.Run(ctx)

	service, transcripts, cleanup, err := buildProviders(ctx, logger, func(roomID, participant string, msg entities.TranscriptMessage) {
		feed.Publish(api.TranscriptEvent{
			RoomID:      roomID,
			Participant: participant,
			Role:        string(msg.Role),
			Content:     msg.Content,
			Timestamp:   msg.Timestamp,
			Interrupted: msg.Metadata.Interrupted,
		})
	})
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := worker.New(workerOptions(), service, logger)
	if err != nil {
		return err
	}

	server := api.NewServer(transcripts, feed, w.State, logger)
	server.OnLaunch(func(ctx context.Context, room, participantIdentity string) error {
		return w.Launch(ctx, room, participantIdentity)
	})

	port := envOr(flagHTTPPort, "PORT")
	if port == "" {
		port = "8080"
	}
	go func() {
		if err := server.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	logger.Info("Worker started", zap.String("port", port))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	drainCtx, drainCancel := context.WithTimeout(context.Background(), flagDrainTimeout+10*time.Second)
	defer drainCancel()
	if err := w.Drain(drainCtx); err != nil {
		logger.Error("Drain failed", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	return nil
}

func runConnect(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, _, cleanup, err := buildProviders(ctx, logger, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	w, err := worker.New(workerOptions(), service, logger)
	if err != nil {
		return err
	}
	if err := w.Launch(ctx, flagRoom, flagParticipantIdentity); err != nil {
		return err
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	// Run until the job ends on its own or we are told to stop.
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-quit:
			logger.Info("Shutting down")
			drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Minute)
			defer drainCancel()
			return w.Drain(drainCtx)
		case <-ticker.C:
			if w.ActiveJobs() == 0 {
				logger.Info("Job finished, exiting")
				return nil
			}
		}
	}
}

func runDownloadFiles(cmd *cobra.Command, args []string) error {
	logger, err := newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	return plugin.DownloadAll(context.Background(), logger)
}
