// Package roomio bridges LiveKit rooms to the agent pipeline: audio from a
// remote participant in, synthesized audio out.
package roomio

import (
	"context"
	"fmt"
	"time"

	lksdk "github.com/livekit/server-sdk-go/v2"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/internal/auth"
)

const defaultJoinTokenTTL = 15 * time.Minute

// Options configures a room connection.
type Options struct {
	URL       string
	APIKey    string
	APISecret string
	RoomName  string
	// Identity is the agent's own participant identity.
	Identity string
	// ParticipantIdentity pins the input to a specific remote participant.
	// Empty links to the first participant that joins.
	ParticipantIdentity string
	// InputSampleRate is the PCM rate delivered by Input. Zero selects 16000.
	InputSampleRate int
	// OutputSampleRate is the PCM rate published by Output. Zero selects 24000.
	OutputSampleRate int
}

func (o *Options) applyDefaults() error {
	if o.URL == "" {
		return fmt.Errorf("room URL is required")
	}
	if o.APIKey == "" || o.APISecret == "" {
		return fmt.Errorf("API key and secret are required")
	}
	if o.RoomName == "" {
		return fmt.Errorf("room name is required")
	}
	if o.Identity == "" {
		o.Identity = "voicekit-agent"
	}
	if o.InputSampleRate == 0 {
		o.InputSampleRate = 16000
	}
	if o.OutputSampleRate == 0 {
		o.OutputSampleRate = 24000
	}
	return nil
}

// RoomIO is a connected room with its audio input and output attached.
type RoomIO struct {
	room   *lksdk.Room
	input  *RoomInput
	output *RoomAudioSink
	logger *zap.Logger
}

// Connect joins the room as the agent and wires up audio input and output.
// Auto-subscribe is off; the input subscribes only to the linked
// participant's microphone track.
func Connect(ctx context.Context, opts Options, logger *zap.Logger) (*RoomIO, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}

	token, err := auth.NewAccessToken(opts.APIKey, opts.APISecret, opts.RoomName, opts.Identity, defaultJoinTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create join token: %w", err)
	}

	input := newRoomInput(opts.ParticipantIdentity, opts.InputSampleRate, logger)

	room := lksdk.NewRoom(&lksdk.RoomCallback{
		OnParticipantConnected: input.onParticipantConnected,
		OnDisconnected: func() {
			logger.Info("Disconnected from room", zap.String("room", opts.RoomName))
		},
		ParticipantCallback: lksdk.ParticipantCallback{
			OnTrackPublished:  input.onTrackPublished,
			OnTrackSubscribed: input.onTrackSubscribed,
		},
	})

	if err := room.JoinWithToken(opts.URL, token, lksdk.WithAutoSubscribe(false)); err != nil {
		return nil, fmt.Errorf("failed to join room %s: %w", opts.RoomName, err)
	}
	input.bind(room)

	output, err := newRoomAudioSink(room, opts.OutputSampleRate, logger)
	if err != nil {
		input.Close()
		room.Disconnect()
		return nil, err
	}

	logger.Info("Joined room",
		zap.String("room", opts.RoomName),
		zap.String("identity", opts.Identity))

	return &RoomIO{
		room:   room,
		input:  input,
		output: output,
		logger: logger,
	}, nil
}

// Input returns the participant audio input.
func (r *RoomIO) Input() *RoomInput { return r.input }

// Output returns the published audio sink.
func (r *RoomIO) Output() *RoomAudioSink { return r.output }

// Room exposes the underlying LiveKit room.
func (r *RoomIO) Room() *lksdk.Room { return r.room }

// Close tears down tracks and disconnects from the room.
func (r *RoomIO) Close() {
	r.input.Close()
	r.output.Close()
	r.room.Disconnect()
}
