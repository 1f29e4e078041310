package roomio

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/livekit/media-sdk"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

// RoomInput captures microphone audio from one remote participant and
// delivers it as resampled PCM frames.
type RoomInput struct {
	expectedIdentity string
	sampleRate       int
	logger           *zap.Logger

	mu          sync.Mutex
	room        *lksdk.Room
	participant *lksdk.RemoteParticipant
	pcmTrack    *lkmedia.PCMRemoteTrack
	writer      *frameWriter
	closed      bool

	ready     chan struct{}
	readyOnce sync.Once
	frames    chan entities.AudioFrame
}

func newRoomInput(expectedIdentity string, sampleRate int, logger *zap.Logger) *RoomInput {
	return &RoomInput{
		expectedIdentity: expectedIdentity,
		sampleRate:       sampleRate,
		logger:           logger,
		ready:            make(chan struct{}),
		frames:           make(chan entities.AudioFrame, 32),
	}
}

// bind links any participant already present when the agent joined.
func (in *RoomInput) bind(room *lksdk.Room) {
	in.mu.Lock()
	in.room = room
	in.mu.Unlock()

	for _, rp := range room.GetRemoteParticipants() {
		in.linkParticipant(rp)
		in.mu.Lock()
		linked := in.participant != nil
		in.mu.Unlock()
		if linked {
			break
		}
	}
}

// Frames returns the resampled participant audio stream. The channel is
// closed when the input closes.
func (in *RoomInput) Frames() <-chan entities.AudioFrame {
	return in.frames
}

// WaitForParticipant blocks until a participant is linked.
func (in *RoomInput) WaitForParticipant(ctx context.Context) (*lksdk.RemoteParticipant, error) {
	select {
	case <-in.ready:
	case <-ctx.Done():
		return nil, fmt.Errorf("no participant joined: %w", ctx.Err())
	}
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.participant, nil
}

func (in *RoomInput) onParticipantConnected(rp *lksdk.RemoteParticipant) {
	in.mu.Lock()
	already := in.participant != nil
	in.mu.Unlock()
	if already {
		return
	}
	in.linkParticipant(rp)
}

func (in *RoomInput) linkParticipant(rp *lksdk.RemoteParticipant) {
	if in.expectedIdentity != "" && rp.Identity() != in.expectedIdentity {
		return
	}

	in.mu.Lock()
	in.participant = rp
	in.mu.Unlock()
	in.readyOnce.Do(func() { close(in.ready) })

	in.logger.Info("Linked participant", zap.String("identity", rp.Identity()))
	in.subscribeMicrophone(rp)
}

func (in *RoomInput) onTrackPublished(publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	in.mu.Lock()
	linked := in.participant
	in.mu.Unlock()
	if linked == nil || rp.Identity() != linked.Identity() {
		return
	}
	in.subscribeMicrophone(rp)
}

func (in *RoomInput) subscribeMicrophone(rp *lksdk.RemoteParticipant) {
	for _, publication := range rp.TrackPublications() {
		if publication.Source() != livekit.TrackSource_MICROPHONE {
			continue
		}
		remote, ok := publication.(*lksdk.RemoteTrackPublication)
		if !ok || remote.IsSubscribed() {
			continue
		}
		if err := remote.SetSubscribed(true); err != nil {
			in.logger.Error("Failed to subscribe to microphone track", zap.Error(err))
		}
	}
}

func (in *RoomInput) onTrackSubscribed(track *webrtc.TrackRemote, publication *lksdk.RemoteTrackPublication, rp *lksdk.RemoteParticipant) {
	in.mu.Lock()
	linked := in.participant
	in.mu.Unlock()
	if linked == nil || rp.Identity() != linked.Identity() {
		return
	}
	if publication.Source() != livekit.TrackSource_MICROPHONE {
		return
	}

	writer := &frameWriter{
		frames:      in.frames,
		sampleRate:  in.sampleRate,
		numChannels: 1,
	}
	pcmTrack, err := lkmedia.NewPCMRemoteTrack(track, writer,
		lkmedia.WithTargetSampleRate(in.sampleRate))
	if err != nil {
		in.logger.Error("Failed to open PCM remote track", zap.Error(err))
		return
	}

	in.mu.Lock()
	if in.pcmTrack != nil {
		in.pcmTrack.Close()
	}
	in.pcmTrack = pcmTrack
	in.writer = writer
	in.mu.Unlock()

	in.logger.Info("Subscribed to microphone track",
		zap.String("identity", rp.Identity()),
		zap.Int("sample_rate", in.sampleRate))
}

// Close stops capture and closes the frame channel.
func (in *RoomInput) Close() {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.closed {
		return
	}
	in.closed = true
	if in.pcmTrack != nil {
		in.pcmTrack.Close()
		in.pcmTrack = nil
	}
	if in.writer != nil {
		in.writer.Close()
	} else {
		close(in.frames)
	}
}

// frameWriter receives resampled PCM from a PCMRemoteTrack and forwards it
// as AudioFrames. Writes are non-blocking; samples are dropped rather than
// stalling the media pipeline.
type frameWriter struct {
	frames      chan entities.AudioFrame
	sampleRate  int
	numChannels int

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

func (w *frameWriter) WriteSample(sample media.PCM16Sample) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return io.EOF
	}

	frame := entities.FrameFromInt16(sample, w.sampleRate, w.numChannels)
	select {
	case w.frames <- frame:
	default:
		// Channel is full, drop the sample.
	}
	return nil
}

func (w *frameWriter) Close() error {
	w.closeOnce.Do(func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		w.closed = true
		close(w.frames)
	})
	return nil
}
