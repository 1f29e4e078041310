package roomio

import (
	"fmt"
	"sync"
	"time"

	"github.com/livekit/media-sdk"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"
	lkmedia "github.com/livekit/server-sdk-go/v2/pkg/media"
	"go.uber.org/zap"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

const outputTrackName = "assistant_voice"

// PlaybackFinishedFunc is notified when a segment finishes playing, with the
// audio duration pushed so far and whether playback was cut short.
type PlaybackFinishedFunc func(position time.Duration, interrupted bool)

// RoomAudioSink publishes synthesized audio to the room on a local
// microphone track.
type RoomAudioSink struct {
	track  *lkmedia.PCMLocalTrack
	logger *zap.Logger

	mu             sync.Mutex
	pushedDuration time.Duration
	pushing        bool
	onFinished     PlaybackFinishedFunc
	closed         bool
}

func newRoomAudioSink(room *lksdk.Room, sampleRate int, logger *zap.Logger) (*RoomAudioSink, error) {
	track, err := lkmedia.NewPCMLocalTrack(sampleRate, 1, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create local PCM track: %w", err)
	}

	pubOpts := &lksdk.TrackPublicationOptions{
		Name:   outputTrackName,
		Source: livekit.TrackSource_MICROPHONE,
	}
	if _, err := room.LocalParticipant.PublishTrack(track, pubOpts); err != nil {
		track.Close()
		return nil, fmt.Errorf("failed to publish track: %w", err)
	}

	return &RoomAudioSink{track: track, logger: logger}, nil
}

// OnPlaybackFinished registers the playback completion callback.
func (s *RoomAudioSink) OnPlaybackFinished(fn PlaybackFinishedFunc) {
	s.mu.Lock()
	s.onFinished = fn
	s.mu.Unlock()
}

// CaptureFrame queues an audio frame for playback in the room.
func (s *RoomAudioSink) CaptureFrame(frame entities.AudioFrame) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("audio sink is closed")
	}
	s.pushing = true
	s.pushedDuration += frame.Duration()
	s.mu.Unlock()

	return s.track.WriteSample(media.PCM16Sample(frame.Int16()))
}

// Flush marks the current segment complete and reports its duration.
func (s *RoomAudioSink) Flush() {
	s.finish(false)
}

// ClearBuffer drops queued audio immediately and reports the segment as
// interrupted.
func (s *RoomAudioSink) ClearBuffer() {
	s.track.ClearQueue()
	s.finish(true)
}

func (s *RoomAudioSink) finish(interrupted bool) {
	s.mu.Lock()
	if !s.pushing {
		s.mu.Unlock()
		return
	}
	position := s.pushedDuration
	fn := s.onFinished
	s.pushing = false
	s.pushedDuration = 0
	s.mu.Unlock()

	if fn != nil {
		fn(position, interrupted)
	}
}

// Close unpublishes and closes the local track.
func (s *RoomAudioSink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.track.Close()
}
