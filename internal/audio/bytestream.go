// Package audio provides helpers for slicing raw PCM byte streams into
// fixed-duration frames.
package audio

import (
	"time"

	"github.com/aurelia-labs/voicekit/domain/entities"
)

const defaultFrameDuration = 100 * time.Millisecond

// ByteStream buffers arbitrary PCM byte writes and emits AudioFrames of a
// fixed duration. Providers deliver audio in chunks of unpredictable size;
// consumers downstream want uniform frames.
type ByteStream struct {
	sampleRate  int
	numChannels int
	frameBytes  int
	buf         []byte
}

// NewByteStream creates a ByteStream emitting frames of frameDuration.
// A zero frameDuration selects the 100ms default.
func NewByteStream(sampleRate, numChannels int, frameDuration time.Duration) *ByteStream {
	if frameDuration <= 0 {
		frameDuration = defaultFrameDuration
	}
	samplesPerFrame := int(time.Duration(sampleRate) * frameDuration / time.Second)
	return &ByteStream{
		sampleRate:  sampleRate,
		numChannels: numChannels,
		frameBytes:  samplesPerFrame * numChannels * 2,
	}
}

// Write appends data and returns every complete frame now available.
func (b *ByteStream) Write(data []byte) []entities.AudioFrame {
	b.buf = append(b.buf, data...)

	var frames []entities.AudioFrame
	for len(b.buf) >= b.frameBytes {
		chunk := make([]byte, b.frameBytes)
		copy(chunk, b.buf[:b.frameBytes])
		b.buf = b.buf[b.frameBytes:]
		frames = append(frames, entities.NewAudioFrame(chunk, b.sampleRate, b.numChannels))
	}
	return frames
}

// Flush returns the remaining buffered audio as a final zero-padded frame.
// The pad keeps the frame aligned to whole samples across channels.
func (b *ByteStream) Flush() []entities.AudioFrame {
	if len(b.buf) == 0 {
		return nil
	}

	sampleBytes := b.numChannels * 2
	padded := len(b.buf)
	if rem := padded % sampleBytes; rem != 0 {
		padded += sampleBytes - rem
	}
	chunk := make([]byte, padded)
	copy(chunk, b.buf)
	b.buf = b.buf[:0]
	return []entities.AudioFrame{entities.NewAudioFrame(chunk, b.sampleRate, b.numChannels)}
}
