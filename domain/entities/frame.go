package entities

import (
	"encoding/binary"
	"time"
)

// AudioFrame is a chunk of interleaved 16-bit little-endian PCM audio.
type AudioFrame struct {
	Data              []byte
	SampleRate        int
	NumChannels       int
	SamplesPerChannel int
}

// NewAudioFrame builds a frame from raw PCM bytes. The sample count is
// derived from the byte length (2 bytes per sample per channel).
func NewAudioFrame(data []byte, sampleRate, numChannels int) AudioFrame {
	samples := 0
	if numChannels > 0 {
		samples = len(data) / 2 / numChannels
	}
	return AudioFrame{
		Data:              data,
		SampleRate:        sampleRate,
		NumChannels:       numChannels,
		SamplesPerChannel: samples,
	}
}

// Duration returns the playback duration of the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.SamplesPerChannel) * time.Second / time.Duration(f.SampleRate)
}

// Int16 decodes the frame payload into int16 samples.
func (f AudioFrame) Int16() []int16 {
	samples := make([]int16, len(f.Data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(f.Data[i*2:]))
	}
	return samples
}

// FrameFromInt16 encodes int16 samples into an AudioFrame.
func FrameFromInt16(samples []int16, sampleRate, numChannels int) AudioFrame {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return NewAudioFrame(data, sampleRate, numChannels)
}
