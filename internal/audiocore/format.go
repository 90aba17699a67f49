package audiocore

import (
	"github.com/tphakala/audiobridge-go/internal/errors"
)

// FrameFormat describes the shape of one audio buffer: sample rate, channel
// count, element width, interleaved vs planar layout and byte order. It is a
// pure value; two formats are comparable with ==.
type FrameFormat struct {
	SampleRate   int  // samples per second per channel, fixed end-to-end
	Channels     int  // 1 for mono, 2 for stereo
	ElementBytes int  // bytes per sample element (2 for int16, 4 for float32)
	Interleaved  bool // channel samples alternate per frame when true
	BigEndian    bool // network payloads arrive big-endian
}

// FrameBytes returns the number of bytes in one frame (one sample per channel).
func (f FrameFormat) FrameBytes() int {
	return f.Channels * f.ElementBytes
}

// BytesToFrames converts a byte count to whole frames, discarding any
// trailing partial frame.
func (f FrameFormat) BytesToFrames(n int) int {
	fb := f.FrameBytes()
	if fb <= 0 {
		return 0
	}
	return n / fb
}

// Validate reports whether the format describes a usable buffer shape.
func (f FrameFormat) Validate() error {
	if f.SampleRate <= 0 {
		return errors.Newf("invalid sample rate: %d", f.SampleRate).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	if f.Channels <= 0 {
		return errors.Newf("invalid channel count: %d", f.Channels).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	switch f.ElementBytes {
	case 1, 2, 4, 8:
	default:
		return errors.Newf("invalid element width: %d bytes", f.ElementBytes).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Build()
	}
	return nil
}

// AudioBuffer is a byte region plus its FrameFormat and frame count. It is
// exclusively owned by whichever pipeline stage currently holds it and is
// passed by transfer, never shared-mutated across goroutines.
type AudioBuffer struct {
	Data   []byte
	Format FrameFormat
	Frames int
}

// NewBuffer allocates a zeroed buffer holding frames frames of format.
func NewBuffer(format FrameFormat, frames int) *AudioBuffer {
	return &AudioBuffer{
		Data:   make([]byte, frames*format.FrameBytes()),
		Format: format,
		Frames: frames,
	}
}

// Silence returns a buffer of frames zeroed frames. Zero is digital silence
// for both signed integer and float PCM.
func Silence(format FrameFormat, frames int) *AudioBuffer {
	return NewBuffer(format, frames)
}

// ByteLen returns the number of valid bytes, Frames times the frame size.
func (b *AudioBuffer) ByteLen() int {
	return b.Frames * b.Format.FrameBytes()
}

// Validate checks the frame accounting invariant
// frameCount x channelCount x elementBytes <= len(Data).
func (b *AudioBuffer) Validate() error {
	if err := b.Format.Validate(); err != nil {
		return err
	}
	if b.Frames < 0 || b.ByteLen() > len(b.Data) {
		return errors.Newf("frame count %d exceeds buffer of %d bytes", b.Frames, len(b.Data)).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("frame_bytes", b.Format.FrameBytes()).
			Build()
	}
	return nil
}
