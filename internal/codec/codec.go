// Package codec is the opaque boundary to the compressed-audio transform.
// The bitstream algorithm itself lives in the codec library; this package
// defines the packet contract, the missed-packet concealment policy and the
// PCM formats each codec consumes and produces.
package codec

import (
	stderrors "errors"
	"fmt"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
	"github.com/tphakala/audiobridge-go/internal/errors"
)

// MaxPacketSize bounds a single compressed packet. Opus packets top out at
// 1275 bytes; raw PCM packets are larger but still fit one datagram.
const MaxPacketSize = 4096

// Sentinel errors for the codec failure modes. Any failure outside the
// missed-packet case is fatal to the current stream: resuming with
// desynchronized codec state corrupts subsequent audio.
var (
	ErrDecodeFailed = stderrors.New("codec decode failed")
	ErrEncodeFailed = stderrors.New("codec encode failed")
)

// CompressedPacket is one network delivery unit. A zero-length packet is a
// first-class value meaning "no data arrived for this interval", not an
// error; it must still be pushed through Decode so the pipeline cadence
// stays aligned with the hardware cadence.
type CompressedPacket struct {
	Bytes  []byte
	Missed bool
}

// IsMissed reports whether the packet represents a loss interval.
func (p CompressedPacket) IsMissed() bool {
	return p.Missed || len(p.Bytes) == 0
}

// Concealment selects what Decode produces for a missed packet.
type Concealment string

const (
	// ConcealSilence fills the loss interval with zeroed samples.
	ConcealSilence Concealment = "silence"
	// ConcealRepeat replays the last successfully decoded frame.
	ConcealRepeat Concealment = "repeat"
)

// ParseConcealment validates a configuration string.
func ParseConcealment(s string) (Concealment, error) {
	switch Concealment(s) {
	case ConcealSilence, ConcealRepeat:
		return Concealment(s), nil
	case "":
		return ConcealSilence, nil
	default:
		return "", errors.Newf("unknown concealment policy %q", s).
			Component("codec").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// Codec is the encode/decode transform consumed by the pipelines.
//
// Decode must produce a full frame for every packet, including missed ones.
// Encode accepts exactly FrameSize frames in PCMFormat.
type Codec interface {
	// Name identifies the codec in logs and metrics.
	Name() string

	// PCMFormat is the format Decode produces and Encode consumes.
	PCMFormat() audiocore.FrameFormat

	// FrameSize is the fixed number of frames per packet.
	FrameSize() int

	// Encode transforms one PCM frame into a compressed packet.
	Encode(buf *audiocore.AudioBuffer) (CompressedPacket, error)

	// Decode transforms a packet into exactly FrameSize PCM frames.
	Decode(pkt CompressedPacket) (*audiocore.AudioBuffer, error)
}

// concealFrame implements the shared missed-packet policy: silence, or a
// replay of lastFrame when the policy is repeat and a good frame exists.
func concealFrame(policy Concealment, format audiocore.FrameFormat, frames int, lastFrame []byte) *audiocore.AudioBuffer {
	out := audiocore.Silence(format, frames)
	if policy == ConcealRepeat && len(lastFrame) == len(out.Data) {
		copy(out.Data, lastFrame)
	}
	return out
}

func decodeError(name string, err error) error {
	return errors.New(fmt.Errorf("%w: %s: %v", ErrDecodeFailed, name, err)).
		Component("codec").
		Category(errors.CategoryCodec).
		Priority(errors.PriorityHigh).
		Build()
}

func encodeError(name string, err error) error {
	return errors.New(fmt.Errorf("%w: %s: %v", ErrEncodeFailed, name, err)).
		Component("codec").
		Category(errors.CategoryCodec).
		Priority(errors.PriorityHigh).
		Build()
}

// frameMismatch is returned when an encode buffer does not match the codec's
// fixed frame contract. This is a programming or configuration error, never
// a steady-state condition.
func frameMismatch(name string, want audiocore.FrameFormat, wantFrames int, got *audiocore.AudioBuffer) error {
	return errors.Newf("%s: encode buffer does not match codec frame contract", name).
		Component("codec").
		Category(errors.CategoryValidation).
		Context("want_frames", wantFrames).
		Context("got_frames", got.Frames).
		Context("want_format", want).
		Context("got_format", got.Format).
		Build()
}

// int16ToBytes converts PCM samples to little-endian bytes.
func int16ToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		b[i*2] = byte(s)
		b[i*2+1] = byte(s >> 8)
	}
	return b
}

// bytesToInt16 converts little-endian bytes to PCM samples.
func bytesToInt16(b []byte) []int16 {
	pcm := make([]int16, len(b)/2)
	for i := range pcm {
		pcm[i] = int16(b[i*2]) | int16(b[i*2+1])<<8
	}
	return pcm
}
