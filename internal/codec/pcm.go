package codec

import (
	"fmt"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
)

// PCMCodec is the uncompressed passthrough: packets carry raw samples in a
// fixed wire format and Decode/Encode only move bytes and enforce the frame
// contract. The wire format is big-endian by convention; downstream
// converters swap to host order.
type PCMCodec struct {
	name      string
	wire      audiocore.FrameFormat
	frameSize int
	conceal   Concealment
	lastFrame []byte
}

// NewPCMStereoFloat creates the full-bandwidth wire codec: interleaved
// big-endian 32-bit float stereo.
func NewPCMStereoFloat(sampleRate, frameSize int, conceal Concealment) *PCMCodec {
	return &PCMCodec{
		name: "pcm-f32-stereo",
		wire: audiocore.FrameFormat{
			SampleRate:   sampleRate,
			Channels:     2,
			ElementBytes: 4,
			Interleaved:  true,
			BigEndian:    true,
		},
		frameSize: frameSize,
		conceal:   conceal,
	}
}

// NewPCM16Mono creates the reduced-bandwidth wire codec: big-endian 16-bit
// mono samples.
func NewPCM16Mono(sampleRate, frameSize int, conceal Concealment) *PCMCodec {
	return &PCMCodec{
		name: "pcm-s16-mono",
		wire: audiocore.FrameFormat{
			SampleRate:   sampleRate,
			Channels:     1,
			ElementBytes: 2,
			Interleaved:  true,
			BigEndian:    true,
		},
		frameSize: frameSize,
		conceal:   conceal,
	}
}

// Name implements Codec.
func (c *PCMCodec) Name() string { return c.name }

// PCMFormat implements Codec. For the passthrough codec this is the wire
// format itself.
func (c *PCMCodec) PCMFormat() audiocore.FrameFormat { return c.wire }

// FrameSize implements Codec.
func (c *PCMCodec) FrameSize() int { return c.frameSize }

// Encode emits the buffer's samples as packet bytes, transferring ownership
// of the region.
func (c *PCMCodec) Encode(buf *audiocore.AudioBuffer) (CompressedPacket, error) {
	if buf.Format != c.wire || buf.Frames != c.frameSize {
		return CompressedPacket{}, frameMismatch(c.name, c.wire, c.frameSize, buf)
	}
	return CompressedPacket{Bytes: buf.Data[:buf.ByteLen()]}, nil
}

// Decode wraps packet bytes into an owned buffer of exactly FrameSize
// frames. Short payloads are padded with silence to keep cadence; payloads
// that do not divide into whole frames are a decode failure.
func (c *PCMCodec) Decode(pkt CompressedPacket) (*audiocore.AudioBuffer, error) {
	if pkt.IsMissed() {
		return concealFrame(c.conceal, c.wire, c.frameSize, c.lastFrame), nil
	}

	frameBytes := c.wire.FrameBytes()
	if len(pkt.Bytes)%frameBytes != 0 || len(pkt.Bytes) > c.frameSize*frameBytes {
		return nil, decodeError(c.name,
			fmt.Errorf("payload of %d bytes is not a whole number of %d-byte frames", len(pkt.Bytes), frameBytes))
	}

	out := audiocore.Silence(c.wire, c.frameSize)
	copy(out.Data, pkt.Bytes)
	c.lastFrame = append(c.lastFrame[:0], out.Data...)
	return out, nil
}
