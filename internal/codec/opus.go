package codec

import (
	"log/slog"

	"layeh.com/gopus"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
	"github.com/tphakala/audiobridge-go/internal/errors"
	"github.com/tphakala/audiobridge-go/internal/logging"
)

// OpusCodec wraps a gopus encoder/decoder pair behind the Codec contract.
// PCM on both sides is host-order interleaved int16. The codec is stateful
// (Opus carries prediction state across packets) and is owned by exactly one
// stream at a time; it is not safe for concurrent use.
type OpusCodec struct {
	enc       *gopus.Encoder
	dec       *gopus.Decoder
	format    audiocore.FrameFormat
	frameSize int
	conceal   Concealment
	lastFrame []byte
	log       *slog.Logger
}

// NewOpusCodec creates an Opus codec for the given rate and channel count.
// frameSize must be a legal Opus frame duration at the chosen rate
// (240 frames = 10 ms at 24 kHz). bitrate <= 0 keeps the library default.
func NewOpusCodec(sampleRate, channels, frameSize, bitrate int, conceal Concealment) (*OpusCodec, error) {
	enc, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, errors.New(err).
			Component("codec").
			Category(errors.CategoryConfiguration).
			Context("sample_rate", sampleRate).
			Context("channels", channels).
			Build()
	}
	if bitrate > 0 {
		enc.SetBitrate(bitrate)
	}

	dec, err := gopus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, errors.New(err).
			Component("codec").
			Category(errors.CategoryConfiguration).
			Context("sample_rate", sampleRate).
			Context("channels", channels).
			Build()
	}

	return &OpusCodec{
		enc: enc,
		dec: dec,
		format: audiocore.FrameFormat{
			SampleRate:   sampleRate,
			Channels:     channels,
			ElementBytes: 2,
			Interleaved:  true,
		},
		frameSize: frameSize,
		conceal:   conceal,
		log:       logging.ForService("codec").With("codec", "opus"),
	}, nil
}

// Name implements Codec.
func (c *OpusCodec) Name() string { return "opus" }

// PCMFormat implements Codec.
func (c *OpusCodec) PCMFormat() audiocore.FrameFormat { return c.format }

// FrameSize implements Codec.
func (c *OpusCodec) FrameSize() int { return c.frameSize }

// Encode compresses exactly one frame of PCM.
func (c *OpusCodec) Encode(buf *audiocore.AudioBuffer) (CompressedPacket, error) {
	if buf.Format != c.format || buf.Frames != c.frameSize {
		return CompressedPacket{}, frameMismatch(c.Name(), c.format, c.frameSize, buf)
	}

	pcm := bytesToInt16(buf.Data[:buf.ByteLen()])
	data, err := c.enc.Encode(pcm, c.frameSize, MaxPacketSize)
	if err != nil {
		return CompressedPacket{}, encodeError(c.Name(), err)
	}
	return CompressedPacket{Bytes: data}, nil
}

// Decode produces exactly FrameSize frames. A missed packet is concealed
// per policy instead of being skipped; skipping would desynchronize the
// ring buffer cadence from the hardware cadence.
func (c *OpusCodec) Decode(pkt CompressedPacket) (*audiocore.AudioBuffer, error) {
	if pkt.IsMissed() {
		return concealFrame(c.conceal, c.format, c.frameSize, c.lastFrame), nil
	}

	pcm, err := c.dec.Decode(pkt.Bytes, c.frameSize, false)
	if err != nil {
		return nil, decodeError(c.Name(), err)
	}

	out := audiocore.Silence(c.format, c.frameSize)
	n := copy(out.Data, int16ToBytes(pcm))
	if n < out.ByteLen() {
		// Short decode: Opus produced fewer samples than the frame
		// contract. Keep cadence, pad the tail.
		c.log.Warn("short opus decode", "bytes", n, "expected", out.ByteLen())
	}

	c.lastFrame = append(c.lastFrame[:0], out.Data...)
	return out, nil
}
