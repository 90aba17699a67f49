package codec

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
	"github.com/tphakala/audiobridge-go/internal/errors"
)

const (
	testRate      = 24000
	testFrameSize = 240 // 10 ms at 24 kHz
)

// sineFrame fills a mono int16 frame with a 440 Hz tone at roughly -6 dBFS.
func sineFrame(format audiocore.FrameFormat, frames int) *audiocore.AudioBuffer {
	buf := audiocore.NewBuffer(format, frames)
	for i := 0; i < frames; i++ {
		s := int16(16000 * math.Sin(2*math.Pi*440*float64(i)/float64(format.SampleRate)))
		for ch := 0; ch < format.Channels; ch++ {
			binary.LittleEndian.PutUint16(buf.Data[(i*format.Channels+ch)*2:], uint16(s))
		}
	}
	return buf
}

func TestParseConcealment(t *testing.T) {
	for s, want := range map[string]Concealment{
		"":        ConcealSilence,
		"silence": ConcealSilence,
		"repeat":  ConcealRepeat,
	} {
		got, err := ParseConcealment(s)
		require.NoError(t, err, "policy %q", s)
		assert.Equal(t, want, got)
	}

	_, err := ParseConcealment("extrapolate")
	assert.Error(t, err)
}

func TestPCMCodecRoundTrip(t *testing.T) {
	c := NewPCM16Mono(testRate, testFrameSize, ConcealSilence)
	assert.Equal(t, testFrameSize, c.FrameSize())

	in := audiocore.NewBuffer(c.PCMFormat(), testFrameSize)
	for i := range in.Data {
		in.Data[i] = byte(i % 7)
	}

	pkt, err := c.Encode(in)
	require.NoError(t, err)
	require.False(t, pkt.IsMissed())

	out, err := c.Decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, testFrameSize, out.Frames)
	assert.Equal(t, in.Data, out.Data)
}

func TestPCMCodecShortPayloadPadsToFrameSize(t *testing.T) {
	c := NewPCM16Mono(testRate, testFrameSize, ConcealSilence)

	pkt := CompressedPacket{Bytes: make([]byte, 120*2)} // half a frame interval
	for i := range pkt.Bytes {
		pkt.Bytes[i] = 0xAA
	}

	out, err := c.Decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, testFrameSize, out.Frames, "cadence must not shrink")
	assert.Equal(t, byte(0xAA), out.Data[0])
	assert.Zero(t, out.Data[out.ByteLen()-1], "tail padded with silence")
}

func TestPCMCodecRejectsRaggedPayload(t *testing.T) {
	c := NewPCMStereoFloat(testRate, testFrameSize, ConcealSilence)

	_, err := c.Decode(CompressedPacket{Bytes: make([]byte, 13)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDecodeFailed))
}

func TestPCMCodecMissedPacketSilence(t *testing.T) {
	c := NewPCM16Mono(testRate, testFrameSize, ConcealSilence)

	// Prime with real data, then lose a packet: policy silence must not
	// replay it.
	in := audiocore.NewBuffer(c.PCMFormat(), testFrameSize)
	for i := range in.Data {
		in.Data[i] = 0x55
	}
	pkt, err := c.Encode(in)
	require.NoError(t, err)
	_, err = c.Decode(pkt)
	require.NoError(t, err)

	out, err := c.Decode(CompressedPacket{Missed: true})
	require.NoError(t, err)
	assert.Equal(t, testFrameSize, out.Frames)
	for i, b := range out.Data {
		require.Zero(t, b, "byte %d", i)
	}
}

func TestPCMCodecMissedPacketRepeat(t *testing.T) {
	c := NewPCM16Mono(testRate, testFrameSize, ConcealRepeat)

	in := audiocore.NewBuffer(c.PCMFormat(), testFrameSize)
	for i := range in.Data {
		in.Data[i] = 0x55
	}
	pkt, err := c.Encode(in)
	require.NoError(t, err)
	decoded, err := c.Decode(pkt)
	require.NoError(t, err)

	out, err := c.Decode(CompressedPacket{})
	require.NoError(t, err)
	assert.Equal(t, decoded.Data, out.Data, "repeat policy replays last good frame")

	// Before any good frame, repeat degrades to silence.
	fresh := NewPCM16Mono(testRate, testFrameSize, ConcealRepeat)
	out, err = fresh.Decode(CompressedPacket{Missed: true})
	require.NoError(t, err)
	for i, b := range out.Data {
		require.Zero(t, b, "byte %d", i)
	}
}

func TestPCMCodecEncodeContract(t *testing.T) {
	c := NewPCM16Mono(testRate, testFrameSize, ConcealSilence)

	wrongFrames := audiocore.NewBuffer(c.PCMFormat(), testFrameSize/2)
	_, err := c.Encode(wrongFrames)
	assert.Error(t, err)

	wrongFormat := audiocore.NewBuffer(audiocore.FrameFormat{
		SampleRate: testRate, Channels: 2, ElementBytes: 2, Interleaved: true,
	}, testFrameSize)
	_, err = c.Encode(wrongFormat)
	assert.Error(t, err)
}

func TestOpusRoundTrip(t *testing.T) {
	enc, err := NewOpusCodec(testRate, 1, testFrameSize, 32000, ConcealSilence)
	require.NoError(t, err)

	in := sineFrame(enc.PCMFormat(), testFrameSize)
	pkt, err := enc.Encode(in)
	require.NoError(t, err)
	require.NotEmpty(t, pkt.Bytes)
	assert.LessOrEqual(t, len(pkt.Bytes), MaxPacketSize)

	out, err := enc.Decode(pkt)
	require.NoError(t, err)
	assert.Equal(t, testFrameSize, out.Frames)
	assert.Equal(t, enc.PCMFormat(), out.Format)

	// Lossy round trip: expect signal energy in the same order of
	// magnitude, not bit equality.
	var inEnergy, outEnergy float64
	for i := 0; i < testFrameSize; i++ {
		is := float64(int16(binary.LittleEndian.Uint16(in.Data[i*2:])))
		os := float64(int16(binary.LittleEndian.Uint16(out.Data[i*2:])))
		inEnergy += is * is
		outEnergy += os * os
	}
	assert.Greater(t, outEnergy, inEnergy/100, "decoded frame lost nearly all energy")
}

func TestOpusMissedPacketKeepsCadence(t *testing.T) {
	c, err := NewOpusCodec(testRate, 1, testFrameSize, 0, ConcealSilence)
	require.NoError(t, err)

	out, err := c.Decode(CompressedPacket{})
	require.NoError(t, err)
	assert.Equal(t, testFrameSize, out.Frames)
	for i, b := range out.Data {
		require.Zero(t, b, "byte %d", i)
	}
}

func TestOpusEncodeContract(t *testing.T) {
	c, err := NewOpusCodec(testRate, 1, testFrameSize, 0, ConcealSilence)
	require.NoError(t, err)

	short := audiocore.NewBuffer(c.PCMFormat(), testFrameSize-1)
	_, err = c.Encode(short)
	assert.Error(t, err)
}
