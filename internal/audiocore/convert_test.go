package audiocore

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverterRejectsSampleRateChange(t *testing.T) {
	from := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 4, Interleaved: true}
	to := from
	to.SampleRate = 48000

	_, err := NewConverter(from, to)
	assert.Error(t, err)
}

func TestConverterRejectsDownmix(t *testing.T) {
	from := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 2, Interleaved: true}
	to := from
	to.Channels = 1

	_, err := NewConverter(from, to)
	assert.Error(t, err)
}

func TestConverterRejectsWidthChange(t *testing.T) {
	from := FrameFormat{SampleRate: 24000, Channels: 1, ElementBytes: 2, Interleaved: true}
	to := from
	to.ElementBytes = 4

	_, err := NewConverter(from, to)
	assert.Error(t, err)
}

func TestIdentityConversionPassesThrough(t *testing.T) {
	format := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 4, Interleaved: true}
	conv, err := NewConverter(format, format)
	require.NoError(t, err)

	in := NewBuffer(format, 16)
	for i := range in.Data {
		in.Data[i] = byte(i)
	}
	out, err := conv.Convert(in)
	require.NoError(t, err)
	assert.Same(t, in, out)
}

func TestConvertRejectsMismatchedBuffer(t *testing.T) {
	from := FrameFormat{SampleRate: 24000, Channels: 1, ElementBytes: 2, Interleaved: true}
	to := from
	to.Channels = 2
	conv, err := NewConverter(from, to)
	require.NoError(t, err)

	wrong := NewBuffer(to, 4)
	_, err = conv.Convert(wrong)
	assert.Error(t, err)
}

func TestByteOrderSwap(t *testing.T) {
	from := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 4, Interleaved: true, BigEndian: true}
	to := from
	to.BigEndian = false
	conv, err := NewConverter(from, to)
	require.NoError(t, err)

	// Network payloads carry big-endian float32; the swap must be bit-exact.
	in := NewBuffer(from, 2)
	want := []float32{0.5, -1.0, 0.25, math.MaxFloat32}
	for i, v := range want {
		binary.BigEndian.PutUint32(in.Data[i*4:], math.Float32bits(v))
	}

	out, err := conv.Convert(in)
	require.NoError(t, err)
	require.Equal(t, 2, out.Frames)
	for i, v := range want {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out.Data[i*4:]))
		assert.Equal(t, v, got, "sample %d", i)
	}
}

func TestMonoToStereoDuplication(t *testing.T) {
	from := FrameFormat{SampleRate: 24000, Channels: 1, ElementBytes: 2, Interleaved: true}
	to := from
	to.Channels = 2
	conv, err := NewConverter(from, to)
	require.NoError(t, err)

	in := NewBuffer(from, 3)
	samples := []int16{100, -200, 300}
	for i, s := range samples {
		binary.LittleEndian.PutUint16(in.Data[i*2:], uint16(s))
	}

	out, err := conv.Convert(in)
	require.NoError(t, err)
	require.Equal(t, 3, out.Frames)
	require.Len(t, out.Data, 12)

	for i, s := range samples {
		left := int16(binary.LittleEndian.Uint16(out.Data[i*4:]))
		right := int16(binary.LittleEndian.Uint16(out.Data[i*4+2:]))
		assert.Equal(t, s, left, "frame %d left", i)
		assert.Equal(t, s, right, "frame %d right", i)
	}
}

func TestMonoToPlanarStereoDuplicatesIntoBothPlanes(t *testing.T) {
	from := FrameFormat{SampleRate: 24000, Channels: 1, ElementBytes: 2, Interleaved: true}
	to := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 2, Interleaved: false}
	conv, err := NewConverter(from, to)
	require.NoError(t, err)

	samples := []int16{100, -200, 300}
	in := NewBuffer(from, len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(in.Data[i*2:], uint16(s))
	}

	out, err := conv.Convert(in)
	require.NoError(t, err)
	require.Equal(t, len(samples), out.Frames)

	// Each mono sample lands at the same index of both planes.
	plane := len(samples) * 2
	for i, s := range samples {
		left := int16(binary.LittleEndian.Uint16(out.Data[i*2:]))
		right := int16(binary.LittleEndian.Uint16(out.Data[plane+i*2:]))
		assert.Equal(t, s, left, "frame %d left plane", i)
		assert.Equal(t, s, right, "frame %d right plane", i)
	}
}

func TestPlanarMonoSourceLayoutFlagIsIgnored(t *testing.T) {
	// A mono stream has no layout distinction; a source flagged planar must
	// convert identically to an interleaved one.
	from := FrameFormat{SampleRate: 24000, Channels: 1, ElementBytes: 2, Interleaved: false}
	to := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 2, Interleaved: true}
	conv, err := NewConverter(from, to)
	require.NoError(t, err)

	samples := []int16{100, -200, 300}
	in := NewBuffer(from, len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(in.Data[i*2:], uint16(s))
	}

	out, err := conv.Convert(in)
	require.NoError(t, err)
	require.Equal(t, len(samples), out.Frames)

	for i, s := range samples {
		left := int16(binary.LittleEndian.Uint16(out.Data[i*4:]))
		right := int16(binary.LittleEndian.Uint16(out.Data[i*4+2:]))
		assert.Equal(t, s, left, "frame %d left", i)
		assert.Equal(t, s, right, "frame %d right", i)
	}
}

func TestInterleavedPlanarRoundTrip(t *testing.T) {
	interleaved := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 2, Interleaved: true}
	planar := interleaved
	planar.Interleaved = false

	toPlanar, err := NewConverter(interleaved, planar)
	require.NoError(t, err)
	toInterleaved, err := NewConverter(planar, interleaved)
	require.NoError(t, err)

	in := NewBuffer(interleaved, 4)
	for i := range in.Data {
		in.Data[i] = byte(i + 1)
	}

	mid, err := toPlanar.Convert(in)
	require.NoError(t, err)

	// Left plane first, then right plane.
	assert.Equal(t, in.Data[0:2], mid.Data[0:2], "first left sample")
	assert.Equal(t, in.Data[2:4], mid.Data[8:10], "first right sample")

	back, err := toInterleaved.Convert(mid)
	require.NoError(t, err)
	assert.Equal(t, in.Data, back.Data)
}

func TestBigEndianMonoToHostStereo(t *testing.T) {
	// The reduced-bandwidth network mode: 16-bit big-endian mono in,
	// host-order interleaved stereo out, one converter doing both steps.
	from := FrameFormat{SampleRate: 24000, Channels: 1, ElementBytes: 2, Interleaved: true, BigEndian: true}
	to := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 2, Interleaved: true}
	conv, err := NewConverter(from, to)
	require.NoError(t, err)

	in := NewBuffer(from, 2)
	samples := []int16{-12345, 4242}
	for i, s := range samples {
		binary.BigEndian.PutUint16(in.Data[i*2:], uint16(s))
	}

	out, err := conv.Convert(in)
	require.NoError(t, err)
	require.Equal(t, 2, out.Frames)

	for i, s := range samples {
		assert.Equal(t, s, int16(binary.LittleEndian.Uint16(out.Data[i*4:])), "frame %d left", i)
		assert.Equal(t, s, int16(binary.LittleEndian.Uint16(out.Data[i*4+2:])), "frame %d right", i)
	}
}
