package audiocore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameFormatAccounting(t *testing.T) {
	format := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 4, Interleaved: true}
	assert.Equal(t, 8, format.FrameBytes())
	assert.Equal(t, 300, format.BytesToFrames(2400))
	assert.Equal(t, 0, format.BytesToFrames(7), "partial frame discarded")
}

func TestFrameFormatValidate(t *testing.T) {
	valid := FrameFormat{SampleRate: 24000, Channels: 1, ElementBytes: 2}
	require.NoError(t, valid.Validate())

	cases := map[string]FrameFormat{
		"zero rate":     {SampleRate: 0, Channels: 1, ElementBytes: 2},
		"zero channels": {SampleRate: 24000, Channels: 0, ElementBytes: 2},
		"odd width":     {SampleRate: 24000, Channels: 1, ElementBytes: 3},
	}
	for name, format := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, format.Validate())
		})
	}
}

func TestAudioBufferInvariant(t *testing.T) {
	format := FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 2, Interleaved: true}

	buf := NewBuffer(format, 10)
	require.NoError(t, buf.Validate())
	assert.Equal(t, 40, buf.ByteLen())

	// Claiming more frames than the region holds must fail validation.
	buf.Frames = 11
	assert.Error(t, buf.Validate())
}

func TestSilenceIsZeroed(t *testing.T) {
	buf := Silence(FrameFormat{SampleRate: 24000, Channels: 2, ElementBytes: 4, Interleaved: true}, 16)
	for i, b := range buf.Data {
		require.Zero(t, b, "byte %d", i)
	}
}
