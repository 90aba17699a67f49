package audiocore

import (
	"github.com/tphakala/audiobridge-go/internal/errors"
)

// conversion steps are planned once at construction so the steady-state
// Convert call is a straight run of copies with no decisions left to make.
type convertStep int

const (
	stepSwapBytes convertStep = iota
	stepMonoToStereo
	stepInterleavedToPlanar
	stepPlanarToInterleaved
)

// Converter transforms buffers from one FrameFormat to another. Supported
// conversions are byte-order swap, interleaved/planar re-layout and
// mono-to-stereo duplication, in any combination. Sample-rate conversion is
// explicitly unsupported: every pipeline fixes a single rate end-to-end and
// a mismatched rate is a configuration error caught here at setup.
type Converter struct {
	from  FrameFormat
	to    FrameFormat
	steps []convertStep
}

// NewConverter validates the conversion pair and plans the steps. An
// unsupported pair returns a configuration error; steady-state Convert calls
// never fail on a planned converter.
func NewConverter(from, to FrameFormat) (*Converter, error) {
	if err := from.Validate(); err != nil {
		return nil, err
	}
	if err := to.Validate(); err != nil {
		return nil, err
	}

	unsupported := func(reason string) error {
		return errors.Newf("unsupported conversion: %s", reason).
			Component("audiocore").
			Category(errors.CategoryConfiguration).
			Context("from", from).
			Context("to", to).
			Build()
	}

	if from.SampleRate != to.SampleRate {
		return nil, unsupported("sample rate conversion is not supported")
	}
	if from.ElementBytes != to.ElementBytes {
		return nil, unsupported("element width conversion is not supported")
	}
	if from.Channels != to.Channels && !(from.Channels == 1 && to.Channels == 2) {
		return nil, unsupported("only mono to stereo channel up-mix is supported")
	}

	c := &Converter{from: from, to: to}

	// Byte order is element-wise and layout-independent, so swap first.
	if from.BigEndian != to.BigEndian {
		c.steps = append(c.steps, stepSwapBytes)
	}
	// Mono is layout-agnostic; duplicate before any re-layout so the layout
	// step sees the final channel count.
	if from.Channels == 1 && to.Channels == 2 {
		c.steps = append(c.steps, stepMonoToStereo)
	}
	// The layout step compares against the data's layout at this point in
	// the plan, not the source flag: a duplicated mono stream is interleaved
	// stereo regardless of how the mono source described itself.
	srcInterleaved := from.Interleaved || from.Channels == 1
	if srcInterleaved != to.Interleaved && to.Channels > 1 {
		if to.Interleaved {
			c.steps = append(c.steps, stepPlanarToInterleaved)
		} else {
			c.steps = append(c.steps, stepInterleavedToPlanar)
		}
	}

	return c, nil
}

// From returns the input format the converter accepts.
func (c *Converter) From() FrameFormat { return c.from }

// To returns the output format the converter produces.
func (c *Converter) To() FrameFormat { return c.to }

// Convert transforms in to the target format, returning a new buffer unless
// the plan is empty, in which case the input is passed through unchanged.
func (c *Converter) Convert(in *AudioBuffer) (*AudioBuffer, error) {
	if in.Format != c.from {
		return nil, errors.Newf("buffer format does not match converter input").
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("buffer_format", in.Format).
			Context("converter_format", c.from).
			Build()
	}
	if len(c.steps) == 0 {
		return in, nil
	}

	data := in.Data[:in.ByteLen()]
	frames := in.Frames
	width := c.from.ElementBytes

	for _, step := range c.steps {
		switch step {
		case stepSwapBytes:
			data = swapElementBytes(data, width)
		case stepMonoToStereo:
			data = monoToStereo(data, width)
		case stepInterleavedToPlanar:
			data = interleavedToPlanar(data, c.to.Channels, width, frames)
		case stepPlanarToInterleaved:
			data = planarToInterleaved(data, c.to.Channels, width, frames)
		}
	}

	return &AudioBuffer{Data: data, Format: c.to, Frames: frames}, nil
}

// swapElementBytes reverses the byte order of every width-byte element.
func swapElementBytes(src []byte, width int) []byte {
	if width == 1 {
		return src
	}
	out := make([]byte, len(src))
	for i := 0; i+width <= len(src); i += width {
		for j := 0; j < width; j++ {
			out[i+j] = src[i+width-1-j]
		}
	}
	return out
}

// monoToStereo writes each mono sample identically into both channel slots.
func monoToStereo(src []byte, width int) []byte {
	out := make([]byte, len(src)*2)
	for i := 0; i+width <= len(src); i += width {
		copy(out[i*2:], src[i:i+width])
		copy(out[i*2+width:], src[i:i+width])
	}
	return out
}

// interleavedToPlanar re-layouts LRLRLR... into LLL...RRR... regions.
func interleavedToPlanar(src []byte, channels, width, frames int) []byte {
	out := make([]byte, len(src))
	plane := frames * width
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			s := (f*channels + ch) * width
			d := ch*plane + f*width
			copy(out[d:d+width], src[s:s+width])
		}
	}
	return out
}

// planarToInterleaved is the inverse of interleavedToPlanar.
func planarToInterleaved(src []byte, channels, width, frames int) []byte {
	out := make([]byte, len(src))
	plane := frames * width
	for f := 0; f < frames; f++ {
		for ch := 0; ch < channels; ch++ {
			s := ch*plane + f*width
			d := (f*channels + ch) * width
			copy(out[d:d+width], src[s:s+width])
		}
	}
	return out
}
