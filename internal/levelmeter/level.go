// Package levelmeter computes UI-facing signal levels from PCM windows: an
// RMS/peak pair in dB plus a smoothed ramp between consecutive readings for
// meter animation. It shares buffers with the realtime pipeline but carries
// no realtime constraint of its own.
package levelmeter

import (
	"encoding/binary"
	"math"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
)

// FloorDB clamps both RMS and peak so an all-zero window yields a finite
// floor instead of -Inf.
const FloorDB = -45.0

// Steps is the length of the interpolation ramp between two readings.
const Steps = 11

// LevelSample is one meter reading.
type LevelSample struct {
	RMS  float64 `json:"rms"`  // dB, floor-clamped
	Peak float64 `json:"peak"` // dB, floor-clamped
}

// Meter computes level samples from PCM windows and remembers the previous
// RMS reading so Ramp can produce the animation sequence. Not safe for
// concurrent use; each stream owns one meter.
type Meter struct {
	prevRMS float64
}

// NewMeter returns a meter whose first ramp starts from the floor.
func NewMeter() *Meter {
	return &Meter{prevRMS: FloorDB}
}

// Measure computes the RMS and peak level of the window in dB. Supports the
// pipeline PCM widths: int16 and float32, any channel count (channels are
// pooled, which is what a single meter bar wants).
func (m *Meter) Measure(buf *audiocore.AudioBuffer) LevelSample {
	sumSq, maxSq, n := accumulate(buf)
	if n == 0 {
		return LevelSample{RMS: FloorDB, Peak: FloorDB}
	}

	return LevelSample{
		RMS:  clampDB(10 * math.Log10(sumSq/float64(n))),
		Peak: clampDB(10 * math.Log10(maxSq)),
	}
}

// Ramp measures the window and returns the 11-step interpolation from the
// previous RMS reading to the current one, updating the remembered value.
func (m *Meter) Ramp(buf *audiocore.AudioBuffer) (LevelSample, [Steps]float64) {
	sample := m.Measure(buf)
	ramp := Interpolate(sample.RMS, m.prevRMS)
	m.prevRMS = sample.RMS
	return sample, ramp
}

// Interpolate produces the ordered 11-step ramp between two level readings:
// index 10 is current, index 5 the midpoint of previous and current, and the
// remaining slots recursively bisect their neighbors. The result moves
// monotonically from previous toward current.
func Interpolate(current, previous float64) [Steps]float64 {
	var vals [Steps]float64
	vals[Steps-1] = current

	// Recursive binary midpoint cascade over the open range. loIdx -1
	// stands for the previous value, which is not part of the output.
	var bisect func(loIdx int, loVal float64, hiIdx int, hiVal float64)
	bisect = func(loIdx int, loVal float64, hiIdx int, hiVal float64) {
		if hiIdx-loIdx < 2 {
			return
		}
		mid := (loIdx + hiIdx + 1) / 2
		vals[mid] = (loVal + hiVal) / 2
		bisect(loIdx, loVal, mid, vals[mid])
		bisect(mid, vals[mid], hiIdx, hiVal)
	}
	bisect(-1, previous, Steps-1, current)

	return vals
}

// accumulate sums squared normalized samples and tracks the maximum square.
func accumulate(buf *audiocore.AudioBuffer) (sumSq, maxSq float64, n int) {
	data := buf.Data[:buf.ByteLen()]

	switch buf.Format.ElementBytes {
	case 2:
		for i := 0; i+2 <= len(data); i += 2 {
			var raw uint16
			if buf.Format.BigEndian {
				raw = binary.BigEndian.Uint16(data[i:])
			} else {
				raw = binary.LittleEndian.Uint16(data[i:])
			}
			s := float64(int16(raw)) / 32768.0
			sq := s * s
			sumSq += sq
			if sq > maxSq {
				maxSq = sq
			}
			n++
		}
	case 4:
		for i := 0; i+4 <= len(data); i += 4 {
			var raw uint32
			if buf.Format.BigEndian {
				raw = binary.BigEndian.Uint32(data[i:])
			} else {
				raw = binary.LittleEndian.Uint32(data[i:])
			}
			s := float64(math.Float32frombits(raw))
			sq := s * s
			sumSq += sq
			if sq > maxSq {
				maxSq = sq
			}
			n++
		}
	}
	return sumSq, maxSq, n
}

func clampDB(db float64) float64 {
	if math.IsNaN(db) || db < FloorDB {
		return FloorDB
	}
	return db
}
