package pipeline

import (
	"github.com/tphakala/audiobridge-go/internal/audiocore"
)

// Render is the hardware pull side of the receive path. The output device
// invokes Render at its own cadence with the exact frame count it needs;
// the call must complete in bounded time without allocating, locking or
// blocking, so it only touches the ring buffer's lock-free read path and
// the session's atomic flag. Underrun is filled with silence by the ring's
// read contract; no error can be raised mid-callback.
type Render struct {
	ring    *audiocore.RingBuffer
	session *Session
}

// NewRender wires the render callback to an ingest pipeline's buffer and
// session.
func NewRender(ring *audiocore.RingBuffer, session *Session) *Render {
	return &Render{ring: ring, session: session}
}

// Render fills dst with exactly frames frames and reports how many carried
// real data. An inactive session yields pure silence, which is how a
// stopped stream sounds while the device callback is still attached.
func (r *Render) Render(dst []byte, frames int) int {
	if !r.session.IsActive() {
		for i := range dst {
			dst[i] = 0
		}
		return 0
	}
	return r.ring.ReadFrames(dst, frames)
}
