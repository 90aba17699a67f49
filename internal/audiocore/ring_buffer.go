package audiocore

import (
	"os"
	"sync/atomic"

	"github.com/tphakala/audiobridge-go/internal/errors"
)

// maxRingCapacity caps ring buffer allocations. A bridge buffering more than
// this is misconfigured, not busy.
const maxRingCapacity = 1 << 28 // 256 MiB

// ErrAllocationFailed indicates the ring buffer could not be created. It is
// fatal to the owning pipeline; there is no partial-capacity fallback.
var ErrAllocationFailed = errors.Newf("ring buffer allocation failed").
	Component("audiocore").
	Category(errors.CategoryResource).
	Priority(errors.PriorityCritical).
	Build()

// RingBuffer is a fixed-capacity circular store of audio frames with
// single-producer/single-consumer semantics.
//
// The write cursor is advanced only by the producer goroutine and the read
// cursor only by the consumer goroutine. Each cursor is a monotonically
// increasing byte counter published with atomic stores, so the opposite side
// always observes a consistent (possibly stale, never torn) value. Because
// neither side ever advances the other's cursor, no lock is needed and both
// Write and ReadFrames complete in bounded time. ReadFrames is safe to call
// from the hardware render callback: it does not allocate, lock or block.
//
// Overflow policy: Write copies only what fits and reports the shortfall.
// Underrun policy: ReadFrames zero-fills the shortfall so the consumer
// always receives exactly the requested length.
type RingBuffer struct {
	data       []byte
	capacity   uint64
	frameBytes uint64
	format     FrameFormat

	writePos atomic.Uint64 // total bytes ever written, owned by producer
	readPos  atomic.Uint64 // total bytes ever read, owned by consumer

	underruns atomic.Uint64
	overflows atomic.Uint64
}

// NewRingBuffer allocates a ring of at least capacityBytes, rounded up to
// the host's virtual-memory page size. The format fixes the frame
// granularity of all reads and writes.
func NewRingBuffer(capacityBytes int, format FrameFormat) (*RingBuffer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	if capacityBytes <= 0 || capacityBytes > maxRingCapacity {
		return nil, errors.Newf("ring buffer capacity %d out of range", capacityBytes).
			Component("audiocore").
			Category(errors.CategoryResource).
			Context("max_capacity", maxRingCapacity).
			Build()
	}

	pageSize := os.Getpagesize()
	capacity := ((capacityBytes + pageSize - 1) / pageSize) * pageSize

	return &RingBuffer{
		data:       make([]byte, capacity),
		capacity:   uint64(capacity),
		frameBytes: uint64(format.FrameBytes()),
		format:     format,
	}, nil
}

// Format returns the frame format fixed at construction.
func (rb *RingBuffer) Format() FrameFormat {
	return rb.format
}

// Capacity returns the allocated capacity in bytes after page rounding.
func (rb *RingBuffer) Capacity() int {
	return int(rb.capacity)
}

// Clear resets both cursors to zero, logically discarding the contents.
// Callable only when no concurrent read or write is in flight; it is invoked
// at stream start before the producer and consumer are active.
func (rb *RingBuffer) Clear() {
	rb.writePos.Store(0)
	rb.readPos.Store(0)
}

// AvailableData returns the number of unread bytes. Safe to call from either
// goroutine for diagnostics; flow control is implicit in Write/ReadFrames
// return values, not in this.
func (rb *RingBuffer) AvailableData() int {
	return int(rb.writePos.Load() - rb.readPos.Load())
}

// AvailableSpace returns the number of writable bytes.
func (rb *RingBuffer) AvailableSpace() int {
	return int(rb.capacity - (rb.writePos.Load() - rb.readPos.Load()))
}

// Underruns returns how many reads were short of the requested frame count.
func (rb *RingBuffer) Underruns() uint64 {
	return rb.underruns.Load()
}

// Overflows returns how many writes were truncated for lack of space.
func (rb *RingBuffer) Overflows() uint64 {
	return rb.overflows.Load()
}

// Write copies whole frames from buf into the ring, up to the available
// space, and returns the number of frames written. It never blocks and never
// grows the ring; a truncated write is the overflow policy, counted for
// diagnostics but not an error. Exactly one goroutine may call Write for the
// lifetime of the buffer.
func (rb *RingBuffer) Write(buf *AudioBuffer) int {
	w := rb.writePos.Load()
	r := rb.readPos.Load()

	space := rb.capacity - (w - r)
	fit := int(space / rb.frameBytes)
	frames := buf.Frames
	if frames > fit {
		frames = fit
		rb.overflows.Add(1)
	}
	if frames <= 0 {
		return 0
	}

	n := uint64(frames) * rb.frameBytes
	rb.copyIn(w, buf.Data[:n])
	rb.writePos.Store(w + n)
	return frames
}

// ReadFrames copies up to frames frames into dst and zero-fills the
// shortfall, so dst always holds exactly frames frames afterwards. It
// returns the number of real (non-silence) frames for diagnostics. dst must
// hold at least frames whole frames. Exactly one goroutine may call
// ReadFrames for the lifetime of the buffer.
func (rb *RingBuffer) ReadFrames(dst []byte, frames int) int {
	need := uint64(frames) * rb.frameBytes
	if uint64(len(dst)) < need {
		frames = int(uint64(len(dst)) / rb.frameBytes)
		need = uint64(frames) * rb.frameBytes
	}

	w := rb.writePos.Load()
	r := rb.readPos.Load()

	avail := w - r
	real := need
	if avail < real {
		real = (avail / rb.frameBytes) * rb.frameBytes
		rb.underruns.Add(1)
	}

	if real > 0 {
		rb.copyOut(r, dst[:real])
		rb.readPos.Store(r + real)
	}

	// Underrun policy: pad the shortfall with silence.
	for i := real; i < need; i++ {
		dst[i] = 0
	}

	return int(real / rb.frameBytes)
}

// Read is the allocating variant of ReadFrames for callers off the realtime
// path. The returned buffer always holds exactly frames frames; realFrames
// reports how many were actual data rather than silence padding.
func (rb *RingBuffer) Read(frames int) (buf *AudioBuffer, realFrames int) {
	buf = NewBuffer(rb.format, frames)
	realFrames = rb.ReadFrames(buf.Data, frames)
	return buf, realFrames
}

// copyIn writes src at cursor position pos, wrapping at the capacity
// boundary with at most two copies.
func (rb *RingBuffer) copyIn(pos uint64, src []byte) {
	idx := pos % rb.capacity
	first := copy(rb.data[idx:], src)
	if first < len(src) {
		copy(rb.data, src[first:])
	}
}

// copyOut reads len(dst) bytes starting at cursor position pos.
func (rb *RingBuffer) copyOut(pos uint64, dst []byte) {
	idx := pos % rb.capacity
	first := copy(dst, rb.data[idx:])
	if first < len(dst) {
		copy(dst[first:], rb.data)
	}
}
