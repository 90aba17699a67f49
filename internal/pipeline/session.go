// Package pipeline implements the three stream paths of the bridge: ingest
// (network to ring buffer), render (ring buffer to hardware pull) and egress
// (hardware tap to encoder to network sender). Each pipeline owns its ring
// buffer and stream session; the ring is the only state shared between its
// producer and consumer contexts.
package pipeline

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Session tracks one stream's identity and liveness. The pointer is stable
// for the pipeline's lifetime so the realtime callback can hold it across
// restarts; each Start assigns a new stream ID. The active flag is written
// by the control goroutine and read by the realtime callback, a single
// atomic with no lock: the callback either sees the stream as active or
// returns silence, never blocks.
type Session struct {
	mu     sync.Mutex // guards id, control-plane only
	id     string
	active atomic.Bool
}

// NewSession creates an inactive session with a fresh stream ID.
func NewSession() *Session {
	return &Session{id: uuid.NewString()}
}

// ID returns the stream identifier.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// reset assigns the stream identity for a new run. An empty ID generates
// one. Called with the stream inactive.
func (s *Session) reset(id string) {
	if id == "" {
		id = uuid.NewString()
	}
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

// IsActive reports stream liveness; safe from any goroutine.
func (s *Session) IsActive() bool {
	return s.active.Load()
}

func (s *Session) activate()   { s.active.Store(true) }
func (s *Session) deactivate() { s.active.Store(false) }
