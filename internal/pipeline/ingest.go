package pipeline

import (
	"log/slog"
	"sync"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
	"github.com/tphakala/audiobridge-go/internal/codec"
	"github.com/tphakala/audiobridge-go/internal/errors"
	"github.com/tphakala/audiobridge-go/internal/logging"
	"github.com/tphakala/audiobridge-go/internal/observability"
)

// pipeline lifecycle states
type state int

const (
	stateIdle state = iota
	stateRunning
	stateStopped
)

// IngestConfig describes the receive path: what arrives on the wire and
// what the render side expects.
type IngestConfig struct {
	Codec             codec.Codec
	RenderFormat      audiocore.FrameFormat
	RingCapacityBytes int
}

// Ingest consumes network payloads on the delivery goroutine, decodes and
// converts them, and writes the result into the ring buffer the render
// callback drains. It never runs on the hardware thread.
type Ingest struct {
	codec   codec.Codec
	conv    *audiocore.Converter
	ring    *audiocore.RingBuffer
	metrics *observability.StreamMetrics
	log     *slog.Logger

	mu      sync.Mutex // guards state transitions, not the data path
	state   state
	session *Session
}

// NewIngest validates the configuration and allocates the ring buffer.
// Conversion support and ring allocation failures surface here, at setup,
// never at steady state.
func NewIngest(cfg IngestConfig, metrics *observability.StreamMetrics) (*Ingest, error) {
	if cfg.Codec == nil {
		return nil, errors.Newf("ingest requires a codec").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}

	conv, err := audiocore.NewConverter(cfg.Codec.PCMFormat(), cfg.RenderFormat)
	if err != nil {
		return nil, err
	}

	ring, err := audiocore.NewRingBuffer(cfg.RingCapacityBytes, cfg.RenderFormat)
	if err != nil {
		return nil, err
	}

	return &Ingest{
		codec:   cfg.Codec,
		conv:    conv,
		ring:    ring,
		metrics: metrics,
		log:     logging.ForService("pipeline").With("direction", observability.DirectionIngest),
		session: NewSession(),
	}, nil
}

// Ring exposes the buffer for wiring the render side.
func (p *Ingest) Ring() *audiocore.RingBuffer {
	return p.ring
}

// Session exposes the stream session for wiring the render side.
func (p *Ingest) Session() *Session {
	return p.session
}

// Start transitions Idle/Stopped to Running: the ring is cleared (both
// pipelines are quiescent at this point) and the stream goes live under the
// given ID. An empty ID generates one.
func (p *Ingest) Start(streamID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateRunning {
		return errors.Newf("ingest already running").
			Component("pipeline").
			Category(errors.CategoryState).
			Context("stream_id", p.session.ID()).
			Build()
	}

	p.session.reset(streamID)
	p.ring.Clear()
	p.session.activate()
	p.state = stateRunning

	if p.metrics != nil {
		p.metrics.StreamStarted(observability.DirectionIngest)
	}
	p.log.Info("ingest started", "stream_id", p.session.ID())
	return nil
}

// Stop transitions to Stopped. Payloads arriving afterwards are dropped.
// A render callback already in flight completes against a buffer the next
// Start will clear.
func (p *Ingest) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != stateRunning {
		return
	}
	p.session.deactivate()
	p.state = stateStopped

	if p.metrics != nil {
		p.metrics.StreamStopped(observability.DirectionIngest)
	}
	p.log.Info("ingest stopped", "stream_id", p.session.ID())
}

// HandlePayload processes one network delivery unit on the delivery
// goroutine. A zero-length payload is a missed packet and still advances
// the cadence through the codec's concealment. Ring overflow drops the
// excess silently (the consumer is falling behind, a monitoring concern).
// A codec failure on real data is fatal: the stream stops and the error
// surfaces to the caller once.
func (p *Ingest) HandlePayload(payload []byte) error {
	session := p.session
	if !session.IsActive() {
		return nil
	}

	pkt := codec.CompressedPacket{Bytes: payload, Missed: len(payload) == 0}
	if p.metrics != nil {
		p.metrics.RecordPacket(observability.DirectionIngest, pkt.IsMissed(), len(payload))
	}

	decoded, err := p.codec.Decode(pkt)
	if err != nil {
		if p.metrics != nil {
			p.metrics.RecordCodecError(observability.DirectionIngest, "decode")
		}
		p.log.Error("decode failed, stopping stream", "stream_id", session.ID(), "error", err)
		p.Stop()
		return err
	}

	converted, err := p.conv.Convert(decoded)
	if err != nil {
		// The converter was validated at setup; reaching this means the
		// codec broke its PCMFormat contract.
		p.log.Error("conversion failed, stopping stream", "stream_id", session.ID(), "error", err)
		p.Stop()
		return err
	}

	written := p.ring.Write(converted)
	if p.metrics != nil {
		p.metrics.RecordFrames(observability.DirectionIngest, written)
		if written < converted.Frames {
			p.metrics.RecordOverflow(observability.DirectionIngest, converted.Frames-written)
		}
		p.metrics.SetBufferFill(observability.DirectionIngest, p.ring.AvailableData())
	}
	return nil
}
