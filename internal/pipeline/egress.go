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

// PacketSender forwards encoded packets to the network. Retries, sockets
// and backoff live behind this boundary, not in the pipeline.
type PacketSender interface {
	SendPacket(pkt codec.CompressedPacket) error
}

// EgressConfig describes the transmit path: what the hardware tap delivers
// and which codec chunks it for the wire.
type EgressConfig struct {
	Codec             codec.Codec
	InputFormat       audiocore.FrameFormat
	RingCapacityBytes int
}

// Egress taps hardware input at the device's cadence, converts it to the
// encoder's format and buffers it; a separate drain goroutine pulls exactly
// one encoder frame at a time, encodes it and forwards the packet. The
// drain goroutine is the one place in the bridge where blocking is
// acceptable, since it runs off the hardware-driven thread.
type Egress struct {
	codec   codec.Codec
	conv    *audiocore.Converter
	ring    *audiocore.RingBuffer
	sender  PacketSender
	metrics *observability.StreamMetrics
	log     *slog.Logger

	// signal carries "data available" from the tap to the drain goroutine.
	// Capacity one: a burst of taps coalesces into a single wakeup and the
	// tap never blocks on a full channel.
	signal chan struct{}

	mu      sync.Mutex
	state   state
	session *Session
	done    chan struct{}
	wg      sync.WaitGroup

	fatal chan error
}

// NewEgress validates the configuration and allocates the ring buffer.
func NewEgress(cfg EgressConfig, sender PacketSender, metrics *observability.StreamMetrics) (*Egress, error) {
	if cfg.Codec == nil {
		return nil, errors.Newf("egress requires a codec").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if sender == nil {
		return nil, errors.Newf("egress requires a packet sender").
			Component("pipeline").
			Category(errors.CategoryConfiguration).
			Build()
	}

	conv, err := audiocore.NewConverter(cfg.InputFormat, cfg.Codec.PCMFormat())
	if err != nil {
		return nil, err
	}

	ring, err := audiocore.NewRingBuffer(cfg.RingCapacityBytes, cfg.Codec.PCMFormat())
	if err != nil {
		return nil, err
	}

	return &Egress{
		codec:   cfg.Codec,
		conv:    conv,
		ring:    ring,
		sender:  sender,
		metrics: metrics,
		log:     logging.ForService("pipeline").With("direction", observability.DirectionEgress),
		signal:  make(chan struct{}, 1),
		session: NewSession(),
		fatal:   make(chan error, 1),
	}, nil
}

// Session exposes the stream session.
func (p *Egress) Session() *Session {
	return p.session
}

// Fatal delivers at most one terminal error per run: an encode failure on
// real data stops the stream and surfaces here.
func (p *Egress) Fatal() <-chan error {
	return p.fatal
}

// Start clears the ring and launches the drain goroutine.
func (p *Egress) Start(streamID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == stateRunning {
		return errors.Newf("egress already running").
			Component("pipeline").
			Category(errors.CategoryState).
			Context("stream_id", p.session.ID()).
			Build()
	}

	p.session.reset(streamID)
	p.ring.Clear()
	// Drop a stale wakeup from the previous run.
	select {
	case <-p.signal:
	default:
	}

	p.done = make(chan struct{})
	p.session.activate()
	p.state = stateRunning

	p.wg.Add(1)
	go p.drain(p.done)

	if p.metrics != nil {
		p.metrics.StreamStarted(observability.DirectionEgress)
	}
	p.log.Info("egress started", "stream_id", p.session.ID())
	return nil
}

// Stop detaches the tap (via the active flag), terminates the drain
// goroutine and waits for it. Callable at any time, including from the
// drain goroutine's fatal path via stopAsync.
func (p *Egress) Stop() {
	p.mu.Lock()
	if p.state != stateRunning {
		p.mu.Unlock()
		return
	}
	p.session.deactivate()
	p.state = stateStopped
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()

	if p.metrics != nil {
		p.metrics.StreamStopped(observability.DirectionEgress)
	}
	p.log.Info("egress stopped", "stream_id", p.session.ID())
}

// HandleInput accepts one tap delivery at the hardware's cadence. The
// buffer is converted to the encoder format, written into the ring (excess
// dropped on overflow) and the drain goroutine is signaled without
// blocking.
func (p *Egress) HandleInput(samples []byte) {
	if !p.session.IsActive() {
		return
	}

	in := &audiocore.AudioBuffer{
		Data:   samples,
		Format: p.conv.From(),
		Frames: p.conv.From().BytesToFrames(len(samples)),
	}
	if in.Frames == 0 {
		return
	}

	converted, err := p.conv.Convert(in)
	if err != nil {
		// Setup-validated; a mismatch here is a wiring bug in the tap.
		p.log.Error("tap conversion failed", "error", err)
		return
	}

	written := p.ring.Write(converted)
	if p.metrics != nil {
		p.metrics.RecordFrames(observability.DirectionEgress, written)
		if written < converted.Frames {
			p.metrics.RecordOverflow(observability.DirectionEgress, converted.Frames-written)
		}
		p.metrics.SetBufferFill(observability.DirectionEgress, p.ring.AvailableData())
	}

	select {
	case p.signal <- struct{}{}:
	default:
	}
}

// drain waits for tap signals and encodes full frames. If fewer than one
// encoder frame is buffered when signaled, it waits for the next signal
// rather than encoding a partial frame.
func (p *Egress) drain(done chan struct{}) {
	defer p.wg.Done()

	frameSize := p.codec.FrameSize()
	frameBytes := frameSize * p.codec.PCMFormat().FrameBytes()

	for {
		select {
		case <-done:
			return
		case <-p.signal:
		}

		for p.ring.AvailableData() >= frameBytes {
			// The drain goroutine is the ring's only reader and just
			// confirmed a full frame, so this read is exact.
			buf, _ := p.ring.Read(frameSize)

			pkt, err := p.codec.Encode(buf)
			if err != nil {
				if p.metrics != nil {
					p.metrics.RecordCodecError(observability.DirectionEgress, "encode")
				}
				p.log.Error("encode failed, stopping stream", "stream_id", p.session.ID(), "error", err)
				select {
				case p.fatal <- err:
				default:
				}
				go p.Stop()
				return
			}

			if p.metrics != nil {
				p.metrics.RecordPacket(observability.DirectionEgress, false, len(pkt.Bytes))
			}
			if err := p.sender.SendPacket(pkt); err != nil {
				// Delivery is the sender's concern; dropping here keeps
				// the encoder cadence intact.
				p.log.Warn("packet send failed", "stream_id", p.session.ID(), "error", err)
			}

			select {
			case <-done:
				return
			default:
			}
		}
	}
}
