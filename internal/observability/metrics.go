// Package observability provides Prometheus metrics for the stream
// pipelines. Underruns and overflows are not errors in the pipeline design;
// this is where they become visible.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/audiobridge-go/internal/errors"
)

// Direction labels for the two stream paths.
const (
	DirectionIngest = "ingest"
	DirectionEgress = "egress"
)

// StreamMetrics contains Prometheus metrics for the bridge pipelines.
type StreamMetrics struct {
	registry *prometheus.Registry

	packetsTotal  *prometheus.CounterVec
	packetBytes   *prometheus.CounterVec
	framesTotal   *prometheus.CounterVec
	underrunsTotal *prometheus.CounterVec
	overflowsTotal *prometheus.CounterVec
	droppedTotal   *prometheus.CounterVec
	codecErrors    *prometheus.CounterVec
	bufferFill     *prometheus.GaugeVec
	activeStreams  *prometheus.GaugeVec
}

// NewStreamMetrics creates and registers the pipeline metrics on registry.
func NewStreamMetrics(registry *prometheus.Registry) (*StreamMetrics, error) {
	m := &StreamMetrics{registry: registry}

	m.packetsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiobridge_packets_total",
		Help: "Network packets handled, including missed intervals",
	}, []string{"direction", "kind"})

	m.packetBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiobridge_packet_bytes_total",
		Help: "Payload bytes handled per direction",
	}, []string{"direction"})

	m.framesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiobridge_frames_total",
		Help: "PCM frames moved through the ring buffers",
	}, []string{"direction"})

	m.underrunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiobridge_buffer_underruns_total",
		Help: "Reads short of the requested frame count, padded with silence",
	}, []string{"direction"})

	m.overflowsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiobridge_buffer_overflows_total",
		Help: "Writes truncated for lack of buffer space",
	}, []string{"direction"})

	m.droppedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiobridge_frames_dropped_total",
		Help: "Frames discarded by the overflow policy",
	}, []string{"direction"})

	m.codecErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "audiobridge_codec_errors_total",
		Help: "Fatal encode/decode failures (excludes missed packets)",
	}, []string{"direction", "operation"})

	m.bufferFill = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audiobridge_buffer_fill_bytes",
		Help: "Unread bytes in the ring buffer",
	}, []string{"direction"})

	m.activeStreams = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "audiobridge_active_streams",
		Help: "Streams currently running",
	}, []string{"direction"})

	collectors := []prometheus.Collector{
		m.packetsTotal, m.packetBytes, m.framesTotal,
		m.underrunsTotal, m.overflowsTotal, m.droppedTotal,
		m.codecErrors, m.bufferFill, m.activeStreams,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, errors.New(err).
				Component("observability").
				Category(errors.CategoryConfiguration).
				Build()
		}
	}

	return m, nil
}

// Registry returns the backing registry for the metrics endpoint.
func (m *StreamMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordPacket counts one handled packet and its payload bytes.
func (m *StreamMetrics) RecordPacket(direction string, missed bool, bytes int) {
	kind := "valid"
	if missed {
		kind = "missed"
	}
	m.packetsTotal.WithLabelValues(direction, kind).Inc()
	m.packetBytes.WithLabelValues(direction).Add(float64(bytes))
}

// RecordFrames counts frames moved through a ring buffer.
func (m *StreamMetrics) RecordFrames(direction string, frames int) {
	m.framesTotal.WithLabelValues(direction).Add(float64(frames))
}

// RecordUnderrun counts one silence-padded short read.
func (m *StreamMetrics) RecordUnderrun(direction string) {
	m.underrunsTotal.WithLabelValues(direction).Inc()
}

// RecordOverflow counts one truncated write and the frames it dropped.
func (m *StreamMetrics) RecordOverflow(direction string, droppedFrames int) {
	m.overflowsTotal.WithLabelValues(direction).Inc()
	m.droppedTotal.WithLabelValues(direction).Add(float64(droppedFrames))
}

// RecordCodecError counts one fatal encode or decode failure.
func (m *StreamMetrics) RecordCodecError(direction, operation string) {
	m.codecErrors.WithLabelValues(direction, operation).Inc()
}

// SetBufferFill publishes the current ring fill level.
func (m *StreamMetrics) SetBufferFill(direction string, bytes int) {
	m.bufferFill.WithLabelValues(direction).Set(float64(bytes))
}

// StreamStarted marks a pipeline as running.
func (m *StreamMetrics) StreamStarted(direction string) {
	m.activeStreams.WithLabelValues(direction).Inc()
}

// StreamStopped marks a pipeline as stopped.
func (m *StreamMetrics) StreamStopped(direction string) {
	m.activeStreams.WithLabelValues(direction).Dec()
}
