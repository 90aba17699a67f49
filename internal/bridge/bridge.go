// Package bridge assembles the full duplex audio bridge from configuration:
// codec, ingest and egress pipelines, hardware devices, network transport,
// level metering, optional WAV export and the monitoring API. It owns the
// run loop; the pieces it wires stay independent.
package bridge

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/audiobridge-go/internal/api"
	"github.com/tphakala/audiobridge-go/internal/audiocore"
	"github.com/tphakala/audiobridge-go/internal/codec"
	"github.com/tphakala/audiobridge-go/internal/conf"
	"github.com/tphakala/audiobridge-go/internal/device"
	"github.com/tphakala/audiobridge-go/internal/errors"
	"github.com/tphakala/audiobridge-go/internal/export"
	"github.com/tphakala/audiobridge-go/internal/levelmeter"
	"github.com/tphakala/audiobridge-go/internal/logging"
	"github.com/tphakala/audiobridge-go/internal/observability"
	"github.com/tphakala/audiobridge-go/internal/pipeline"
	"github.com/tphakala/audiobridge-go/internal/transport"
)

// deviceFormat builds a hardware frame format from config: always host
// order interleaved at the shared sample rate.
func deviceFormat(settings *conf.Settings, dev conf.DeviceFormatSettings) audiocore.FrameFormat {
	return audiocore.FrameFormat{
		SampleRate:   settings.Audio.SampleRate,
		Channels:     dev.Channels,
		ElementBytes: dev.SampleWidth,
		Interleaved:  true,
	}
}

// newCodec builds the wire codec selected in config.
func newCodec(settings *conf.Settings) (codec.Codec, error) {
	conceal, err := codec.ParseConcealment(settings.Codec.Concealment)
	if err != nil {
		return nil, err
	}

	rate := settings.Audio.SampleRate
	frameSize := settings.Audio.FrameSize
	switch settings.Codec.Type {
	case "opus":
		return codec.NewOpusCodec(rate, settings.Codec.Channels, frameSize, settings.Codec.Bitrate, conceal)
	case "pcm-stereo-float":
		return codec.NewPCMStereoFloat(rate, frameSize, conceal), nil
	case "pcm16-mono":
		return codec.NewPCM16Mono(rate, frameSize, conceal), nil
	default:
		return nil, errors.Newf("unknown codec type: %q", settings.Codec.Type).
			Component("bridge").
			Category(errors.CategoryConfiguration).
			Build()
	}
}

// ringCapacityBytes converts the configured ring depth to bytes of the
// given format.
func ringCapacityBytes(settings *conf.Settings, format audiocore.FrameFormat) int {
	frames := settings.Audio.BufferMs * format.SampleRate / 1000
	return frames * format.FrameBytes()
}

// Bridge is the assembled application.
type Bridge struct {
	settings *conf.Settings
	metrics  *observability.StreamMetrics
	log      *slog.Logger

	ingest *pipeline.Ingest
	egress *pipeline.Egress

	playback *device.Playback
	capture  *device.Capture

	receiver *transport.UDPReceiver
	sender   *transport.UDPSender

	exporter *export.WavExporter
	server   *api.Server

	meter     *levelmeter.Meter
	levelChan chan *audiocore.AudioBuffer
}

// New wires the bridge from settings. Nothing is started yet.
func New(settings *conf.Settings) (*Bridge, error) {
	log := logging.ForService("bridge")

	metrics, err := observability.NewStreamMetrics(prometheus.NewRegistry())
	if err != nil {
		return nil, err
	}

	wireCodec, err := newCodec(settings)
	if err != nil {
		return nil, err
	}

	renderFormat := deviceFormat(settings, settings.Audio.Output)
	captureFormat := deviceFormat(settings, settings.Audio.Input)

	b := &Bridge{
		settings: settings,
		metrics:  metrics,
		log:      log,
		meter:    levelmeter.NewMeter(),
		// Level windows queue here for the metering goroutine; a full
		// channel drops the window, the meter is advisory.
		levelChan: make(chan *audiocore.AudioBuffer, 8),
	}

	b.ingest, err = pipeline.NewIngest(pipeline.IngestConfig{
		Codec:             wireCodec,
		RenderFormat:      renderFormat,
		RingCapacityBytes: ringCapacityBytes(settings, renderFormat),
	}, metrics)
	if err != nil {
		return nil, err
	}

	b.receiver, err = transport.NewUDPReceiver(settings.Network.Listen)
	if err != nil {
		return nil, err
	}

	b.playback, err = device.NewPlayback(
		pipeline.NewRender(b.ingest.Ring(), b.ingest.Session()), renderFormat)
	if err != nil {
		return nil, err
	}

	if settings.Network.Peer != "" {
		b.sender, err = transport.NewUDPSender(settings.Network.Peer)
		if err != nil {
			return nil, err
		}

		b.egress, err = pipeline.NewEgress(pipeline.EgressConfig{
			Codec:             wireCodec,
			InputFormat:       captureFormat,
			RingCapacityBytes: ringCapacityBytes(settings, wireCodec.PCMFormat()),
		}, b.sender, metrics)
		if err != nil {
			return nil, err
		}

		if settings.Export.Enabled {
			b.exporter, err = export.NewWavExporter(settings.Export.Path, captureFormat)
			if err != nil {
				return nil, err
			}
		}

		b.capture, err = device.NewCapture(b.egress, captureFormat, b.onCaptureTap(captureFormat))
		if err != nil {
			return nil, err
		}
	}

	if settings.WebServer.Enabled {
		b.server = api.NewServer(settings.WebServer.Listen, metrics.Registry())
	}
	return b, nil
}

// onCaptureTap builds the hardware-thread tap observer: it hands a copy of
// the window to the metering goroutine without blocking and feeds the
// exporter.
func (b *Bridge) onCaptureTap(format audiocore.FrameFormat) func(samples []byte) {
	return func(samples []byte) {
		if b.exporter != nil {
			b.exporter.Feed(samples)
		}

		data := make([]byte, len(samples))
		copy(data, samples)
		buf := &audiocore.AudioBuffer{
			Data:   data,
			Format: format,
			Frames: format.BytesToFrames(len(samples)),
		}
		select {
		case b.levelChan <- buf:
		default:
		}
	}
}

// meterLoop aggregates tap windows and publishes a level update per
// configured interval.
func (b *Bridge) meterLoop(ctx context.Context) {
	interval := time.Duration(b.settings.Audio.LevelIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var window *audiocore.AudioBuffer
	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-b.levelChan:
			window = buf
		case <-ticker.C:
			if window == nil || b.server == nil {
				continue
			}
			streamID := ""
			if b.egress != nil {
				streamID = b.egress.Session().ID()
			}
			sample, ramp := b.meter.Ramp(window)
			b.server.Publish(streamID, sample, ramp[:])
			window = nil
		}
	}
}

// statsLoop publishes ring counters the realtime paths cannot touch
// themselves: render-side underruns accumulate in the ring's atomic
// counter and are drained into Prometheus here.
func (b *Bridge) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var seenUnderruns uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ring := b.ingest.Ring()
			for u := ring.Underruns(); seenUnderruns < u; seenUnderruns++ {
				b.metrics.RecordUnderrun(observability.DirectionIngest)
			}
			b.metrics.SetBufferFill(observability.DirectionIngest, ring.AvailableData())
		}
	}
}

// Run starts every component and blocks until a signal arrives or a fatal
// pipeline error surfaces. Shutdown is orderly: devices stop first so no
// callback touches a stopped pipeline.
func (b *Bridge) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := b.ingest.Start(""); err != nil {
		return err
	}
	if err := b.playback.Start(); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- b.receiver.Serve(ctx, b.ingest.HandlePayload)
	}()

	var egressFatal <-chan error
	if b.egress != nil {
		if err := b.egress.Start(""); err != nil {
			return err
		}
		egressFatal = b.egress.Fatal()
		if b.exporter != nil {
			if err := b.exporter.Start(); err != nil {
				return err
			}
		}
		if err := b.capture.Start(); err != nil {
			return err
		}
	}

	apiErr := make(chan error, 1)
	if b.server != nil {
		go func() {
			apiErr <- b.server.Serve()
		}()
		go b.meterLoop(ctx)
	}
	go b.statsLoop(ctx)

	b.log.Info("bridge running",
		"listen", b.settings.Network.Listen,
		"peer", b.settings.Network.Peer,
		"codec", b.settings.Codec.Type)

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = err
		}
	case err := <-egressFatal:
		runErr = err
	case err := <-apiErr:
		runErr = err
	}

	cancel()
	b.shutdown()
	return runErr
}

func (b *Bridge) shutdown() {
	b.log.Info("bridge shutting down")

	// Hardware first: after Close no callback reaches the pipelines.
	if b.capture != nil {
		b.capture.Close()
	}
	b.playback.Close()

	if b.egress != nil {
		b.egress.Stop()
	}
	b.ingest.Stop()

	if b.exporter != nil {
		b.exporter.Stop()
	}
	if b.sender != nil {
		if err := b.sender.Close(); err != nil {
			b.log.Debug("sender close", "error", err)
		}
	}

	if b.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.server.Shutdown(ctx); err != nil {
			b.log.Warn("api shutdown", "error", err)
		}
	}
}
