// Package export writes the egress tap to a WAV file for debugging. The tap
// runs on the hardware thread, so the exporter buffers samples in a staging
// ring and a background goroutine drains it to disk at its own pace.
package export

import (
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
	"github.com/tphakala/audiobridge-go/internal/errors"
	"github.com/tphakala/audiobridge-go/internal/logging"
)

const (
	// stagingSeconds sizes the staging ring. The writer drains far faster
	// than realtime, so a few seconds of headroom is plenty.
	stagingSeconds = 4
	drainInterval  = 250 * time.Millisecond
)

// WavExporter captures a copy of the outgoing audio stream into a WAV file.
type WavExporter struct {
	format audiocore.FrameFormat
	path   string
	rb     *ringbuffer.RingBuffer
	log    *slog.Logger

	mu      sync.Mutex
	running bool
	dropped int

	done chan struct{}
	wg   sync.WaitGroup
}

// NewWavExporter prepares an exporter for the given capture format. Only
// 16-bit PCM is written; that is the format both codecs feed on the wire
// side.
func NewWavExporter(path string, format audiocore.FrameFormat) (*WavExporter, error) {
	if format.ElementBytes != 2 {
		return nil, errors.Newf("wav export supports 16-bit samples only, got %d bytes", format.ElementBytes).
			Component("export").
			Category(errors.CategoryConfiguration).
			Build()
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	staging := stagingSeconds * format.SampleRate * format.FrameBytes()
	return &WavExporter{
		format: format,
		path:   path,
		rb:     ringbuffer.New(staging),
		log:    logging.ForService("export").With("path", path),
	}, nil
}

// Feed accepts one tap delivery. Called on the hardware thread: it copies
// into the staging ring without blocking and drops the delivery if the
// writer has fallen behind.
func (e *WavExporter) Feed(samples []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running {
		return
	}
	if _, err := e.rb.Write(samples); err != nil {
		e.dropped++
	}
}

// Start opens the output file and launches the drain goroutine.
func (e *WavExporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return nil
	}

	if dir := filepath.Dir(e.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.New(err).
				Component("export").
				Category(errors.CategoryFileIO).
				Context("path", e.path).
				Build()
		}
	}
	f, err := os.Create(e.path)
	if err != nil {
		return errors.New(err).
			Component("export").
			Category(errors.CategoryFileIO).
			Context("path", e.path).
			Build()
	}

	enc := wav.NewEncoder(f, e.format.SampleRate, 16, e.format.Channels, 1)
	e.rb.Reset()
	e.dropped = 0
	e.done = make(chan struct{})
	e.running = true

	e.wg.Add(1)
	go e.drainLoop(f, enc, e.done)

	e.log.Info("wav export started",
		"sample_rate", e.format.SampleRate,
		"channels", e.format.Channels)
	return nil
}

// Stop flushes the remaining samples, finalizes the WAV header and closes
// the file.
func (e *WavExporter) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.done)
	e.mu.Unlock()

	e.wg.Wait()

	if e.dropped > 0 {
		e.log.Warn("export dropped tap deliveries", "count", e.dropped)
	}
	e.log.Info("wav export stopped")
}

func (e *WavExporter) drainLoop(f *os.File, enc *wav.Encoder, done chan struct{}) {
	defer e.wg.Done()
	defer func() {
		if err := enc.Close(); err != nil {
			e.log.Error("wav encoder close failed", "error", err)
		}
		if err := f.Close(); err != nil {
			e.log.Error("wav file close failed", "error", err)
		}
	}()

	ticker := time.NewTicker(drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			e.flush(enc)
			return
		case <-ticker.C:
			e.flush(enc)
		}
	}
}

// flush drains whatever whole frames are staged and appends them.
func (e *WavExporter) flush(enc *wav.Encoder) {
	e.mu.Lock()
	n := e.rb.Length()
	if n == 0 {
		e.mu.Unlock()
		return
	}
	frameBytes := e.format.FrameBytes()
	n -= n % frameBytes
	if n == 0 {
		e.mu.Unlock()
		return
	}
	data := make([]byte, n)
	read, err := e.rb.Read(data)
	e.mu.Unlock()
	if err != nil || read == 0 {
		return
	}
	data = data[:read-read%frameBytes]

	samples := make([]int, len(data)/2)
	for i := range samples {
		if e.format.BigEndian {
			samples[i] = int(int16(binary.BigEndian.Uint16(data[i*2:])))
		} else {
			samples[i] = int(int16(binary.LittleEndian.Uint16(data[i*2:])))
		}
	}

	buf := &audio.IntBuffer{
		Data: samples,
		Format: &audio.Format{
			SampleRate:  e.format.SampleRate,
			NumChannels: e.format.Channels,
		},
	}
	if err := enc.Write(buf); err != nil {
		e.log.Error("wav write failed", "error", err)
	}
}
