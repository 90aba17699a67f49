// Package device owns the audio hardware boundary. A Playback device pulls
// render frames through the pipeline's realtime render path; a Capture
// device pushes tap deliveries into the egress pipeline. Both run their data
// callbacks on miniaudio's hardware thread, so the callbacks stay free of
// locks, allocation and logging.
package device

import (
	"log/slog"
	"runtime"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiobridge-go/internal/audiocore"
	"github.com/tphakala/audiobridge-go/internal/errors"
	"github.com/tphakala/audiobridge-go/internal/logging"
	"github.com/tphakala/audiobridge-go/internal/pipeline"
)

// restartDelay spaces out device restart attempts after an unexpected stop.
const restartDelay = 100 * time.Millisecond

// preferredBackend picks the native backend per OS, nil lets miniaudio
// decide.
func preferredBackend() []malgo.Backend {
	switch runtime.GOOS {
	case "linux":
		return []malgo.Backend{malgo.BackendAlsa}
	case "windows":
		return []malgo.Backend{malgo.BackendWasapi}
	case "darwin":
		return []malgo.Backend{malgo.BackendCoreaudio}
	default:
		return nil
	}
}

// sampleFormat maps a frame format to the miniaudio sample format. Only
// host-order interleaved s16 and f32 map onto hardware devices.
func sampleFormat(f audiocore.FrameFormat) (malgo.FormatType, error) {
	if !f.Interleaved || f.BigEndian {
		return malgo.FormatUnknown, errors.Newf("device requires host-order interleaved samples").
			Component("device").
			Category(errors.CategoryAudioDevice).
			Build()
	}
	switch f.ElementBytes {
	case 2:
		return malgo.FormatS16, nil
	case 4:
		return malgo.FormatF32, nil
	default:
		return malgo.FormatUnknown, errors.Newf("unsupported device sample width: %d bytes", f.ElementBytes).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Build()
	}
}

func newContext(log *slog.Logger) (*malgo.AllocatedContext, error) {
	ctx, err := malgo.InitContext(preferredBackend(), malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", "message", message)
	})
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init-context").
			Build()
	}
	return ctx, nil
}

// Playback drives the output device. Every period the hardware thread calls
// into the pipeline's render path, which fills the buffer from the ingest
// ring or with silence.
type Playback struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	render *pipeline.Render
	log    *slog.Logger
	quit   chan struct{}
}

// NewPlayback initializes the default output device for the given format.
func NewPlayback(render *pipeline.Render, format audiocore.FrameFormat) (*Playback, error) {
	log := logging.ForService("device").With("role", "playback")

	mf, err := sampleFormat(format)
	if err != nil {
		return nil, err
	}

	ctx, err := newContext(log)
	if err != nil {
		return nil, err
	}

	p := &Playback{
		ctx:    ctx,
		render: render,
		log:    log,
		quit:   make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = mf
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onRender := func(pOutput, _ []byte, frameCount uint32) {
		p.render.Render(pOutput, int(frameCount))
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRender,
		Stop: p.onStop,
	})
	if err != nil {
		uninit(ctx, log)
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init-playback").
			Build()
	}
	p.device = device
	return p, nil
}

// Start begins playback.
func (p *Playback) Start() error {
	if err := p.device.Start(); err != nil {
		return errors.New(err).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Context("operation", "start-playback").
			Build()
	}
	p.log.Info("playback device started")
	return nil
}

// onStop restarts the device after an unexpected stop, unless Close is in
// progress.
func (p *Playback) onStop() {
	go func() {
		select {
		case <-p.quit:
			return
		case <-time.After(restartDelay):
			if err := p.device.Start(); err != nil {
				p.log.Error("playback device restart failed", "error", err)
			} else {
				p.log.Info("playback device restarted")
			}
		}
	}()
}

// Close stops the device and releases the context.
func (p *Playback) Close() {
	close(p.quit)
	if err := p.device.Stop(); err != nil {
		p.log.Debug("playback stop", "error", err)
	}
	p.device.Uninit()
	uninit(p.ctx, p.log)
}

// Capture drives the input device. Every period the hardware thread hands
// the captured samples to the egress pipeline and, optionally, to a tap
// observer such as a level meter. The observer runs on the hardware thread
// and must behave accordingly.
type Capture struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
	egress *pipeline.Egress
	onTap  func(samples []byte)
	log    *slog.Logger
	quit   chan struct{}
}

// NewCapture initializes the default input device for the given format.
// onTap may be nil.
func NewCapture(egress *pipeline.Egress, format audiocore.FrameFormat, onTap func(samples []byte)) (*Capture, error) {
	log := logging.ForService("device").With("role", "capture")

	mf, err := sampleFormat(format)
	if err != nil {
		return nil, err
	}

	ctx, err := newContext(log)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		ctx:    ctx,
		egress: egress,
		onTap:  onTap,
		log:    log,
		quit:   make(chan struct{}),
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = mf
	deviceConfig.Capture.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	onReceiveFrames := func(_, pSamples []byte, frameCount uint32) {
		c.egress.HandleInput(pSamples)
		if c.onTap != nil {
			c.onTap(pSamples)
		}
	}

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onReceiveFrames,
		Stop: c.onStop,
	})
	if err != nil {
		uninit(ctx, log)
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init-capture").
			Build()
	}
	c.device = device
	return c, nil
}

// Start begins capturing.
func (c *Capture) Start() error {
	if err := c.device.Start(); err != nil {
		return errors.New(err).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Context("operation", "start-capture").
			Build()
	}
	c.log.Info("capture device started")
	return nil
}

func (c *Capture) onStop() {
	go func() {
		select {
		case <-c.quit:
			return
		case <-time.After(restartDelay):
			if err := c.device.Start(); err != nil {
				c.log.Error("capture device restart failed", "error", err)
			} else {
				c.log.Info("capture device restarted")
			}
		}
	}()
}

// Close stops the device and releases the context.
func (c *Capture) Close() {
	close(c.quit)
	if err := c.device.Stop(); err != nil {
		c.log.Debug("capture stop", "error", err)
	}
	c.device.Uninit()
	uninit(c.ctx, c.log)
}

func uninit(ctx *malgo.AllocatedContext, log *slog.Logger) {
	if err := ctx.Uninit(); err != nil {
		log.Debug("context uninit", "error", err)
	}
	ctx.Free()
}

// DeviceInfo describes one hardware endpoint for diagnostics and the API.
type DeviceInfo struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	ID      string `json:"id"`
	Default bool   `json:"default"`
}

// ListPlaybackDevices enumerates output endpoints.
func ListPlaybackDevices() ([]DeviceInfo, error) {
	return listDevices(malgo.Playback)
}

// ListCaptureDevices enumerates input endpoints.
func ListCaptureDevices() ([]DeviceInfo, error) {
	return listDevices(malgo.Capture)
}

func listDevices(kind malgo.DeviceType) ([]DeviceInfo, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Context("operation", "init-context").
			Build()
	}
	defer func() {
		_ = ctx.Uninit()
		ctx.Free()
	}()

	infos, err := ctx.Devices(kind)
	if err != nil {
		return nil, errors.New(err).
			Component("device").
			Category(errors.CategoryAudioDevice).
			Context("operation", "enumerate").
			Build()
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for i, info := range infos {
		devices = append(devices, DeviceInfo{
			Index:   i,
			Name:    info.Name(),
			ID:      info.ID.String(),
			Default: info.IsDefault == 1,
		})
	}
	return devices, nil
}
