// Package api exposes the bridge's monitoring surface over HTTP: a
// Server-Sent Events stream of audio levels, Prometheus metrics and a
// health probe. The API observes the bridge, it never sits on the audio
// path.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/audiobridge-go/internal/device"
	"github.com/tphakala/audiobridge-go/internal/errors"
	"github.com/tphakala/audiobridge-go/internal/levelmeter"
	"github.com/tphakala/audiobridge-go/internal/logging"
)

const heartbeatInterval = 30 * time.Second

// LevelUpdate is one metering sample pushed to SSE subscribers.
type LevelUpdate struct {
	StreamID string    `json:"stream_id,omitempty"`
	RMSDB    float64   `json:"rms_db"`
	PeakDB   float64   `json:"peak_db"`
	Ramp     []float64 `json:"ramp"`
	UnixMs   int64     `json:"unix_ms"`
}

// Server hosts the monitoring endpoints.
type Server struct {
	echo     *echo.Echo
	listen   string
	registry *prometheus.Registry
	log      *slog.Logger

	clientsMux sync.Mutex
	clients    map[chan LevelUpdate]bool
}

// NewServer builds the router. registry may be nil to disable /metrics.
func NewServer(listen string, registry *prometheus.Registry) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:     e,
		listen:   listen,
		registry: registry,
		log:      logging.ForService("api").With("listen", listen),
		clients:  make(map[chan LevelUpdate]bool),
	}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/api/v1/streams/audio-level", s.handleAudioLevelSSE)
	e.GET("/api/v1/devices", s.handleDevices)
	if registry != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	}
	return s
}

// Serve blocks until the listener fails or Shutdown runs.
func (s *Server) Serve() error {
	s.log.Info("api server starting")
	if err := s.echo.Start(s.listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(err).
			Component("api").
			Category(errors.CategoryNetwork).
			Context("listen", s.listen).
			Build()
	}
	return nil
}

// Shutdown stops the listener and detaches all SSE subscribers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)

	s.clientsMux.Lock()
	for ch := range s.clients {
		delete(s.clients, ch)
		close(ch)
	}
	s.clientsMux.Unlock()
	return err
}

// Publish fans a level update out to all subscribers. Slow subscribers are
// skipped, never waited on.
func (s *Server) Publish(streamID string, sample levelmeter.LevelSample, ramp []float64) {
	update := LevelUpdate{
		StreamID: streamID,
		RMSDB:    sample.RMS,
		PeakDB:   sample.Peak,
		Ramp:     ramp,
		UnixMs:   time.Now().UnixMilli(),
	}

	s.clientsMux.Lock()
	for ch := range s.clients {
		select {
		case ch <- update:
		default:
		}
	}
	s.clientsMux.Unlock()
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDevices(c echo.Context) error {
	playback, err := device.ListPlaybackDevices()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	capture, err := device.ListCaptureDevices()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string][]device.DeviceInfo{
		"playback": playback,
		"capture":  capture,
	})
}

// handleAudioLevelSSE streams level updates until the client disconnects.
func (s *Server) handleAudioLevelSSE(c echo.Context) error {
	c.Response().Header().Set(echo.HeaderContentType, "text/event-stream; charset=utf-8")
	c.Response().Header().Set("Cache-Control", "no-cache")
	c.Response().Header().Set("Connection", "keep-alive")
	c.Response().WriteHeader(http.StatusOK)

	ch := make(chan LevelUpdate, 100)
	s.addClient(ch)
	defer s.removeClient(ch)

	ctx := c.Request().Context()
	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-ch:
			if !ok {
				return nil
			}
			data, err := json.Marshal(update)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(c.Response(), "data: %s\n\n", data); err != nil {
				return err
			}
			c.Response().Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprintf(c.Response(), ":\n\n"); err != nil {
				return err
			}
			c.Response().Flush()
		}
	}
}

func (s *Server) addClient(ch chan LevelUpdate) {
	s.clientsMux.Lock()
	s.clients[ch] = true
	s.clientsMux.Unlock()
}

func (s *Server) removeClient(ch chan LevelUpdate) {
	s.clientsMux.Lock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
		close(ch)
	}
	s.clientsMux.Unlock()
}
