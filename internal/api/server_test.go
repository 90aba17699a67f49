package api

import (
	"bufio"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiobridge-go/internal/levelmeter"
	"github.com/tphakala/audiobridge-go/internal/observability"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	registry := prometheus.NewRegistry()
	_, err := observability.NewStreamMetrics(registry)
	require.NoError(t, err)

	s := NewServer("127.0.0.1:0", registry)
	ts := httptest.NewServer(s.echo)
	t.Cleanup(ts.Close)
	return s, ts
}

func TestHealthz(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	buf := new(strings.Builder)
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		buf.WriteString(sc.Text())
		buf.WriteByte('\n')
	}
	assert.Contains(t, buf.String(), "audiobridge_active_streams")
}

func TestAudioLevelSSEDeliversUpdates(t *testing.T) {
	s, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/v1/streams/audio-level")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Publish until the subscriber is registered and a frame arrives.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ramp := levelmeter.Interpolate(-6, levelmeter.FloorDB)
		for {
			select {
			case <-stop:
				return
			case <-time.After(5 * time.Millisecond):
				s.Publish("stream-1", levelmeter.LevelSample{RMS: -6, Peak: -3}, ramp[:])
			}
		}
	}()

	reader := bufio.NewReader(resp.Body)
	deadline := time.After(5 * time.Second)
	for {
		lineCh := make(chan string, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err == nil {
				lineCh <- line
			}
		}()

		var line string
		select {
		case line = <-lineCh:
		case <-deadline:
			t.Fatal("no SSE frame before deadline")
		}

		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var update LevelUpdate
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &update))
		assert.Equal(t, "stream-1", update.StreamID)
		assert.InDelta(t, -6.0, update.RMSDB, 1e-9)
		assert.InDelta(t, -3.0, update.PeakDB, 1e-9)
		assert.Len(t, update.Ramp, levelmeter.Steps)
		return
	}
}
