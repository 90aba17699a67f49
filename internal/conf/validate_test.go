package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validSettings() *Settings {
	return &Settings{
		Audio: AudioSettings{
			SampleRate:      24000,
			FrameSize:       240,
			BufferMs:        500,
			LevelIntervalMs: 100,
			Output:          DeviceFormatSettings{Channels: 2, SampleWidth: 2},
			Input:           DeviceFormatSettings{Channels: 1, SampleWidth: 2},
		},
		Codec:   CodecSettings{Type: "opus", Channels: 1, Bitrate: 64000, Concealment: "silence"},
		Network: NetworkSettings{Listen: "0.0.0.0:47800", Peer: "10.0.0.2:47800"},
		WebServer: WebServerSettings{
			Enabled: true,
			Listen:  "0.0.0.0:8080",
		},
	}
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
	}{
		{"zero sample rate", func(s *Settings) { s.Audio.SampleRate = 0 }},
		{"zero frame size", func(s *Settings) { s.Audio.FrameSize = 0 }},
		{"three channels", func(s *Settings) { s.Audio.Output.Channels = 3 }},
		{"odd sample width", func(s *Settings) { s.Audio.Input.SampleWidth = 3 }},
		{"unknown codec", func(s *Settings) { s.Codec.Type = "mp3" }},
		{"unknown concealment", func(s *Settings) { s.Codec.Concealment = "extrapolate" }},
		{"opus zero bitrate", func(s *Settings) { s.Codec.Bitrate = 0 }},
		{"opus three channels", func(s *Settings) { s.Codec.Channels = 3 }},
		{"bad listen address", func(s *Settings) { s.Network.Listen = "no-port" }},
		{"bad webserver address", func(s *Settings) { s.WebServer.Listen = "no-port" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			assert.Error(t, ValidateSettings(s))
		})
	}
}

func TestValidateSettingsSkipsDisabledWebServer(t *testing.T) {
	s := validSettings()
	s.WebServer.Enabled = false
	s.WebServer.Listen = "garbage"
	assert.NoError(t, ValidateSettings(s))
}

func TestValidateSettingsAllowsEmptyPeer(t *testing.T) {
	s := validSettings()
	s.Network.Peer = ""
	assert.NoError(t, ValidateSettings(s))
}
