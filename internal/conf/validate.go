// conf/validate.go

package conf

import (
	"fmt"
	"net"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateAudioSettings(&settings.Audio); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateCodecSettings(&settings.Codec); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateNetworkSettings(&settings.Network); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateWebServerSettings(&settings.WebServer); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateAudioSettings(audio *AudioSettings) error {
	if audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample rate must be positive: %d", audio.SampleRate)
	}
	if audio.FrameSize <= 0 {
		return fmt.Errorf("audio frame size must be positive: %d", audio.FrameSize)
	}
	if audio.BufferMs <= 0 {
		return fmt.Errorf("audio buffer depth must be positive: %d ms", audio.BufferMs)
	}
	if audio.LevelIntervalMs <= 0 {
		return fmt.Errorf("audio level interval must be positive: %d ms", audio.LevelIntervalMs)
	}
	for _, dev := range []struct {
		name string
		f    DeviceFormatSettings
	}{{"output", audio.Output}, {"input", audio.Input}} {
		if dev.f.Channels < 1 || dev.f.Channels > 2 {
			return fmt.Errorf("audio %s channels must be 1 or 2: %d", dev.name, dev.f.Channels)
		}
		if dev.f.SampleWidth != 2 && dev.f.SampleWidth != 4 {
			return fmt.Errorf("audio %s sample width must be 2 or 4 bytes: %d", dev.name, dev.f.SampleWidth)
		}
	}
	return nil
}

func validateCodecSettings(codec *CodecSettings) error {
	switch codec.Type {
	case "opus", "pcm-stereo-float", "pcm16-mono":
	default:
		return fmt.Errorf("unknown codec type: %q", codec.Type)
	}
	switch codec.Concealment {
	case "silence", "repeat":
	default:
		return fmt.Errorf("unknown concealment mode: %q", codec.Concealment)
	}
	if codec.Type == "opus" {
		if codec.Channels < 1 || codec.Channels > 2 {
			return fmt.Errorf("opus channels must be 1 or 2: %d", codec.Channels)
		}
		if codec.Bitrate <= 0 {
			return fmt.Errorf("opus bitrate must be positive: %d", codec.Bitrate)
		}
	}
	return nil
}

func validateNetworkSettings(network *NetworkSettings) error {
	if network.Listen != "" {
		if _, _, err := net.SplitHostPort(network.Listen); err != nil {
			return fmt.Errorf("invalid network listen address %q: %w", network.Listen, err)
		}
	}
	if network.Peer != "" {
		if _, _, err := net.SplitHostPort(network.Peer); err != nil {
			return fmt.Errorf("invalid network peer address %q: %w", network.Peer, err)
		}
	}
	return nil
}

func validateWebServerSettings(ws *WebServerSettings) error {
	if !ws.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(ws.Listen); err != nil {
		return fmt.Errorf("invalid webserver listen address %q: %w", ws.Listen, err)
	}
	return nil
}
